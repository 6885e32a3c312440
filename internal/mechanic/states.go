package mechanic

import "strings"

// usStates lists US state names with their abbreviations. The order is the
// master-list order fuzzy matching breaks ties with.
var usStates = []struct{ name, code string }{
	{"Alabama", "AL"},
	{"Alaska", "AK"},
	{"Arizona", "AZ"},
	{"Arkansas", "AR"},
	{"California", "CA"},
	{"Colorado", "CO"},
	{"Connecticut", "CT"},
	{"Delaware", "DE"},
	{"Florida", "FL"},
	{"Georgia", "GA"},
	{"Hawaii", "HI"},
	{"Idaho", "ID"},
	{"Illinois", "IL"},
	{"Indiana", "IN"},
	{"Iowa", "IA"},
	{"Kansas", "KS"},
	{"Kentucky", "KY"},
	{"Louisiana", "LA"},
	{"Maine", "ME"},
	{"Maryland", "MD"},
	{"Massachusetts", "MA"},
	{"Michigan", "MI"},
	{"Minnesota", "MN"},
	{"Mississippi", "MS"},
	{"Missouri", "MO"},
	{"Montana", "MT"},
	{"Nebraska", "NE"},
	{"Nevada", "NV"},
	{"New Hampshire", "NH"},
	{"New Jersey", "NJ"},
	{"New Mexico", "NM"},
	{"New York", "NY"},
	{"North Carolina", "NC"},
	{"North Dakota", "ND"},
	{"Ohio", "OH"},
	{"Oklahoma", "OK"},
	{"Oregon", "OR"},
	{"Pennsylvania", "PA"},
	{"Rhode Island", "RI"},
	{"South Carolina", "SC"},
	{"South Dakota", "SD"},
	{"Tennessee", "TN"},
	{"Texas", "TX"},
	{"Utah", "UT"},
	{"Vermont", "VT"},
	{"Virginia", "VA"},
	{"Washington", "WA"},
	{"West Virginia", "WV"},
	{"Wisconsin", "WI"},
	{"Wyoming", "WY"},
}

var (
	stateByName = make(map[string]string, len(usStates))
	stateCodes  = make(map[string]bool, len(usStates))
)

func init() {
	for _, s := range usStates {
		stateByName[strings.ToLower(s.name)] = s.code
		stateCodes[s.code] = true
	}
}

// StateNames returns the state names in master-list order.
func StateNames() []string {
	names := make([]string, len(usStates))
	for i, s := range usStates {
		names[i] = s.name
	}
	return names
}

// StateCode converts a US state name to its 2-letter abbreviation. A value
// that is already an abbreviation in any case comes back upper-cased.
func StateCode(s string) (string, bool) {
	s = strings.TrimSpace(s)

	if code, ok := stateByName[strings.ToLower(s)]; ok {
		return code, true
	}

	if upper := strings.ToUpper(s); stateCodes[upper] {
		return upper, true
	}
	return "", false
}
