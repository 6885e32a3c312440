// Package schema defines the semantic column types a dataset can carry and
// the validity rule each type enforces.
//
// Every rule treats the empty string as valid: absence of a value is never a
// type error. Validity is a pure function of (type, value) and the package
// holds no state.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a type name does not match any Type.
var ErrUnknownType = errors.New("unknown column type")

// Type is the semantic type of a column.
type Type int

const (
	Text Type = iota
	Integer
	Float
	Boolean
	Email
	PhoneUS
	Date
	Uuid
	Time
	Currency
	Percentage
)

var typeNames = [...]string{
	Text:       "Text",
	Integer:    "Integer",
	Float:      "Float",
	Boolean:    "Boolean",
	Email:      "Email",
	PhoneUS:    "PhoneUS",
	Date:       "Date",
	Uuid:       "Uuid",
	Time:       "Time",
	Currency:   "Currency",
	Percentage: "Percentage",
}

// InferenceOrder is the precedence in which candidate types are tried when
// inferring a column's type. Text is the fallback and never a candidate.
var InferenceOrder = []Type{
	Boolean,
	Integer,
	Float,
	Uuid,
	Time,
	Date,
	Email,
	PhoneUS,
	Currency,
	Percentage,
}

// All returns every type in declaration order.
func All() []Type {
	out := make([]Type, len(typeNames))
	for i := range typeNames {
		out[i] = Type(i)
	}
	return out
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType resolves a type name case-insensitively. "phone" and "phone_us"
// are accepted for PhoneUS, "percent" for Percentage.
func ParseType(name string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "phone", "phone_us":
		return PhoneUS, nil
	case "percent":
		return Percentage, nil
	case "bool":
		return Boolean, nil
	case "int":
		return Integer, nil
	}
	for i, n := range typeNames {
		if strings.ToLower(n) == key {
			return Type(i), nil
		}
	}
	return Text, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// MarshalText encodes the type as its name.
func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Column is one entry of a dataset's schema.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"detectedType"`
}
