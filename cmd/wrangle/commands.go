package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/wrangle/internal/core"
	"github.com/JonMunkholm/wrangle/internal/mechanic"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

// errInvalidCells makes validate exit non-zero under --fail.
var errInvalidCells = errors.New("invalid cells found")

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.csv>",
		Short: "Show the inferred schema and the first rows",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().Int("rows", 10, "number of rows to show")
	cmd.Flags().Uint("max-width", 24, "maximum column width in cells (0 for no limit)")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	n, err := cmd.Flags().GetInt("rows")
	if err != nil {
		return err
	}
	maxWidth, err := cmd.Flags().GetUint("max-width")
	if err != nil {
		return err
	}
	width, err := safecast.Conv[int](maxWidth)
	if err != nil {
		return fmt.Errorf("--max-width: %w", err)
	}

	_, sess, err := openFile(cmd, args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sum, err := sess.Summary(ctx)
	if err != nil {
		return err
	}
	records, err := sess.Rows(ctx, 0, n)
	if err != nil {
		return describeError(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rows, %d columns, %.2f MB\n\n", sum.FileName, sum.RowCount, len(sum.Columns), sum.FileSizeMB)

	t := &table{maxWidth: width}
	for _, c := range sum.Columns {
		t.header = append(t.header, c.Name)
		t.subtitle = append(t.subtitle, c.Type.String())
	}
	keys := core.RecordKeys(t.header)
	for _, rec := range records {
		row := make([]string, len(keys))
		for i, k := range keys {
			row[i] = rec[k]
		}
		t.rows = append(t.rows, row)
	}
	return t.render(out)
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file.csv>",
		Short: "Count invalid cells per column",
		Long: "Validate every column against its inferred type. With --column and --type,\n" +
			"retype one column first and list its invalid rows.",
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
	cmd.Flags().String("column", "", "column index or name to retype")
	cmd.Flags().String("type", "", "type to validate --column against: "+typeNames())
	cmd.Flags().Bool("fail", false, "exit non-zero when any cell is invalid")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	ref, _ := cmd.Flags().GetString("column")
	typeName, _ := cmd.Flags().GetString("type")
	fail, _ := cmd.Flags().GetBool("fail")
	if (ref != "") != (typeName != "") {
		return errors.New("--column and --type must be used together")
	}

	_, sess, err := openFile(cmd, args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if ref != "" {
		col, err := sess.ColumnIndex(ctx, ref)
		if err != nil {
			return describeError(err)
		}
		rows, err := sess.ValidateColumn(ctx, col, typeName)
		if err != nil {
			return describeError(err)
		}
		printCount(out, fmt.Sprintf("column %d as %s", col, typeName), len(rows))
		for _, r := range rows {
			fmt.Fprintf(out, "  row %d\n", r)
		}
		if fail && len(rows) > 0 {
			return errInvalidCells
		}
		return nil
	}

	sum, err := sess.Summary(ctx)
	if err != nil {
		return err
	}
	cols := make([]int, len(sum.Columns))
	for i := range cols {
		cols[i] = i
	}
	chunks, err := sess.ValidateChunk(ctx, cols, 0, sum.RowCount)
	if err != nil {
		return describeError(err)
	}

	total := 0
	for _, ch := range chunks {
		c := sum.Columns[ch.Col]
		printCount(out, fmt.Sprintf("%s (%s)", c.Name, c.Type), len(ch.Rows))
		total += len(ch.Rows)
	}
	fmt.Fprintf(out, "\n%d invalid cells in %d rows\n", total, sum.RowCount)
	if fail && total > 0 {
		return errInvalidCells
	}
	return nil
}

func typeNames() string {
	names := make([]string, 0, len(schema.All()))
	for _, t := range schema.All() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

func printCount(out io.Writer, label string, n int) {
	if n == 0 {
		color.New(color.FgGreen).Fprintf(out, "ok      %s\n", label)
		return
	}
	color.New(color.FgRed).Fprintf(out, "%-7d %s\n", n, label)
}

func newSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <file.csv>",
		Short: "List mechanical fixes for one or every column",
		Args:  cobra.ExactArgs(1),
		RunE:  runSuggest,
	}
	cmd.Flags().String("column", "", "analyze only this column (index or name)")
	cmd.Flags().Bool("json", false, "print reports as JSON")
	return cmd
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ref, _ := cmd.Flags().GetString("column")
	asJSON, _ := cmd.Flags().GetBool("json")

	engine, sess, err := openFile(cmd, args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var groups []core.ColumnSuggestions
	if ref != "" {
		col, err := sess.ColumnIndex(ctx, ref)
		if err != nil {
			return describeError(err)
		}
		sum, err := sess.Summary(ctx)
		if err != nil {
			return err
		}
		reports, err := sess.Suggestions(ctx, col)
		if err != nil {
			return describeError(err)
		}
		c := sum.Columns[col]
		groups = []core.ColumnSuggestions{{Column: col, Name: c.Name, Type: c.Type, Suggestions: reports}}
	} else {
		groups, err = engine.SuggestAll(ctx, sess)
		if err != nil {
			return describeError(err)
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	bold := color.New(color.Bold)
	for _, g := range groups {
		if len(g.Suggestions) == 0 {
			continue
		}
		bold.Fprintf(out, "[%d] %s (%s)\n", g.Column, g.Name, g.Type)
		for _, r := range g.Suggestions {
			fmt.Fprintf(out, "  %-26s %s\n", r.Kind, r.Description)
			fmt.Fprintf(out, "  %-26s %s -> %s\n", "", strconv.Quote(r.ExampleBefore), strconv.Quote(r.ExampleAfter))
		}
	}
	return nil
}

func newFixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix <file.csv>",
		Short: "Apply suggestions to a column and write the cleaned CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runFix,
	}
	cmd.Flags().String("column", "", "column to fix (index or name)")
	cmd.Flags().StringSlice("kind", nil, "suggestion kinds to apply, in order; every suggestion of a kind is applied")
	cmd.Flags().Bool("all", false, "apply every suggestion for the column")
	cmd.Flags().StringP("output", "o", "", "write the CSV here instead of stdout")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func runFix(cmd *cobra.Command, args []string) error {
	ref, _ := cmd.Flags().GetString("column")
	kinds, _ := cmd.Flags().GetStringSlice("kind")
	all, _ := cmd.Flags().GetBool("all")
	output, _ := cmd.Flags().GetString("output")

	if all == (len(kinds) > 0) {
		return errors.New("use exactly one of --kind or --all")
	}
	for _, k := range kinds {
		if !slices.Contains(mechanic.Kinds, mechanic.Kind(k)) {
			return fmt.Errorf("unknown suggestion kind %q", k)
		}
	}

	_, sess, err := openFile(cmd, args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	col, err := sess.ColumnIndex(ctx, ref)
	if err != nil {
		return describeError(err)
	}
	reports, err := sess.Suggestions(ctx, col)
	if err != nil {
		return describeError(err)
	}

	plan := reports
	if !all {
		plan = nil
		for _, k := range kinds {
			n := len(plan)
			for _, r := range reports {
				if r.Kind == mechanic.Kind(k) {
					plan = append(plan, r)
				}
			}
			if len(plan) == n {
				return fmt.Errorf("no %s suggestion for column %d", k, col)
			}
		}
	}

	status := cmd.ErrOrStderr()
	for _, r := range plan {
		n, err := sess.ApplySuggestion(ctx, col, r.Suggestion)
		if err != nil {
			return describeError(err)
		}
		color.New(color.FgGreen).Fprintf(status, "applied %s to %d cells\n", r.Kind, n)
	}

	if output == "" {
		_, err = sess.Export(ctx, cmd.OutOrStdout())
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if _, err := sess.Export(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wrangle %s\n", version)
		},
	}
}
