package myquery

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/analysis"
	"github.com/myquery/myquery/internal/export"
	"github.com/myquery/myquery/internal/multidb"
	"github.com/myquery/myquery/internal/profiles"
	"github.com/myquery/myquery/internal/query"
	"github.com/myquery/myquery/internal/schema"
)

const (
	displayRows  = 50
	displayWidth = 40
)

func renderTable(w io.Writer, data pterm.TableData) error {
	rendered, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func renderSQL(w io.Writer, sqlText string) {
	_, _ = fmt.Fprintln(w, pterm.DefaultBox.WithTitle("SQL").Sprint(sqlText))
}

// renderResult prints at most displayRows rows; the rest is only counted.
func renderResult(w io.Writer, result query.Result) error {
	if len(result.Columns) == 0 {
		_, err := fmt.Fprintln(w, "Statement returned no columns.")
		return err
	}
	data := pterm.TableData{result.Columns}
	for i, row := range result.Data {
		if i == displayRows {
			break
		}
		line := make([]string, len(result.Columns))
		for j, col := range result.Columns {
			line[j] = formatCell(row[col])
		}
		data = append(data, line)
	}
	if err := renderTable(w, data); err != nil {
		return err
	}
	footer := fmt.Sprintf("%s rows", humanize.Comma(int64(result.RowCount)))
	if hidden := len(result.Data) - displayRows; hidden > 0 {
		footer += fmt.Sprintf(", %s not shown", humanize.Comma(int64(hidden)))
	}
	if result.Truncated {
		footer += " (truncated at the row limit)"
	}
	_, err := fmt.Fprintln(w, footer)
	return err
}

func renderSummary(w io.Writer, summary analysis.Summary) {
	var nulls []string
	for _, col := range summary.Columns {
		if n := summary.NullCounts[col]; n > 0 {
			nulls = append(nulls, fmt.Sprintf("%s=%d", col, n))
		}
	}
	if len(nulls) > 0 {
		_, _ = fmt.Fprintln(w, "Missing values: "+strings.Join(nulls, ", "))
	}
}

func renderFlow(w io.Writer, flow agent.FlowResult) error {
	if err := renderResult(w, *flow.Execution); err != nil {
		return err
	}
	if flow.Summary != nil {
		renderSummary(w, *flow.Summary)
	}
	if flow.Analysis != "" {
		_, _ = fmt.Fprintln(w, pterm.DefaultBox.WithTitle("Analysis").Sprint(flow.Analysis))
	}
	if flow.Chart != analysis.ChartNone {
		_, _ = fmt.Fprintf(w, "Suggested visualization: %s chart\n", flow.Chart)
	}
	if flow.Optimization != nil {
		renderReview(w, *flow.Optimization)
	}
	return nil
}

func renderReview(w io.Writer, review analysis.Review) {
	c := review.Complexity
	_, _ = fmt.Fprintf(w, "Complexity: %s (score %d, %d joins, %d subqueries)\n", c.Level, c.Score, c.JoinCount, c.SubqueryCount)
	if len(review.Issues) == 0 {
		_, _ = fmt.Fprintln(w, pterm.Success.Sprint("No optimization issues found."))
	}
	for _, issue := range review.Issues {
		_, _ = fmt.Fprintln(w, pterm.Warning.Sprintf("%s: %s", issue.Type, issue.Message))
		_, _ = fmt.Fprintf(w, "  suggestion: %s\n", issue.Suggestion)
	}
	if review.Advice != "" {
		_, _ = fmt.Fprintln(w, pterm.DefaultBox.WithTitle("Advice").Sprint(review.Advice))
	}
}

func renderSchema(w io.Writer, current schema.Schema) error {
	data := pterm.TableData{{"Table", "Columns", "Primary key", "Foreign keys"}}
	for _, name := range current.TableNames() {
		table := current.Tables[name]
		data = append(data, []string{
			name,
			strconv.Itoa(len(table.Columns)),
			strings.Join(table.PrimaryKeys, ", "),
			strconv.Itoa(len(table.ForeignKeys)),
		})
	}
	if err := renderTable(w, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d tables\n", current.TotalTables)
	return err
}

func renderProfiles(w io.Writer, list []profiles.Profile) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No connections registered. Add one with: myquery multidb add <name> ...")
		return err
	}
	data := pterm.TableData{{"Name", "Type", "Database", "Host", "Port", "User"}}
	for _, p := range list {
		port := ""
		if p.Port > 0 {
			port = strconv.Itoa(p.Port)
		}
		data = append(data, []string{p.Name, p.Type, p.Database, p.Host, port, p.User})
	}
	return renderTable(w, data)
}

func renderOutcome(w io.Writer, outcome multidb.Outcome, elapsed time.Duration) error {
	for _, src := range outcome.Results {
		if !src.Success {
			_, _ = fmt.Fprintln(w, pterm.Error.Sprintf("[%s] %s", src.Name, src.Error))
			continue
		}
		_, _ = fmt.Fprintln(w, pterm.Info.Sprintf("[%s] %s rows", src.Name, humanize.Comma(int64(src.RowCount))))
		if outcome.Merged == nil {
			if err := renderResult(w, src.Result); err != nil {
				return err
			}
		}
	}
	if outcome.MergeError != "" {
		_, _ = fmt.Fprintln(w, pterm.Warning.Sprintf("merge failed: %s", outcome.MergeError))
	}
	if m := outcome.Merged; m != nil {
		_, _ = fmt.Fprintf(w, "Merged (%s) from %s\n", m.MergeType, strings.Join(m.SourceDatabases, ", "))
		if err := renderResult(w, query.Result{Success: true, Columns: m.Columns, Data: m.Data, RowCount: m.RowCount}); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Finished in %s\n", elapsed.Round(time.Millisecond))
	return err
}

func renderComparison(w io.Writer, comparison multidb.Comparison) error {
	data := pterm.TableData{{"Database", "Tables", "Names"}}
	for _, s := range comparison {
		if s.Error != "" {
			data = append(data, []string{s.Name, "-", "error: " + s.Error})
			continue
		}
		names := append([]string(nil), s.Tables...)
		sort.Strings(names)
		data = append(data, []string{s.Name, strconv.Itoa(s.TableCount), strings.Join(names, ", ")})
	}
	return renderTable(w, data)
}

func renderExports(w io.Writer, files []export.File) {
	for _, f := range files {
		_, _ = fmt.Fprintln(w, pterm.Success.Sprintf("exported %s to %s (%s)", f.Format, f.Location, humanize.Bytes(uint64(f.Size))))
	}
}

func formatCell(value any) string {
	var s string
	switch v := value.(type) {
	case nil:
		return "NULL"
	case time.Time:
		s = v.Format(time.RFC3339)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > displayWidth {
		s = string(r[:displayWidth-1]) + "…"
	}
	return s
}
