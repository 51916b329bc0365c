package replay

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/branchtrack/internal/session"
	"github.com/Sumatoshi-tech/branchtrack/pkg/payload"
)

// resultColumnWidth caps the width of rendered JSON results.
const resultColumnWidth = 72

const (
	markUnset    = "unset"
	lineageArrow = " -> "
)

var (
	okColor       = color.New(color.FgGreen)
	failColor     = color.New(color.FgRed)
	expectedColor = color.New(color.FgYellow)
	headerColor   = color.New(color.Bold)
	unsetColor    = color.New(color.Faint)
	insertColor   = color.New(color.FgGreen)
	deleteColor   = color.New(color.FgRed, color.CrossedOut)
)

// Render writes a human readable report to w.
func Render(w io.Writer, report Report) {
	title := report.Name
	if title == "" {
		title = "replay"
	}

	headerColor.Fprintf(w, "%s (session %s)\n", title, report.SessionID)

	for _, o := range report.Outcomes {
		renderOutcome(w, o)
	}

	renderStats(w, report.Stats)

	failed := report.Failed()
	if failed > 0 {
		failColor.Fprintf(w, "%d of %d steps did not match expectations\n", failed, len(report.Outcomes))

		return
	}

	okColor.Fprintf(w, "%d steps completed\n", len(report.Outcomes))
}

func renderOutcome(w io.Writer, o Outcome) {
	label := fmt.Sprintf("[%d] %s", o.Index, o.Op)

	switch {
	case o.Err != nil && o.OK():
		expectedColor.Fprintf(w, "%s failed as expected: %s\n", label, o.Code)

		return
	case o.Err != nil:
		failColor.Fprintf(w, "%s failed: %s: %v\n", label, o.Code, o.Err)

		return
	case !o.OK():
		failColor.Fprintf(w, "%s succeeded, expected %s\n", label, o.Expected)
	default:
		okColor.Fprintf(w, "%s\n", label)
	}

	renderOutput(w, o)
}

func renderOutput(w io.Writer, o Outcome) {
	switch out := o.Output.(type) {
	case session.Recorded:
		fmt.Fprintf(w, "  version %d, slot %d, parent %d\n", out.Version, out.Slot, out.Parent)
	case session.SlotResult:
		renderResults(w, o.Version, []session.SlotResult{out})
	case []session.SlotResult:
		renderResults(w, o.Version, out)
	case []session.SlotChange:
		renderChanges(w, out)
	case []int:
		fmt.Fprintf(w, "  %s\n", joinVersions(out))
	case session.Stats:
		renderStats(w, out)
	}
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Result", WidthMax: resultColumnWidth},
		{Name: "Diff", WidthMax: resultColumnWidth},
	})

	return tbl
}

func renderResults(w io.Writer, version int, results []session.SlotResult) {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Slot", "Result"})

	for _, r := range results {
		tbl.AppendRow(table.Row{r.Slot, formatResult(r)})
	}

	tbl.AppendFooter(table.Row{"Version", version})

	fmt.Fprintln(w, tbl.Render())
}

func formatResult(r session.SlotResult) string {
	if !r.Set {
		return unsetColor.Sprint(markUnset)
	}

	return formatPayload(r.Result)
}

func formatPayload(p payload.Payload) string {
	raw, err := p.JSON()
	if err != nil {
		return failColor.Sprint(err.Error())
	}

	return string(raw)
}

func renderChanges(w io.Writer, changes []session.SlotChange) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "  no differences")

		return
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"Slot", "From", "To", "Diff"})

	for _, c := range changes {
		tbl.AppendRow(table.Row{c.Slot, setMark(c.From), setMark(c.To), formatFragments(c.Fragments)})
	}

	fmt.Fprintln(w, tbl.Render())
}

func setMark(r session.SlotResult) string {
	if r.Set {
		return "set"
	}

	return unsetColor.Sprint(markUnset)
}

func formatFragments(fragments []session.Fragment) string {
	var sb strings.Builder

	for _, f := range fragments {
		switch f.Op {
		case session.OpInsert:
			sb.WriteString(insertColor.Sprint(f.Text))
		case session.OpDelete:
			sb.WriteString(deleteColor.Sprint(f.Text))
		default:
			sb.WriteString(f.Text)
		}
	}

	return sb.String()
}

func joinVersions(versions []int) string {
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = strconv.Itoa(v)
	}

	return strings.Join(parts, lineageArrow)
}

func renderStats(w io.Writer, stats session.Stats) {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Stat", "Value"})
	tbl.AppendRows([]table.Row{
		{"Branches", fmt.Sprintf("%d / %d", stats.Slots, stats.Capacity)},
		{"Versions", humanize.Comma(int64(stats.Versions))},
		{"Current version", stats.CurrentVersion},
		{"Tree nodes", humanize.Comma(int64(stats.Nodes))},
		{"Payload bytes", humanize.Bytes(uint64(max(stats.PayloadBytes, 0)))},
		{"Stored bytes", humanize.Bytes(uint64(max(stats.StoredBytes, 0)))},
		{"Compressed payloads", stats.Compressed},
	})

	fmt.Fprintln(w, tbl.Render())
}
