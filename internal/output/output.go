// Package output renders the final inspection report for human and machine
// consumption.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/updrift/updrift/pkg/types"
)

// tabwriter layout: minwidth, tabwidth, padding.
const (
	tableMinWidth = 2
	tableTabWidth = 4
	tablePadding  = 2
)

// Write renders the records in the requested format, "table" or "json".
func Write(w io.Writer, format string, records []types.UnitRecord) error {
	if format == "json" {
		return WriteJSON(w, records)
	}

	return WriteTable(w, records)
}

// WriteJSON writes the records as an indented JSON array. Unknown verdicts
// serialize as null, distinguishing "not checked" from "no".
func WriteJSON(w io.Writer, records []types.UnitRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	return nil
}

// WriteTable writes the records as an aligned text table, one row per unit.
func WriteTable(w io.Writer, records []types.UnitRecord) error {
	table := tabwriter.NewWriter(w, tableMinWidth, tableTabWidth, tablePadding, ' ', 0)

	fmt.Fprintln(table, "NAME\tSTACK\tSERVICE\tIMAGE\tRESTART\tPULL\tTAG\tBEST TAG\tLINK")

	for _, record := range records {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.Name,
			orDash(record.Stack),
			orDash(record.Service),
			record.Image,
			record.Restart,
			record.Pull,
			record.Tag,
			orDash(record.BestTag),
			orDash(link(record)),
		)
	}

	if err := table.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// link picks the most useful link for the table: the best-tag link when one
// was rendered, the running-version link otherwise.
func link(record types.UnitRecord) string {
	if record.Link != "" {
		return record.Link
	}

	return record.LinkForPull
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
