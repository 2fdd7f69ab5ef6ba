package models

import (
	"flag"
	"io"

	"github.com/olekukonko/tablewriter"
)

// PrintFlags writes one row per flag: name, default and usage, with long
// usage text wrapped.
func PrintFlags(w io.Writer, flags []*flag.Flag) {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColWidth(50)
	for _, f := range flags {
		def := ""
		if f.DefValue != "" && f.DefValue != "false" {
			def = "(" + f.DefValue + ")"
		}
		table.Append([]string{"-" + f.Name, def, f.Usage})
	}
	table.Render()
}
