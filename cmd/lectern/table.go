package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableColumn describes one column of a CLI table. A zero maxWidth uses
// defaultColumnWidth.
type tableColumn struct {
	header   string
	right    bool
	maxWidth int
}

const defaultColumnWidth = 60

var (
	fieldValueColumns = []tableColumn{{header: "Field"}, {header: "Value", maxWidth: 80}}

	jobListColumns = []tableColumn{
		{header: "ID", right: true},
		{header: "Audiobook", right: true},
		{header: "Status"},
		{header: "Progress", right: true},
		{header: "Phase"},
		{header: "Updated"},
		{header: "Error", maxWidth: 48},
	}

	statusCountColumns = []tableColumn{{header: "Status"}, {header: "Count", right: true}}

	audiobookListColumns = []tableColumn{
		{header: "ID", right: true},
		{header: "Title", maxWidth: 40},
		{header: "Author", maxWidth: 30},
		{header: "Status"},
		{header: "Size", right: true},
		{header: "Categories"},
	}
)

// renderTable lays rows out under columns. Cells may carry ANSI colour; widths
// are measured without escape sequences.
func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.header
		align := text.AlignLeft
		if col.right {
			align = text.AlignRight
		}
		width := col.maxWidth
		if width <= 0 {
			width = defaultColumnWidth
		}
		configs[i] = table.ColumnConfig{
			Number:           i + 1,
			Align:            align,
			AlignHeader:      text.AlignLeft,
			WidthMax:         width,
			WidthMaxEnforcer: text.Trim,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render() + "\n"
}
