package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingLeft(1).PaddingRight(1)
	cellStyle   = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
	badStyle    = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// reportTable is a lipgloss table whose flagged rows render in red.
type reportTable struct {
	table *lgtable.Table
	count int
	bad   map[int]bool
}

func newReportTable(headers ...string) *reportTable {
	t := &reportTable{bad: make(map[int]bool)}
	t.table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row < 0:
				return headerStyle
			case t.bad[row]:
				return badStyle
			default:
				return cellStyle
			}
		})
	return t
}

// Row appends a row; bad rows are highlighted.
func (t *reportTable) Row(bad bool, cells ...string) {
	if bad {
		t.bad[t.count] = true
	}
	t.table.Row(cells...)
	t.count++
}

func (t *reportTable) String() string {
	return t.table.String()
}
