package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/orderly/pkg/tui/styles"
)

// TableColumn defines one column of the service table.
type TableColumn struct {
	Header string
	Width  int
}

// TableRow is one service's line in the table.
type TableRow struct {
	Icon  string
	Cells []string
}

// Table renders the read-only service table `orderly status` shows. It has
// no row selection or cursor: the status view is a passive poll-and-render
// loop, not an interactive list.
type Table struct {
	Columns []TableColumn
	Rows    []TableRow
	Width   int
	theme   styles.Theme
}

// NewTable creates a table with the given columns.
func NewTable(cols []TableColumn) Table {
	return Table{
		Columns: cols,
		theme:   styles.DefaultTheme(),
	}
}

// WithRows sets the table rows.
func (t Table) WithRows(rows []TableRow) Table {
	t.Rows = rows
	return t
}

// WithSize sets the table width; height is unused (the terminal scrolls).
func (t Table) WithSize(width, _ int) Table {
	t.Width = width
	return t
}

// Render returns the styled table as a string.
func (t Table) Render() string {
	if len(t.Rows) == 0 {
		return t.theme.TitleMuted.Render("(no data)")
	}

	theme := t.theme
	lines := make([]string, 0, len(t.Rows))

	for _, row := range t.Rows {
		parts := make([]string, 0, len(row.Cells)+1)

		if row.Icon != "" {
			iconStyle := theme.StatusRunning
			switch row.Icon {
			case styles.IconError:
				iconStyle = theme.StatusDead
			case styles.IconPending, styles.IconSkipped:
				iconStyle = theme.StatusPending
			}
			parts = append(parts, iconStyle.Render(row.Icon)+" ")
		}

		for j, cell := range row.Cells {
			width := 20
			if j < len(t.Columns) && t.Columns[j].Width > 0 {
				width = t.Columns[j].Width
			}

			cellStr := cell
			if len(cellStr) > width {
				cellStr = cellStr[:width-1] + "…"
			}

			cellStyle := lipgloss.NewStyle().Width(width).Foreground(theme.TextDim)
			parts = append(parts, cellStyle.Render(cellStr))
		}

		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}

	return strings.Join(lines, "\n")
}

// ServiceRow builds a table row for one service's line in `orderly
// status`: name, lifecycle, pid, and a free-form extra column
// (StatusModel puts the restart count and the CPU/memory sample there).
func ServiceRow(icon, name, status, pid, extra string) TableRow {
	return TableRow{
		Icon:  icon,
		Cells: []string{name, status, pid, extra},
	}
}
