// Package report renders run results as terminal tables.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = cellStyle.Foreground(lipgloss.Color("196"))
)

// Row is one counter line of a stats table.
type Row struct {
	Label string
	Value int
	// Failure marks the row red when Value is non-zero.
	Failure bool
}

// Stats renders a titled two-column counter table.
func Stats(title string, rows []Row) string {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.Label, strconv.Itoa(r.Value)}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Metric", "Count").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && rows[row].Failure && rows[row].Value > 0 {
				return failedStyle
			}
			return cellStyle
		})

	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), t.String())
}

// Table renders an arbitrary table with headers.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// Fprint writes a stats table followed by a newline.
func Fprint(w io.Writer, title string, rows []Row) error {
	_, err := fmt.Fprintln(w, Stats(title, rows))
	return err
}
