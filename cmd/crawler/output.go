package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = cellStyle.Foreground(lipgloss.Color("#04B575"))
	warnStyle   = cellStyle.Foreground(lipgloss.Color("#FFA500"))
	errStyle    = cellStyle.Foreground(lipgloss.Color("#FF0000"))
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("#626262"))
)

// statusStyle colours a cell by the outcome word it holds.
func statusStyle(v string) lipgloss.Style {
	switch v {
	case "merged", "configured", "completed", "yes":
		return okStyle
	case "no_match", "noop", "unconfigured":
		return warnStyle
	case "failed":
		return errStyle
	case "skipped", "not_required", "no":
		return mutedStyle
	default:
		return cellStyle
	}
}

// printTable renders rows under headers. Columns listed in statusCols are
// coloured by value.
func printTable(w io.Writer, headers []string, rows [][]string, statusCols ...int) {
	colour := make(map[int]bool, len(statusCols))
	for _, c := range statusCols {
		colour[c] = true
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if colour[col] && row >= 0 && row < len(rows) && col < len(rows[row]) {
				return statusStyle(rows[row][col])
			}
			return cellStyle
		})
	// Only shrink: Width also stretches narrow tables.
	if width := terminalWidth(w); width > 0 && lipgloss.Width(t.String()) > width {
		t = t.Width(width)
	}
	fmt.Fprintln(w, t.String()) //nolint:errcheck
}

// terminalWidth returns the column count of w when it is a terminal, or 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: fd fits in int
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec // G115: fd fits in int
	if err != nil {
		return 0
	}
	return width
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDistance(d float64, exact bool) string {
	if exact {
		return "exact"
	}
	return strconv.FormatFloat(d, 'f', 3, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
