package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusf prints a status line to stderr unless --quiet is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// IEC units, matching how part sizes are configured.
const (
	sizeKiB = 1 << 10
	sizeMiB = 1 << 20
	sizeGiB = 1 << 30
)

// formatSize returns a human-readable size such as "1.5 MiB".
func formatSize(n uint64) string {
	switch {
	case n >= sizeGiB:
		return fmt.Sprintf("%.1f GiB", float64(n)/sizeGiB)
	case n >= sizeMiB:
		return fmt.Sprintf("%.1f MiB", float64(n)/sizeMiB)
	case n >= sizeKiB:
		return fmt.Sprintf("%.1f KiB", float64(n)/sizeKiB)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// formatTime returns a compact local timestamp, "-" when unknown.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	if t.Year() == time.Now().Year() {
		return t.Local().Format("Jan _2 15:04")
	}

	return t.Local().Format("Jan _2  2006")
}

// printTable writes left-aligned columns separated by two spaces.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	writeRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}

		fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, "  "), " "))
	}

	writeRow(headers)

	for _, row := range rows {
		writeRow(row)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
