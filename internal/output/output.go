// Package output renders the human-readable run summary.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/plugkit/matrixgen/internal/classify"
	"github.com/plugkit/matrixgen/internal/scan"
)

const columnGap = "  "

// WriteSummary prints one aligned row per plugin: the verdict for each
// track plus a note for every source that failed. Column widths account
// for wide runes, so CJK plugin names stay aligned.
func WriteSummary(w io.Writer, results []scan.Result) error {
	headers := []string{"PLUGIN", "V0", "V1", "NOTES"}

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		verdict := classify.Reconcile(res.Facts())
		rows = append(rows, []string{
			res.Entry.ID,
			trackCell(verdict.V0),
			trackCell(verdict.V1),
			notesCell(res),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if wd := displayWidth(cell); wd > widths[i] {
				widths[i] = wd
			}
		}
	}

	if err := writeRow(w, headers, widths); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			// Last column stays ragged.
			parts[i] = cell
			continue
		}
		parts[i] = toWidth(cell, widths[i])
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, columnGap), " "))
	return err
}

func trackCell(tv classify.TrackVerdict) string {
	if !tv.Supported {
		return "-"
	}
	switch {
	case tv.Version != "" && tv.Branch != "":
		return fmt.Sprintf("%s (%s)", tv.Version, tv.Branch)
	case tv.Version != "":
		return tv.Version
	case tv.Branch != "":
		return "yes (" + tv.Branch + ")"
	default:
		return "yes"
	}
}

func notesCell(res scan.Result) string {
	var notes []string
	if res.ManifestErr != nil {
		notes = append(notes, "manifests failed")
	}
	if res.TagsErr != nil {
		notes = append(notes, "tags failed")
	}
	if res.NpmErr != nil {
		notes = append(notes, "npm failed")
	}
	return strings.Join(notes, ", ")
}

// displayWidth measures a string in terminal cells, counting wide runes
// as two.
func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// toWidth pads s with spaces up to the given display width.
func toWidth(s string, width int) string {
	current := displayWidth(s)
	if current >= width {
		return s
	}
	return s + strings.Repeat(" ", width-current)
}
