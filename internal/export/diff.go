package export

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// Line kinds.
const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// MaxDiffLines caps the combined size of the two renderings that Diff compares.
const MaxDiffLines = 5000

// Line is one line of a version diff. OldLine and NewLine are 1-based and
// zero when the line does not exist on that side.
type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"oldLine,omitempty"`
	NewLine int    `json:"newLine,omitempty"`
}

// VersionDiff compares the renderings of two versions of one trip.
type VersionDiff struct {
	From      int    `json:"from"`
	To        int    `json:"to"`
	Lines     []Line `json:"lines"`
	Truncated bool   `json:"truncated"`
}

// Changed reports whether the diff has any added or removed line.
func (d VersionDiff) Changed() bool {
	for _, l := range d.Lines {
		if l.Type != LineContext {
			return true
		}
	}
	return false
}

// Diff renders from and to and compares them line by line. trip supplies the
// header of both renderings. Oversized renderings yield an empty, Truncated diff.
func Diff(trip domain.Trip, from, to domain.ItineraryVersion) VersionDiff {
	out := VersionDiff{From: from.Version, To: to.Version, Lines: []Line{}}
	before, after := Render(trip, from), Render(trip, to)
	if lineCount(before)+lineCount(after) > MaxDiffLines {
		out.Truncated = true
		return out
	}
	out.Lines = TextDiff(before, after)
	return out
}

// TextDiff is a line-mode diff of two texts.
func TextDiff(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	lines := []Line{}
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
