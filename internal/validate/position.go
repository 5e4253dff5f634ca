package validate

import (
	"strings"
)

// lineIndex precomputes per-line lengths for clamping service-reported
// positions against the current document. Columns are measured in UTF-16
// code units to match the wire contract.
type lineIndex struct {
	utf16Lens []int
}

// newLineIndex builds an index over the given document text.
// An empty document still has one (empty) line.
func newLineIndex(content string) *lineIndex {
	lines := strings.Split(content, "\n")
	idx := &lineIndex{utf16Lens: make([]int, len(lines))}
	for i, line := range lines {
		idx.utf16Lens[i] = utf16Len(line)
	}
	return idx
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// lineCount returns the number of lines in the indexed document.
func (idx *lineIndex) lineCount() int {
	return len(idx.utf16Lens)
}

// clampPosition clamps p to the nearest valid boundary of the document.
// Lines are 1-based; columns are 0-based and may equal the line length
// (the position just past the last character).
func (idx *lineIndex) clampPosition(p Position) (Position, bool) {
	adjusted := false

	line := p.Line
	if line < 1 {
		line = 1
		adjusted = true
	}
	if line > idx.lineCount() {
		line = idx.lineCount()
		adjusted = true
	}

	char := p.Character
	if char < 0 {
		char = 0
		adjusted = true
	}
	// Columns are clamped against the (possibly moved) line, since the
	// original column was measured against a different document.
	if maxChar := idx.utf16Lens[line-1]; char > maxChar {
		char = maxChar
		adjusted = true
	}

	return Position{Line: line, Character: char}, adjusted
}

// clampRange clamps both ends of r and guarantees start <= end.
// The bool result reports whether any adjustment was made.
func (idx *lineIndex) clampRange(r Range) (Range, bool) {
	start, sAdj := idx.clampPosition(r.Start)
	end, eAdj := idx.clampPosition(r.End)
	adjusted := sAdj || eAdj

	if end.Line < start.Line || (end.Line == start.Line && end.Character < start.Character) {
		end = start
		adjusted = true
	}

	return Range{Start: start, End: end}, adjusted
}
