// Package diffview renders compact line-based change summaries for document
// rewrites, so chat confirmations can show what a full save touched.
package diffview

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Change is one changed line relative to the previous document revision.
type Change struct {
	Added bool
	Text  string
}

// Summary describes how a rewrite altered a document.
type Summary struct {
	Added     int
	Removed   int
	Changes   []Change
	Truncated bool
}

// Compare diffs two document revisions line by line. maxChanges caps how many
// changed lines are retained for display; the counters stay exact.
func Compare(before, after string, maxChanges int) *Summary {
	dmp := diffmatchpatch.New()
	b, a, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(b, a, false), lineArray)

	s := &Summary{}
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		for _, line := range splitLines(d.Text) {
			added := d.Type == diffmatchpatch.DiffInsert
			if added {
				s.Added++
			} else {
				s.Removed++
			}
			if maxChanges > 0 && len(s.Changes) >= maxChanges {
				s.Truncated = true
				continue
			}
			s.Changes = append(s.Changes, Change{Added: added, Text: line})
		}
	}
	return s
}

// Format renders the summary for a chat confirmation message.
func (s *Summary) Format() string {
	if s.Added == 0 && s.Removed == 0 {
		return "nenhuma linha alterada"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "+%d/-%d linhas", s.Added, s.Removed)
	for _, c := range s.Changes {
		b.WriteString("\n")
		if c.Added {
			b.WriteString("+ ")
		} else {
			b.WriteString("- ")
		}
		b.WriteString(c.Text)
	}
	if s.Truncated {
		b.WriteString("\n(...)")
	}
	return b.String()
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
