package formatter

import (
	"strings"

	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

// Changes summarises how formatting changed a text
type Changes struct {
	Inserted     int `json:"inserted"`
	Deleted      int `json:"deleted"`
	ChangedLines int `json:"changedLines"`
}

// Unchanged reports whether formatting left the text as is
func (c Changes) Unchanged() bool {
	return c.Inserted == 0 && c.Deleted == 0
}

// Diff counts inserted and deleted characters between before and after, and
// the number of lines of after that differ from before.
func Diff(before, after string) Changes {
	var c Changes
	if before == after {
		return c
	}

	d := dmp.New()
	diffs := d.DiffMain(before, after, false)
	d.DiffCleanupSemantic(diffs)
	for _, df := range diffs {
		switch df.Type {
		case dmp.DiffInsert:
			c.Inserted += len([]rune(df.Text))
		case dmp.DiffDelete:
			c.Deleted += len([]rune(df.Text))
		}
	}

	a, b, lines := d.DiffLinesToChars(before, after)
	lineDiffs := d.DiffCharsToLines(d.DiffMain(a, b, false), lines)
	for _, df := range lineDiffs {
		if df.Type == dmp.DiffInsert {
			c.ChangedLines += strings.Count(df.Text, "\n")
			if !strings.HasSuffix(df.Text, "\n") {
				c.ChangedLines++
			}
		}
	}
	return c
}
