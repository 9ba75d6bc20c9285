// Package diff compares vault views: a line-level unified diff of their
// serialized form and a list of changed key paths
package diff

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/illarion/cfgvault/internal/document"
)

// DefaultContext is the number of unchanged lines shown around a change
const DefaultContext = 3

type line struct {
	op   byte // ' ', '-' or '+'
	text string
}

// Unified returns a unified diff of a and b, or "" when they are equal
func Unified(nameA, nameB string, a, b []byte, context int) string {
	if string(a) == string(b) {
		return ""
	}
	lines := lineDiff(string(a), string(b))

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", nameA, nameB)

	// aBefore[i] and bBefore[i] count the lines of a and b preceding lines[i]
	aBefore := make([]int, len(lines)+1)
	bBefore := make([]int, len(lines)+1)
	for i, l := range lines {
		aBefore[i+1], bBefore[i+1] = aBefore[i], bBefore[i]
		if l.op != '+' {
			aBefore[i+1]++
		}
		if l.op != '-' {
			bBefore[i+1]++
		}
	}

	for _, h := range hunks(lines, context) {
		start, end := h[0], h[1]
		fmt.Fprintf(&out, "@@ -%s +%s @@\n",
			hunkRange(aBefore[start], aBefore[end]-aBefore[start]),
			hunkRange(bBefore[start], bBefore[end]-bBefore[start]))
		for _, l := range lines[start:end] {
			out.WriteByte(l.op)
			out.WriteString(l.text)
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func hunkRange(before, count int) string {
	if count == 0 {
		return fmt.Sprintf("%d,0", before)
	}
	if count == 1 {
		return fmt.Sprintf("%d", before+1)
	}
	return fmt.Sprintf("%d,%d", before+1, count)
}

// lineDiff runs a line-mode diff and flattens it into one entry per line
func lineDiff(a, b string) []line {
	dmp := diffmatchpatch.New()

	// Line-mode diff for better output
	ca, cb, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []line
	for _, d := range diffs {
		var op byte
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = ' '
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, text := range strings.SplitAfter(d.Text, "\n") {
			if text == "" {
				continue
			}
			lines = append(lines, line{op: op, text: strings.TrimSuffix(text, "\n")})
		}
	}
	return lines
}

// hunks groups changed lines with their context. Changes closer than two
// context windows share a hunk. Ranges are [start, end) into lines.
func hunks(lines []line, context int) [][2]int {
	if context < 0 {
		context = 0
	}
	var out [][2]int
	for i := 0; i < len(lines); i++ {
		if lines[i].op == ' ' {
			continue
		}
		start := max(0, i-context)
		last := i
		for j := i + 1; j < len(lines); j++ {
			if lines[j].op != ' ' {
				last = j
			} else if j-last > 2*context {
				break
			}
		}
		end := min(len(lines), last+1+context)
		out = append(out, [2]int{start, end})
		i = last
	}
	return out
}

// ChangeKind classifies a key-level change
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
	Changed ChangeKind = "changed"
)

// Change is one leaf path that differs between two documents
type Change struct {
	Path string
	Kind ChangeKind
}

func (c Change) String() string {
	sign := map[ChangeKind]string{Added: "+", Removed: "-", Changed: "~"}[c.Kind]
	return sign + " " + c.Path
}

// Paths lists the leaf paths that differ between from and to, sorted
func Paths(from, to *document.Document) []Change {
	before := leaves(from)
	after := leaves(to)

	var changes []Change
	from.Walk(func(path string, v document.Value) {
		if now, ok := after[path]; !ok {
			changes = append(changes, Change{Path: path, Kind: Removed})
		} else if !now.Equal(v) {
			changes = append(changes, Change{Path: path, Kind: Changed})
		}
	})
	to.Walk(func(path string, _ document.Value) {
		if _, ok := before[path]; !ok {
			changes = append(changes, Change{Path: path, Kind: Added})
		}
	})

	sortChanges(changes)
	return changes
}

func leaves(doc *document.Document) map[string]document.Value {
	out := map[string]document.Value{}
	doc.Walk(func(path string, v document.Value) { out[path] = v })
	return out
}

func sortChanges(changes []Change) {
	slices.SortFunc(changes, func(a, b Change) int { return cmp.Compare(a.Path, b.Path) })
}

// Documents returns a unified diff of two documents in their serialized
// form, or "" when they are equal
func Documents(nameA, nameB string, from, to *document.Document) (string, error) {
	a, err := from.Marshal()
	if err != nil {
		return "", err
	}
	b, err := to.Marshal()
	if err != nil {
		return "", err
	}
	return Unified(nameA, nameB, a, b, DefaultContext), nil
}
