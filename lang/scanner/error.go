package scanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jd28/smalls/lang/token"
)

// Error is one scan or parse error, tagged with the source position it
// occurred at. It mirrors the shape of go/scanner.Error, adapted to this
// module's own token.Position (which the standard library's go/token.
// Position is not assignment-compatible with).
type Error struct {
	Pos token.Position
	Msg string
}

func (e Error) Error() string {
	if e.Pos.Filename == "" && e.Pos.Line == 0 {
		return e.Msg
	}
	return e.Pos.String() + ": " + e.Msg
}

// ErrorList collects errors in the order they are reported, so a single
// scan or parse pass can surface every diagnostic it finds rather than
// stopping at the first one.
type ErrorList []*Error

// Add appends an error with message msg at the already-resolved position pos.
func (el *ErrorList) Add(pos token.Position, msg string) {
	*el = append(*el, &Error{Pos: pos, Msg: msg})
}

func (el ErrorList) Len() int      { return len(el) }
func (el ErrorList) Swap(i, j int) { el[i], el[j] = el[j], el[i] }
func (el ErrorList) Less(i, j int) bool {
	a, b := el[i].Pos, el[j].Pos
	if a.Filename != b.Filename {
		return a.Filename < b.Filename
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Col < b.Col
}

// Sort orders the list by file, line, and column.
func (el ErrorList) Sort() { sort.Sort(el) }

// Err returns el as an error (nil if empty), so it can be returned from a
// function signature of (..., error) without an explicit nil check at each
// call site.
func (el ErrorList) Err() error {
	if len(el) == 0 {
		return nil
	}
	return el
}

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (and %d more errors)", el[0].Error(), len(el)-1)
	return b.String()
}
