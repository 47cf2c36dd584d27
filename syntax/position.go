// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "fmt"

// LineCol is a one-based line and column pair.
type LineCol struct {
	Line, Col int
}

func (lc LineCol) String() string { return fmt.Sprintf("%d:%d", lc.Line, lc.Col) }

// Position is a half-open source range: [StartOffset, EndOffset), with the
// matching line/column pair recorded for each end. Positions are value
// types and are never mutated after construction, except that synthetic
// nodes are built with a zero Position rather than by mutating one.
type Position struct {
	StartOffset, EndOffset int
	StartLine, EndLine     LineCol
}

// IsValid reports whether the position refers to real source text, as
// opposed to a synthetic node created by a transform such as an immediate
// function or a POSIX desugaring.
func (p Position) IsValid() bool { return p.StartOffset != p.EndOffset || p.StartLine.Line != 0 }

// Len returns the number of bytes the position spans.
func (p Position) Len() int { return p.EndOffset - p.StartOffset }

// WithEnd returns a new Position whose start is p's start and whose end is
// other's end. This is how composite nodes (e.g. a Juxtaposition of two
// words) derive their own span from their children without copying text.
func (p Position) WithEnd(other Position) Position {
	return Position{
		StartOffset: p.StartOffset,
		EndOffset:   other.EndOffset,
		StartLine:   p.StartLine,
		EndLine:     other.EndLine,
	}
}

func (p Position) String() string {
	return fmt.Sprintf("%s-%s", p.StartLine, p.EndLine)
}

// synthetic builds a Position for a node that has no source counterpart,
// e.g. the "$@" word substituted for a missing `for x do` wordlist, or the
// replacement node an immediate function returns.
func synthetic() Position { return Position{} }
