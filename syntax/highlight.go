// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Editor-facing hooks: highlight_in_editor, hit_test_position, and
// complete_for_editor (§4.2). The interactive line editor itself is out of
// scope (§1) and is treated as an opaque collaborator that only consumes
// the token stream and hit-test results this file produces; nothing here
// talks to a terminal.
package syntax

import (
	"sort"

	"github.com/alecthomas/chroma/v2"
)

// Highlight walks n and emits a slice of chroma tokens covering [0,
// len(src)), categorized by node kind. Gaps between node spans (whitespace,
// punctuation the AST doesn't itself model) are emitted as chroma.Text.
// This is the whole of highlight_in_editor: the editor collaborator is
// handed a standard token stream and renders it however it likes.
func Highlight(n Node, src string) []chroma.Token {
	type span struct {
		start, end int
		typ        chroma.TokenType
	}
	var spans []span
	var walk func(Node)
	walk = func(m Node) {
		if m == nil {
			return
		}
		if t, ok := tokenTypeFor(m); ok {
			p := m.Pos()
			if p.EndOffset > p.StartOffset {
				spans = append(spans, span{p.StartOffset, p.EndOffset, t})
			}
		}
		for _, c := range Children(m) {
			walk(c)
		}
	}
	walk(n)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var out []chroma.Token
	pos := 0
	for _, s := range spans {
		if s.start < pos {
			continue // nested span already covered by an ancestor's emission
		}
		if s.start > pos {
			out = append(out, chroma.Token{Type: chroma.Text, Value: src[pos:s.start]})
		}
		out = append(out, chroma.Token{Type: s.typ, Value: src[s.start:s.end]})
		pos = s.end
	}
	if pos < len(src) {
		out = append(out, chroma.Token{Type: chroma.Text, Value: src[pos:]})
	}
	return out
}

// tokenTypeFor reports the chroma category for a node's own span, ignoring
// its children (a DoubleQuotedString is LiteralString at its own level;
// its embedded SimpleVariable children get their own NameVariable spans,
// emitted after sorting takes the innermost/last-declared span — callers
// that want strictly non-overlapping spans should highlight leaves only,
// which is what Execute/Pipe/etc. below deliberately opt out of).
func tokenTypeFor(n Node) (chroma.TokenType, bool) {
	switch n.(type) {
	case *StringLiteral, *BarewordLiteral:
		return chroma.LiteralString, true
	case *DoubleQuotedString:
		return chroma.LiteralStringDouble, true
	case *Glob:
		return chroma.LiteralStringRegex, true
	case *Tilde:
		return chroma.NameVariable, true
	case *SimpleVariable, *SpecialVariable, *Slice:
		return chroma.NameVariableMagic, true
	case *ForLoop, *IfCond, *Subshell, *MatchExpr, *FunctionDeclaration, *ContinuationControl:
		return chroma.Keyword, true
	case *And, *Or, *Pipe, *Sequence, *Background:
		return chroma.Operator, true
	case *ImmediateExpression:
		return chroma.NameFunction, true
	case *Comment:
		return chroma.Comment, true
	case *SyntaxError:
		return chroma.Error, true
	}
	return chroma.None, false
}

// HitTest is the result of hit_test_position (§4.2): the innermost node
// whose span contains offset, plus the closest ancestor that is
// "semantic" (anything but punctuation/whitespace placeholders — in this
// closed node set, that's every node) and the closest ancestor that is a
// command (Execute, a control-flow node, or a redirection wrapping one).
type HitTest struct {
	Matching        Node
	ClosestSemantic Node
	ClosestCommand  Node
}

// HitTestPosition implements hit_test_position: find the most specific
// node whose [start,end) contains offset, tracking the closest command
// ancestor along the way.
func HitTestPosition(n Node, offset int) HitTest {
	var best HitTest
	var walk func(Node, Node)
	walk = func(m Node, closestCmd Node) {
		if m == nil {
			return
		}
		p := m.Pos()
		if offset < p.StartOffset || offset > p.EndOffset {
			return
		}
		best.Matching = m
		best.ClosestSemantic = m
		if isCommandNode(m) {
			closestCmd = m
		}
		best.ClosestCommand = closestCmd
		for _, c := range Children(m) {
			walk(c, closestCmd)
		}
	}
	walk(n, nil)
	return best
}

func isCommandNode(n Node) bool {
	switch n.(type) {
	case *Execute, *IfCond, *ForLoop, *Subshell, *MatchExpr, *FunctionDeclaration,
		*ReadRedirection, *WriteRedirection, *WriteAppendRedirection, *ReadWriteRedirection,
		*Fd2FdRedirection, *CloseFdRedirection:
		return true
	}
	return false
}

// Completion is one candidate produced by complete_for_editor.
type Completion struct {
	Text        string
	Description string
}

// CompleteForEditor offers completions for the word at hit. Programs and
// built-ins are completed at leftmost-trivial-literal position; arguments
// fall back to filesystem paths. The real candidate sources (PATH search,
// alias/function names, glob expansion) live in the interp package, which
// calls this with a pre-built candidate list — this function only decides
// which node's text is being completed and what prefix to filter by.
func CompleteForEditor(hit HitTest, candidates []Completion) []Completion {
	prefix := ""
	if lit := LeftmostTrivialLiteral(hit.ClosestCommand); lit != "" {
		prefix = lit
	}
	if prefix == "" {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if len(c.Text) >= len(prefix) && c.Text[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

// LeftmostTrivialLiteral recovers a plain program/argument name from n, if
// n's first word is an unexpanded literal. Used for argument-parsing
// heuristics and completion, per §4.2.
func LeftmostTrivialLiteral(n Node) string {
	switch x := n.(type) {
	case *Execute:
		return LeftmostTrivialLiteral(x.Command)
	case *CastToCommand:
		return LeftmostTrivialLiteral(x.Inner)
	case *StringLiteral:
		return x.Text
	case *BarewordLiteral:
		return x.Text
	case *StringPartCompose:
		if len(x.Parts) > 0 {
			return LeftmostTrivialLiteral(x.Parts[0])
		}
	case *Juxtaposition:
		return LeftmostTrivialLiteral(x.Left)
	case *ListConcatenate:
		if len(x.Items) > 0 {
			return LeftmostTrivialLiteral(x.Items[0])
		}
	case *CommandLiteral:
		if len(x.Argv) > 0 {
			return x.Argv[0]
		}
	}
	return ""
}
