// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "testing"

func parseNativeOK(t *testing.T, src string) Node {
	t.Helper()
	n, err := ParseNative(src)
	if err != nil {
		t.Fatalf("ParseNative(%q): %v", src, err)
	}
	if Erroneous(n) {
		t.Fatalf("ParseNative(%q) produced a syntax-erroneous tree", src)
	}
	return n
}

// unwrapCast peels the CastToCommand a lone list-expression statement is
// wrapped in, returning its Inner node. Control-flow statements (if, for,
// loop, match) are never wrapped this way, since tryParseControl returns
// them straight out of parsePipeline.
func unwrapCast(t *testing.T, n Node) Node {
	t.Helper()
	cast, ok := n.(*CastToCommand)
	if !ok {
		t.Fatalf("top-level node is %T, not *CastToCommand", n)
	}
	return cast.Inner
}

func TestParseSimpleVariable(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "$name")
	inner := unwrapCast(t, n)
	v, ok := inner.(*SimpleVariable)
	if !ok {
		t.Fatalf("got %T, want *SimpleVariable", inner)
	}
	if v.Name != "name" {
		t.Fatalf("Name = %q, want %q", v.Name, "name")
	}
}

func TestParseMathImmediate(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "$((1 + 2))")
	inner := unwrapCast(t, n)
	ie, ok := inner.(*ImmediateExpression)
	if !ok {
		t.Fatalf("got %T, want *ImmediateExpression", inner)
	}
	if ie.Name != "math" {
		t.Fatalf("Name = %q, want %q", ie.Name, "math")
	}
	if len(ie.Arguments) != 1 {
		t.Fatalf("got %d arguments, want 1 (the whole expression as one string)", len(ie.Arguments))
	}
}

func TestParseBraceImmediateSplitsArguments(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "${value_or_default name fallback}")
	inner := unwrapCast(t, n)
	ie, ok := inner.(*ImmediateExpression)
	if !ok {
		t.Fatalf("got %T, want *ImmediateExpression", inner)
	}
	if ie.Name != "value_or_default" {
		t.Fatalf("Name = %q, want %q", ie.Name, "value_or_default")
	}
	if len(ie.Arguments) != 2 {
		t.Fatalf("got %d arguments, want 2 (space-split)", len(ie.Arguments))
	}
}

func TestParseLengthOfVariable(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "${#name}")
	inner := unwrapCast(t, n)
	ie, ok := inner.(*ImmediateExpression)
	if !ok {
		t.Fatalf("got %T, want *ImmediateExpression", inner)
	}
	if ie.Name != "length_of_variable" {
		t.Fatalf("Name = %q, want %q", ie.Name, "length_of_variable")
	}
}

func TestParseVariableDeclarations(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "set a=x, b=y")
	decls, ok := n.(*VariableDeclarations)
	if !ok {
		t.Fatalf("got %T, want *VariableDeclarations", n)
	}
	if len(decls.Decls) != 2 {
		t.Fatalf("got %d decls, want 2", len(decls.Decls))
	}
	if decls.Decls[0].Name != "a" || decls.Decls[1].Name != "b" {
		t.Fatalf("unexpected decl names: %+v", decls.Decls)
	}
}

func TestParseIfElse(t *testing.T) {
	t.Parallel()
	// A control-flow statement is handed straight out of parsePipeline, with
	// no surrounding CastToCommand.
	n := parseNativeOK(t, "if true { echo yes } else { echo no }")
	ifc, ok := n.(*IfCond)
	if !ok {
		t.Fatalf("got %T, want *IfCond", n)
	}
	// The condition is always wrapped in an Execute node, even for a bare
	// command word.
	if _, ok := ifc.Cond.(*Execute); !ok {
		t.Fatalf("Cond is %T, want *Execute", ifc.Cond)
	}
	if ifc.True == nil || ifc.False == nil {
		t.Fatalf("expected both branches to be present")
	}
}

func TestParseForLoop(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "for v, i in a b c { echo $v }")
	fl, ok := n.(*ForLoop)
	if !ok {
		t.Fatalf("got %T, want *ForLoop", n)
	}
	if fl.Variable != "v" || fl.IndexVariable != "i" {
		t.Fatalf("Variable=%q IndexVariable=%q, want v/i", fl.Variable, fl.IndexVariable)
	}
	lc, ok := fl.Iterated.(*ListConcatenate)
	if !ok {
		t.Fatalf("Iterated is %T, want *ListConcatenate", fl.Iterated)
	}
	if len(lc.Items) != 3 {
		t.Fatalf("got %d list items, want 3", len(lc.Items))
	}
}

func TestParseInfiniteLoop(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "loop { break }")
	fl, ok := n.(*ForLoop)
	if !ok {
		t.Fatalf("got %T, want *ForLoop", n)
	}
	if fl.Iterated != nil {
		t.Fatalf("Iterated = %v, want nil for an infinite loop", fl.Iterated)
	}
}

func TestParseMatch(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, `match $x { "a" => { echo one }; "b" => { echo two } }`)
	m, ok := n.(*MatchExpr)
	if !ok {
		t.Fatalf("got %T, want *MatchExpr", n)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(m.Entries))
	}
}

func TestParseCommandSubstitutionExecutes(t *testing.T) {
	t.Parallel()
	// Two space-separated words ("echo" and "$(whoami)") parse as a single
	// CastToCommand over a ListConcatenate; the $(...) item inside it is a
	// real *Execute node, unlike a bare top-level statement.
	n := parseNativeOK(t, "echo $(whoami)")
	var found *Execute
	var walk func(Node)
	walk = func(x Node) {
		if x == nil || found != nil {
			return
		}
		if ex, ok := x.(*Execute); ok {
			found = ex
			return
		}
		for _, c := range Children(x) {
			walk(c)
		}
	}
	walk(n)
	if found == nil {
		t.Fatalf("no nested *Execute found for $(...) in %q", "echo $(whoami)")
	}
	if !found.CaptureStdout {
		t.Fatalf("Execute.CaptureStdout = false, want true for $(...)")
	}
}

func TestParseGlob(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "*.go")
	inner := unwrapCast(t, n)
	g, ok := inner.(*Glob)
	if !ok {
		t.Fatalf("got %T, want *Glob", inner)
	}
	if g.Pattern != "*.go" {
		t.Fatalf("Pattern = %q, want %q", g.Pattern, "*.go")
	}
}

func TestParseSequenceOfStatements(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "echo a\necho b")
	if _, ok := n.(*Sequence); !ok {
		t.Fatalf("got %T, want *Sequence joining two statements", n)
	}
}
