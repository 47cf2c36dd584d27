// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "testing"

func TestChildrenCoversJoinedWords(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "echo $name")
	var words []string
	var walk func(Node)
	walk = func(x Node) {
		if bw, ok := x.(*BarewordLiteral); ok {
			words = append(words, bw.Text)
		}
		if v, ok := x.(*SimpleVariable); ok {
			words = append(words, "$"+v.Name)
		}
		for _, c := range Children(x) {
			walk(c)
		}
	}
	walk(n)
	if len(words) != 2 || words[0] != "echo" || words[1] != "$name" {
		t.Fatalf("got %v, want [echo $name]", words)
	}
}

func TestErroneousDetectsAttachedSyntaxError(t *testing.T) {
	t.Parallel()
	ok := parseNativeOK(t, "echo hi")
	if Erroneous(ok) {
		t.Fatalf("well-formed tree reported as erroneous")
	}

	// An if without a braced body leaves a SyntaxError in place of the
	// missing block rather than failing ParseNative outright.
	bad, err := ParseNative("if true echo yes")
	if err != nil {
		t.Fatalf("ParseNative: %v", err)
	}
	if !Erroneous(bad) {
		t.Fatalf("malformed input %q not reported as erroneous", "if true echo yes")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	n := parseNativeOK(t, "echo $name")
	clone := Clone(n)

	cast, ok := clone.(*CastToCommand)
	if !ok {
		t.Fatalf("clone top-level is %T, not *CastToCommand", clone)
	}
	lc, ok := cast.Inner.(*ListConcatenate)
	if !ok {
		t.Fatalf("clone inner is %T, not *ListConcatenate", cast.Inner)
	}
	v, ok := lc.Items[1].(*SimpleVariable)
	if !ok {
		t.Fatalf("clone second item is %T, not *SimpleVariable", lc.Items[1])
	}
	v.Name = "mutated"

	// The original tree must be untouched by mutating the clone.
	origCast := n.(*CastToCommand)
	origLC := origCast.Inner.(*ListConcatenate)
	origVar := origLC.Items[1].(*SimpleVariable)
	if origVar.Name != "name" {
		t.Fatalf("original mutated via clone: Name = %q, want %q", origVar.Name, "name")
	}
}
