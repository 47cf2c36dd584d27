// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package immediate

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

// valueNode wraps an already-built Value as a Node, so tests can pass a
// List argument directly without round-tripping it through source text.
type valueNode struct {
	syntax.Base
	v value.Value
}

func lit(s string) syntax.Node {
	return &syntax.StringLiteral{Base: syntax.NewBase(syntax.Position{}), Text: s, Enclosure: syntax.EnclosureNone}
}

func bw(s string) syntax.Node {
	return &syntax.BarewordLiteral{Base: syntax.NewBase(syntax.Position{}), Text: s}
}

func listArg(items ...string) syntax.Node {
	return &valueNode{v: value.NewList(items)}
}

// fakeEvaluator is a minimal Evaluator: it resolves StringLiteral,
// BarewordLiteral, SimpleVariable, and valueNode directly, which is
// everything the immediate functions under test ever construct or take as
// an argument.
type fakeEvaluator struct {
	vars  map[string]value.Value
	posix bool
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{vars: map[string]value.Value{}}
}

func (e *fakeEvaluator) Lookup(name string) (value.Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}
func (e *fakeEvaluator) LastExitCode() int                         { return 0 }
func (e *fakeEvaluator) PID() int                                  { return 1 }
func (e *fakeEvaluator) Argv() ([]string, bool)                    { return nil, false }
func (e *fakeEvaluator) ExpandGlob(pattern string) ([]string, error) { return nil, nil }
func (e *fakeEvaluator) ExpandTilde(username string) (string, error) {
	return "~" + username, nil
}
func (e *fakeEvaluator) PosixMode() bool { return e.posix }

func (e *fakeEvaluator) Eval(node syntax.Node) (value.Value, error) {
	switch n := node.(type) {
	case *syntax.StringLiteral:
		return value.NewString(n.Text), nil
	case *syntax.BarewordLiteral:
		return value.NewString(n.Text), nil
	case *syntax.SimpleVariable:
		if v, ok := e.vars[n.Name]; ok {
			return v, nil
		}
		return value.NewString(""), nil
	case *valueNode:
		return n.v, nil
	}
	panic("fakeEvaluator: unsupported node type")
}

func (e *fakeEvaluator) EvalString(node syntax.Node) (string, error) {
	v, err := e.Eval(node)
	if err != nil {
		return "", err
	}
	return v.ResolveAsString(e)
}

func (e *fakeEvaluator) HasLocal(name string) bool {
	_, ok := e.vars[name]
	return ok
}

func (e *fakeEvaluator) SetLocal(name string, v value.Value) {
	e.vars[name] = v
}

func (e *fakeEvaluator) Parse(source string) (syntax.Node, error) {
	return syntax.ParseNative(source)
}

func TestLength(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "length", syntax.Position{}, []syntax.Node{lit("hello")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "5")

	got, err = Dispatch(ev, "length", syntax.Position{}, []syntax.Node{bw("list"), listArg("a", "b", "c")})
	c.Assert(err, qt.IsNil)
	s, _ = got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "3")
}

func TestSplitJoin(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "split", syntax.Position{}, []syntax.Node{lit(","), lit("a,b,c")})
	c.Assert(err, qt.IsNil)
	list, _ := got.ResolveAsList(ev)
	c.Assert(list, qt.DeepEquals, []string{"a", "b", "c"})

	got, err = Dispatch(ev, "join", syntax.Position{}, []syntax.Node{lit("-"), listArg("a", "b", "c")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "a-b-c")

	_, err = Dispatch(ev, "join", syntax.Position{}, []syntax.Node{lit("-"), lit("not-a-list")})
	c.Assert(err, qt.ErrorMatches, "join: expected the joined list to be a list")
}

func TestRemoveAffix(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "remove_prefix", syntax.Position{}, []syntax.Node{lit("foo-"), lit("foo-bar")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "bar")

	got, err = Dispatch(ev, "remove_suffix", syntax.Position{}, []syntax.Node{lit(".go"), lit("main.go")})
	c.Assert(err, qt.IsNil)
	s, _ = got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "main")

	// No match leaves the value untouched.
	got, err = Dispatch(ev, "remove_prefix", syntax.Position{}, []syntax.Node{lit("xyz"), lit("foo-bar")})
	c.Assert(err, qt.IsNil)
	s, _ = got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "foo-bar")
}

func TestRegexReplace(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "regex_replace", syntax.Position{}, []syntax.Node{lit(`(\w+)@(\w+)`), lit(`\2 at \1`), lit("alice@example")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "example at alice")
}

func TestConcatLists(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "concat_lists", syntax.Position{}, []syntax.Node{listArg("a", "b"), listArg("c")})
	c.Assert(err, qt.IsNil)
	list, _ := got.ResolveAsList(ev)
	c.Assert(list, qt.DeepEquals, []string{"a", "b", "c"})
}

func TestFilterGlob(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "filter_glob", syntax.Position{}, []syntax.Node{lit("*.go"), listArg("main.go", "README.md", "lib.go")})
	c.Assert(err, qt.IsNil)
	list, _ := got.ResolveAsList(ev)
	c.Assert(list, qt.DeepEquals, []string{"main.go", "lib.go"})
}

func TestValueOrDefault(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "value_or_default", syntax.Position{}, []syntax.Node{lit("missing"), lit("fallback")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "fallback")

	ev.vars["name"] = value.NewString("set")
	got, err = Dispatch(ev, "value_or_default", syntax.Position{}, []syntax.Node{lit("name"), lit("fallback")})
	c.Assert(err, qt.IsNil)
	s, _ = got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "set")
}

func TestAssignDefault(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	_, err := Dispatch(ev, "assign_default", syntax.Position{}, []syntax.Node{lit("name"), lit("fallback")})
	c.Assert(err, qt.IsNil)
	bound, ok := ev.Lookup("name")
	c.Assert(ok, qt.IsTrue)
	s, _ := bound.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "fallback")
}

func TestErrorIfEmptyAndUnset(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	_, err := Dispatch(ev, "error_if_unset", syntax.Position{}, []syntax.Node{lit("missing"), lit("must be set")})
	c.Assert(err, qt.ErrorMatches, "must be set")

	ev.vars["name"] = value.NewString("")
	_, err = Dispatch(ev, "error_if_empty", syntax.Position{}, []syntax.Node{lit("name"), lit("")})
	c.Assert(err, qt.ErrorMatches, "Expected name to be non-empty")
}

func TestNullOrAlternative(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	// Unset: resolves to empty, never evaluating alt.
	got, err := Dispatch(ev, "null_or_alternative", syntax.Position{}, []syntax.Node{lit("missing"), lit("alt")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "")

	ev.vars["name"] = value.NewString("set")
	got, err = Dispatch(ev, "null_or_alternative", syntax.Position{}, []syntax.Node{lit("name"), lit("alt")})
	c.Assert(err, qt.IsNil)
	s, _ = got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "alt")
}

func TestDefinedValueOrDefault(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "defined_value_or_default", syntax.Position{}, []syntax.Node{lit("missing"), lit("alt")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "alt")

	ev.vars["name"] = value.NewString("")
	got, err = Dispatch(ev, "defined_value_or_default", syntax.Position{}, []syntax.Node{lit("name"), lit("alt")})
	c.Assert(err, qt.IsNil)
	s, _ = got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "")
}

func TestLengthOfVariable(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()
	ev.vars["name"] = value.NewString("hello")

	got, err := Dispatch(ev, "length_of_variable", syntax.Position{}, []syntax.Node{lit("name")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "5")
}

func TestMathFunc(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	got, err := Dispatch(ev, "math", syntax.Position{}, []syntax.Node{lit("1 + 2 * 3")})
	c.Assert(err, qt.IsNil)
	s, _ := got.ResolveAsString(ev)
	c.Assert(s, qt.Equals, "7")
}

func TestUnknownFunction(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	_, err := Dispatch(ev, "no_such_function", syntax.Position{}, nil)
	c.Assert(err, qt.ErrorMatches, "no_such_function: no such immediate function")
	var unk *UnknownFunctionError
	c.Assert(err, qt.ErrorAs, &unk)
}

func TestArityError(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	ev := newFakeEvaluator()

	_, err := Dispatch(ev, "join", syntax.Position{}, []syntax.Node{lit("-")})
	var arityErr *ArityError
	c.Assert(err, qt.ErrorAs, &arityErr)
	c.Assert(arityErr.Want, qt.Equals, 2)
	c.Assert(arityErr.Got, qt.Equals, 1)
}
