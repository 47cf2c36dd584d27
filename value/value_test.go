// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package value

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/loom-sh/loom/syntax"
)

// fakeEnviron is a minimal Environ for exercising Value resolution without
// pulling in the interp package.
type fakeEnviron struct {
	vars     map[string]Value
	exit     int
	pid      int
	argv     []string
	hasArgv  bool
	posix    bool
	globs    map[string][]string
	homeDirs map[string]string
}

func (e *fakeEnviron) Lookup(name string) (Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}
func (e *fakeEnviron) LastExitCode() int { return e.exit }
func (e *fakeEnviron) PID() int          { return e.pid }
func (e *fakeEnviron) Argv() ([]string, bool) {
	return e.argv, e.hasArgv
}
func (e *fakeEnviron) ExpandGlob(pattern string) ([]string, error) {
	return e.globs[pattern], nil
}
func (e *fakeEnviron) ExpandTilde(username string) (string, error) {
	if home, ok := e.homeDirs[username]; ok {
		return home, nil
	}
	return "~" + username, nil
}
func (e *fakeEnviron) PosixMode() bool { return e.posix }

func TestStringResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	s := NewString("hello")
	got, err := s.ResolveAsString(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "hello")

	list, err := s.ResolveAsList(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"hello"})
}

func TestSplitStringResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	s := NewSplitString("a::b::", ":", false)
	list, err := s.ResolveAsList(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"a", "b"})

	kept := NewSplitString("a::b::", ":", true)
	list, err = kept.ResolveAsList(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"a", "", "b", "", ""})

	// ResolveAsString on a list-shaped string joins its split entries with
	// a single space.
	got, err := s.ResolveAsString(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "a b")
}

func TestListResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	l := NewList([]string{"a", "b", "c"})
	env := &fakeEnviron{}

	got, err := l.ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "a b c")

	env.posix = true
	got, err = l.ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "a")
}

func TestSimpleVariableResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	env := &fakeEnviron{vars: map[string]Value{
		"greeting": NewString("hi there"),
	}}
	v := NewSimpleVariable("greeting")

	// A scalar variable with embedded spaces resolves as one list element,
	// not word-split, since it was never split on IFS.
	list, err := v.ResolveAsList(env)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"hi there"})

	// An unset variable resolves as a single empty-string entry, not an
	// empty list.
	unset := NewSimpleVariable("missing")
	list, err = unset.ResolveAsList(env)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{""})
}

func TestSpecialVariableResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	env := &fakeEnviron{exit: 7, pid: 4242, argv: []string{"one", "two"}, hasArgv: true}

	got, err := NewSpecialVariable('?').ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "7")

	got, err = NewSpecialVariable('$').ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "4242")

	got, err = NewSpecialVariable('#').ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "2")

	list, err := NewSpecialVariable('*').ResolveAsList(env)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"one", "two"})
}

func TestTildeResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	env := &fakeEnviron{homeDirs: map[string]string{"": "/home/me", "root": "/root"}}

	got, err := NewTilde("").ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "/home/me")

	got, err = NewTilde("root").ResolveAsString(env)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "/root")

	// With no Environ, Tilde resolves to its own literal text.
	got, err = NewTilde("root").ResolveAsString(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "~root")
}

func TestGlobResolve(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	env := &fakeEnviron{globs: map[string][]string{
		"*.go": {"a.go", "b.go"},
	}}
	g := NewGlob("*.go", syntax.Position{})

	list, err := g.ResolveAsList(env)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"a.go", "b.go"})

	// Without an Environ, a glob can't expand and resolves to its own
	// literal pattern text.
	list, err = g.ResolveAsList(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.DeepEquals, []string{"*.go"})
}

func TestWithSlices(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	s := NewString("hello")
	sliced := s.WithSlices(IndexSet{"1", "0"})
	got, err := sliced.ResolveAsString(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "eh")

	// The original is untouched; WithSlices returns a new Value.
	got, err = s.ResolveAsString(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "hello")
}

func TestListResolveAsListFlattensAndSlices(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	l := NewListOfValues([]Value{NewString("a"), NewSplitString("b:c", ":", false)})
	sliced := l.WithSlices(IndexSet{"0", "2"})
	got, err := sliced.ResolveAsList(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []string{"a", "c"})
}
