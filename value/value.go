// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package value implements the Value model (§3.3): the nine-variant sum
// type every AST node resolves to, plus Slice application. A Value is pure
// data; resolving one against live shell state goes through the Environ
// interface so this package never needs to import interp (which in turn
// imports both syntax and value).
package value

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loom-sh/loom/syntax"
)

// Environ is the subset of shell state a Value needs to resolve itself:
// variable lookup, the special-variable quantities, glob expansion, and
// tilde resolution. interp.Shell implements this.
type Environ interface {
	// Lookup returns the value bound to name in the local frame stack,
	// then the process environment, per §3.3's SimpleVariable rule.
	Lookup(name string) (Value, bool)
	// LastExitCode backs the `?` special variable.
	LastExitCode() int
	// PID backs the `$` special variable.
	PID() int
	// Argv backs the `*`/`#` special variables (the ARGV local frame
	// variable, per the original's look-up of "ARGV").
	Argv() ([]string, bool)
	// ExpandGlob expands pattern against the current working directory.
	// An empty, non-error result means "matched nothing".
	ExpandGlob(pattern string) ([]string, error)
	// ExpandTilde resolves "~username" (username may be empty for the
	// current user) to a home directory path.
	ExpandTilde(username string) (string, error)
	// PosixMode reports whether ListValue.ResolveAsString should take
	// the POSIX "first element only" shortcut.
	PosixMode() bool
}

// ErrConversionNotAllowed is returned by the default ResolveAsString
// implementation (CommandSequence, and any future variant that doesn't
// override it) to match the original's "Conversion to string not allowed"
// EvaluatedSyntaxError.
var ErrConversionNotAllowed = errors.New("value: conversion to string not allowed")

// ErrCommandSequenceAsList is returned by CommandSequence.ResolveAsList, per
// the original's "Unexpected cast of a command sequence to a list" error.
var ErrCommandSequenceAsList = errors.New("value: unexpected cast of a command sequence to a list")

// Value is implemented by every variant in §3.3's closed set.
type Value interface {
	// ResolveAsList resolves the value to its list-of-strings form,
	// applying any attached slices last.
	ResolveAsList(env Environ) ([]string, error)
	// ResolveAsString resolves the value to a single string. The default
	// behavior (used by variants that have no narrower one) joins the
	// resolved list with a space, mirroring the base Value::resolve_as_string.
	ResolveAsString(env Environ) (string, error)
	// ResolveWithoutCast resolves one level without forcing a particular
	// shape: SimpleVariable/SpecialVariable substitute their bound value,
	// String/List flatten nested list-shaped strings, everything else
	// returns itself unchanged.
	ResolveWithoutCast(env Environ) (Value, error)
	// Clone returns an independent copy carrying the same slices.
	Clone() Value
	// Slices returns the slice-selector groups attached to this value, in
	// application order.
	Slices() []IndexSet
	// WithSlices returns a clone with idx appended to the slice list.
	WithSlices(idx IndexSet) Value

	IsCommand() bool
	IsGlob() bool
	IsJob() bool
	IsList() bool
	IsString() bool
}

// resolveListDefault implements the base Value::resolve_as_string: resolve
// as a list, then join with a single space.
func resolveListDefault(v Value, env Environ) (string, error) {
	list, err := v.ResolveAsList(env)
	if err != nil {
		return "", err
	}
	return strings.Join(list, " "), nil
}

// ---- String ----

// String is bytes plus an optional split delimiter and keep-empty flag. A
// non-empty Split makes this a "list-shaped string": resolving it as a list
// splits Text on Split; resolving it as a string joins those split entries
// with a single space.
type String struct {
	Text      string
	Split     string
	KeepEmpty bool
	slices    []IndexSet
}

func NewString(text string) *String { return &String{Text: text} }

// NewSplitString builds a list-shaped string, as produced by a command
// substitution's captured-stdout split or an IFS-driven field split.
func NewSplitString(text, split string, keepEmpty bool) *String {
	return &String{Text: text, Split: split, KeepEmpty: keepEmpty}
}

func (s *String) IsString() bool { return s.Split == "" }
func (s *String) IsList() bool   { return s.Split != "" }
func (s *String) IsCommand() bool { return false }
func (s *String) IsGlob() bool    { return false }
func (s *String) IsJob() bool     { return false }

func (s *String) Slices() []IndexSet { return s.slices }
func (s *String) WithSlices(idx IndexSet) Value {
	c := *s
	c.slices = appendSlice(s.slices, idx)
	return &c
}

func (s *String) Clone() Value {
	c := *s
	c.slices = append([]IndexSet(nil), s.slices...)
	return &c
}

func (s *String) ResolveAsString(env Environ) (string, error) {
	if s.Split == "" {
		return ApplyAllToString(s.Text, s.slices)
	}
	return resolveListDefault(s, env)
}

func (s *String) ResolveAsList(env Environ) ([]string, error) {
	if !s.IsList() {
		resolved, err := ApplyAllToString(s.Text, s.slices)
		if err != nil {
			return nil, err
		}
		return []string{resolved}, nil
	}
	parts := splitKeeping(s.Text, s.Split, s.KeepEmpty)
	return ApplyAllToList(parts, s.slices)
}

func (s *String) ResolveWithoutCast(env Environ) (Value, error) {
	if s.IsList() {
		list, err := s.ResolveAsList(env)
		if err != nil {
			return nil, err
		}
		return NewList(list), nil
	}
	return s, nil
}

// splitKeeping splits text on sep; when keepEmpty is false, runs of
// adjacent separators collapse and leading/trailing empty fields are
// dropped (matching AK::SplitBehavior::Nothing vs KeepEmpty).
func splitKeeping(text, sep string, keepEmpty bool) []string {
	if sep == "" {
		return []string{text}
	}
	raw := strings.Split(text, sep)
	if keepEmpty {
		return raw
	}
	out := raw[:0:0]
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---- List ----

// List is an ordered sequence of Values.
type List struct {
	Items  []Value
	slices []IndexSet
}

// NewList builds a List of plain strings, as the original's
// ListValue(Vector<String>) constructor does.
func NewList(strs []string) *List {
	items := make([]Value, len(strs))
	for i, s := range strs {
		items[i] = NewString(s)
	}
	return &List{Items: items}
}

func NewListOfValues(items []Value) *List { return &List{Items: items} }

func (l *List) IsString() bool  { return false }
func (l *List) IsList() bool    { return true }
func (l *List) IsCommand() bool { return false }
func (l *List) IsGlob() bool    { return false }
func (l *List) IsJob() bool     { return false }

func (l *List) Slices() []IndexSet { return l.slices }
func (l *List) WithSlices(idx IndexSet) Value {
	c := *l
	c.slices = appendSlice(l.slices, idx)
	return &c
}

func (l *List) Clone() Value {
	items := make([]Value, len(l.Items))
	for i, it := range l.Items {
		items[i] = it.Clone()
	}
	return &List{Items: items, slices: append([]IndexSet(nil), l.slices...)}
}

func (l *List) ResolveAsList(env Environ) ([]string, error) {
	var out []string
	for _, it := range l.Items {
		sub, err := it.ResolveAsList(env)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return ApplyAllToList(out, l.slices)
}

func (l *List) ResolveAsString(env Environ) (string, error) {
	if !env.PosixMode() {
		return resolveListDefault(l, env)
	}
	if len(l.Items) == 0 {
		return ApplyAllToString("", l.slices)
	}
	first, err := l.Items[0].ResolveAsString(env)
	if err != nil {
		return "", err
	}
	return ApplyAllToString(first, l.slices)
}

func (l *List) ResolveWithoutCast(env Environ) (Value, error) {
	items := make([]Value, len(l.Items))
	for i, it := range l.Items {
		sub, err := it.ResolveWithoutCast(env)
		if err != nil {
			return nil, err
		}
		items[i] = sub
	}
	var v Value = &List{Items: items}
	if len(l.slices) > 0 {
		for _, g := range l.slices {
			v = v.WithSlices(g)
		}
	}
	return v, nil
}

// ---- Glob ----

// Glob is an unexpanded filename pattern plus the source position it was
// written at, carried so a no-match result can be reported as an
// InvalidGlobError pointing at the right place (§7).
type Glob struct {
	Pattern  string
	Position syntax.Position
	slices   []IndexSet
}

func NewGlob(pattern string, pos syntax.Position) *Glob { return &Glob{Pattern: pattern, Position: pos} }

func (g *Glob) IsString() bool  { return false }
func (g *Glob) IsList() bool    { return false }
func (g *Glob) IsCommand() bool { return false }
func (g *Glob) IsGlob() bool    { return true }
func (g *Glob) IsJob() bool     { return false }

func (g *Glob) Slices() []IndexSet { return g.slices }
func (g *Glob) WithSlices(idx IndexSet) Value {
	c := *g
	c.slices = appendSlice(g.slices, idx)
	return &c
}

func (g *Glob) Clone() Value {
	c := *g
	c.slices = append([]IndexSet(nil), g.slices...)
	return &c
}

func (g *Glob) ResolveAsList(env Environ) ([]string, error) {
	if env == nil {
		return ApplyAllToList([]string{g.Pattern}, g.slices)
	}
	matches, err := env.ExpandGlob(g.Pattern)
	if err != nil {
		return nil, err
	}
	// An empty match set is reported by the caller (interp raises
	// InvalidGlobError with the originating position); this package only
	// applies whatever matches come back.
	return ApplyAllToList(matches, g.slices)
}

func (g *Glob) ResolveAsString(env Environ) (string, error) { return resolveListDefault(g, env) }
func (g *Glob) ResolveWithoutCast(env Environ) (Value, error) { return g, nil }

// ---- SimpleVariable ----

// SimpleVariable looks up Name in local frames then the environment.
type SimpleVariable struct {
	Name   string
	slices []IndexSet
}

func NewSimpleVariable(name string) *SimpleVariable { return &SimpleVariable{Name: name} }

func (v *SimpleVariable) IsString() bool  { return false }
func (v *SimpleVariable) IsList() bool    { return false }
func (v *SimpleVariable) IsCommand() bool { return false }
func (v *SimpleVariable) IsGlob() bool    { return false }
func (v *SimpleVariable) IsJob() bool     { return false }

func (v *SimpleVariable) Slices() []IndexSet { return v.slices }
func (v *SimpleVariable) WithSlices(idx IndexSet) Value {
	c := *v
	c.slices = appendSlice(v.slices, idx)
	return &c
}

func (v *SimpleVariable) Clone() Value {
	c := *v
	c.slices = append([]IndexSet(nil), v.slices...)
	return &c
}

func (v *SimpleVariable) ResolveAsList(env Environ) ([]string, error) {
	if env == nil {
		return ApplyAllToList(nil, v.slices)
	}
	if bound, ok := env.Lookup(v.Name); ok {
		list, err := bound.ResolveAsList(env)
		if err != nil {
			return nil, err
		}
		return ApplyAllToList(list, v.slices)
	}
	// Unset: the original falls back to getenv(3), treating an absent
	// variable as a single empty-string entry.
	return ApplyAllToList([]string{""}, v.slices)
}

func (v *SimpleVariable) ResolveAsString(env Environ) (string, error) { return resolveListDefault(v, env) }

// ResolveWithoutCast substitutes the bound value directly, reapplying any
// slices attached at the reference site on top of whatever the bound value
// already carries (matching SimpleVariableValue::resolve_without_cast).
func (v *SimpleVariable) ResolveWithoutCast(env Environ) (Value, error) {
	if env == nil {
		return v, nil
	}
	bound, ok := env.Lookup(v.Name)
	if !ok {
		return v, nil
	}
	result := bound
	for _, g := range v.slices {
		result = result.WithSlices(g)
	}
	return result, nil
}

// ---- SpecialVariable ----

// SpecialVariable names a single shell-defined quantity.
type SpecialVariable struct {
	Char   byte
	slices []IndexSet
}

func NewSpecialVariable(ch byte) *SpecialVariable { return &SpecialVariable{Char: ch} }

func (v *SpecialVariable) IsString() bool  { return false }
func (v *SpecialVariable) IsList() bool    { return false }
func (v *SpecialVariable) IsCommand() bool { return false }
func (v *SpecialVariable) IsGlob() bool    { return false }
func (v *SpecialVariable) IsJob() bool     { return false }

func (v *SpecialVariable) Slices() []IndexSet { return v.slices }
func (v *SpecialVariable) WithSlices(idx IndexSet) Value {
	c := *v
	c.slices = appendSlice(v.slices, idx)
	return &c
}

func (v *SpecialVariable) Clone() Value {
	c := *v
	c.slices = append([]IndexSet(nil), v.slices...)
	return &c
}

func (v *SpecialVariable) ResolveAsList(env Environ) ([]string, error) {
	if env == nil {
		return nil, nil
	}
	switch v.Char {
	case '?':
		return ApplyAllToList([]string{fmt.Sprintf("%d", env.LastExitCode())}, v.slices)
	case '$':
		return ApplyAllToList([]string{fmt.Sprintf("%d", env.PID())}, v.slices)
	case '*':
		argv, ok := env.Argv()
		if !ok {
			return ApplyAllToList(nil, v.slices)
		}
		return ApplyAllToList(argv, v.slices)
	case '#':
		argv, ok := env.Argv()
		if !ok {
			return ApplyAllToList([]string{"0"}, v.slices)
		}
		return ApplyAllToList([]string{fmt.Sprintf("%d", len(argv))}, v.slices)
	default:
		return ApplyAllToList([]string{""}, v.slices)
	}
}

// ResolveAsString special-cases the single-entry and empty-entry forms
// before falling back to the space-joined default, per the original's
// SpecialVariableValue::resolve_as_string.
func (v *SpecialVariable) ResolveAsString(env Environ) (string, error) {
	if env == nil {
		return "", nil
	}
	list, err := v.ResolveAsList(env)
	if err != nil {
		return "", err
	}
	switch len(list) {
	case 0:
		return "", nil
	case 1:
		return list[0], nil
	default:
		return resolveListDefault(v, env)
	}
}

// ResolveWithoutCast always casts to a List, since a special variable's
// "natural" shape is already list-like ($* / $@ / argv count).
func (v *SpecialVariable) ResolveWithoutCast(env Environ) (Value, error) {
	if env == nil {
		return v, nil
	}
	list, err := v.ResolveAsList(env)
	if err != nil {
		return nil, err
	}
	return NewList(list), nil
}

// ---- Tilde ----

// Tilde resolves to a home directory. An empty Username means the current
// user.
type Tilde struct {
	Username string
	slices   []IndexSet
}

func NewTilde(username string) *Tilde { return &Tilde{Username: username} }

func (t *Tilde) IsString() bool  { return true }
func (t *Tilde) IsList() bool    { return false }
func (t *Tilde) IsCommand() bool { return false }
func (t *Tilde) IsGlob() bool    { return false }
func (t *Tilde) IsJob() bool     { return false }

func (t *Tilde) Slices() []IndexSet { return t.slices }
func (t *Tilde) WithSlices(idx IndexSet) Value {
	c := *t
	c.slices = appendSlice(t.slices, idx)
	return &c
}

func (t *Tilde) Clone() Value {
	c := *t
	c.slices = append([]IndexSet(nil), t.slices...)
	return &c
}

func (t *Tilde) ResolveAsList(env Environ) ([]string, error) {
	literal := "~" + t.Username
	if env == nil {
		return ApplyAllToList([]string{literal}, t.slices)
	}
	expanded, err := env.ExpandTilde(t.Username)
	if err != nil {
		return nil, err
	}
	return ApplyAllToList([]string{expanded}, t.slices)
}

func (t *Tilde) ResolveAsString(env Environ) (string, error) {
	list, err := t.ResolveAsList(env)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", nil
	}
	return list[0], nil
}

func (t *Tilde) ResolveWithoutCast(env Environ) (Value, error) { return t, nil }

// ---- Command / CommandSequence / Job ----

// Command wraps a fully-built runtime Command descriptor (§3.4) as a
// first-class Value, for $(cmd)-as-command-value constructs such as
// piping a Command Value directly into the execution engine.
type Command struct {
	Cmd    RuntimeCommand
	slices []IndexSet
}

func NewCommand(cmd RuntimeCommand) *Command { return &Command{Cmd: cmd} }

func (c *Command) IsString() bool  { return false }
func (c *Command) IsList() bool    { return false }
func (c *Command) IsCommand() bool { return true }
func (c *Command) IsGlob() bool    { return false }
func (c *Command) IsJob() bool     { return false }

func (c *Command) Slices() []IndexSet { return c.slices }
func (c *Command) WithSlices(idx IndexSet) Value {
	clone := *c
	clone.slices = appendSlice(c.slices, idx)
	return &clone
}

func (c *Command) Clone() Value {
	clone := *c
	clone.slices = append([]IndexSet(nil), c.slices...)
	return &clone
}

// ResolveAsList returns the command's argv untouched (slices never apply:
// the original's CommandValue::resolve_as_list ignores m_slices entirely).
func (c *Command) ResolveAsList(env Environ) ([]string, error) { return c.Cmd.Argv, nil }

func (c *Command) ResolveAsString(env Environ) (string, error) { return resolveListDefault(c, env) }

func (c *Command) ResolveWithoutCast(env Environ) (Value, error) { return c, nil }

// ResolveAsCommands returns the single wrapped command, per
// CommandValue::resolve_as_commands.
func (c *Command) ResolveAsCommands(env Environ) ([]RuntimeCommand, error) {
	return []RuntimeCommand{c.Cmd}, nil
}

// CommandSequence is an ordered set of Commands with chaining actions
// already baked into each one's NextChain.
type CommandSequence struct {
	Commands []RuntimeCommand
	slices   []IndexSet
}

func NewCommandSequence(cmds []RuntimeCommand) *CommandSequence {
	return &CommandSequence{Commands: cmds}
}

func (c *CommandSequence) IsString() bool  { return false }
func (c *CommandSequence) IsList() bool    { return false }
func (c *CommandSequence) IsCommand() bool { return true }
func (c *CommandSequence) IsGlob() bool    { return false }
func (c *CommandSequence) IsJob() bool     { return false }

func (c *CommandSequence) Slices() []IndexSet { return c.slices }
func (c *CommandSequence) WithSlices(idx IndexSet) Value {
	clone := *c
	clone.slices = appendSlice(c.slices, idx)
	return &clone
}

func (c *CommandSequence) Clone() Value {
	clone := *c
	clone.slices = append([]IndexSet(nil), c.slices...)
	return &clone
}

// ResolveAsList always fails: casting a command sequence to a list has no
// meaning, per the original's raised EvaluatedSyntaxError.
func (c *CommandSequence) ResolveAsList(env Environ) ([]string, error) {
	return nil, ErrCommandSequenceAsList
}

func (c *CommandSequence) ResolveAsString(env Environ) (string, error) {
	return "", ErrConversionNotAllowed
}

func (c *CommandSequence) ResolveWithoutCast(env Environ) (Value, error) { return c, nil }

func (c *CommandSequence) ResolveAsCommands(env Environ) ([]RuntimeCommand, error) {
	return c.Commands, nil
}

// JobRef is implemented by interp's job-table entries, kept as an interface
// here so this package never imports interp.
type JobRef interface {
	JobID() int
}

// Job references a spawned job.
type Job struct {
	Ref    JobRef
	slices []IndexSet
}

func NewJob(ref JobRef) *Job { return &Job{Ref: ref} }

func (j *Job) IsString() bool  { return false }
func (j *Job) IsList() bool    { return false }
func (j *Job) IsCommand() bool { return false }
func (j *Job) IsGlob() bool    { return false }
func (j *Job) IsJob() bool     { return true }

func (j *Job) Slices() []IndexSet { return j.slices }
func (j *Job) WithSlices(idx IndexSet) Value {
	clone := *j
	clone.slices = appendSlice(j.slices, idx)
	return &clone
}

func (j *Job) Clone() Value {
	clone := *j
	clone.slices = append([]IndexSet(nil), j.slices...)
	return &clone
}

// ResolveAsList is unreachable in a well-formed tree: a Job Value only ever
// appears where a string is expected (job-id interpolation), matching the
// original's VERIFY_NOT_REACHED. Callers that hit this have a bug upstream,
// so it returns an error rather than panicking.
func (j *Job) ResolveAsList(env Environ) ([]string, error) {
	return nil, fmt.Errorf("value: Job.ResolveAsList is not reachable in a well-formed tree")
}

func (j *Job) ResolveAsString(env Environ) (string, error) {
	return fmt.Sprintf("%%%d", j.Ref.JobID()), nil
}

func (j *Job) ResolveWithoutCast(env Environ) (Value, error) { return j, nil }

func appendSlice(existing []IndexSet, idx IndexSet) []IndexSet {
	out := make([]IndexSet, len(existing)+1)
	copy(out, existing)
	out[len(existing)] = idx
	return out
}
