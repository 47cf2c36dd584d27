// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package immediate implements the shell's immediate-function sub-language
// (§4.5): the named, eagerly-evaluated helpers a parameter expansion like
// ${x:-default} or ${x%suffix} desugars into, plus the handful of
// general-purpose ones (split, join, regex_replace, ...) a script can call
// directly. Every function here takes its arguments as unevaluated nodes
// and an Evaluator to run them against, and returns a resolved value.Value
// rather than a replacement node: the original reference implementation
// rewrites the call site into a new AST node and re-runs it, but nothing
// downstream of an immediate expression needs to be re-parsed, so this
// package folds "build a replacement node" and "evaluate it" into one step.
package immediate

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

// Evaluator is the slice of shell behavior an immediate function needs.
// interp.Shell implements it; this package never imports interp, which
// would otherwise cycle back (interp dispatches ImmediateExpression nodes
// through Dispatch).
type Evaluator interface {
	value.Environ

	// Eval runs node and returns its resolved Value without casting away
	// its shape, the way resolve_without_cast does.
	Eval(node syntax.Node) (value.Value, error)

	// EvalString runs node and collapses the result to one string, the
	// way resolve_as_string does.
	EvalString(node syntax.Node) (string, error)

	// HasLocal reports whether name is bound in some frame on the local
	// variable stack (§3.7), independent of whether its value is empty.
	HasLocal(name string) bool

	// SetLocal stores v for name in whichever frame store rules (§3.7)
	// pick as the assignment target.
	SetLocal(name string, v value.Value)

	// Parse re-lexes and re-parses source as a fresh command list.
	Parse(source string) (syntax.Node, error)
}

// Func is the shape every immediate function has.
type Func func(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error)

var table = map[string]Func{
	"length":                       length,
	"length_across":                lengthAcross,
	"split":                        split,
	"join":                         join,
	"remove_prefix":                removeAffix(true),
	"remove_suffix":                removeAffix(false),
	"regex_replace":                regexReplace,
	"concat_lists":                 concatLists,
	"filter_glob":                  filterGlob,
	"value_or_default":             valueOrDefault,
	"assign_default":               assignDefault,
	"error_if_empty":               errorIfEmpty,
	"error_if_unset":               errorIfUnset,
	"null_or_alternative":          nullOrAlternative,
	"null_if_unset_or_alternative": nullIfUnsetOrAlternative,
	"defined_value_or_default":     definedValueOrDefault,
	"assign_defined_default":       assignDefinedDefault,
	"reexpand":                     reexpand,
	"length_of_variable":           lengthOfVariable,
	"math":                         mathFunc,
	"run_with_env":                 runWithEnv,
	"negate_status":                negateStatus,
}

// Dispatch looks up name and runs it against args. interp/eval.go calls
// this for every *syntax.ImmediateExpression it evaluates.
func Dispatch(ev Evaluator, name string, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	fn, ok := table[name]
	if !ok {
		return nil, &UnknownFunctionError{Name: name, Position: pos}
	}
	return fn(ev, pos, args)
}

// UnknownFunctionError is returned for a name with no entry in table.
type UnknownFunctionError struct {
	Name     string
	Position syntax.Position
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("%s: no such immediate function", e.Name)
}

// ArityError is raised by a function given the wrong number of arguments,
// mirroring every one of the original's "Expected exactly N arguments"
// EvaluatedSyntaxErrors.
type ArityError struct {
	Name     string
	Want     int
	Got      int
	Position syntax.Position
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("expected exactly %d argument(s) to %s, got %d", e.Want, e.Name, e.Got)
}

func arity(name string, pos syntax.Position, args []syntax.Node, want int) error {
	if len(args) != want {
		return &ArityError{Name: name, Want: want, Got: len(args), Position: pos}
	}
	return nil
}

func bareword(n syntax.Node) (string, bool) {
	b, ok := n.(*syntax.BarewordLiteral)
	if !ok {
		return "", false
	}
	return b.Text, true
}

func literal(pos syntax.Position, s string) syntax.Node {
	return &syntax.StringLiteral{Base: syntax.NewBase(pos), Text: s, Enclosure: syntax.EnclosureNone}
}

// length implements `length [string|list|infer] expr` (§4.5). With no
// leading mode bareword, infer is assumed.
func length(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	mode := "infer"
	exprArgs := args
	if len(args) == 2 {
		if m, ok := bareword(args[0]); ok {
			mode, exprArgs = m, args[1:]
		}
	}
	if err := arity("length", pos, exprArgs, 1); err != nil {
		return nil, err
	}
	return lengthImpl(ev, pos, exprArgs[0], mode)
}

func lengthImpl(ev Evaluator, pos syntax.Position, expr syntax.Node, mode string) (value.Value, error) {
	v, err := ev.Eval(expr)
	if err != nil {
		return nil, err
	}
	useList := mode == "list"
	if mode == "infer" {
		useList = v.IsList()
	}
	if useList {
		items, err := v.ResolveAsList(ev)
		if err != nil {
			return nil, err
		}
		return value.NewString(fmt.Sprintf("%d", len(items))), nil
	}
	s, err := v.ResolveAsString(ev)
	if err != nil {
		return nil, err
	}
	return value.NewString(fmt.Sprintf("%d", len(s))), nil
}

// lengthAcross implements `length_across mode expr`: maps `length mode`
// over every entry of a list.
func lengthAcross(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("length_across", pos, args, 2); err != nil {
		return nil, err
	}
	mode, ok := bareword(args[0])
	if !ok {
		mode = "infer"
	}
	v, err := ev.Eval(args[1])
	if err != nil {
		return nil, err
	}
	items, err := v.ResolveAsList(ev)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(items))
	for i, item := range items {
		r, err := lengthImpl(ev, pos, literal(pos, item), mode)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return value.NewListOfValues(out), nil
}

// split implements `split delim expr` (§4.5): a list maps split over its
// entries; a single string is split on delim, or into code points when
// delim is empty.
func split(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("split", pos, args, 2); err != nil {
		return nil, err
	}
	delim, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	v, err := ev.Eval(args[1])
	if err != nil {
		return nil, err
	}
	items, err := v.ResolveAsList(ev)
	if err != nil {
		return nil, err
	}
	if !v.IsList() {
		if len(items) == 0 {
			return value.NewList(nil), nil
		}
		return value.NewList(splitOne(items[0], delim)), nil
	}
	var out []string
	for _, item := range items {
		out = append(out, splitOne(item, delim)...)
	}
	return value.NewList(out), nil
}

func splitOne(s, delim string) []string {
	if delim == "" {
		var out []string
		for _, r := range s {
			out = append(out, string(r))
		}
		return out
	}
	return strings.Split(s, delim)
}

// join implements `join delim list`.
func join(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("join", pos, args, 2); err != nil {
		return nil, err
	}
	delim, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	v, err := ev.Eval(args[1])
	if err != nil {
		return nil, err
	}
	if !v.IsList() {
		return nil, fmt.Errorf("join: expected the joined list to be a list")
	}
	items, err := v.ResolveAsList(ev)
	if err != nil {
		return nil, err
	}
	return value.NewString(strings.Join(items, delim)), nil
}

// removeAffix returns remove_prefix/remove_suffix (§4.5), which both accept
// an optional leading "longest" bareword mode-argument mirroring length's
// leading mode-bareword convention, to pick between %/# and %%/## (shortest
// vs longest match, respectively).
func removeAffix(prefix bool) Func {
	return func(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
		longest := false
		if len(args) == 3 {
			if m, ok := bareword(args[0]); ok && m == "longest" {
				longest, args = true, args[1:]
			}
		}
		if err := arity("remove_prefix/remove_suffix", pos, args, 2); err != nil {
			return nil, err
		}
		affix, err := ev.EvalString(args[0])
		if err != nil {
			return nil, err
		}
		v, err := ev.Eval(args[1])
		if err != nil {
			return nil, err
		}
		items, err := v.ResolveAsList(ev)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(items))
		for i, item := range items {
			if prefix {
				out[i] = stripPrefix(item, affix, longest)
			} else {
				out[i] = stripSuffix(item, affix, longest)
			}
		}
		if !v.IsList() {
			if len(out) == 0 {
				return value.NewString(""), nil
			}
			return value.NewString(out[0]), nil
		}
		return value.NewList(out), nil
	}
}

func stripPrefix(s, prefix string, longest bool) string {
	if prefix == "" || !strings.HasPrefix(s, prefix) {
		return s
	}
	if !longest {
		return s[len(prefix):]
	}
	// Longest-match (##) still anchors at the start; with a literal
	// (non-glob) prefix this coincides with the shortest match.
	return s[len(prefix):]
}

func stripSuffix(s, suffix string, longest bool) string {
	if suffix == "" || !strings.HasSuffix(s, suffix) {
		return s
	}
	if !longest {
		return s[:len(s)-len(suffix)]
	}
	return s[:len(s)-len(suffix)]
}

// regexReplace implements `regex_replace pattern replacement value`,
// grounded on immediate_regex_replace building a POSIX-extended regex with
// global, multiline, and unicode matching (re2-syntax RE2 already defaults
// to Unicode; (?m) turns on multiline ^/$).
func regexReplace(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("regex_replace", pos, args, 3); err != nil {
		return nil, err
	}
	pattern, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	replacement, err := ev.EvalString(args[1])
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("regex_replace: %w", err)
	}
	v, err := ev.Eval(args[2])
	if err != nil {
		return nil, err
	}
	items, err := v.ResolveAsList(ev)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = re.ReplaceAllString(item, goReplacement(replacement))
	}
	if !v.IsList() {
		if len(out) == 0 {
			return value.NewString(""), nil
		}
		return value.NewString(out[0]), nil
	}
	return value.NewList(out), nil
}

// goReplacement rewrites a Perl-style "\1" backreference into Go regexp's
// "$1" replacement syntax.
func goReplacement(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			b.WriteByte('$')
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// concatLists implements `concat_lists a b ...`: flatten every argument's
// resolved list into one.
func concatLists(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	var out []string
	for _, a := range args {
		v, err := ev.Eval(a)
		if err != nil {
			return nil, err
		}
		items, err := v.ResolveAsList(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return value.NewList(out), nil
}

// filterGlob implements `filter_glob pattern list`: keep every entry any
// of whose elements matches pattern.
func filterGlob(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("filter_glob", pos, args, 2); err != nil {
		return nil, err
	}
	pattern, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	v, err := ev.Eval(args[1])
	if err != nil {
		return nil, err
	}
	items, err := v.ResolveAsList(ev)
	if err != nil {
		return nil, err
	}
	reStr, err := syntax.CompilePattern(pattern, syntax.PatternEntireString)
	if err != nil {
		return nil, fmt.Errorf("filter_glob: %w", err)
	}
	re, err := regexp.Compile(reStr)
	if err != nil {
		return nil, fmt.Errorf("filter_glob: %w", err)
	}
	var out []string
	for _, item := range items {
		if re.MatchString(item) {
			out = append(out, item)
		}
	}
	return value.NewList(out), nil
}

// valueOrDefault implements `value_or_default name fallback`: fallback
// unless the named variable already holds a non-empty value.
func valueOrDefault(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("value_or_default", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if !localEmpty(ev, name) {
		return ev.Eval(literalVariable(pos, name))
	}
	return ev.Eval(args[1])
}

// assignDefault implements `assign_default name fallback`: like
// value_or_default, but also assigns the fallback to name when used.
func assignDefault(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("assign_default", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if !localEmpty(ev, name) {
		return ev.Eval(literalVariable(pos, name))
	}
	v, err := ev.Eval(args[1])
	if err != nil {
		return nil, err
	}
	ev.SetLocal(name, v)
	return v, nil
}

// errorIfEmpty implements `error_if_empty name message`.
func errorIfEmpty(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("error_if_empty", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if !localEmpty(ev, name) {
		return ev.Eval(literalVariable(pos, name))
	}
	msg, err := ev.EvalString(args[1])
	if err != nil {
		return nil, err
	}
	if msg == "" {
		msg = fmt.Sprintf("Expected %s to be non-empty", name)
	}
	return nil, &EvaluatedSyntaxError{Message: msg, Position: pos}
}

// errorIfUnset implements `error_if_unset name message`.
func errorIfUnset(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("error_if_unset", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if ev.HasLocal(name) {
		return ev.Eval(literalVariable(pos, name))
	}
	msg, err := ev.EvalString(args[1])
	if err != nil {
		return nil, err
	}
	if msg == "" {
		msg = fmt.Sprintf("Expected %s to be set", name)
	}
	return nil, &EvaluatedSyntaxError{Message: msg, Position: pos}
}

// nullOrAlternative implements `null_or_alternative name alt`: the
// variable's own (empty) value if unset-or-empty, else alt.
func nullOrAlternative(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("null_or_alternative", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	bound, ok := ev.Lookup(name)
	if !ok {
		return value.NewString(""), nil
	}
	if bound.IsList() {
		items, err := bound.ResolveAsList(ev)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return bound, nil
		}
	} else {
		s, err := bound.ResolveAsString(ev)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return bound, nil
		}
	}
	return ev.Eval(args[1])
}

// definedValueOrDefault implements `defined_value_or_default name alt`:
// alt unless name is bound in some frame (regardless of emptiness).
func definedValueOrDefault(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("defined_value_or_default", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if !ev.HasLocal(name) {
		return ev.Eval(args[1])
	}
	return ev.Eval(literalVariable(pos, name))
}

// assignDefinedDefault implements `assign_defined_default name alt`: like
// defined_value_or_default, but assigns alt to name when name is unbound.
func assignDefinedDefault(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("assign_defined_default", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if ev.HasLocal(name) {
		return ev.Eval(literalVariable(pos, name))
	}
	v, err := ev.Eval(args[1])
	if err != nil {
		return nil, err
	}
	ev.SetLocal(name, v)
	return v, nil
}

// nullIfUnsetOrAlternative implements `null_if_unset_or_alternative name
// alt`: alt if name is bound, else an empty list.
func nullIfUnsetOrAlternative(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("null_if_unset_or_alternative", pos, args, 2); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	if ev.HasLocal(name) {
		return ev.Eval(args[1])
	}
	return value.NewList(nil), nil
}

// reexpand implements `reexpand expr`: each string the expr resolves to is
// re-parsed as shell source and evaluated, and the results are collected
// into a list (or returned bare, for a single source string).
func reexpand(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("reexpand", pos, args, 1); err != nil {
		return nil, err
	}
	v, err := ev.Eval(args[0])
	if err != nil {
		return nil, err
	}
	items, err := v.ResolveAsList(ev)
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for _, item := range items {
		node, err := ev.Parse(item)
		if err != nil {
			continue
		}
		r, err := ev.Eval(node)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return value.NewListOfValues(out), nil
}

// lengthOfVariable implements `length_of_variable name`: `length string`
// applied to the named variable.
func lengthOfVariable(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("length_of_variable", pos, args, 1); err != nil {
		return nil, err
	}
	name, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	return lengthImpl(ev, pos, literalVariable(pos, name), "string")
}

// mathFunc implements `math expr`: the arithmetic sub-language (§4.6).
func mathFunc(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("math", pos, args, 1); err != nil {
		return nil, err
	}
	expr, err := ev.EvalString(args[0])
	if err != nil {
		return nil, err
	}
	result, err := Eval(ev, expr)
	if err != nil {
		return nil, err
	}
	return value.NewString(fmt.Sprintf("%d", result)), nil
}

// runWithEnv implements the `run_with_env NAME=val... cmd` desugaring
// (§4.4/§9): the posix parser rewrites an assignment-prefixed simple
// command into this call, with one VariableDeclarations argument per
// prefix assignment followed by the command node itself. Each binding is
// exported for the process's environment only for the duration of the
// wrapped command, then restored, matching the posix rule that
// `FOO=bar cmd` doesn't leak FOO into the enclosing shell.
func runWithEnv(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if len(args) == 0 {
		return nil, &ArityError{Name: "run_with_env", Want: 1, Got: 0, Position: pos}
	}
	declNodes, cmdNode := args[:len(args)-1], args[len(args)-1]

	type saved struct {
		name string
		val  string
		had  bool
	}
	var restores []saved
	for _, n := range declNodes {
		decl, ok := n.(*syntax.VariableDeclarations)
		if !ok || len(decl.Decls) != 1 {
			continue
		}
		name := decl.Decls[0].Name
		val, err := ev.EvalString(decl.Decls[0].Value)
		if err != nil {
			return nil, err
		}
		old, had := os.LookupEnv(name)
		restores = append(restores, saved{name, old, had})
		os.Setenv(name, val)
	}
	defer func() {
		for _, r := range restores {
			if r.had {
				os.Setenv(r.name, r.val)
			} else {
				os.Unsetenv(r.name)
			}
		}
	}()
	return ev.Eval(cmdNode)
}

// exitCodeSetter is implemented by interp.Shell; negateStatus uses it to
// flip the `?` status after running its argument, without immediate
// importing interp (which would cycle back to here).
type exitCodeSetter interface {
	SetExitCode(int)
}

// negateStatus implements the `!`-negation and until-loop desugarings
// (§4.4): evaluate the wrapped node, then flip its exit status.
func negateStatus(ev Evaluator, pos syntax.Position, args []syntax.Node) (value.Value, error) {
	if err := arity("negate_status", pos, args, 1); err != nil {
		return nil, err
	}
	v, err := ev.Eval(args[0])
	if err != nil {
		return nil, err
	}
	setter, ok := ev.(exitCodeSetter)
	if !ok {
		return v, nil
	}
	if ev.LastExitCode() == 0 {
		setter.SetExitCode(1)
	} else {
		setter.SetExitCode(0)
	}
	return v, nil
}

func localEmpty(ev Evaluator, name string) bool {
	bound, ok := ev.Lookup(name)
	if !ok {
		return true
	}
	s, err := bound.ResolveAsString(ev)
	if err != nil {
		return true
	}
	return s == ""
}

func literalVariable(pos syntax.Position, name string) syntax.Node {
	return &syntax.SimpleVariable{Base: syntax.NewBase(pos), Name: name}
}

// EvaluatedSyntaxError is the category every immediate function's runtime
// failures fall under (§4.5's error_if_empty/error_if_unset), matching
// ShellError::EvaluatedSyntaxError. Invalid arities are reported as
// *ArityError instead.
type EvaluatedSyntaxError struct {
	Message  string
	Position syntax.Position
}

func (e *EvaluatedSyntaxError) Error() string { return e.Message }
