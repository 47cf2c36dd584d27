// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/loom-sh/loom/immediate"
	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

// breakSignal and continueSignal are the Go-level encoding of a `break`/
// `continue` ContinuationControl node: they unwind through Eval like any
// other error until a ForLoop catches them, matching the original's
// control-flow-as-exception design without needing real exceptions.
type breakSignal struct{}

func (breakSignal) Error() string { return "break outside of a loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside of a loop" }

// returnSignal unwinds out of a running function body, carrying the value
// its `return` expression produced.
type returnSignal struct{ value value.Value }

func (returnSignal) Error() string { return "return outside of a function" }

func isBreak(err error) bool    { _, ok := err.(breakSignal); return ok }
func isContinue(err error) bool { _, ok := err.(continueSignal); return ok }

// EvaluatedSyntaxError is interp's equivalent of the original's
// ShellError::EvaluatedSyntaxError: a structural failure discovered only
// once evaluation reaches the offending node (an attached *syntax.SyntaxError,
// a non-exhaustive `match` outside POSIX mode, and so on).
type EvaluatedSyntaxError struct {
	Message  string
	Position syntax.Position
}

func (e *EvaluatedSyntaxError) Error() string {
	if !e.Position.IsValid() {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Position.StartLine, e.Message)
}

// Eval type-switches over every syntax.Node variant (§4.2) and resolves it
// to a value.Value. A non-nil error means evaluation could not proceed at
// all; an ordinary command's non-zero exit status is instead reflected in
// s.lastExitCode, read back with LastExitCode.
func (s *Shell) Eval(node syntax.Node) (value.Value, error) {
	switch t := node.(type) {

	case *syntax.And:
		if _, err := s.Eval(t.Left); err != nil {
			return nil, err
		}
		if s.lastExitCode == 0 {
			return s.Eval(t.Right)
		}
		return value.NewString(""), nil

	case *syntax.Or:
		if _, err := s.Eval(t.Left); err != nil {
			return nil, err
		}
		if s.lastExitCode != 0 {
			return s.Eval(t.Right)
		}
		return value.NewString(""), nil

	case *syntax.Pipe:
		return s.evalPipe(t)

	case *syntax.Sequence:
		if _, err := s.Eval(t.Left); err != nil {
			return nil, err
		}
		return s.Eval(t.Right)

	case *syntax.Background:
		return s.evalBackground(t)

	case *syntax.Join:
		if _, err := s.Eval(t.Left); err != nil {
			return nil, err
		}
		return s.Eval(t.Right)

	case *syntax.Execute:
		return s.evalExecute(t)

	case *syntax.CastToCommand:
		v, err := s.Eval(t.Inner)
		if err != nil {
			return nil, err
		}
		if v.IsCommand() {
			return v, nil
		}
		argv, err := v.ResolveAsList(s)
		if err != nil {
			return nil, err
		}
		return value.NewCommand(value.NewRuntimeCommand(argv)), nil

	case *syntax.CastToList:
		v, err := s.Eval(t.Inner)
		if err != nil {
			return nil, err
		}
		list, err := v.ResolveAsList(s)
		if err != nil {
			return nil, err
		}
		return value.NewList(list), nil

	case *syntax.ReadRedirection:
		path, err := s.EvalString(t.Path)
		if err != nil {
			return nil, err
		}
		return s.evalRedirection(&value.PathRedirection{Path: path, Fd: t.FD, Direction: value.RedirRead}, t.Subject)

	case *syntax.WriteRedirection:
		return s.evalPathRedirection(t.FD, t.Path, value.RedirWrite, t.Subject)

	case *syntax.WriteAppendRedirection:
		return s.evalPathRedirection(t.FD, t.Path, value.RedirWriteAppend, t.Subject)

	case *syntax.ReadWriteRedirection:
		return s.evalPathRedirection(t.FD, t.Path, value.RedirReadWrite, t.Subject)

	case *syntax.Fd2FdRedirection:
		return s.evalRedirection(&value.FdToFd{OldFd: t.OldFD, NewFd: t.NewFD, Action: value.FdCloseAction(t.ClosePolicy)}, t.Subject)

	case *syntax.CloseFdRedirection:
		return s.evalRedirection(&value.CloseRedirection{Fd: t.FD}, t.Subject)

	case *syntax.CommandLiteral:
		return value.NewCommand(value.NewRuntimeCommand(append([]string(nil), t.Argv...))), nil

	case *syntax.StringLiteral:
		return value.NewString(t.Text), nil

	case *syntax.DoubleQuotedString:
		s2, err := s.evalComposedString(t.Parts)
		if err != nil {
			return nil, err
		}
		return value.NewString(s2), nil

	case *syntax.BarewordLiteral:
		return value.NewString(t.Text), nil

	case *syntax.Glob:
		return value.NewGlob(t.Pattern, t.Pos()), nil

	case *syntax.Tilde:
		return value.NewTilde(t.Username), nil

	case *syntax.Heredoc:
		if t.Contents == nil {
			return value.NewString(""), nil
		}
		return s.Eval(t.Contents)

	case *syntax.StringPartCompose:
		s2, err := s.evalComposedString(t.Parts)
		if err != nil {
			return nil, err
		}
		return value.NewString(s2), nil

	case *syntax.Juxtaposition:
		return s.evalJuxtaposition(t)

	case *syntax.SimpleVariable:
		var v value.Value = value.NewSimpleVariable(t.Name)
		if t.Slice != nil {
			idx, err := s.evalSliceSelectors(t.Slice.Selectors)
			if err != nil {
				return nil, err
			}
			v = v.WithSlices(idx)
		}
		return v, nil

	case *syntax.SpecialVariable:
		var v value.Value = value.NewSpecialVariable(t.Char)
		if t.Slice != nil {
			idx, err := s.evalSliceSelectors(t.Slice.Selectors)
			if err != nil {
				return nil, err
			}
			v = v.WithSlices(idx)
		}
		return v, nil

	case *syntax.Slice:
		v, err := s.Eval(t.Subject)
		if err != nil {
			return nil, err
		}
		idx, err := s.evalSliceSelectors(t.Selectors)
		if err != nil {
			return nil, err
		}
		return v.WithSlices(idx), nil

	case *syntax.ListConcatenate:
		var out []string
		for _, item := range t.Items {
			v, err := s.Eval(item)
			if err != nil {
				return nil, err
			}
			items, err := v.ResolveAsList(s)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return value.NewList(out), nil

	case *syntax.BraceExpansion:
		var out []string
		for _, entry := range t.Entries {
			v, err := s.Eval(entry)
			if err != nil {
				return nil, err
			}
			items, err := v.ResolveAsList(s)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return value.NewList(out), nil

	case *syntax.Range:
		return s.evalRange(t)

	case *syntax.IfCond:
		if _, err := s.Eval(t.Cond); err != nil {
			return nil, err
		}
		if s.lastExitCode == 0 {
			return s.Eval(t.True)
		}
		if t.False != nil {
			return s.Eval(t.False)
		}
		return value.NewString(""), nil

	case *syntax.ForLoop:
		return s.evalForLoop(t)

	case *syntax.Subshell:
		return s.evalSubshell(t)

	case *syntax.MatchExpr:
		return s.evalMatchExpr(t)

	case *syntax.ContinuationControl:
		if t.Kind == syntax.ContinuationBreak {
			return nil, breakSignal{}
		}
		return nil, continueSignal{}

	case *syntax.FunctionDeclaration:
		s.DefineFunction(&FunctionDef{Name: t.Name, ArgNames: append([]string(nil), t.ArgNames...), Body: t.Body})
		return value.NewString(""), nil

	case *syntax.DynamicEvaluate:
		return s.evalDynamicEvaluate(t)

	case *syntax.ImmediateExpression:
		return immediate.Dispatch(s, t.Name, t.Pos(), t.Arguments)

	case *syntax.HistoryEvent:
		return value.NewString(""), nil

	case *syntax.VariableDeclarations:
		var last value.Value = value.NewString("")
		for _, d := range t.Decls {
			v, err := s.Eval(d.Value)
			if err != nil {
				return nil, err
			}
			s.SetLocal(d.Name, v)
			last = v
		}
		return last, nil

	case *syntax.Comment:
		return value.NewString(""), nil

	case *syntax.SyntaxError:
		return nil, &EvaluatedSyntaxError{Message: t.Message, Position: t.Pos()}

	case *syntax.SyntheticNode:
		return s.Eval(t.Wrapped)

	default:
		return nil, fmt.Errorf("interp: unhandled node type %T", node)
	}
}

// EvalString runs node and collapses the result to one string.
func (s *Shell) EvalString(node syntax.Node) (string, error) {
	v, err := s.Eval(node)
	if err != nil {
		return "", err
	}
	return v.ResolveAsString(s)
}

func (s *Shell) evalList(node syntax.Node) ([]string, error) {
	v, err := s.Eval(node)
	if err != nil {
		return nil, err
	}
	return v.ResolveAsList(s)
}

// evalComposedString concatenates each part's resolved string, the way a
// double-quoted body or StringPartCompose never splits or globs between
// its pieces.
func (s *Shell) evalComposedString(parts []syntax.Node) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		str, err := s.EvalString(p)
		if err != nil {
			return "", err
		}
		b.WriteString(str)
	}
	return b.String(), nil
}

func (s *Shell) evalSliceSelectors(selectors []syntax.Node) (value.IndexSet, error) {
	idx := make(value.IndexSet, len(selectors))
	for i, sel := range selectors {
		str, err := s.EvalString(sel)
		if err != nil {
			return nil, err
		}
		idx[i] = str
	}
	return idx, nil
}

func (s *Shell) evalPathRedirection(fd int, pathNode syntax.Node, dir value.RedirectionDirection, subject syntax.Node) (value.Value, error) {
	if hd, ok := pathNode.(*syntax.Heredoc); ok {
		content, err := s.resolveHeredoc(hd)
		if err != nil {
			return nil, err
		}
		return s.evalRedirection(&value.HeredocRedirection{Fd: fd, Content: content}, subject)
	}
	path, err := s.EvalString(pathNode)
	if err != nil {
		return nil, err
	}
	return s.evalRedirection(&value.PathRedirection{Path: path, Fd: fd, Direction: dir}, subject)
}

// resolveHeredoc renders a Heredoc's body text: Interpolate re-evaluates
// Contents as if it were a double-quoted string (variables/commands
// expand); otherwise Contents is emitted byte for byte.
func (s *Shell) resolveHeredoc(hd *syntax.Heredoc) (string, error) {
	if hd.Contents == nil {
		return "", nil
	}
	if hd.Interpolate {
		return s.EvalString(hd.Contents)
	}
	if lit, ok := hd.Contents.(*syntax.StringLiteral); ok {
		return lit.Text, nil
	}
	return s.EvalString(hd.Contents)
}

// evalRedirection attaches a Redirection to whatever Subject evaluates to:
// a single Command, every Command in a CommandSequence, or (when there is
// no command at all, e.g. a bare top-level `exec >file`) the shell's
// global redirection set, per §4.7 step 1.
func (s *Shell) evalRedirection(r value.Redirection, subject syntax.Node) (value.Value, error) {
	v, err := s.Eval(subject)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *value.Command:
		cmd := t.Cmd
		cmd.Redirections = append(append([]value.Redirection(nil), cmd.Redirections...), r)
		return value.NewCommand(cmd), nil
	case *value.CommandSequence:
		cmds := append([]value.RuntimeCommand(nil), t.Commands...)
		for i := range cmds {
			cmds[i].Redirections = append(append([]value.Redirection(nil), cmds[i].Redirections...), r)
		}
		return value.NewCommandSequence(cmds), nil
	default:
		s.globalRedirections = append(s.globalRedirections, r)
		return v, nil
	}
}

func (s *Shell) evalJuxtaposition(t *syntax.Juxtaposition) (value.Value, error) {
	left, err := s.evalList(t.Left)
	if err != nil {
		return nil, err
	}
	right, err := s.evalList(t.Right)
	if err != nil {
		return nil, err
	}
	switch t.Mode {
	case syntax.StringExpand:
		switch {
		case len(left) == 0:
			return value.NewList(right), nil
		case len(right) == 0:
			return value.NewList(left), nil
		default:
			out := append([]string(nil), left[:len(left)-1]...)
			out = append(out, left[len(left)-1]+right[0])
			out = append(out, right[1:]...)
			return value.NewList(out), nil
		}
	default: // ListExpand: Cartesian concatenation
		var out []string
		for _, l := range left {
			for _, r := range right {
				out = append(out, l+r)
			}
		}
		if len(left) == 0 {
			out = right
		}
		if len(right) == 0 {
			out = left
		}
		return value.NewList(out), nil
	}
}

func (s *Shell) evalRange(t *syntax.Range) (value.Value, error) {
	startStr, err := s.EvalString(t.Start)
	if err != nil {
		return nil, err
	}
	endStr, err := s.EvalString(t.End)
	if err != nil {
		return nil, err
	}
	if n1, err1 := strconv.Atoi(startStr); err1 == nil {
		if n2, err2 := strconv.Atoi(endStr); err2 == nil {
			return value.NewList(intRangeStrings(n1, n2)), nil
		}
	}
	r1, sz1 := utf8.DecodeRuneInString(startStr)
	r2, sz2 := utf8.DecodeRuneInString(endStr)
	if sz1 == len(startStr) && sz2 == len(endStr) && startStr != "" && endStr != "" {
		return value.NewList(runeRangeStrings(r1, r2)), nil
	}
	return value.NewList([]string{startStr, endStr}), &EvaluatedSyntaxError{
		Message:  fmt.Sprintf("invalid range bounds %q..%q", startStr, endStr),
		Position: t.Pos(),
	}
}

func intRangeStrings(a, b int) []string {
	var out []string
	if a <= b {
		for i := a; i <= b; i++ {
			out = append(out, strconv.Itoa(i))
		}
	} else {
		for i := a; i >= b; i-- {
			out = append(out, strconv.Itoa(i))
		}
	}
	return out
}

func runeRangeStrings(a, b rune) []string {
	var out []string
	if a <= b {
		for r := a; r <= b; r++ {
			out = append(out, string(r))
		}
	} else {
		for r := a; r >= b; r-- {
			out = append(out, string(r))
		}
	}
	return out
}

func (s *Shell) evalForLoop(t *syntax.ForLoop) (value.Value, error) {
	if t.Iterated == nil {
		for {
			_, err := s.Eval(t.Body)
			if err == nil {
				continue
			}
			if isBreak(err) {
				break
			}
			if isContinue(err) {
				continue
			}
			return nil, err
		}
		return value.NewString(""), nil
	}
	items, err := s.evalList(t.Iterated)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		pop := s.PushFrame("for", FrameBlock)
		s.CurrentFrame().Variables[t.Variable] = value.NewString(item)
		if t.IndexVariable != "" {
			s.CurrentFrame().Variables[t.IndexVariable] = value.NewString(strconv.Itoa(i))
		}
		_, err := s.Eval(t.Body)
		pop()
		if err != nil {
			if isBreak(err) {
				break
			}
			if isContinue(err) {
				continue
			}
			return nil, err
		}
	}
	return value.NewString(""), nil
}

// evalSubshell runs Block against a copy of the shell's variable/alias/
// function state, the way a forked child would see a private copy of its
// parent's memory. A real fork() of the Go runtime (goroutines, GC state)
// is not safe the way it is in a single-threaded C program, so a subshell
// is modeled as in-process state cloning rather than an actual fork(); the
// exit code still propagates back to the parent the way wait() would.
func (s *Shell) evalSubshell(t *syntax.Subshell) (value.Value, error) {
	child := s.cloneForSubshell()
	_, err := child.Eval(t.Block)
	s.lastExitCode = child.lastExitCode
	if err != nil {
		return nil, err
	}
	return value.NewString(""), nil
}

func (s *Shell) cloneForSubshell() *Shell {
	child := &Shell{
		aliases:      make(map[string]string, len(s.aliases)),
		functions:    make(map[string]*FunctionDef, len(s.functions)),
		builtins:     s.builtins,
		lastExitCode: s.lastExitCode,
		posix:        s.posix,
		interactive:  s.interactive,
		cwd:          s.cwd,
		Stdin:        s.Stdin,
		Stdout:       s.Stdout,
		Stderr:       s.Stderr,
		umask:        s.umask,
	}
	for k, v := range s.aliases {
		child.aliases[k] = v
	}
	for k, v := range s.functions {
		child.functions[k] = v
	}
	child.frames = make([]*LocalFrame, len(s.frames))
	for i, f := range s.frames {
		vars := make(map[string]value.Value, len(f.Variables))
		for k, v := range f.Variables {
			vars[k] = v.Clone()
		}
		child.frames[i] = &LocalFrame{Name: f.Name, Variables: vars, Kind: f.Kind}
	}
	child.jobs = newJobTable(child)
	return child
}

func (s *Shell) evalMatchExpr(t *syntax.MatchExpr) (value.Value, error) {
	subject, err := s.EvalString(t.Subject)
	if err != nil {
		return nil, err
	}
	for _, entry := range t.Entries {
		names, matched, err := s.matchEntry(entry, subject)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		pop := s.PushFrame("match", FrameBlock)
		for name, val := range names {
			s.CurrentFrame().Variables[name] = value.NewString(val)
		}
		v, err := s.Eval(entry.Body)
		pop()
		return v, err
	}
	// Non-exhaustive: per the original's `case`, unless POSIX mode, this is
	// an EvaluatedSyntaxError; in POSIX mode it silently falls through with
	// a non-zero status, mirroring POSIX `case`'s no-op-on-no-match.
	if s.posix {
		s.lastExitCode = 1
		return value.NewString(""), nil
	}
	return nil, &EvaluatedSyntaxError{Message: "non-exhaustive match", Position: t.Pos()}
}

func (s *Shell) matchEntry(entry syntax.MatchEntry, subject string) (map[string]string, bool, error) {
	for _, pat := range entry.Patterns {
		patText, err := s.EvalString(pat)
		if err != nil {
			return nil, false, err
		}
		switch entry.Kind {
		case syntax.MatchRegex:
			re, err := regexp.Compile(patText)
			if err != nil {
				return nil, false, err
			}
			m := re.FindStringSubmatch(subject)
			if m == nil {
				continue
			}
			return bindNames(entry.Names, m[1:]), true, nil
		default: // MatchGlob
			mode := syntax.PatternEntireString
			if len(entry.Names) > 0 {
				mode |= syntax.PatternCaptures
			}
			reStr, err := syntax.CompilePattern(patText, mode)
			if err != nil {
				return nil, false, err
			}
			re, err := regexp.Compile(reStr)
			if err != nil {
				return nil, false, err
			}
			m := re.FindStringSubmatch(subject)
			if m == nil {
				continue
			}
			return bindNames(entry.Names, m[1:]), true, nil
		}
	}
	return nil, false, nil
}

func bindNames(names, captures []string) map[string]string {
	out := make(map[string]string, len(names))
	for i, name := range names {
		if i < len(captures) {
			out[name] = captures[i]
		} else {
			out[name] = ""
		}
	}
	return out
}

func (s *Shell) evalDynamicEvaluate(t *syntax.DynamicEvaluate) (value.Value, error) {
	v, err := s.Eval(t.Inner)
	if err != nil {
		return nil, err
	}
	if v.IsString() {
		name, err := v.ResolveAsString(s)
		if err != nil {
			return nil, err
		}
		return value.NewSimpleVariable(name).ResolveWithoutCast(s)
	}
	list, err := v.ResolveAsList(s)
	if err != nil {
		return nil, err
	}
	return value.NewCommand(value.NewRuntimeCommand(list)), nil
}
