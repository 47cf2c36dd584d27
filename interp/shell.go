// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package interp evaluates the syntax tree (§4.2): it type-switches over
// every syntax.Node variant, resolves them to value.Value per §3.3, and
// drives the execution engine (§4.7) and job table (§4.8). It is the
// package that actually runs anything.
package interp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

// FrameKind distinguishes a function/global-scoped frame (the target of a
// POSIX-mode "closest enclosing function" assignment) from an ordinary
// block frame, per §3.7.
type FrameKind int

const (
	FrameBlock FrameKind = iota
	FrameFunctionOrGlobal
)

// LocalFrame is one entry on the local-variable stack (§3.7): a name for
// diagnostics, its variable bindings, and whether it's a block frame or a
// function/global one.
type LocalFrame struct {
	Name      string
	Variables map[string]value.Value
	Kind      FrameKind
}

// FunctionDef is a user-defined shell function: its parameter names and
// the body to run with them bound into a fresh frame.
type FunctionDef struct {
	Name     string
	ArgNames []string
	Body     syntax.Node
}

// Shell is the process-wide state every node evaluates against: the
// local-frame stack (§3.7), the alias and function maps (§3.8), the job
// table (§4.8), and the last exit status. It implements value.Environ and
// immediate.Evaluator without either of those packages importing it.
type Shell struct {
	frames []*LocalFrame

	aliases   map[string]string
	functions map[string]*FunctionDef
	builtins  map[string]Builtin

	lastExitCode int
	posix        bool
	interactive  bool

	cwd string

	// dirStack backs the `dirs`/`pushd`/`popd` built-ins (§A.4): the
	// directories pushd has rotated the old cwd onto, most-recent last.
	dirStack []string

	// dirHistory is the `cdh` ring of recently-visited directories,
	// bounded at dirHistoryCap and unrelated to dirStack.
	dirHistory []string

	// history is the `history`/`read`-line log consumed by the `history`
	// builtin and persisted to HISTFILE (interp/history.go).
	history []string

	// shellOptions backs `setopt` (§6): named boolean toggles, off unless
	// set. "clipboard" gates `read -c`'s clipboard capture.
	shellOptions map[string]bool

	// formatter renders a Node back to source text for the `dump` builtin
	// and the round-trip testable property; nil until cmd/loom's
	// editorconfig-driven init wires one up (§A.3).
	formatter *syntax.Formatter

	// globalRedirections are appended to by a Command with an empty argv
	// (§4.7 step 1, "exec >file" with no command word): every subsequent
	// command inherits them until the shell exits or they're replaced.
	globalRedirections []value.Redirection

	jobs *JobTable

	// execWhitelist, when non-nil, restricts runExternal to the named
	// programs; anything else is refused with exit code 126 instead of
	// being spawned. Used by shell.SourceFile/SourceNode to source an
	// untrusted file without letting it run arbitrary commands.
	execWhitelist map[string]bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	umask int
}

// Option configures a new Shell, following the teacher's functional-options
// constructor shape (interp/api.go's Option type).
type Option func(*Shell)

// Posix turns on POSIX-mode semantics: list-to-string casts take the
// first-element shortcut (§3.3) and assignment targets the closest
// enclosing function/global frame rather than the innermost block (§3.7).
func Posix(posix bool) Option { return func(s *Shell) { s.posix = posix } }

// Interactive marks the shell as reading from a terminal, which affects
// job-control notifications and prompt handling.
func Interactive(v bool) Option { return func(s *Shell) { s.interactive = v } }

// StdIO sets the three standard streams; any nil argument keeps the
// process's own os.Stdin/Stdout/Stderr.
func StdIO(in io.Reader, out, err io.Writer) Option {
	return func(s *Shell) {
		if in != nil {
			s.Stdin = in
		}
		if out != nil {
			s.Stdout = out
		}
		if err != nil {
			s.Stderr = err
		}
	}
}

// RestrictExec limits the shell to spawning only the named external
// programs; any other command word is refused with exit code 126. Built-
// ins and user functions are unaffected.
func RestrictExec(allowed []string) Option {
	return func(s *Shell) {
		m := make(map[string]bool, len(allowed))
		for _, name := range allowed {
			m[name] = true
		}
		s.execWhitelist = m
	}
}

// New builds a Shell with one global frame pushed, ready to evaluate.
func New(opts ...Option) *Shell {
	cwd, _ := os.Getwd()
	s := &Shell{
		aliases:      map[string]string{},
		functions:    map[string]*FunctionDef{},
		shellOptions: map[string]bool{},
		cwd:          cwd,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		umask:        0o022,
	}
	s.jobs = newJobTable(s)
	s.builtins = defaultBuiltins()
	s.frames = []*LocalFrame{{
		Name:      "global",
		Variables: map[string]value.Value{},
		Kind:      FrameFunctionOrGlobal,
	}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PushFrame opens a new frame on top of the stack, returning a function
// that pops it; callers defer the returned func so a panic unwinding
// through a command still restores the stack.
func (s *Shell) PushFrame(name string, kind FrameKind) func() {
	s.frames = append(s.frames, &LocalFrame{Name: name, Variables: map[string]value.Value{}, Kind: kind})
	return func() {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// CurrentFrame returns the innermost frame.
func (s *Shell) CurrentFrame() *LocalFrame { return s.frames[len(s.frames)-1] }

// findFrame walks the stack top-down (innermost first) for the nearest
// frame binding name, per §3.7's lookup rule.
func (s *Shell) findFrame(name string) (*LocalFrame, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].Variables[name]; ok {
			return s.frames[i], true
		}
	}
	return nil, false
}

// storeTarget picks the frame an assignment to an as-yet-unbound name
// lands in: in POSIX mode, the closest enclosing function-or-global frame;
// otherwise the innermost frame regardless of kind (§3.7).
func (s *Shell) storeTarget() *LocalFrame {
	if s.posix {
		for i := len(s.frames) - 1; i >= 0; i-- {
			if s.frames[i].Kind == FrameFunctionOrGlobal {
				return s.frames[i]
			}
		}
	}
	return s.frames[len(s.frames)-1]
}

// ---- value.Environ ----

func (s *Shell) Lookup(name string) (value.Value, bool) {
	if f, ok := s.findFrame(name); ok {
		return f.Variables[name], true
	}
	if v, ok := os.LookupEnv(name); ok {
		return value.NewString(v), true
	}
	return nil, false
}

func (s *Shell) LastExitCode() int { return s.lastExitCode }

func (s *Shell) PID() int { return os.Getpid() }

func (s *Shell) Argv() ([]string, bool) {
	f, ok := s.findFrame("ARGV")
	if !ok {
		return nil, false
	}
	list, err := f.Variables["ARGV"].ResolveAsList(s)
	if err != nil {
		return nil, false
	}
	return list, true
}

func (s *Shell) ExpandGlob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *Shell) ExpandTilde(username string) (string, error) {
	if username == "" {
		if home := os.Getenv("HOME"); home != "" {
			return home, nil
		}
		u, err := user.Current()
		if err != nil {
			return "", err
		}
		return u.HomeDir, nil
	}
	u, err := user.Lookup(username)
	if err != nil {
		return "~" + username, nil
	}
	return u.HomeDir, nil
}

func (s *Shell) PosixMode() bool { return s.posix }

// ---- immediate.Evaluator ----

func (s *Shell) HasLocal(name string) bool {
	_, ok := s.findFrame(name)
	return ok
}

func (s *Shell) SetLocal(name string, v value.Value) {
	if f, ok := s.findFrame(name); ok {
		f.Variables[name] = v
		return
	}
	s.storeTarget().Variables[name] = v
}

func (s *Shell) Parse(source string) (syntax.Node, error) {
	if s.posix {
		return syntax.ParsePosix(source)
	}
	return syntax.ParseNative(source)
}

// ---- aliases & functions (§3.8) ----

func (s *Shell) SetAlias(name, expansion string) { s.aliases[name] = expansion }
func (s *Shell) RemoveAlias(name string)         { delete(s.aliases, name) }
func (s *Shell) Alias(name string) (string, bool) {
	v, ok := s.aliases[name]
	return v, ok
}
func (s *Shell) Aliases() map[string]string { return s.aliases }

func (s *Shell) DefineFunction(def *FunctionDef) { s.functions[def.Name] = def }
func (s *Shell) Function(name string) (*FunctionDef, bool) {
	f, ok := s.functions[name]
	return f, ok
}
func (s *Shell) RemoveFunction(name string) { delete(s.functions, name) }

// ---- misc shell state ----

func (s *Shell) Cwd() string { return s.cwd }

func (s *Shell) Chdir(dir string) error {
	if err := os.Chdir(dir); err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	s.cwd = cwd
	return nil
}

func (s *Shell) SetExitCode(n int) { s.lastExitCode = n }

// SetFormatter installs the Node-to-source renderer cmd/loom builds from
// editorconfig hints; the `dump` builtin and any round-trip tooling use it
// through Formatter, falling back to a zero-value Formatter when nil.
func (s *Shell) SetFormatter(f *syntax.Formatter) { s.formatter = f }

func (s *Shell) Formatter() *syntax.Formatter {
	if s.formatter == nil {
		return &syntax.Formatter{}
	}
	return s.formatter
}

func (s *Shell) Println(args ...any) { fmt.Fprintln(s.Stdout, args...) }

func (s *Shell) stdinReader() *bufio.Reader {
	if br, ok := s.Stdin.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(s.Stdin)
}
