// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/loom-sh/loom/fileutil"
	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

// Builtin is a built-in command: it reads argv (argv[0] is its own name)
// and the shell's current Stdin/Stdout/Stderr, returning the exit code to
// report and any hard error (a malformed invocation, not a command
// failure — that's just a non-zero code).
type Builtin func(s *Shell, args []string) (int, error)

// fdBinding is the resolved endpoint for one descriptor: either an already
// open *os.File (a path redirection or inherited stdio) or in-memory
// content piped through an os.Pipe (a heredoc).
type fdBinding struct {
	file   *os.File
	closed bool
}

// fdTable is the scope-bound descriptor collector of §4.7 step 2: it
// starts from the shell's own stdio, applies each Redirection's Rewiring
// in order, and is torn down (closing every file it itself opened) once
// the command that owns it has been dispatched.
type fdTable struct {
	binds   map[int]*fdBinding
	opened  []*os.File
	pending []func() error // heredoc writer goroutines to start after spawn
}

func newFdTable(s *Shell) *fdTable {
	t := &fdTable{binds: map[int]*fdBinding{}}
	t.binds[0] = &fdBinding{file: stdFile(s.Stdin)}
	t.binds[1] = &fdBinding{file: stdFile(s.Stdout)}
	t.binds[2] = &fdBinding{file: stdFile(s.Stderr)}
	return t
}

func stdFile(w any) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}

func (t *fdTable) apply(r value.Redirection) error {
	switch red := r.(type) {
	case *value.PathRedirection:
		flags := os.O_CREATE
		switch red.Direction {
		case value.RedirRead:
			flags = os.O_RDONLY
		case value.RedirWrite:
			flags |= os.O_WRONLY | os.O_TRUNC
		case value.RedirWriteAppend:
			flags |= os.O_WRONLY | os.O_APPEND
		case value.RedirReadWrite:
			flags |= os.O_RDWR
		}
		f, err := os.OpenFile(red.Path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("%s: %w", red.Path, err)
		}
		t.opened = append(t.opened, f)
		t.binds[red.Fd] = &fdBinding{file: f}
		return nil

	case *value.HeredocRedirection:
		r, w, err := os.Pipe()
		if err != nil {
			return err
		}
		t.opened = append(t.opened, r)
		content := red.Content
		t.pending = append(t.pending, func() error {
			_, werr := io.Copy(w, strings.NewReader(content))
			w.Close()
			return werr
		})
		t.binds[red.Fd] = &fdBinding{file: r}
		return nil

	case *value.FdToFd:
		src, ok := t.binds[red.OldFd]
		if !ok {
			return fmt.Errorf("fd %d not open", red.OldFd)
		}
		t.binds[red.NewFd] = &fdBinding{file: src.file}
		switch red.Action {
		case value.FdCloseOld:
			delete(t.binds, red.OldFd)
		case value.FdCloseNewImmediately:
			t.binds[red.NewFd] = &fdBinding{closed: true}
		}
		return nil

	case *value.CloseRedirection:
		t.binds[red.Fd] = &fdBinding{closed: true}
		return nil

	default:
		return fmt.Errorf("interp: unhandled redirection type %T", r)
	}
}

func (t *fdTable) startPending() {
	for _, p := range t.pending {
		go p()
	}
}

func (t *fdTable) close() {
	for _, f := range t.opened {
		f.Close()
	}
}

func (t *fdTable) get(fd int) *os.File {
	b, ok := t.binds[fd]
	if !ok || b.closed {
		return nil
	}
	return b.file
}

// maxExtraFd reports the highest descriptor at or above 3 this table
// binds, or 2 if none.
func (t *fdTable) maxExtraFd() int {
	max := 2
	for fd, b := range t.binds {
		if fd > max && !b.closed {
			max = fd
		}
	}
	return max
}

// resolveFds builds an fdTable for cmd's Redirections (§4.7 step 2).
func (s *Shell) resolveFds(cmd *value.RuntimeCommand) (*fdTable, error) {
	t := newFdTable(s)
	for _, r := range cmd.Redirections {
		if err := t.apply(r); err != nil {
			return nil, err
		}
	}
	for _, r := range s.globalRedirections {
		if err := t.apply(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// evalExecute runs t.Command, optionally capturing its stdout as a
// field-split list (§4.2, "Execute.for_each_entry with captured stdout").
func (s *Shell) evalExecute(t *syntax.Execute) (value.Value, error) {
	v, err := s.Eval(t.Command)
	if err != nil {
		return nil, err
	}
	cmds, err := commandsOf(v, s)
	if err != nil {
		return nil, err
	}
	if !t.CaptureStdout {
		if err := s.runSequence(cmds, nil); err != nil {
			return nil, err
		}
		return value.NewString(""), nil
	}
	var buf bytes.Buffer
	if err := s.runSequence(cmds, &buf); err != nil {
		return nil, err
	}
	ifs, ok := s.Lookup("IFS")
	sep := "\n"
	if ok {
		if str, err := ifs.ResolveAsString(s); err == nil && str != "" {
			sep = str
		}
	}
	return value.NewSplitString(buf.String(), sep, false), nil
}

// commandsOf coerces an arbitrary Value into the RuntimeCommand list the
// engine dispatches, casting a bare string/list to a single command's argv
// the way CastToCommand would.
func commandsOf(v value.Value, env value.Environ) ([]value.RuntimeCommand, error) {
	type commandSource interface {
		ResolveAsCommands(env value.Environ) ([]value.RuntimeCommand, error)
	}
	if cs, ok := v.(commandSource); ok {
		return cs.ResolveAsCommands(env)
	}
	argv, err := v.ResolveAsList(env)
	if err != nil {
		return nil, err
	}
	return []value.RuntimeCommand{value.NewRuntimeCommand(argv)}, nil
}

// runSequence runs cmds in order, honoring each one's NextChain (§3.4) —
// an And/Or/Sequence tail baked into the command the parser built. When
// capture is non-nil, every command's stdout is tee'd into it as well as
// the shell's own Stdout.
func (s *Shell) runSequence(cmds []value.RuntimeCommand, capture *bytes.Buffer) error {
	for i := range cmds {
		code, err := s.runOne(&cmds[i], capture)
		if err != nil {
			return err
		}
		s.lastExitCode = code
		for _, chain := range cmds[i].NextChain {
			switch chain.Action {
			case value.ChainAnd:
				if code != 0 {
					continue
				}
			case value.ChainOr:
				if code == 0 {
					continue
				}
			}
			if _, err := s.Eval(chain.Node); err != nil {
				return err
			}
		}
	}
	return nil
}

// runOne is the §4.7 command dispatch: step 1 (empty argv folds its
// redirections into the shell's global set), step 3 (an inline built-in),
// step 4 (a user function running in-process), or step 5 (fork/exec an
// external program).
func (s *Shell) runOne(cmd *value.RuntimeCommand, capture *bytes.Buffer) (int, error) {
	if len(cmd.Argv) == 0 {
		s.globalRedirections = append(s.globalRedirections, cmd.Redirections...)
		return 0, nil
	}

	name := cmd.Argv[0]

	if b, ok := s.builtins[name]; ok && cmd.ShouldWait {
		return s.runBuiltinInline(b, cmd, capture)
	}

	if fn, ok := s.functions[name]; ok {
		return s.runFunction(fn, cmd, capture)
	}

	return s.runExternal(cmd, capture)
}

// runBuiltinInline resolves redirections, temporarily swaps Stdout/Stderr
// if they were redirected, and runs the built-in in the current process.
func (s *Shell) runBuiltinInline(b Builtin, cmd *value.RuntimeCommand, capture *bytes.Buffer) (int, error) {
	fds, err := s.resolveFds(cmd)
	if err != nil {
		return 1, err
	}
	defer fds.close()
	fds.startPending()

	origOut, origErr, origIn := s.Stdout, s.Stderr, s.Stdin
	if f := fds.get(1); f != nil {
		if capture != nil {
			s.Stdout = io.MultiWriter(f, capture)
		} else {
			s.Stdout = f
		}
	} else if capture != nil {
		s.Stdout = capture
	}
	if f := fds.get(2); f != nil {
		s.Stderr = f
	}
	if f := fds.get(0); f != nil {
		s.Stdin = f
	}
	defer func() { s.Stdout, s.Stderr, s.Stdin = origOut, origErr, origIn }()

	code, err := b(s, cmd.Argv)
	return code, err
}

// runFunction pushes a fresh function frame, binds ARGV, runs Body, and
// catches a returnSignal the way a `return` built-in unwinds (§4.7 step
// 4); the function's own redirections/fd swaps follow the same rule as a
// built-in's.
func (s *Shell) runFunction(fn *FunctionDef, cmd *value.RuntimeCommand, capture *bytes.Buffer) (int, error) {
	fds, err := s.resolveFds(cmd)
	if err != nil {
		return 1, err
	}
	defer fds.close()
	fds.startPending()

	origOut, origErr, origIn := s.Stdout, s.Stderr, s.Stdin
	if f := fds.get(1); f != nil {
		if capture != nil {
			s.Stdout = io.MultiWriter(f, capture)
		} else {
			s.Stdout = f
		}
	} else if capture != nil {
		s.Stdout = capture
	}
	if f := fds.get(2); f != nil {
		s.Stderr = f
	}
	if f := fds.get(0); f != nil {
		s.Stdin = f
	}
	defer func() { s.Stdout, s.Stderr, s.Stdin = origOut, origErr, origIn }()

	pop := s.PushFrame(fn.Name, FrameFunctionOrGlobal)
	defer pop()
	frame := s.CurrentFrame()
	for i, name := range fn.ArgNames {
		if i+1 < len(cmd.Argv) {
			frame.Variables[name] = value.NewString(cmd.Argv[i+1])
		} else {
			frame.Variables[name] = value.NewString("")
		}
	}
	argv := append([]string(nil), cmd.Argv...)
	if len(argv) > 0 {
		argv = argv[1:]
	}
	frame.Variables["ARGV"] = value.NewList(argv)

	_, err = s.Eval(fn.Body)
	if err != nil {
		var ret returnSignal
		if errors.As(err, &ret) {
			if ret.value != nil {
				str, serr := ret.value.ResolveAsString(s)
				if serr == nil {
					if n, nerr := parseExitCode(str); nerr == nil {
						return n, nil
					}
				}
			}
			return s.lastExitCode, nil
		}
		return 1, err
	}
	return s.lastExitCode, nil
}

func parseExitCode(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not numeric")
		}
		n = n*10 + int(c-'0')
	}
	return n % 256, nil
}

// runExternal is §4.7 step 5: fork+exec a real program. The parent puts
// the child in its own process group and, for a foreground job, gives it
// the controlling terminal before waiting; on exec failure with ENOEXEC,
// it retries once, re-invoking the file as a script under this same shell
// binary, the way a shebang-less script is conventionally handled.
func (s *Shell) runExternal(cmd *value.RuntimeCommand, capture *bytes.Buffer) (int, error) {
	if s.execWhitelist != nil && !s.execWhitelist[cmd.Argv[0]] {
		fmt.Fprintf(s.Stderr, "%s: not in the allowed program list\n", cmd.Argv[0])
		return 126, nil
	}

	fds, err := s.resolveFds(cmd)
	if err != nil {
		return 126, err
	}
	defer fds.close()

	code, execErr := s.spawnAndWait(cmd, fds, capture)
	if execErr == nil {
		return code, nil
	}

	if errors.Is(execErr, exec.ErrNotFound) {
		fmt.Fprintf(s.Stderr, "%s: command not found\n", cmd.Argv[0])
		return 127, nil
	}

	var pathErr *os.PathError
	if errors.As(execErr, &pathErr) && errors.Is(pathErr.Err, syscall.ENOEXEC) {
		if retryCode, retryErr := s.retryAsScript(cmd, fds, capture); retryErr == nil {
			return retryCode, nil
		}
	}

	fmt.Fprintf(s.Stderr, "%s: %v\n", cmd.Argv[0], execErr)
	return 126, nil
}

func (s *Shell) spawnAndWait(cmd *value.RuntimeCommand, fds *fdTable, capture *bytes.Buffer) (int, error) {
	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = s.cwd
	c.Stdin = orStdReader(fds.get(0), s.Stdin)
	c.Stdout = orStdWriter(fds.get(1), s.Stdout, capture)
	c.Stderr = orStdWriter(fds.get(2), s.Stderr, nil)
	c.ExtraFiles = extraFiles(fds)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if cmd.Pipeline != nil && cmd.Pipeline.Pgid != 0 {
		c.SysProcAttr.Pgid = cmd.Pipeline.Pgid
		c.SysProcAttr.Setpgid = true
	}

	fds.startPending()
	if err := c.Start(); err != nil {
		return 126, err
	}

	pgid := c.Process.Pid
	if cmd.Pipeline != nil {
		if cmd.Pipeline.Pgid == 0 {
			cmd.Pipeline.Pgid = pgid
		}
		pgid = cmd.Pipeline.Pgid
	}
	job := s.jobs.Add(c.Process.Pid, pgid, strings.Join(cmd.Argv, " "))
	if cmd.ShouldWait && s.interactive {
		foregroundPgid(pgid)
	}

	err := c.Wait()
	s.jobs.Reap()
	if cmd.ShouldWait && s.interactive {
		foregroundPgid(os.Getpid())
	}
	if err == nil {
		job.State = JobExited
		s.jobs.Remove(job.ID)
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		job.State = JobExited
		job.ExitCode = exitErr.ExitCode()
		s.jobs.Remove(job.ID)
		return exitErr.ExitCode(), nil
	}
	return 126, err
}

func (s *Shell) retryAsScript(cmd *value.RuntimeCommand, fds *fdTable, capture *bytes.Buffer) (int, error) {
	info, err := os.Stat(cmd.Argv[0])
	if err != nil {
		return 126, err
	}
	if fileutil.CouldBeScript(info) == fileutil.ConfNotScript {
		return 126, fmt.Errorf("not a script")
	}
	self, err := os.Executable()
	if err != nil {
		return 126, err
	}
	retry := value.NewRuntimeCommand(append([]string{self}, cmd.Argv...))
	retry.Redirections = cmd.Redirections
	retry.ShouldWait = cmd.ShouldWait
	retry.Pipeline = cmd.Pipeline
	return s.spawnAndWait(&retry, fds, capture)
}

func orStdReader(f *os.File, fallback io.Reader) io.Reader {
	if f != nil {
		return f
	}
	return fallback
}

func orStdWriter(f *os.File, fallback io.Writer, capture *bytes.Buffer) io.Writer {
	if f != nil {
		if capture != nil {
			return io.MultiWriter(f, capture)
		}
		return f
	}
	if capture != nil {
		return capture
	}
	return fallback
}

func extraFiles(fds *fdTable) []*os.File {
	max := fds.maxExtraFd()
	if max <= 2 {
		return nil
	}
	out := make([]*os.File, max-2)
	for fd := 3; fd <= max; fd++ {
		if f := fds.get(fd); f != nil {
			out[fd-3] = f
		}
	}
	return out
}

// evalPipe connects Left's stdout to Right's stdin (and, if StderrToo,
// Left's stderr too) via an in-process pipe, running both sides
// concurrently and reporting Right's exit status, per §4.2/§5's pipeline
// ordering guarantee (both members spawned before either execs waits).
func (s *Shell) evalPipe(t *syntax.Pipe) (value.Value, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	left := s.cloneForSubshell()
	left.Stdout = w
	if t.StderrToo {
		left.Stderr = w
	}

	right := s.cloneForSubshell()
	right.Stdin = r

	leftDone := make(chan error, 1)
	go func() {
		_, err := left.Eval(t.Left)
		w.Close()
		leftDone <- err
	}()

	_, rightErr := right.Eval(t.Right)
	r.Close()
	leftErr := <-leftDone

	s.lastExitCode = right.lastExitCode
	if rightErr != nil {
		return nil, rightErr
	}
	if leftErr != nil {
		return nil, leftErr
	}
	return value.NewString(""), nil
}

// evalBackground spawns Command without waiting for it, registering a job
// the caller can later wait/fg/bg by spec.
func (s *Shell) evalBackground(t *syntax.Background) (value.Value, error) {
	v, err := s.Eval(t.Command)
	if err != nil {
		return nil, err
	}
	cmds, err := commandsOf(v, s)
	if err != nil {
		return nil, err
	}
	for i := range cmds {
		cmds[i].ShouldWait = false
	}
	// Running inline on a goroutine (rather than blocking the caller) is
	// this engine's stand-in for not waiting on the child: the job table
	// entry spawnAndWait creates is still visible to fg/bg/wait/jobs for the
	// rest of the command's lifetime. Handing back a Job Value for `$!`
	// would need the spawn itself to be synchronous and the wait alone
	// asynchronous; that split is left for a follow-up since every
	// RuntimeCommand here (built-in, function, or external) shares one
	// runOne entry point.
	go func() {
		for i := range cmds {
			s.runOne(&cmds[i], nil)
		}
	}()
	return value.NewString(""), nil
}
