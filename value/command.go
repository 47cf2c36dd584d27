// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package value

import "github.com/loom-sh/loom/syntax"

// RuntimeCommand is the runtime descriptor a Command Value wraps, and the
// unit the execution engine (interp/engine.go) actually forks and execs
// (§3.4). It is pure data: building one never runs anything.
type RuntimeCommand struct {
	Argv         []string
	Redirections []Redirection

	ShouldWait                   bool
	IsPipeSource                 bool
	ShouldNotifyIfInBackground   bool
	ShouldImmediatelyExecuteNext bool

	// Pipeline is shared by every command in one `a | b | c` chain; the
	// first member to spawn fills in its Pgid. Members share the pointer,
	// not a copy, so later members see the leader's pgid once set.
	Pipeline *Pipeline

	NextChain []ChainEntry

	Position *syntax.Position
}

// NewRuntimeCommand returns a RuntimeCommand with the defaults every fresh
// command node starts with, matching the original's in-struct default
// member initializers.
func NewRuntimeCommand(argv []string) RuntimeCommand {
	return RuntimeCommand{
		Argv:                       argv,
		ShouldWait:                 true,
		ShouldNotifyIfInBackground: true,
	}
}

// ChainAction names how a ChainEntry's node relates to the command that
// precedes it in a Command's NextChain.
type ChainAction int

const (
	ChainAnd ChainAction = iota
	ChainOr
	ChainSequence
)

// ChainEntry is one `{node, action}` pair in a Command's next_chain.
type ChainEntry struct {
	Node   syntax.Node
	Action ChainAction
}

// Pipeline is the shared per-pipeline record carrying the process group id;
// every command produced by one `|`-chain points at the same Pipeline, and
// its lifetime is the longest-lived member.
type Pipeline struct {
	Pgid int
}

// RedirectionDirection mirrors syntax.RedirectionDirection for a Path
// redirection's open(2) flags.
type RedirectionDirection int

const (
	RedirRead RedirectionDirection = iota
	RedirWrite
	RedirWriteAppend
	RedirReadWrite
)

// Redirection is one of Path, FdToFd, or Close (§3.5). Every variant
// resolves to a Rewiring the engine applies between fork and exec.
type Redirection interface {
	Apply() (*Rewiring, error)
	isRedirection()
}

// FdCloseAction mirrors syntax.FdToFdClosePolicy.
type FdCloseAction int

const (
	FdCloseNone FdCloseAction = iota
	FdCloseOld
	FdCloseNew
	FdRefreshNew
	FdRefreshOld
	FdCloseNewImmediately
)

// Rewiring is the fd-table edit the engine performs in the child, between
// fork and exec: dup OldFd onto NewFd (or, for the Refresh* close actions,
// allocate a fresh pipe end and let OtherPipeEnd learn its counterpart).
type Rewiring struct {
	OldFd, NewFd  int
	OtherPipeEnd  *FdToFd
	Action        FdCloseAction
}

// PathRedirection opens Path under Direction and assigns the result to Fd.
type PathRedirection struct {
	Path      string
	Fd        int
	Direction RedirectionDirection
}

func (*PathRedirection) isRedirection() {}

// Apply reports the descriptor Path should be opened onto; the actual
// open(2) call is the engine's job; this only prescribes the intended fd
// edit (old_fd is left at -1, matching PathRedirection not knowing the
// opened fd until open(2) returns it — the engine fills Rewiring.OldFd in
// after opening).
func (p *PathRedirection) Apply() (*Rewiring, error) {
	return &Rewiring{OldFd: -1, NewFd: p.Fd, Action: FdCloseNone}, nil
}

// HeredocRedirection supplies Content directly as Fd's reader instead of
// opening a path. This is how a *syntax.Heredoc ends up represented once
// its body text is resolved (§9, "heredoc late binding"): the engine pipes
// Content into Fd the same way it would an opened file, rather than
// writing it to a temp file first.
type HeredocRedirection struct {
	Fd      int
	Content string
}

func (*HeredocRedirection) isRedirection() {}

func (h *HeredocRedirection) Apply() (*Rewiring, error) {
	return &Rewiring{OldFd: -1, NewFd: h.Fd, Action: FdCloseNone}, nil
}

// FdToFd duplicates OldFd onto NewFd, or (for the Refresh* policies)
// allocates a fresh pipe and wires OtherPipeEnd's counterpart descriptor.
type FdToFd struct {
	OldFd, NewFd int
	Action       FdCloseAction
	OtherEnd     *FdToFd
}

func (*FdToFd) isRedirection() {}

func (f *FdToFd) Apply() (*Rewiring, error) {
	return &Rewiring{OldFd: f.OldFd, NewFd: f.NewFd, OtherPipeEnd: f.OtherEnd, Action: f.Action}, nil
}

// CloseRedirection closes Fd in the child before exec.
type CloseRedirection struct {
	Fd int
}

func (*CloseRedirection) isRedirection() {}

func (c *CloseRedirection) Apply() (*Rewiring, error) {
	return &Rewiring{OldFd: c.Fd, NewFd: c.Fd, Action: FdCloseNewImmediately}, nil
}
