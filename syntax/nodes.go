// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package syntax implements the two front ends of the shell: a
// recursive-descent parser for the native grammar and a token-driven parser
// for POSIX shell syntax, plus the closed set of AST node variants both
// produce. Evaluation of the tree lives outside this package (in interp),
// which type-switches over the Node values defined here; syntax itself only
// knows how to build and describe the tree.
package syntax

// Node is implemented by every AST node variant. The set of variants is
// closed: interp's evaluator type-switches over all of them and a default
// case is a bug, never a fallback.
type Node interface {
	Pos() Position
	astNode()
}

// Base is embedded by every concrete node. It carries the node's source
// span and, per §3.2, an optional attached SyntaxError child: a node is
// syntax-erroneous iff it or one of its descendants carries a non-nil,
// non-cleared syntax error. Base is immutable after construction except for
// attaching/clearing that error.
type Base struct {
	position Position
	synErr   *SyntaxError
}

func (b *Base) Pos() Position { return b.position }
func (*Base) astNode()        {}

// Err returns the syntax error directly attached to this node, if any. Use
// Erroneous (in walk.go) to ask whether the node or any descendant carries
// one.
func (b *Base) Err() *SyntaxError { return b.synErr }

// SetErr attaches a SyntaxError to the node, per §3.2(a).
func (b *Base) SetErr(e *SyntaxError) { b.synErr = e }

// ClearErr clears a previously attached SyntaxError, per §3.2(a).
func (b *Base) ClearErr() { b.synErr = nil }

func newBase(pos Position) Base { return Base{position: pos} }

// NewBase builds a Base carrying pos and no attached syntax error, for
// synthesizing nodes outside this package (interp and immediate both need
// this: a desugaring or an immediate function's literal substitutions).
func NewBase(pos Position) Base { return newBase(pos) }

// ---- Logical / pipeline ----

// And runs Right only if Left exits with status zero.
type And struct {
	Base
	Left, Right Node
}

// Or runs Right only if Left exits with a non-zero status.
type Or struct {
	Base
	Left, Right Node
}

// Pipe connects Left's stdout to Right's stdin. If StderrToo is set (the
// native `|&` spelling), Left's stderr is duplicated onto its stdout before
// the pipe is wired, so both streams reach Right.
type Pipe struct {
	Base
	Left, Right Node
	StderrToo   bool
}

// Sequence runs Left then Right unconditionally, regardless of Left's exit
// status.
type Sequence struct {
	Base
	Left, Right Node
}

// Background marks Command to run without waiting for it to exit.
type Background struct {
	Base
	Command Node
}

// Join combines a prefix node (typically a bare redirection or assignment
// list with no command word of its own) with the command that follows it,
// per the native grammar's `command := redirection command? | ... command?`
// production. Running a Join runs Left, then runs Right in the same
// environment Left produced.
type Join struct {
	Base
	Left, Right Node
}

// ---- Commands & redirections ----

// Execute runs Command. If CaptureStdout is set, Command's stdout is piped
// back into the evaluator instead of inherited, and evaluating this node
// produces a list Value built from the captured bytes split on IFS, per
// §4.2's "Execute.for_each_entry with captured stdout" contract.
type Execute struct {
	Base
	Command       Node
	CaptureStdout bool
}

// CastToCommand forces Inner (ordinarily a list or string producing node)
// to be interpreted as a Command: its resolved list becomes argv.
type CastToCommand struct {
	Base
	Inner Node
}

// CastToList forces Inner to be interpreted as a list Value rather than
// whatever it would otherwise resolve to (e.g. a command's captured
// output).
type CastToList struct {
	Base
	Inner Node
}

// RedirectionDirection names how a PATH redirection opens its target.
type RedirectionDirection int

const (
	RedirRead RedirectionDirection = iota
	RedirWrite
	RedirWriteAppend
	RedirReadWrite
)

// ReadRedirection opens Path for reading and assigns the descriptor to FD
// before evaluating Subject.
type ReadRedirection struct {
	Base
	FD      int
	Path    Node
	Subject Node
}

// WriteRedirection opens Path for writing (truncating), assigning FD.
type WriteRedirection struct {
	Base
	FD      int
	Path    Node
	Subject Node
}

// WriteAppendRedirection opens Path for appending, assigning FD.
type WriteAppendRedirection struct {
	Base
	FD      int
	Path    Node
	Subject Node
}

// ReadWriteRedirection opens Path for both reading and writing, assigning
// FD.
type ReadWriteRedirection struct {
	Base
	FD      int
	Path    Node
	Subject Node
}

// FdToFdClosePolicy controls what happens to OldFD/NewFD around a dup2, per
// §3.5.
type FdToFdClosePolicy int

const (
	FdCloseNone FdToFdClosePolicy = iota
	FdCloseOld
	FdCloseNew
	FdRefreshNew
	FdRefreshOld
	FdCloseNewImmediately
)

// Fd2FdRedirection duplicates OldFD onto NewFD (or allocates a fresh pipe
// when the policy is one of the Refresh* variants) before evaluating
// Subject.
type Fd2FdRedirection struct {
	Base
	OldFD, NewFD int
	ClosePolicy  FdToFdClosePolicy
	Subject      Node
}

// CloseFdRedirection closes FD in the child before evaluating Subject.
type CloseFdRedirection struct {
	Base
	FD      int
	Subject Node
}

// CommandLiteral wraps a fully-resolved argv with no further word
// expansion, used by desugarings that synthesize a call outright (e.g. the
// POSIX `run_with_env` rewrite of an assignment-prefixed simple command).
type CommandLiteral struct {
	Base
	Argv []string
}

// ---- Strings & literals ----

// Enclosure records how a StringLiteral was quoted in source, which governs
// whether it undergoes further expansion.
type Enclosure int

const (
	EnclosureNone Enclosure = iota
	EnclosureSingle
	EnclosureDouble
)

// StringLiteral is raw text, tagged with the quoting it was written with.
// EnclosureSingle text is never expanded further; EnclosureNone/Double text
// may still be the identity transform (the quoting only affects recursive
// parsing, already done by the time the node exists).
type StringLiteral struct {
	Base
	Text      string
	Enclosure Enclosure
}

// DoubleQuotedString composes Parts (literals, variables, immediate
// expressions, command substitutions) with no field splitting or glob
// expansion between them, per the double-quote composition rule.
type DoubleQuotedString struct {
	Base
	Parts []Node
}

// BarewordLiteral is unquoted text that still undergoes glob and
// tilde recognition at the lexer/parser boundary but no further escape
// processing.
type BarewordLiteral struct {
	Base
	Text string
}

// Glob is an unexpanded filename pattern; it resolves against the current
// working directory.
type Glob struct {
	Base
	Pattern string
}

// Tilde resolves to a home directory. An empty Username means the current
// user (by way of $HOME).
type Tilde struct {
	Base
	Username string
}

// Heredoc is a placeholder at parse time: Contents is filled in by
// parse_heredoc_entries once the terminating key line is found (§9,
// "Heredoc late binding"). Interpolate selects whether Contents is
// re-parsed as a double-quoted body; Deindent selects `<<-`/`<<~` leading
// whitespace stripping.
type Heredoc struct {
	Base
	Key         string
	Interpolate bool
	Deindent    bool
	Contents    Node // nil until parse_heredoc_entries resolves it
}

// StringPartCompose concatenates Parts into a single string-shaped Value,
// with no list expansion between them (contrast Juxtaposition).
type StringPartCompose struct {
	Base
	Parts []Node
}

// JuxtapositionMode selects how two adjacent word fragments combine.
type JuxtapositionMode int

const (
	// ListExpand produces the Cartesian concatenation of Left's and
	// Right's resolved lists.
	ListExpand JuxtapositionMode = iota
	// StringExpand glues the last entry of Left's list to the first
	// entry of Right's list, leaving the other entries untouched.
	StringExpand
)

// Juxtaposition places Left directly next to Right with no separator.
type Juxtaposition struct {
	Base
	Left, Right Node
	Mode        JuxtapositionMode
}

// ---- Variables ----

// SimpleVariable looks up Name in local frames, then the environment.
type SimpleVariable struct {
	Base
	Name  string
	Slice *Slice
}

// SpecialVariable names a single-character shell-defined quantity such as
// `?`, `$`, `*`, or `#`.
type SpecialVariable struct {
	Base
	Char  byte
	Slice *Slice
}

// Slice applies Selectors (each an expression resolving to an index or a
// Range) to Subject's resolved value, selecting or reordering either the
// characters of a string or the entries of a list.
type Slice struct {
	Base
	Subject   Node
	Selectors []Node
}

// ---- Structured ----

// ListConcatenate evaluates each of Items in order and concatenates the
// resulting lists into one.
type ListConcatenate struct {
	Base
	Items []Node
}

// BraceExpansion evaluates each of Entries in order, emitting a list.
type BraceExpansion struct {
	Base
	Entries []Node
}

// Range spans Start to End inclusive. If both resolve to single code
// points, it emits the code-point range; if both parse as integers, it
// emits the integer range as strings; otherwise it emits [Start, End] and
// records a syntax error (§4.2, "Range").
type Range struct {
	Base
	Start, End Node
}

// ---- Control flow ----

// IfCond is rewritten at construction so Cond is always an *Execute; see
// §4.2 "IfCond". False may be nil (no else-branch) or may be assigned
// during parse of a trailing `else`/`else if` per §3.2(c).
type IfCond struct {
	Base
	Cond        Node
	True, False Node
}

// ForLoop iterates Body once per entry of Iterated, binding Variable (and,
// if IndexVariable is non-empty, a zero-based index) each time. A nil
// Iterated means the infinite `loop` form.
type ForLoop struct {
	Base
	Variable      string
	IndexVariable string
	Iterated      Node // nil => infinite loop
	Body          Node
}

// Subshell evaluates Block and produces a command sequence to be run in a
// forked subshell at execution time.
type Subshell struct {
	Base
	Block Node
}

// MatchKind selects how a MatchEntry's Patterns are interpreted.
type MatchKind int

const (
	MatchGlob MatchKind = iota
	MatchRegex
)

// MatchEntry is one arm of a MatchExpr. Names binds capture groups (glob
// capture spans, or regex capture groups) to variable names, in order.
type MatchEntry struct {
	Patterns []Node
	Kind     MatchKind
	Names    []string
	Body     Node
}

// MatchExpr evaluates Subject once and tries each Entries arm in order;
// the first match wins. Non-exhaustive matches raise an
// EvaluatedSyntaxError unless the shell is in POSIX mode.
type MatchExpr struct {
	Base
	Subject Node
	Entries []MatchEntry
}

// ContinuationKind distinguishes break from continue.
type ContinuationKind int

const (
	ContinuationBreak ContinuationKind = iota
	ContinuationContinue
)

// ContinuationControl is a typed early exit: break or continue.
type ContinuationControl struct {
	Base
	Kind ContinuationKind
}

// FunctionDeclaration stores Body under Name in the function map when
// evaluated; it never executes Body itself.
type FunctionDeclaration struct {
	Base
	Name      string
	ArgNames  []string
	Body      Node
}

// ---- Meta ----

// DynamicEvaluate resolves Inner: if it is a string, the result is a
// variable reference by that name; otherwise the resolved list becomes a
// Command's argv.
type DynamicEvaluate struct {
	Base
	Inner Node
}

// ImmediateExpression dispatches to a compile-time function named Name with
// Arguments, per §4.5. Evaluating this node runs the named transform, which
// returns a replacement node to evaluate in its place.
type ImmediateExpression struct {
	Base
	Name      string
	Arguments []Node
}

// HistorySelectorKind names how a HistoryEvent picks a past command.
type HistorySelectorKind int

const (
	HistoryByIndexFromStart HistorySelectorKind = iota
	HistoryByIndexFromEnd
	HistoryContainingSubstring
	HistoryStartingSubstring
)

// HistoryEvent selects a past command by HistorySelectorKind/Selector, then
// re-parses the selected text and yields a word sub-range (WordFrom/WordTo,
// both -1 meaning "whole command").
type HistoryEvent struct {
	Base
	SelectorKind HistorySelectorKind
	Selector     string // index as text, or substring, depending on Kind
	WordFrom     int
	WordTo       int
}

// VariableDecl is one `name = value` pair in a VariableDeclarations node.
type VariableDecl struct {
	Name  string
	Value Node
}

// VariableDeclarations is a command-prefix list of assignments with no
// following command word (POSIX's bare `NAME=value` form).
type VariableDeclarations struct {
	Base
	Decls []VariableDecl
}

// Comment is a `#`-introduced line comment; it evaluates to nothing and
// exists only for highlighting and round-tripping.
type Comment struct {
	Base
	Text string
}

// SyntaxError records a parse- or eval-time structural error. A node is
// syntax-erroneous iff it transitively refers to a non-cleared SyntaxError
// (§3.2); SyntaxError itself is also a Node so it can be attached as a
// child of another node's Base, or appear standalone as the result of a
// failed parse.
type SyntaxError struct {
	Base
	Message string
}

// SyntheticNode wraps Wrapped to mark it as constructed by a transform
// (alias expansion, a POSIX desugaring, an immediate function's
// replacement) rather than appearing verbatim in source. Its own Position
// is zero (synthetic).
type SyntheticNode struct {
	Base
	Wrapped Node
}
