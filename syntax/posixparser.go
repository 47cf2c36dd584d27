// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// The POSIX parser (§4.4): a token-driven recursive-descent parser that
// consumes the Token stream Tokenize produces and desugars POSIX-only
// constructs (while/until, `case`, assignment-prefixed simple commands,
// parameter expansion operators) down into the same closed node set the
// native parser builds, so interp never has to know which front end
// produced a given tree.
package syntax

import (
	"strconv"
	"strings"
)

// maxPosixDepth mirrors maxNativeDepth for the token-driven grammar.
const maxPosixDepth = 400

// PosixParser walks a pre-tokenized POSIX program.
type PosixParser struct {
	toks  []Token
	i     int
	depth int
}

// ParsePosix tokenizes and parses a whole POSIX program.
func ParsePosix(src string) (Node, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &PosixParser{toks: toks}
	result := p.parseProgram()
	resolveAllHeredocs(result, src)
	return result, nil
}

// resolveAllHeredocs fills in every Heredoc node's Contents by scanning
// src for its terminating key line, in source order (per §9, heredoc
// bodies are collected from the line immediately after the one the
// redirect operator appeared on, even though that line may itself still
// be mid-pipeline in the grammar).
func resolveAllHeredocs(n Node, src string) {
	offset := 0
	var walk func(Node)
	walk = func(m Node) {
		if m == nil {
			return
		}
		if h, ok := m.(*Heredoc); ok && h.Contents == nil {
			start := h.Pos().EndOffset
			if nl := strings.IndexByte(src[start:], '\n'); nl >= 0 {
				start += nl + 1
			}
			if start > offset {
				offset = start
			}
			offset = ResolveHeredocs(src, offset, h)
			return
		}
		for _, c := range Children(m) {
			walk(c)
		}
	}
	walk(n)
}

func (p *PosixParser) cur() Token {
	if p.i >= len(p.toks) {
		return Token{Type: TokEOF}
	}
	return p.toks[p.i]
}

func (p *PosixParser) at(n int) Token {
	if p.i+n >= len(p.toks) {
		return Token{Type: TokEOF}
	}
	return p.toks[p.i+n]
}

func (p *PosixParser) advance() Token {
	t := p.cur()
	if p.i < len(p.toks) {
		p.i++
	}
	return t
}

func (p *PosixParser) skipNewlines() {
	for p.cur().Type == TokNewline {
		p.advance()
	}
}

func (p *PosixParser) skipTerminators() {
	for p.cur().Type == TokNewline || p.cur().Type == TokSemi {
		p.advance()
	}
}

func (p *PosixParser) isReserved(word string) bool {
	return p.cur().Type == TokReserved && p.cur().Value == word
}

func (p *PosixParser) eatReserved(word string) bool {
	if p.isReserved(word) {
		p.advance()
		return true
	}
	return false
}

func (p *PosixParser) posFrom(start Token) Position {
	end := start.Pos
	if p.i > 0 {
		end = end.WithEnd(p.toks[p.i-1].Pos)
	}
	return end
}

func (p *PosixParser) enter() bool {
	p.depth++
	return p.depth <= maxPosixDepth
}
func (p *PosixParser) leave() { p.depth-- }

func (p *PosixParser) errAt(start Token, msg string) Node {
	return &SyntaxError{Base: newBase(p.posFrom(start)), Message: msg}
}

// parseProgram implements `program := list EOF`.
func (p *PosixParser) parseProgram() Node {
	p.skipTerminators()
	if p.cur().Type == TokEOF {
		return &StringLiteral{Base: newBase(synthetic())}
	}
	return p.parseList()
}

// parseList implements `list := and_or (separator and_or)*`, where a `&`
// separator backgrounds the preceding and_or and a `;`/newline just
// sequences.
func (p *PosixParser) parseList() Node {
	left := p.parseAndOr()
	for {
		switch p.cur().Type {
		case TokAmp:
			p.advance()
			left = &Background{Base: newBase(left.Pos()), Command: left}
			p.skipNewlines()
			if p.atListEnd() {
				return left
			}
		case TokSemi:
			p.advance()
			p.skipNewlines()
			if p.atListEnd() {
				return left
			}
			right := p.parseAndOr()
			left = &Sequence{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
		case TokNewline:
			p.skipNewlines()
			if p.atListEnd() {
				return left
			}
			right := p.parseAndOr()
			left = &Sequence{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
		default:
			return left
		}
	}
}

func (p *PosixParser) atListEnd() bool {
	switch p.cur().Type {
	case TokEOF, TokRparen:
		return true
	case TokReserved:
		switch p.cur().Value {
		case "then", "else", "elif", "fi", "do", "done", "esac", "}":
			return true
		}
	}
	return false
}

// parseAndOr implements `and_or := pipeline (("&&"|"||") newline* pipeline)*`.
func (p *PosixParser) parseAndOr() Node {
	left := p.parsePipeline()
	for {
		switch p.cur().Type {
		case TokAndAnd:
			p.advance()
			p.skipNewlines()
			right := p.parsePipeline()
			left = &And{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
		case TokOrOr:
			p.advance()
			p.skipNewlines()
			right := p.parsePipeline()
			left = &Or{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
		default:
			return left
		}
	}
}

// parsePipeline implements `pipeline := ["!"] command ("|" newline* command)*`.
// A leading "!" negates the whole pipeline's exit status; that's
// represented by wrapping the pipeline in a "negate_status"
// ImmediateExpression, whose status gets flipped at eval time.
func (p *PosixParser) parsePipeline() Node {
	negate := false
	if p.cur().Type == TokReserved && p.cur().Value == "!" {
		p.advance()
		negate = true
	}
	left := p.parseCommand()
	for p.cur().Type == TokPipe {
		p.advance()
		p.skipNewlines()
		right := p.parseCommand()
		left = &Pipe{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
	}
	if negate {
		left = &ImmediateExpression{Base: newBase(left.Pos()), Name: "negate_status", Arguments: []Node{left}}
	}
	return left
}

// parseCommand implements `command := simple_command | compound_command
// redirect_list? | function_definition`.
func (p *PosixParser) parseCommand() Node {
	if !p.enter() {
		p.leave()
		return p.errAt(p.cur(), "maximum nesting depth exceeded")
	}
	defer p.leave()

	if p.cur().Type == TokReserved {
		switch p.cur().Value {
		case "{":
			return p.withTrailingRedirects(p.parseBraceGroup())
		case "(":
			return p.withTrailingRedirects(p.parseSubshell())
		case "if":
			return p.withTrailingRedirects(p.parseIf())
		case "while":
			return p.withTrailingRedirects(p.parseWhile(false))
		case "until":
			return p.withTrailingRedirects(p.parseWhile(true))
		case "for":
			return p.withTrailingRedirects(p.parseFor())
		case "case":
			return p.withTrailingRedirects(p.parseCase())
		}
	}
	if p.cur().Type == TokLparen {
		return p.withTrailingRedirects(p.parseSubshellParen())
	}
	if fn, ok := p.tryParseFunctionDefinition(); ok {
		return fn
	}
	return p.parseSimpleCommand()
}

// withTrailingRedirects absorbs any redirections following a compound
// command, wrapping cmd in the appropriate Redirection nodes.
func (p *PosixParser) withTrailingRedirects(cmd Node) Node {
	for {
		redir, ok := p.tryParseOneRedirect(cmd)
		if !ok {
			return cmd
		}
		cmd = redir
	}
}

func (p *PosixParser) parseBraceGroup() Node {
	p.advance() // "{"
	p.skipTerminators()
	body := p.parseList()
	p.skipTerminators()
	p.eatReserved("}")
	return body
}

func (p *PosixParser) parseSubshell() Node {
	return p.parseSubshellParen()
}

func (p *PosixParser) parseSubshellParen() Node {
	start := p.cur()
	p.advance() // "("
	p.skipNewlines()
	body := p.parseList()
	p.skipNewlines()
	if p.cur().Type == TokRparen {
		p.advance()
	}
	return &Subshell{Base: newBase(p.posFrom(start)), Block: body}
}

func (p *PosixParser) parseIf() Node {
	start := p.cur()
	p.advance() // "if"
	cond := p.parseList()
	p.skipTerminators()
	p.eatReserved("then")
	p.skipTerminators()
	trueBranch := p.parseList()
	p.skipTerminators()
	var falseBranch Node
	switch {
	case p.isReserved("elif"):
		falseBranch = p.parseIf()
		return &IfCond{Base: newBase(p.posFrom(start)),
			Cond: &Execute{Base: newBase(cond.Pos()), Command: cond}, True: trueBranch, False: falseBranch}
	case p.eatReserved("else"):
		p.skipTerminators()
		falseBranch = p.parseList()
		p.skipTerminators()
	}
	p.eatReserved("fi")
	return &IfCond{Base: newBase(p.posFrom(start)),
		Cond: &Execute{Base: newBase(cond.Pos()), Command: cond}, True: trueBranch, False: falseBranch}
}

// parseWhile desugars both `while` and `until` to ForLoop with a nil
// Iterated (the infinite form), wrapping Body with a leading conditional
// break, per §9's while/until-to-loop rewrite.
func (p *PosixParser) parseWhile(until bool) Node {
	start := p.cur()
	p.advance() // "while"/"until"
	cond := p.parseList()
	p.skipTerminators()
	p.eatReserved("do")
	p.skipTerminators()
	body := p.parseList()
	p.skipTerminators()
	p.eatReserved("done")

	execCond := &Execute{Base: newBase(cond.Pos()), Command: cond}
	guard := Node(execCond)
	if until {
		guard = &ImmediateExpression{Base: newBase(cond.Pos()), Name: "negate_status", Arguments: []Node{execCond}}
	}
	breakIf := &IfCond{
		Base: newBase(cond.Pos()),
		Cond: &ImmediateExpression{Base: newBase(cond.Pos()), Name: "negate_status", Arguments: []Node{guard}},
		True: &ContinuationControl{Base: newBase(cond.Pos()), Kind: ContinuationBreak},
	}
	loopBody := &Sequence{Base: newBase(p.posFrom(start)), Left: breakIf, Right: body}
	return &ForLoop{Base: newBase(p.posFrom(start)), Body: loopBody}
}

// parseFor desugars both the list form (`for NAME in w1 w2; do ... done`)
// and the shell-parameter form (`for NAME; do ... done`, equivalent to
// `for NAME in "$@"`) into a ForLoop.
func (p *PosixParser) parseFor() Node {
	start := p.cur()
	p.advance() // "for"
	name := p.cur().Value
	p.advance() // TokVariableName
	p.skipNewlines()

	var iterated Node
	if p.eatReserved("in") {
		var items []Node
		for p.cur().Type == TokWord || p.cur().Type == TokAssignmentWord {
			items = append(items, p.parseWordToken(p.advance()))
		}
		if len(items) == 0 {
			iterated = &ListConcatenate{Base: newBase(synthetic())}
		} else {
			iterated = &ListConcatenate{Base: newBase(start.Pos), Items: items}
		}
		p.skipTerminators()
	} else {
		iterated = &SpecialVariable{Base: newBase(start.Pos), Char: '@'}
		p.skipTerminators()
	}
	p.eatReserved("do")
	p.skipTerminators()
	body := p.parseList()
	p.skipTerminators()
	p.eatReserved("done")
	return &ForLoop{Base: newBase(p.posFrom(start)), Variable: name, Iterated: iterated, Body: body}
}

// parseCase desugars `case WORD in pat1|pat2) body;; ... esac` into a
// MatchExpr over glob patterns.
func (p *PosixParser) parseCase() Node {
	start := p.cur()
	p.advance() // "case"
	subject := p.parseWordToken(p.advance())
	p.skipNewlines()
	p.eatReserved("in")
	p.skipNewlines()

	var entries []MatchEntry
	for !p.isReserved("esac") && p.cur().Type != TokEOF {
		if p.cur().Type == TokLparen {
			p.advance()
		}
		var pats []Node
		for {
			pats = append(pats, p.parseWordToken(p.advance()))
			if p.cur().Type == TokPipe {
				p.advance()
				continue
			}
			break
		}
		if p.cur().Type == TokRparen {
			p.advance()
		}
		p.skipTerminators()
		var body Node
		if !p.isReserved("esac") && p.cur().Type != TokDSemi {
			body = p.parseList()
		} else {
			body = &StringLiteral{Base: newBase(synthetic())}
		}
		entries = append(entries, MatchEntry{Patterns: pats, Kind: MatchGlob, Body: body})
		p.skipTerminators()
		if p.cur().Type == TokDSemi {
			p.advance()
		}
		p.skipTerminators()
	}
	p.eatReserved("esac")
	return &MatchExpr{Base: newBase(p.posFrom(start)), Subject: subject, Entries: entries}
}

// tryParseFunctionDefinition recognizes `name ( ) compound_command` (the
// TokVariableName retagging from pass 8 already confirms the "name ( )"
// shape) and the `function name compound_command` spelling.
func (p *PosixParser) tryParseFunctionDefinition() (Node, bool) {
	start := p.cur()
	if p.eatReserved("function") {
		name := p.advance().Value
		if p.cur().Type == TokLparen && p.at(1).Type == TokRparen {
			p.advance()
			p.advance()
		}
		p.skipNewlines()
		body := p.parseCommand()
		return &FunctionDeclaration{Base: newBase(p.posFrom(start)), Name: name, Body: body}, true
	}
	if p.cur().Type == TokVariableName && p.at(1).Type == TokLparen && p.at(2).Type == TokRparen {
		name := p.advance().Value
		p.advance() // (
		p.advance() // )
		p.skipNewlines()
		body := p.parseCommand()
		return &FunctionDeclaration{Base: newBase(p.posFrom(start)), Name: name, Body: body}, true
	}
	return nil, false
}

// parseSimpleCommand implements `simple_command := (prefix)* word*
// redirect*`, where prefix is an assignment or a redirection. An
// assignment-only command with no following command word becomes
// VariableDeclarations; one followed by a command word is desugared into
// `run_with_env NAME=val... -- cmd argv...` per §9.
func (p *PosixParser) parseSimpleCommand() Node {
	start := p.cur()
	var decls []VariableDecl
	var redirs []func(Node) Node

	for {
		switch p.cur().Type {
		case TokAssignmentWord:
			t := p.advance()
			eq := strings.IndexByte(t.Value, '=')
			decls = append(decls, VariableDecl{Name: t.Value[:eq], Value: p.parseAssignmentValue(t, t.Value[eq+1:])})
			continue
		case TokListAssignmentWord:
			t := p.advance()
			eq := strings.IndexByte(t.Value, '=')
			name := t.Value[:eq]
			var items []Node
			if p.cur().Type == TokLparen {
				p.advance()
				for p.cur().Type != TokRparen && p.cur().Type != TokEOF {
					items = append(items, p.parseWordToken(p.advance()))
				}
				if p.cur().Type == TokRparen {
					p.advance()
				}
			}
			decls = append(decls, VariableDecl{Name: name, Value: &ListConcatenate{Base: newBase(t.Pos), Items: items}})
			continue
		}
		if ctor, ok := p.tryParseOneRedirect(); ok {
			redirs = append(redirs, ctor)
			continue
		}
		break
	}

	var argv []Node
	for p.cur().Type == TokWord || p.cur().Type == TokIoNumber {
		argv = append(argv, p.parseWordToken(p.advance()))
		for {
			if ctor, ok := p.tryParseOneRedirect(); ok {
				redirs = append(redirs, ctor)
				continue
			}
			break
		}
	}

	var command Node
	if len(argv) > 0 {
		command = &CastToCommand{Base: newBase(p.posFrom(start)), Inner: &ListConcatenate{Base: newBase(p.posFrom(start)), Items: argv}}
	}

	if len(decls) > 0 && command != nil {
		// run_with_env desugaring (§9): the assignment prefix only binds
		// for the duration of this one command. Each decl keeps its
		// original (possibly non-trivial) value node, wrapped singly so
		// run_with_env can re-resolve it at eval time.
		args := make([]Node, 0, len(decls)+1)
		for _, d := range decls {
			args = append(args, &VariableDeclarations{Base: newBase(d.Value.Pos()), Decls: []VariableDecl{d}})
		}
		args = append(args, command)
		command = &ImmediateExpression{Base: newBase(p.posFrom(start)), Name: "run_with_env", Arguments: args}
	} else if len(decls) > 0 {
		command = &VariableDeclarations{Base: newBase(p.posFrom(start)), Decls: decls}
	} else if command == nil {
		command = &StringLiteral{Base: newBase(synthetic())}
	}

	for _, ctor := range redirs {
		command = ctor(command)
	}
	return command
}

// tryParseOneRedirect recognizes one `[n]<word`, `[n]>word`, `[n]>>word`,
// `[n]<>word`, `[n]<&word`, `[n]>&word`, or a heredoc operator, returning
// a constructor that wraps the eventual command/subject node.
func (p *PosixParser) tryParseOneRedirect() (func(Node) Node, bool) {
	fd := -1
	start := p.cur()
	if p.cur().Type == TokIoNumber {
		n, _ := strconv.Atoi(p.cur().Value)
		save := p.i
		p.advance()
		if isRedirTok(p.cur().Type) {
			fd = n
		} else {
			p.i = save
		}
	}
	t := p.cur()
	pos := func() Position { return p.posFrom(start) }
	switch t.Type {
	case TokLss:
		p.advance()
		path := p.parseWordToken(p.advance())
		f := fd
		if f < 0 {
			f = 0
		}
		return func(subject Node) Node {
			return &ReadRedirection{Base: newBase(pos()), FD: f, Path: path, Subject: subject}
		}, true
	case TokGtr:
		p.advance()
		path := p.parseWordToken(p.advance())
		f := fd
		if f < 0 {
			f = 1
		}
		return func(subject Node) Node {
			return &WriteRedirection{Base: newBase(pos()), FD: f, Path: path, Subject: subject}
		}, true
	case TokShr:
		p.advance()
		path := p.parseWordToken(p.advance())
		f := fd
		if f < 0 {
			f = 1
		}
		return func(subject Node) Node {
			return &WriteAppendRedirection{Base: newBase(pos()), FD: f, Path: path, Subject: subject}
		}, true
	case TokRdrInOut:
		p.advance()
		path := p.parseWordToken(p.advance())
		f := fd
		if f < 0 {
			f = 0
		}
		return func(subject Node) Node {
			return &ReadWriteRedirection{Base: newBase(pos()), FD: f, Path: path, Subject: subject}
		}, true
	case TokDplIn, TokDplOut:
		p.advance()
		w := p.cur()
		if w.Value == "-" {
			p.advance()
			newFD := 0
			if t.Type == TokDplOut {
				newFD = 1
			}
			if fd >= 0 {
				newFD = fd
			}
			return func(subject Node) Node {
				return &CloseFdRedirection{Base: newBase(pos()), FD: newFD, Subject: subject}
			}, true
		}
		p.advance()
		oldFD, _ := strconv.Atoi(w.Value)
		newFD := 0
		if t.Type == TokDplOut {
			newFD = 1
		}
		if fd >= 0 {
			newFD = fd
		}
		return func(subject Node) Node {
			return &Fd2FdRedirection{Base: newBase(pos()), OldFD: newFD, NewFD: oldFD, Subject: subject}
		}, true
	case TokRdrAll:
		p.advance()
		path := p.parseWordToken(p.advance())
		return func(subject Node) Node {
			return &WriteRedirection{Base: newBase(pos()), FD: 1, Path: path, Subject: subject}
		}, true
	case TokDHeredoc, TokDeindentHeredoc, TokShl:
		p.advance()
		keyTok := p.advance()
		interpolate := !strings.Contains(keyTok.Value, "'") && !strings.Contains(keyTok.Value, `"`)
		key := strings.Trim(keyTok.Value, `'"`)
		deindent := t.Type != TokShl
		// Path holds the Heredoc placeholder itself (resolved in place by
		// parse_heredoc_entries, §9); the engine recognizes a *Heredoc Path
		// and reads its Contents instead of opening a file.
		h := &Heredoc{Base: newBase(pos()), Key: key, Interpolate: interpolate, Deindent: deindent}
		return func(subject Node) Node {
			return &ReadRedirection{Base: newBase(pos()), FD: 0, Path: h, Subject: subject}
		}, true
	}
	return nil, false
}

func isRedirTok(tt TokenType) bool {
	switch tt {
	case TokLss, TokGtr, TokShl, TokShr, TokDHeredoc, TokDeindentHeredoc, TokRdrInOut, TokDplIn, TokDplOut, TokRdrAll:
		return true
	}
	return false
}

// parseAssignmentValue parses the right-hand side of NAME=value as a
// word, reusing parseWordToken's interpolation logic but over a raw string
// rather than a full Token (since the assignment's value has already been
// split from its token by scanWord).
func (p *PosixParser) parseAssignmentValue(base Token, raw string) Node {
	tok := Token{Type: TokWord, Value: raw, Pos: base.Pos}
	return p.parseWordToken(tok)
}

// parseWordToken turns one lexer Token (with its recorded Expansions) into
// the corresponding syntax tree: literal runs become StringLiteral/
// BarewordLiteral/Glob, and each Expansion splices in a SimpleVariable,
// SpecialVariable, ImmediateExpression, or Execute at its recorded byte
// range, all glued together with Juxtaposition.
func (p *PosixParser) parseWordToken(t Token) Node {
	if len(t.Expans) == 0 {
		if strings.ContainsAny(t.Value, "*?[") {
			return &Glob{Base: newBase(t.Pos), Pattern: t.Value}
		}
		if strings.HasPrefix(t.Value, "~") {
			return &Tilde{Base: newBase(t.Pos), Username: t.Value[1:]}
		}
		return &BarewordLiteral{Base: newBase(t.Pos), Text: t.Value}
	}
	var parts []Node
	pos := 0
	for _, e := range t.Expans {
		if e.Start > pos {
			parts = append(parts, &BarewordLiteral{Base: newBase(t.Pos), Text: t.Value[pos:e.Start]})
		}
		parts = append(parts, p.buildExpansionNode(t, e))
		pos = e.End
	}
	if pos < len(t.Value) {
		parts = append(parts, &BarewordLiteral{Base: newBase(t.Pos), Text: t.Value[pos:]})
	}
	if len(parts) == 1 {
		return parts[0]
	}
	result := parts[0]
	for _, n := range parts[1:] {
		result = &Juxtaposition{Base: newBase(result.Pos().WithEnd(n.Pos())), Left: result, Right: n, Mode: StringExpand}
	}
	return result
}

// buildExpansionNode maps one resolved Expansion to a Node, including the
// table in §4.4 translating parameter operators and `$*`/`$((...))` into
// immediate-function calls.
func (p *PosixParser) buildExpansionNode(t Token, e Expansion) Node {
	base := newBase(t.Pos)
	switch e.Kind {
	case ExpCommandSubst:
		inner := (&PosixParser{toks: e.SourceSub}).parseProgram()
		return &Execute{Base: base, Command: inner, CaptureStdout: true}
	case ExpArithmetic:
		raw := t.Value[e.Start:e.End]
		return &ImmediateExpression{Base: base, Name: "math",
			Arguments: []Node{&StringLiteral{Base: newBase(synthetic()), Text: raw}}}
	case ExpParameter:
		return p.buildParameterExpansion(base, e)
	}
	return &BarewordLiteral{Base: base, Text: t.Value[e.Start:e.End]}
}

func (p *PosixParser) buildParameterExpansion(base Base, e Expansion) Node {
	if e.ParamOp == ParamLength {
		return &ImmediateExpression{Base: base, Name: "length_of_variable",
			Arguments: []Node{&StringLiteral{Base: newBase(synthetic()), Text: e.ParamName}}}
	}
	nameNode := paramNameToNode(base, e.ParamName)
	wordNode := func() Node { return parseOperatorWord(e.ParamWord, base.Pos()) }
	longest := func() Node { return &BarewordLiteral{Base: newBase(base.Pos()), Text: "longest"} }
	switch e.ParamOp {
	// §4.4's table keeps the colon ("unset-or-empty") and bare
	// ("unset-only") spellings of each operator as distinct immediate
	// names, rather than folding them into one name with a hidden flag.
	case ParamDefaultUnset:
		return &ImmediateExpression{Base: base, Name: "value_or_default", Arguments: []Node{nameNode, wordNode()}}
	case ParamDefault:
		return &ImmediateExpression{Base: base, Name: "defined_value_or_default", Arguments: []Node{nameNode, wordNode()}}
	case ParamAssignUnset:
		return &ImmediateExpression{Base: base, Name: "assign_default", Arguments: []Node{nameNode, wordNode()}}
	case ParamAssign:
		return &ImmediateExpression{Base: base, Name: "assign_defined_default", Arguments: []Node{nameNode, wordNode()}}
	case ParamErrorUnset:
		return &ImmediateExpression{Base: base, Name: "error_if_empty", Arguments: []Node{nameNode, wordNode()}}
	case ParamError:
		return &ImmediateExpression{Base: base, Name: "error_if_unset", Arguments: []Node{nameNode, wordNode()}}
	case ParamAltUnset:
		return &ImmediateExpression{Base: base, Name: "null_or_alternative", Arguments: []Node{nameNode, wordNode()}}
	case ParamAlt:
		return &ImmediateExpression{Base: base, Name: "null_if_unset_or_alternative", Arguments: []Node{nameNode, wordNode()}}
	case ParamRemovePrefix:
		return &ImmediateExpression{Base: base, Name: "remove_prefix", Arguments: []Node{wordNode(), nameNode}}
	case ParamRemovePrefixLongest:
		return &ImmediateExpression{Base: base, Name: "remove_prefix", Arguments: []Node{longest(), wordNode(), nameNode}}
	case ParamRemoveSuffix:
		return &ImmediateExpression{Base: base, Name: "remove_suffix", Arguments: []Node{wordNode(), nameNode}}
	case ParamRemoveSuffixLongest:
		return &ImmediateExpression{Base: base, Name: "remove_suffix", Arguments: []Node{longest(), wordNode(), nameNode}}
	}
	return nameNode
}

// parseOperatorWord builds a Node for a `${name OP word}` operator's word
// text. The word was captured as a flat span by the lexer (scanBalanced
// doesn't recurse into nested "$"), so this does its own light scan for
// "$name"/"${name}"/special-char substitutions and leaves everything else
// as literal text, joined the way a DoubleQuotedString's Parts are.
func parseOperatorWord(raw string, pos Position) Node {
	if raw == "" {
		return &StringLiteral{Base: newBase(pos), Enclosure: EnclosureDouble}
	}
	var parts []Node
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &StringLiteral{Base: newBase(pos), Text: lit.String(), Enclosure: EnclosureDouble})
			lit.Reset()
		}
	}
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c != '$' || i+1 >= len(raw) {
			lit.WriteByte(c)
			i++
			continue
		}
		if raw[i+1] == '{' {
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			name := raw[i+2 : i+2+end]
			flush()
			parts = append(parts, paramNameToNode(newBase(pos), name))
			i = i + 2 + end + 1
			continue
		}
		if isSpecialVarChar(raw[i+1]) || isDigit(raw[i+1]) {
			flush()
			parts = append(parts, paramNameToNode(newBase(pos), raw[i+1:i+2]))
			i += 2
			continue
		}
		j := i + 1
		for j < len(raw) && isIdentByte(raw[j]) {
			j++
		}
		if j == i+1 {
			lit.WriteByte(c)
			i++
			continue
		}
		flush()
		parts = append(parts, paramNameToNode(newBase(pos), raw[i+1:j]))
		i = j
	}
	flush()
	switch len(parts) {
	case 0:
		return &StringLiteral{Base: newBase(pos), Enclosure: EnclosureDouble}
	case 1:
		return parts[0]
	default:
		return &DoubleQuotedString{Base: newBase(pos), Parts: parts}
	}
}

func paramNameToNode(base Base, name string) Node {
	if name == "" {
		return &StringLiteral{Base: base}
	}
	if len(name) == 1 && isSpecialVarChar(name[0]) {
		return &SpecialVariable{Base: base, Char: name[0]}
	}
	if isDigit(name[0]) {
		return &SpecialVariable{Base: base, Char: name[0]}
	}
	return &SimpleVariable{Base: base, Name: name}
}
