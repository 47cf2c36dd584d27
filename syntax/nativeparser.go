// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// The native recursive-descent parser (§4.3). Unlike the POSIX parser,
// this one drives straight off the source text: there is no separate
// lexer pass, because the native grammar's brace-delimited blocks and
// bareword/variable juxtaposition rules are easiest to recognize
// character-by-character, the same way the teacher's own hand-written
// shell-word scanner inlines lexing into parsing for Word bodies.
package syntax

import (
	"strconv"
	"strings"
)

// maxNativeDepth bounds recursive-descent nesting so a pathological input
// (thousands of nested parens) yields a SyntaxError node instead of a
// stack overflow, per §4.3's depth guard.
const maxNativeDepth = 400

// NativeParser implements the recursive-descent grammar in §4.3.
type NativeParser struct {
	src   string
	off   int
	line  int
	col   int
	depth int
}

// ParseNative parses a whole native-grammar program. Heredoc bodies are
// resolved in a second pass over the finished tree, since the key line
// that terminates a heredoc may be many tokens past the point the
// redirection itself was parsed (§9, "Heredoc late binding").
func ParseNative(src string) (Node, error) {
	p := &NativeParser{src: src, line: 1, col: 1}
	result := p.parseToplevel()
	resolveAllHeredocs(result, src)
	return result, nil
}

func (p *NativeParser) here() LineCol { return LineCol{Line: p.line, Col: p.col} }

func (p *NativeParser) pos(startOff int, startLC LineCol) Position {
	return Position{StartOffset: startOff, EndOffset: p.off, StartLine: startLC, EndLine: p.here()}
}

func (p *NativeParser) eof() bool { return p.off >= len(p.src) }

func (p *NativeParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.off]
}

func (p *NativeParser) peekAt(n int) byte {
	if p.off+n >= len(p.src) {
		return 0
	}
	return p.src[p.off+n]
}

func (p *NativeParser) advance() byte {
	c := p.src[p.off]
	p.off++
	if c == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return c
}

func (p *NativeParser) skipSpace(crossNewlines bool) {
	for !p.eof() {
		c := p.peek()
		if c == ' ' || c == '\t' {
			p.advance()
			continue
		}
		if crossNewlines && c == '\n' {
			p.advance()
			continue
		}
		if c == '#' {
			for !p.eof() && p.peek() != '\n' {
				p.advance()
			}
			continue
		}
		break
	}
}

func (p *NativeParser) errNode(startOff int, startLC LineCol, msg string) *SyntaxError {
	return &SyntaxError{Base: newBase(p.pos(startOff, startLC)), Message: msg}
}

func (p *NativeParser) enter() bool {
	p.depth++
	return p.depth <= maxNativeDepth
}
func (p *NativeParser) leave() { p.depth-- }

// parseToplevel repeatedly parses sequences until EOF.
func (p *NativeParser) parseToplevel() Node {
	var result Node
	for {
		p.skipSpace(true)
		for !p.eof() && (p.peek() == ';' || p.peek() == '\n') {
			p.advance()
			p.skipSpace(true)
		}
		if p.eof() || p.peek() == '}' {
			break
		}
		stmtStart := p.off
		stmt := p.parseSequenceEntry()
		if result == nil {
			result = stmt
		} else {
			result = &Sequence{Base: newBase(result.Pos().WithEnd(stmt.Pos())), Left: result, Right: stmt}
		}
		p.skipSpace(false)
		if !p.eof() && p.peek() == '&' && p.peekAt(1) != '&' {
			p.advance()
			bg := result
			result = &Background{Base: newBase(bg.Pos()), Command: bg}
		}
		if p.off == stmtStart {
			// A stray character that can't start any statement (e.g. an
			// unmatched ')') left an error node in place without consuming
			// anything; force progress so recovery can't spin forever on it.
			p.advance()
		}
	}
	if result == nil {
		return &StringLiteral{Base: newBase(synthetic()), Text: "", Enclosure: EnclosureNone}
	}
	return result
}

// parseSequenceEntry parses one statement: an optional variable-decl
// prefix, then a function declaration or an or-logical-sequence.
func (p *NativeParser) parseSequenceEntry() Node {
	startOff, startLC := p.off, p.here()
	if decls, ok := p.tryParseVariableDecls(); ok {
		return decls
	}
	if fn, ok := p.tryParseFunctionDecl(startOff, startLC); ok {
		return fn
	}
	return p.parseOrLogical()
}

func (p *NativeParser) tryParseVariableDecls() (Node, bool) {
	startOff, startLC := p.off, p.here()
	save := *p
	if !p.matchKeyword("set") {
		*p = save
		return nil, false
	}
	p.skipSpace(false)
	var decls []VariableDecl
	for {
		name := p.scanIdentifier()
		if name == "" {
			*p = save
			return nil, false
		}
		p.skipSpace(false)
		if p.peek() != '=' {
			*p = save
			return nil, false
		}
		p.advance()
		p.skipSpace(false)
		valStart := *p
		val := p.parseStringComposite()
		if p.off > valStart.off && p.src[p.off-1] == ',' {
			// A trailing comma separates this declaration from the next one.
			q := valStart
			q.src = p.src[:p.off-1]
			val = q.parseStringComposite()
			q.src = p.src
			*p = q
		}
		decls = append(decls, VariableDecl{Name: name, Value: val})
		p.skipSpace(false)
		if p.peek() == ',' {
			p.advance()
			p.skipSpace(false)
			continue
		}
		break
	}
	return &VariableDeclarations{Base: newBase(p.pos(startOff, startLC)), Decls: decls}, true
}

func (p *NativeParser) matchKeyword(kw string) bool {
	if strings.HasPrefix(p.src[p.off:], kw) {
		end := p.off + len(kw)
		if end >= len(p.src) || !isIdentByte(p.src[end]) {
			for range kw {
				p.advance()
			}
			return true
		}
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *NativeParser) scanIdentifier() string {
	start := p.off
	if p.eof() || !(isAlpha(p.peek()) || p.peek() == '_') {
		return ""
	}
	for !p.eof() && isIdentByte(p.peek()) {
		p.advance()
	}
	return p.src[start:p.off]
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func (p *NativeParser) tryParseFunctionDecl(startOff int, startLC LineCol) (Node, bool) {
	save := *p
	name := p.scanIdentifier()
	if name == "" {
		*p = save
		return nil, false
	}
	p.skipSpace(false)
	if p.peek() != '(' {
		*p = save
		return nil, false
	}
	p.advance()
	var args []string
	p.skipSpace(false)
	for p.peek() != ')' {
		a := p.scanIdentifier()
		if a == "" {
			*p = save
			return nil, false
		}
		args = append(args, a)
		p.skipSpace(false)
		if p.peek() == ',' {
			p.advance()
			p.skipSpace(false)
		}
	}
	p.advance() // ')'
	p.skipSpace(false)
	if p.peek() != '{' {
		*p = save
		return nil, false
	}
	body := p.parseBlock()
	return &FunctionDeclaration{Base: newBase(p.pos(startOff, startLC)), Name: name, ArgNames: args, Body: body}, true
}

func (p *NativeParser) parseOrLogical() Node {
	left := p.parseAndLogical()
	for {
		p.skipSpace(false)
		if strings.HasPrefix(p.src[p.off:], "||") {
			p.advance()
			p.advance()
			p.skipSpace(true)
			right := p.parseAndLogical()
			left = &Or{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
			continue
		}
		break
	}
	return left
}

func (p *NativeParser) parseAndLogical() Node {
	left := p.parsePipeline()
	for {
		p.skipSpace(false)
		if strings.HasPrefix(p.src[p.off:], "&&") {
			p.advance()
			p.advance()
			p.skipSpace(true)
			right := p.parsePipeline()
			left = &And{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right}
			continue
		}
		break
	}
	return left
}

func (p *NativeParser) parsePipeline() Node {
	if n, ok := p.tryParseControl(); ok {
		return n
	}
	left := p.parseCommand()
	p.skipSpace(false)
	if p.peek() == '|' && p.peekAt(1) != '|' {
		stderrToo := false
		p.advance()
		if p.peek() == '&' {
			stderrToo = true
			p.advance()
		}
		p.skipSpace(true)
		right := p.parsePipeline()
		return &Pipe{Base: newBase(left.Pos().WithEnd(right.Pos())), Left: left, Right: right, StderrToo: stderrToo}
	}
	return left
}

func (p *NativeParser) tryParseControl() (Node, bool) {
	startOff, startLC := p.off, p.here()
	save := *p
	switch {
	case p.matchKeyword("break"):
		return &ContinuationControl{Base: newBase(p.pos(startOff, startLC)), Kind: ContinuationBreak}, true
	case p.matchKeyword("continue"):
		return &ContinuationControl{Base: newBase(p.pos(startOff, startLC)), Kind: ContinuationContinue}, true
	case p.matchKeyword("for"):
		return p.finishForLoop(startOff, startLC), true
	case p.matchKeyword("loop"):
		p.skipSpace(false)
		body := p.parseBlock()
		return &ForLoop{Base: newBase(p.pos(startOff, startLC)), Body: body}, true
	case p.matchKeyword("if"):
		return p.finishIf(startOff, startLC), true
	case p.matchKeyword("match"):
		return p.finishMatch(startOff, startLC), true
	case p.peek() == '(':
		p.advance()
		p.skipSpace(true)
		inner := p.parseToplevel()
		p.skipSpace(true)
		if p.peek() == ')' {
			p.advance()
		}
		return &Subshell{Base: newBase(p.pos(startOff, startLC)), Block: inner}, true
	}
	*p = save
	return nil, false
}

// finishForLoop parses `for VALUE[, INDEX] in LIST { BODY }`: the first
// name bound is always the element value, the optional second name after
// a comma is the zero-based index.
func (p *NativeParser) finishForLoop(startOff int, startLC LineCol) Node {
	p.skipSpace(false)
	variable := p.scanIdentifier()
	indexVar := ""
	p.skipSpace(false)
	if p.peek() == ',' {
		p.advance()
		p.skipSpace(false)
		indexVar = p.scanIdentifier()
	}
	p.skipSpace(false)
	p.matchKeyword("in")
	p.skipSpace(false)
	iterated := p.parseListExpression()
	p.skipSpace(false)
	body := p.parseBlock()
	return &ForLoop{Base: newBase(p.pos(startOff, startLC)), Variable: variable, IndexVariable: indexVar, Iterated: iterated, Body: body}
}

func (p *NativeParser) finishIf(startOff int, startLC LineCol) Node {
	p.skipSpace(false)
	hasParen := p.peek() == '('
	var cond Node
	if hasParen {
		p.advance()
		p.skipSpace(true)
		cond = p.parseOrLogical()
		p.skipSpace(true)
		if p.peek() == ')' {
			p.advance()
		}
	} else {
		cond = p.parseOrLogical()
	}
	// Construction-time rewrite: the condition always runs as an Execute,
	// per §4.2 "IfCond".
	cond = &Execute{Base: newBase(cond.Pos()), Command: cond}
	p.skipSpace(false)
	trueBranch := p.parseBlock()
	p.skipSpace(false)
	var falseBranch Node
	if p.matchKeyword("else") {
		p.skipSpace(false)
		if p.matchKeyword("if") {
			falseBranch = p.finishIf(p.off, p.here())
		} else {
			falseBranch = p.parseBlock()
		}
	}
	return &IfCond{Base: newBase(p.pos(startOff, startLC)), Cond: cond, True: trueBranch, False: falseBranch}
}

func (p *NativeParser) finishMatch(startOff int, startLC LineCol) Node {
	p.skipSpace(false)
	subject := p.parseListExpression()
	p.skipSpace(false)
	var entries []MatchEntry
	if p.peek() == '{' {
		p.advance()
		for {
			p.skipSpace(true)
			if p.peek() == '}' || p.eof() {
				break
			}
			iterStart := p.off
			var pats []Node
			for {
				pats = append(pats, p.parseStringComposite())
				p.skipSpace(false)
				if p.peek() == '|' {
					p.advance()
					p.skipSpace(false)
					continue
				}
				break
			}
			p.skipSpace(false)
			if strings.HasPrefix(p.src[p.off:], "=>") {
				p.advance()
				p.advance()
			}
			p.skipSpace(true)
			body := p.parseBlock()
			entries = append(entries, MatchEntry{Patterns: pats, Kind: MatchGlob, Body: body})
			p.skipSpace(true)
			if p.peek() == ';' {
				p.advance()
			}
			if p.off == iterStart {
				// A malformed entry (e.g. a stray character that can start
				// neither a pattern nor a block) consumed nothing; force
				// progress so recovery can't spin forever on it.
				p.advance()
			}
		}
		if p.peek() == '}' {
			p.advance()
		}
	}
	return &MatchExpr{Base: newBase(p.pos(startOff, startLC)), Subject: subject, Entries: entries}
}

func (p *NativeParser) parseBlock() Node {
	startOff, startLC := p.off, p.here()
	if p.peek() != '{' {
		return p.errNode(startOff, startLC, "expected '{'")
	}
	p.advance()
	inner := p.parseToplevel()
	p.skipSpace(true)
	if p.peek() == '}' {
		p.advance()
	}
	return inner
}

// parseCommand implements `command := redirection command? | list_expression command?`.
func (p *NativeParser) parseCommand() Node {
	if !p.enter() {
		p.leave()
		return p.errNode(p.off, p.here(), "maximum nesting depth exceeded")
	}
	defer p.leave()

	startOff, startLC := p.off, p.here()
	if redir, rest, ok := p.tryParseRedirection(); ok {
		if rest == nil {
			rest = &CastToCommand{Base: newBase(synthetic()), Inner: &ListConcatenate{Base: newBase(synthetic())}}
		}
		return redir(rest)
	}
	list := p.parseListExpression()
	p.skipSpace(false)
	if p.canStartAnotherExpression() {
		next := p.parseCommand()
		return &Join{Base: newBase(p.pos(startOff, startLC)), Left: &CastToCommand{Base: newBase(list.Pos()), Inner: list}, Right: next}
	}
	return &CastToCommand{Base: newBase(list.Pos()), Inner: list}
}

func (p *NativeParser) canStartAnotherExpression() bool {
	if p.eof() {
		return false
	}
	switch p.peek() {
	case ';', '\n', '|', '&', ')', '}', '#', '(':
		// A bare '(' is never a valid word start (it only opens a Subshell
		// statement, handled in tryParseControl before a list expression is
		// ever reached), so it must end the list rather than be retried as
		// another item.
		return false
	case '{':
		// A `{` that isn't a brace expansion is a block opener (an if/for/
		// loop/match body, or a command's own trailing block); either way
		// it ends the current list rather than extending it.
		return p.looksLikeBraceExpansion()
	}
	return true
}

// tryParseRedirection recognizes a leading `[fd]<path`, `[fd]>path`,
// `[fd]>>path`, `[fd]<>path`, `[fd]>&fd`, or `[fd]>&-` and returns a
// constructor that wraps the following Subject node.
func (p *NativeParser) tryParseRedirection() (func(Node) Node, Node, bool) {
	startOff, startLC := p.off, p.here()
	save := *p
	fd := -1
	if isDigit(p.peek()) {
		s := p.off
		for isDigit(p.peek()) {
			p.advance()
		}
		n, _ := strconv.Atoi(p.src[s:p.off])
		fd = n
	}
	var op string
	switch {
	case strings.HasPrefix(p.src[p.off:], "<<-"):
		op = "<<-"
	case strings.HasPrefix(p.src[p.off:], "<<~"):
		op = "<<~"
	case strings.HasPrefix(p.src[p.off:], "<<"):
		op = "<<"
	case strings.HasPrefix(p.src[p.off:], "<>"):
		op = "<>"
	case strings.HasPrefix(p.src[p.off:], ">>"):
		op = ">>"
	case strings.HasPrefix(p.src[p.off:], ">&"):
		op = ">&"
	case strings.HasPrefix(p.src[p.off:], "<&"):
		op = "<&"
	case p.peek() == '<':
		op = "<"
	case p.peek() == '>':
		op = ">"
	default:
		*p = save
		return nil, nil, false
	}
	for range op {
		p.advance()
	}
	p.skipSpace(false)
	if op == "<<" || op == "<<-" || op == "<<~" {
		keyStart := p.off
		for !p.eof() && !isWordBoundaryByte(p.peek()) {
			p.advance()
		}
		key := strings.Trim(p.src[keyStart:p.off], `'"`)
		interpolate := !strings.ContainsAny(p.src[keyStart:p.off], `'"`)
		deindent := op != "<<"
		position := p.pos(startOff, startLC)
		h := &Heredoc{Base: newBase(position), Key: key, Interpolate: interpolate, Deindent: deindent}
		return func(subject Node) Node {
			return &ReadRedirection{Base: newBase(position), FD: 0, Path: h, Subject: subject}
		}, p.parseCommandTail(), true
	}
	switch op {
	case ">&", "<&":
		if p.peek() == '-' {
			p.advance()
			newFD := 1
			if op == "<&" {
				newFD = 0
			}
			if fd >= 0 {
				newFD = fd
			}
			return func(subject Node) Node {
				return &CloseFdRedirection{Base: newBase(p.pos(startOff, startLC)), FD: newFD, Subject: subject}
			}, p.parseCommandTail(), true
		}
		s := p.off
		for isDigit(p.peek()) {
			p.advance()
		}
		oldFD, _ := strconv.Atoi(p.src[s:p.off])
		newFD := 1
		if op == "<&" {
			newFD = 0
		}
		if fd >= 0 {
			newFD = fd
		}
		return func(subject Node) Node {
			return &Fd2FdRedirection{Base: newBase(p.pos(startOff, startLC)), OldFD: newFD, NewFD: oldFD, Subject: subject}
		}, p.parseCommandTail(), true
	}
	p.skipSpace(false)
	// Open question (§9): a path expression resolving to multiple words is
	// joined with a space; that join happens at eval time over the parsed
	// word list, so the parser just captures the full string_composite.
	pathWord := p.parseStringComposite()
	defaultFD := 1
	if op == "<" || op == "<>" {
		defaultFD = 0
	}
	if fd >= 0 {
		defaultFD = fd
	}
	var dir RedirectionDirection
	switch op {
	case "<":
		dir = RedirRead
	case ">":
		dir = RedirWrite
	case ">>":
		dir = RedirWriteAppend
	case "<>":
		dir = RedirReadWrite
	}
	ctor := func(subject Node) Node {
		base := newBase(p.pos(startOff, startLC))
		switch dir {
		case RedirRead:
			return &ReadRedirection{Base: base, FD: defaultFD, Path: pathWord, Subject: subject}
		case RedirWrite:
			return &WriteRedirection{Base: base, FD: defaultFD, Path: pathWord, Subject: subject}
		case RedirWriteAppend:
			return &WriteAppendRedirection{Base: base, FD: defaultFD, Path: pathWord, Subject: subject}
		default:
			return &ReadWriteRedirection{Base: base, FD: defaultFD, Path: pathWord, Subject: subject}
		}
	}
	return ctor, p.parseCommandTail(), true
}

// parseCommandTail parses what follows a redirection prefix, if anything.
func (p *NativeParser) parseCommandTail() Node {
	p.skipSpace(false)
	if !p.canStartAnotherExpression() {
		return nil
	}
	return p.parseCommand()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// parseListExpression parses a space-separated sequence of expressions,
// combined as a ListConcatenate (or just the one expression, unwrapped, if
// there's only one).
func (p *NativeParser) parseListExpression() Node {
	startOff, startLC := p.off, p.here()
	var items []Node
	for {
		e := p.parseStringComposite()
		items = append(items, e)
		p.skipSpace(false)
		if p.canStartAnotherExpression() && !p.atCommandBoundaryKeyword() {
			continue
		}
		break
	}
	if len(items) == 1 {
		return items[0]
	}
	return &ListConcatenate{Base: newBase(p.pos(startOff, startLC)), Items: items}
}

func (p *NativeParser) atCommandBoundaryKeyword() bool {
	for _, kw := range []string{"if", "for", "loop", "match", "break", "continue", "else"} {
		if strings.HasPrefix(p.src[p.off:], kw) {
			end := p.off + len(kw)
			if end >= len(p.src) || !isIdentByte(p.src[end]) {
				return true
			}
		}
	}
	return false
}

// parseStringComposite implements `expression` / `string_composite`: a
// juxtaposed run of strings, variables, globs, brace expansions,
// barewords, immediate expressions, command substitutions and heredocs,
// each glued to the next with Juxtaposition.
func (p *NativeParser) parseStringComposite() Node {
	startOff, startLC := p.off, p.here()
	var parts []Node
	for {
		part, ok := p.parseOnePart()
		if !ok {
			break
		}
		parts = append(parts, part)
		// No blank between parts means they juxtapose into one word.
		if p.eof() || isWordBoundaryByte(p.peek()) {
			break
		}
	}
	if len(parts) == 0 {
		return p.errNode(startOff, startLC, "expected an expression")
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

func isWordBoundaryByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', ';', '|', '&', ')', '}', 0:
		return true
	}
	return false
}

func (p *NativeParser) parseOnePart() (Node, bool) {
	if p.eof() {
		return nil, false
	}
	startOff, startLC := p.off, p.here()
	switch c := p.peek(); {
	case c == '\'':
		return p.parseSingleQuoted(startOff, startLC), true
	case c == '"':
		return p.parseDoubleQuoted(startOff, startLC), true
	case c == '$':
		return p.parseDollar(startOff, startLC), true
	case c == '~':
		return p.parseTilde(startOff, startLC), true
	case c == '{' && p.looksLikeBraceExpansion():
		return p.parseBraceExpansion(startOff, startLC), true
	case c == '!' && isHistoryEventStart(p.src[p.off:]):
		return p.parseHistoryEvent(startOff, startLC), true
	case isWordBoundaryByte(c), c == '{', c == '(', c == ')':
		return nil, false
	default:
		return p.parseBareword(startOff, startLC), true
	}
}

func (p *NativeParser) parseSingleQuoted(startOff int, startLC LineCol) Node {
	p.advance() // '
	s := p.off
	for !p.eof() && p.peek() != '\'' {
		p.advance()
	}
	text := p.src[s:p.off]
	if !p.eof() {
		p.advance()
	}
	return &StringLiteral{Base: newBase(p.pos(startOff, startLC)), Text: text, Enclosure: EnclosureSingle}
}

// parseDoubleQuoted parses a double-quoted string, recognizing escapes
// (\\, \", \xHH, \uHHHHHHHH, octal \0nnn, and the C escapes \a \b \e \f \n
// \r \t), variables, immediate expressions, and command substitutions.
func (p *NativeParser) parseDoubleQuoted(startOff int, startLC LineCol) Node {
	p.advance() // "
	var parts []Node
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			parts = append(parts, &StringLiteral{Base: newBase(synthetic()), Text: lit.String(), Enclosure: EnclosureDouble})
			lit.Reset()
		}
	}
	for !p.eof() && p.peek() != '"' {
		c := p.peek()
		switch {
		case c == '\\':
			p.advance()
			lit.WriteString(p.decodeEscape())
		case c == '$':
			flushLit()
			parts = append(parts, p.parseDollar(p.off, p.here()))
		default:
			lit.WriteByte(p.advance())
		}
	}
	flushLit()
	if !p.eof() {
		p.advance() // closing "
	}
	return &DoubleQuotedString{Base: newBase(p.pos(startOff, startLC)), Parts: parts}
}

func (p *NativeParser) decodeEscape() string {
	if p.eof() {
		return ""
	}
	c := p.advance()
	switch c {
	case '\\', '"':
		return string(c)
	case 'a':
		return "\a"
	case 'b':
		return "\b"
	case 'e':
		return "\x1b"
	case 'f':
		return "\f"
	case 'n':
		return "\n"
	case 'r':
		return "\r"
	case 't':
		return "\t"
	case 'x':
		s := p.off
		for i := 0; i < 2 && isHex(p.peek()); i++ {
			p.advance()
		}
		n, _ := strconv.ParseInt(p.src[s:p.off], 16, 32)
		return string(rune(n))
	case 'u':
		s := p.off
		for i := 0; i < 8 && isHex(p.peek()); i++ {
			p.advance()
		}
		n, _ := strconv.ParseInt(p.src[s:p.off], 16, 32)
		return string(rune(n))
	case '0':
		s := p.off
		for i := 0; i < 3 && p.peek() >= '0' && p.peek() <= '7'; i++ {
			p.advance()
		}
		n, _ := strconv.ParseInt(p.src[s:p.off], 8, 32)
		return string(rune(n))
	default:
		return string(c)
	}
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseDollar handles $name, ${...}, $(...), $((...)). A "${name arg...}"
// shape with a recognized immediate-function name dispatches to an
// ImmediateExpression; otherwise it's a variable reference with an
// optional slice.
func (p *NativeParser) parseDollar(startOff int, startLC LineCol) Node {
	p.advance() // $
	if p.peek() == '(' && p.peekAt(1) == '(' {
		p.advance()
		p.advance()
		s := p.off
		depth := 2
		for !p.eof() && depth > 0 {
			if p.peek() == '(' {
				depth++
			} else if p.peek() == ')' {
				depth--
				if depth == 0 {
					break
				}
			}
			p.advance()
		}
		body := p.src[s:p.off]
		if strings.HasPrefix(p.src[p.off:], "))") {
			p.advance()
			p.advance()
		}
		return &ImmediateExpression{Base: newBase(p.pos(startOff, startLC)), Name: "math",
			Arguments: []Node{&StringLiteral{Base: newBase(synthetic()), Text: body}}}
	}
	if p.peek() == '(' {
		p.advance()
		inner := p.parseToplevel()
		p.skipSpace(true)
		if p.peek() == ')' {
			p.advance()
		}
		return &Execute{Base: newBase(p.pos(startOff, startLC)), Command: inner, CaptureStdout: true}
	}
	if p.peek() == '{' {
		return p.parseBraceVariableOrImmediate(startOff, startLC)
	}
	if isDigit(p.peek()) || isSpecialVarChar(p.peek()) {
		c := p.advance()
		return &SpecialVariable{Base: newBase(p.pos(startOff, startLC)), Char: c}
	}
	name := p.scanIdentifier()
	var slice *Slice
	if p.peek() == '[' {
		slice = p.parseSlice(startOff, startLC)
	}
	return &SimpleVariable{Base: newBase(p.pos(startOff, startLC)), Name: name, Slice: slice}
}

func isSpecialVarChar(c byte) bool {
	switch c {
	case '?', '$', '*', '#', '@', '!', '-':
		return true
	}
	return false
}

func (p *NativeParser) parseBraceVariableOrImmediate(startOff int, startLC LineCol) Node {
	p.advance() // {
	p.skipSpace(false)
	if p.peek() == '#' {
		p.advance()
		name := p.scanIdentifier()
		p.skipSpace(true)
		if p.peek() == '}' {
			p.advance()
		}
		return &ImmediateExpression{Base: newBase(p.pos(startOff, startLC)), Name: "length_of_variable",
			Arguments: []Node{&StringLiteral{Base: newBase(synthetic()), Text: name}}}
	}
	name := p.scanIdentifier()
	p.skipSpace(false)
	if p.peek() != '}' && name != "" {
		// "${name arg1 arg2 ...}" — an immediate function invocation.
		var args []Node
		for p.peek() != '}' && !p.eof() {
			args = append(args, p.parseStringComposite())
			p.skipSpace(false)
		}
		if p.peek() == '}' {
			p.advance()
		}
		return &ImmediateExpression{Base: newBase(p.pos(startOff, startLC)), Name: name, Arguments: args}
	}
	var slice *Slice
	if p.peek() == '[' {
		slice = p.parseSlice(startOff, startLC)
	}
	if p.peek() == '}' {
		p.advance()
	}
	return &SimpleVariable{Base: newBase(p.pos(startOff, startLC)), Name: name, Slice: slice}
}

// parseSlice parses `[sel, sel, ...]` where each selector is a number,
// range, or (after a `$`) an expression.
func (p *NativeParser) parseSlice(startOff int, startLC LineCol) *Slice {
	p.advance() // [
	var selectors []Node
	for p.peek() != ']' && !p.eof() {
		selectors = append(selectors, p.parseSliceSelector())
		p.skipSpace(false)
		if p.peek() == ',' {
			p.advance()
			p.skipSpace(false)
		}
	}
	if p.peek() == ']' {
		p.advance()
	}
	return &Slice{Base: newBase(p.pos(startOff, startLC)), Selectors: selectors}
}

func (p *NativeParser) parseSliceSelector() Node {
	startOff, startLC := p.off, p.here()
	s := p.off
	neg := false
	if p.peek() == '-' {
		neg = true
		p.advance()
	}
	for isDigit(p.peek()) {
		p.advance()
	}
	first := p.src[s:p.off]
	_ = neg
	p.skipSpace(false)
	if strings.HasPrefix(p.src[p.off:], "..") {
		p.advance()
		p.advance()
		p.skipSpace(false)
		s2 := p.off
		if p.peek() == '-' {
			p.advance()
		}
		for isDigit(p.peek()) {
			p.advance()
		}
		second := p.src[s2:p.off]
		return &Range{Base: newBase(p.pos(startOff, startLC)),
			Start: &StringLiteral{Base: newBase(synthetic()), Text: first},
			End:   &StringLiteral{Base: newBase(synthetic()), Text: second}}
	}
	return &StringLiteral{Base: newBase(p.pos(startOff, startLC)), Text: first}
}

func (p *NativeParser) parseTilde(startOff int, startLC LineCol) Node {
	p.advance() // ~
	name := p.scanIdentifier()
	return &Tilde{Base: newBase(p.pos(startOff, startLC)), Username: name}
}

func (p *NativeParser) looksLikeBraceExpansion() bool {
	// A `{` that is not a block opener: heuristically, one containing a
	// top-level comma or ".." before its matching `}` on the same
	// logical word, with no blank right after `{`.
	rest := p.src[p.off:]
	if len(rest) < 2 {
		return false
	}
	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return false
			}
		case ',':
			if depth == 1 {
				return true
			}
		case '.':
			if depth == 1 && i+1 < len(rest) && rest[i+1] == '.' {
				return true
			}
		case ' ', '\n', ';':
			if depth <= 1 {
				return false
			}
		}
	}
	return false
}

func (p *NativeParser) parseBraceExpansion(startOff int, startLC LineCol) Node {
	p.advance() // {
	var entries []Node
	for {
		entries = append(entries, p.parseStringComposite())
		if p.peek() == ',' {
			p.advance()
			continue
		}
		break
	}
	if p.peek() == '}' {
		p.advance()
	}
	return &BraceExpansion{Base: newBase(p.pos(startOff, startLC)), Entries: entries}
}

func isHistoryEventStart(s string) bool {
	if len(s) < 2 {
		return false
	}
	c := s[1]
	return c == '!' || isDigit(c) || c == '-' || c == '?'
}

func (p *NativeParser) parseHistoryEvent(startOff int, startLC LineCol) Node {
	p.advance() // !
	switch {
	case p.peek() == '!':
		p.advance()
		return &HistoryEvent{Base: newBase(p.pos(startOff, startLC)), SelectorKind: HistoryByIndexFromEnd, Selector: "1", WordFrom: -1, WordTo: -1}
	case p.peek() == '?':
		p.advance()
		s := p.off
		for !p.eof() && !isWordBoundaryByte(p.peek()) {
			p.advance()
		}
		return &HistoryEvent{Base: newBase(p.pos(startOff, startLC)), SelectorKind: HistoryContainingSubstring, Selector: p.src[s:p.off], WordFrom: -1, WordTo: -1}
	case isDigit(p.peek()) || p.peek() == '-':
		neg := p.peek() == '-'
		if neg {
			p.advance()
		}
		s := p.off
		for isDigit(p.peek()) {
			p.advance()
		}
		sel := p.src[s:p.off]
		kind := HistoryByIndexFromStart
		if neg {
			kind = HistoryByIndexFromEnd
		}
		return &HistoryEvent{Base: newBase(p.pos(startOff, startLC)), SelectorKind: kind, Selector: sel, WordFrom: -1, WordTo: -1}
	default:
		s := p.off
		for !p.eof() && !isWordBoundaryByte(p.peek()) {
			p.advance()
		}
		return &HistoryEvent{Base: newBase(p.pos(startOff, startLC)), SelectorKind: HistoryStartingSubstring, Selector: p.src[s:p.off], WordFrom: -1, WordTo: -1}
	}
}

// parseBareword consumes a maximal run of non-boundary bytes, registering
// the result as a Glob if it contains glob metacharacters, or a heredoc
// initiation if it starts a `<<`/`<<-`/`<<~` key (handled by
// tryParseRedirection; reaching here with a bareword is the common case).
func (p *NativeParser) parseBareword(startOff int, startLC LineCol) Node {
	s := p.off
	for !p.eof() {
		c := p.peek()
		if isWordBoundaryByte(c) || c == '$' || c == '\'' || c == '"' {
			break
		}
		if c == '\\' {
			p.advance()
			if !p.eof() {
				p.advance()
			}
			continue
		}
		p.advance()
	}
	text := p.src[s:p.off]
	if strings.ContainsAny(text, "*?[") {
		return &Glob{Base: newBase(p.pos(startOff, startLC)), Pattern: text}
	}
	return &BarewordLiteral{Base: newBase(p.pos(startOff, startLC)), Text: text}
}

// ResolveHeredocs scans src starting at offset for a line matching key
// (optionally deindented) and fills h.Contents, per "parse_heredoc_entries"
// in §4.3/§9. It returns the offset just past the terminator line.
func ResolveHeredocs(src string, offset int, h *Heredoc) int {
	lines := strings.SplitAfter(src[offset:], "\n")
	var body strings.Builder
	consumed := offset
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		check := trimmed
		if h.Deindent {
			check = strings.TrimLeft(trimmed, " \t")
		}
		consumed += len(line)
		if check == h.Key {
			break
		}
		body.WriteString(line)
	}
	content := body.String()
	if h.Deindent {
		content = deindent(content)
	}
	if h.Interpolate {
		dp := &NativeParser{src: "\"" + escapeForDouble(content) + "\""}
		h.Contents = dp.parseDoubleQuoted(0, LineCol{Line: 1, Col: 1})
	} else {
		h.Contents = &StringLiteral{Base: newBase(synthetic()), Text: content, Enclosure: EnclosureSingle}
	}
	return consumed
}

func escapeForDouble(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// deindent strips the minimum common leading run of blanks from every
// non-empty line, per the `<<~` form.
func deindent(s string) string {
	lines := strings.Split(s, "\n")
	min := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if min == -1 || n < min {
			min = n
		}
	}
	if min <= 0 {
		return s
	}
	for i, l := range lines {
		if len(l) >= min {
			lines[i] = l[min:]
		} else {
			lines[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
