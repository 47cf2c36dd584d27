// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType enumerates the lexical categories produced by the POSIX lexer,
// per §4.1.
type TokenType int

const (
	TokEOF TokenType = iota
	TokWord
	TokAssignmentWord
	TokListAssignmentWord
	TokIoNumber
	TokVariableName
	TokHeredocContents
	TokNewline

	// Operators.
	TokLss      // <
	TokGtr      // >
	TokShl      // <<
	TokShr      // >>
	TokDHeredoc // <<-
	TokDeindentHeredoc
	TokRdrInOut // <>
	TokDplIn    // <&
	TokDplOut   // >&
	TokRdrAll   // &>
	TokPipe     // |
	TokOrOr     // ||
	TokAndAnd   // &&
	TokAmp      // &
	TokSemi     // ;
	TokDSemi    // ;;
	TokLparen   // (
	TokRparen   // )

	// Reserved words are re-tagged post-hoc; the initial scan always
	// emits TokWord for bareword text, and pass 2 flips the type to
	// TokReserved for words that match a reserved spelling in
	// command-start position.
	TokReserved
)

// ReservedWords is the set of words pass 2 may retag, by spelling. The
// actual retagging still depends on position (start of command, etc.); the
// set only bounds which spellings are even candidates.
var ReservedWords = map[string]bool{
	"if": true, "then": true, "elif": true, "else": true, "fi": true,
	"for": true, "in": true, "while": true, "until": true, "do": true,
	"done": true, "case": true, "esac": true, "function": true,
	"{": true, "}": true, "!": true, "[[": true, "]]": true,
}

// ExpansionKind tags a parameter/command/arithmetic expansion recognized
// inside a Word during the initial scan, before pass 6 resolves it.
type ExpansionKind int

const (
	ExpParameter ExpansionKind = iota
	ExpCommandSubst
	ExpArithmetic
)

// Expansion is an annotation recorded on a Word token at the byte range
// [Start,End) of the token's raw value, naming what kind of expansion sits
// there and, once pass 6 runs, how to interpret it.
type Expansion struct {
	Kind       ExpansionKind
	Start, End int

	// Populated by pass 6 (resolveExpansions).
	ParamOp   ParamOperator // for ExpParameter
	ParamName string
	ParamWord string // the OP's right-hand word, e.g. "default" in ${FOO:-default}
	Resolved  bool
	SourceSub []Token // raw token body for ExpCommandSubst / ExpArithmetic
}

// ParamOperator names a `${name OP word}` operator form, populated for
// parameter expansions by pass 6 (and consumed by the POSIX parser's
// desugaring table, §4.4).
type ParamOperator int

const (
	ParamNone ParamOperator = iota
	ParamLength                // ${#x}
	ParamDefaultUnset           // :-
	ParamAssignUnset            // :=
	ParamErrorUnset             // :?
	ParamAltUnset               // :+
	ParamDefault                // -
	ParamAssign                 // =
	ParamError                  // ?
	ParamAlt                    // +
	ParamRemoveSuffix           // %
	ParamRemoveSuffixLongest    // %%
	ParamRemovePrefix           // #
	ParamRemovePrefixLongest    // ##
)

// TokenFlags carries boolean annotations set during the scan or by later
// passes.
type TokenFlags uint8

const (
	FlagCouldStartSimpleCommand TokenFlags = 1 << iota
	FlagQuoted
)

// Token is one lexical unit of the POSIX token stream.
type Token struct {
	Type     TokenType
	Value    string
	Pos      Position
	Expans   []Expansion
	Flags    TokenFlags
}

// Reduction names the lexer's current scanning mode. BatchNext is driven by
// the current reduction and may switch it for the next call.
type Reduction int

const (
	ReductionDefault Reduction = iota
	ReductionDoubleQuoted
	ReductionSingleQuoted
	ReductionBackquote
	ReductionCommandSubst
	ReductionArithmetic
	ReductionHeredocContents
)

// Lexer scans POSIX shell source into a Token stream, one batch at a time;
// batch_next exposes the reduction-mode machine described in §4.1.
type Lexer struct {
	src    string
	offset int
	line   int
	col    int

	reduction Reduction

	// pendingHeredocs holds heredoc keys registered by the parser but
	// not yet resolved; BatchNext consults it when crossing a newline
	// while ReductionHeredocContents is queued. The parser, not the
	// lexer, actually drives content collection (§9, "Heredoc late
	// binding"); the lexer only knows to hand back TokHeredocContents
	// batches on request.
	pendingHeredocs []string
}

// NewLexer creates a Lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1, reduction: ReductionDefault}
}

func (l *Lexer) eof() bool { return l.offset >= len(l.src) }

func (l *Lexer) peekByte() byte {
	if l.eof() {
		return 0
	}
	return l.src[l.offset]
}

func (l *Lexer) peekAt(n int) byte {
	if l.offset+n >= len(l.src) {
		return 0
	}
	return l.src[l.offset+n]
}

func (l *Lexer) advance() byte {
	c := l.src[l.offset]
	l.offset++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) here() LineCol { return LineCol{Line: l.line, Col: l.col} }

func (l *Lexer) pos(startOff int, startLC LineCol) Position {
	return Position{
		StartOffset: startOff,
		EndOffset:   l.offset,
		StartLine:   startLC,
		EndLine:     l.here(),
	}
}

// BatchNext scans and returns the next batch of tokens (almost always a
// single token; here-doc content collection and quote removal may each
// produce more than one), advancing the lexer's mode as a side effect. If
// startingReduction is non-nil, the lexer switches to it before scanning.
func (l *Lexer) BatchNext(startingReduction *Reduction) ([]Token, error) {
	if startingReduction != nil {
		l.reduction = *startingReduction
	}
	switch l.reduction {
	case ReductionHeredocContents:
		tok, err := l.scanHeredocBody()
		if err != nil {
			return nil, err
		}
		l.reduction = ReductionDefault
		return []Token{tok}, nil
	default:
		tok, err := l.scanOne()
		if err != nil {
			return nil, err
		}
		return []Token{tok}, nil
	}
}

// Tokenize runs BatchNext to completion and applies the eight post-passes
// described in §4.1, returning the final token stream.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var toks []Token
	for {
		batch, err := l.BatchNext(nil)
		if err != nil {
			return nil, err
		}
		toks = append(toks, batch...)
		if len(batch) > 0 && batch[len(batch)-1].Type == TokEOF {
			break
		}
	}
	toks = passMergeNewlines(toks)
	toks = passReservedWords(toks)
	toks = passIoNumbers(toks)
	toks = passCouldStartSimpleCommand(toks)
	toks = passAssignmentWords(toks)
	toks = passResolveExpansions(toks)
	toks = passVariableNameAfterFor(toks)
	toks = passFunctionName(toks)
	return toks, nil
}

func (l *Lexer) skipBlanks() {
	for !l.eof() {
		c := l.peekByte()
		if c == ' ' || c == '\t' {
			l.advance()
			continue
		}
		if c == '\\' && l.peekAt(1) == '\n' {
			l.advance()
			l.advance()
			continue
		}
		if c == '#' {
			for !l.eof() && l.peekByte() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

func (l *Lexer) scanOne() (Token, error) {
	l.skipBlanks()
	startOff, startLC := l.offset, l.here()
	if l.eof() {
		return Token{Type: TokEOF, Pos: l.pos(startOff, startLC)}, nil
	}
	c := l.peekByte()
	switch {
	case c == '\n':
		l.advance()
		return Token{Type: TokNewline, Value: "\n", Pos: l.pos(startOff, startLC)}, nil
	case c == ';':
		l.advance()
		if l.peekByte() == ';' {
			l.advance()
			return Token{Type: TokDSemi, Value: ";;", Pos: l.pos(startOff, startLC)}, nil
		}
		return Token{Type: TokSemi, Value: ";", Pos: l.pos(startOff, startLC)}, nil
	case c == '(':
		l.advance()
		return Token{Type: TokLparen, Value: "(", Pos: l.pos(startOff, startLC)}, nil
	case c == ')':
		l.advance()
		return Token{Type: TokRparen, Value: ")", Pos: l.pos(startOff, startLC)}, nil
	case c == '|':
		l.advance()
		if l.peekByte() == '|' {
			l.advance()
			return Token{Type: TokOrOr, Value: "||", Pos: l.pos(startOff, startLC)}, nil
		}
		return Token{Type: TokPipe, Value: "|", Pos: l.pos(startOff, startLC)}, nil
	case c == '&':
		l.advance()
		switch l.peekByte() {
		case '&':
			l.advance()
			return Token{Type: TokAndAnd, Value: "&&", Pos: l.pos(startOff, startLC)}, nil
		case '>':
			l.advance()
			return Token{Type: TokRdrAll, Value: "&>", Pos: l.pos(startOff, startLC)}, nil
		}
		return Token{Type: TokAmp, Value: "&", Pos: l.pos(startOff, startLC)}, nil
	case c == '<':
		l.advance()
		switch l.peekByte() {
		case '<':
			l.advance()
			if l.peekByte() == '-' {
				l.advance()
				return Token{Type: TokDHeredoc, Value: "<<-", Pos: l.pos(startOff, startLC)}, nil
			}
			if l.peekByte() == '~' {
				l.advance()
				return Token{Type: TokDeindentHeredoc, Value: "<<~", Pos: l.pos(startOff, startLC)}, nil
			}
			return Token{Type: TokShl, Value: "<<", Pos: l.pos(startOff, startLC)}, nil
		case '>':
			l.advance()
			return Token{Type: TokRdrInOut, Value: "<>", Pos: l.pos(startOff, startLC)}, nil
		case '&':
			l.advance()
			return Token{Type: TokDplIn, Value: "<&", Pos: l.pos(startOff, startLC)}, nil
		}
		return Token{Type: TokLss, Value: "<", Pos: l.pos(startOff, startLC)}, nil
	case c == '>':
		l.advance()
		switch l.peekByte() {
		case '>':
			l.advance()
			return Token{Type: TokShr, Value: ">>", Pos: l.pos(startOff, startLC)}, nil
		case '&':
			l.advance()
			return Token{Type: TokDplOut, Value: ">&", Pos: l.pos(startOff, startLC)}, nil
		}
		return Token{Type: TokGtr, Value: ">", Pos: l.pos(startOff, startLC)}, nil
	default:
		return l.scanWord(startOff, startLC)
	}
}

// scanWord consumes a maximal word, recording any parameter/command-
// substitution/arithmetic expansions it contains. Quoting is tracked so
// operators and blanks inside quotes don't terminate the word.
func (l *Lexer) scanWord(startOff int, startLC LineCol) (Token, error) {
	var sb strings.Builder
	var expans []Expansion
	inSingle, inDouble := false, false

	for !l.eof() {
		c := l.peekByte()
		if !inSingle && !inDouble && isWordBoundary(c) {
			break
		}
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			sb.WriteByte(l.advance())
		case c == '"' && !inSingle:
			inDouble = !inDouble
			sb.WriteByte(l.advance())
		case c == '\\' && !inSingle:
			sb.WriteByte(l.advance())
			if !l.eof() {
				sb.WriteByte(l.advance())
			}
		case c == '$' && !inSingle:
			start := sb.Len()
			kind, sub, err := l.scanDollar(&sb)
			if err != nil {
				return Token{}, err
			}
			expans = append(expans, Expansion{Kind: kind, Start: start, End: sb.Len(), SourceSub: sub})
		case c == '`' && !inSingle:
			start := sb.Len()
			sub, err := l.scanBackquote(&sb)
			if err != nil {
				return Token{}, err
			}
			expans = append(expans, Expansion{Kind: ExpCommandSubst, Start: start, End: sb.Len(), SourceSub: sub})
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.offset:])
			if r == utf8.RuneError && size <= 1 {
				sb.WriteByte(l.advance())
				break
			}
			for i := 0; i < size; i++ {
				sb.WriteByte(l.advance())
			}
		}
	}
	if sb.Len() == 0 {
		// Shouldn't happen: scanOne only calls scanWord on a non-boundary byte.
		return Token{}, fmt.Errorf("syntax: empty word at offset %d", startOff)
	}
	return Token{Type: TokWord, Value: sb.String(), Pos: l.pos(startOff, startLC), Expans: expans}, nil
}

func isWordBoundary(c byte) bool {
	switch c {
	case 0, ' ', '\t', '\n', ';', '(', ')', '|', '&', '<', '>':
		return true
	}
	return false
}

// scanDollar handles `$name`, `${...}`, `$(...)`, and `$((...))`, writing
// the raw spelling into sb and returning the expansion kind plus (for
// command/arithmetic substitutions) the nested token stream.
func (l *Lexer) scanDollar(sb *strings.Builder) (ExpansionKind, []Token, error) {
	sb.WriteByte(l.advance()) // '$'
	switch l.peekByte() {
	case '(':
		if l.peekAt(1) == '(' {
			sb.WriteByte(l.advance())
			sb.WriteByte(l.advance())
			body := l.scanBalanced('(', ')', sb)
			sb.WriteByte(l.advance()) // second ')'
			toks, err := Tokenize(body)
			return ExpArithmetic, toks, err
		}
		sb.WriteByte(l.advance())
		body := l.scanBalanced('(', ')', sb)
		toks, err := Tokenize(body)
		return ExpCommandSubst, toks, err
	case '{':
		sb.WriteByte(l.advance())
		l.scanBalanced('{', '}', sb)
		return ExpParameter, nil, nil
	default:
		for !l.eof() && isNameByte(l.peekByte()) {
			sb.WriteByte(l.advance())
		}
		return ExpParameter, nil, nil
	}
}

func (l *Lexer) scanBackquote(sb *strings.Builder) ([]Token, error) {
	sb.WriteByte(l.advance()) // opening `
	start := l.offset
	for !l.eof() && l.peekByte() != '`' {
		if l.peekByte() == '\\' {
			l.advance()
		}
		l.advance()
	}
	body := l.src[start:l.offset]
	if !l.eof() {
		sb.WriteByte(l.advance()) // closing `
	}
	sb.WriteString(body)
	return Tokenize(body)
}

// scanBalanced consumes up to (and not including) the matching close
// delimiter, tracking nesting depth, and returns the consumed text.
func (l *Lexer) scanBalanced(open, close byte, sb *strings.Builder) string {
	depth := 1
	start := l.offset
	for !l.eof() {
		c := l.peekByte()
		if c == open {
			depth++
		} else if c == close {
			depth--
			if depth == 0 {
				break
			}
		}
		sb.WriteByte(l.advance())
	}
	return l.src[start:l.offset]
}

func isNameByte(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

// scanHeredocBody is invoked by the parser (via BatchNext(&ReductionHeredocContents))
// once it has the terminating key in hand; it is a thin wrapper returning
// everything up to end-of-input as raw content, since the parser itself
// (not the lexer) scans line-by-line for the key per §9.
func (l *Lexer) scanHeredocBody() (Token, error) {
	startOff, startLC := l.offset, l.here()
	for !l.eof() {
		l.advance()
	}
	return Token{Type: TokHeredocContents, Value: l.src[startOff:l.offset], Pos: l.pos(startOff, startLC)}, nil
}
