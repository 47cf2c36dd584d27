// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "strings"

// passMergeNewlines is post-pass 1: consecutive newline tokens collapse
// into one.
func passMergeNewlines(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for i, t := range toks {
		if t.Type == TokNewline && i > 0 && out[len(out)-1].Type == TokNewline {
			continue
		}
		out = append(out, t)
	}
	return out
}

// isSeparator reports whether t ends a command, for the purposes of
// passes 2 and 4 (what comes before a reserved word, or before a token
// that could start a simple command).
func isSeparator(t Token) bool {
	switch t.Type {
	case TokSemi, TokDSemi, TokNewline, TokPipe, TokOrOr, TokAndAnd, TokAmp, TokLparen, TokEOF:
		return true
	}
	return false
}

// passReservedWords is post-pass 2: a Word is retagged TokReserved if its
// spelling is a reserved word and it sits at start-of-command, right after
// another reserved word, or as the third word of `for`/`case`.
func passReservedWords(toks []Token) []Token {
	for i := range toks {
		t := &toks[i]
		if t.Type != TokWord || !ReservedWords[t.Value] {
			continue
		}
		if i == 0 || isSeparator(toks[i-1]) || toks[i-1].Type == TokReserved {
			t.Type = TokReserved
			continue
		}
		// third position of for/case: "for X in ..." / "case X in ..."
		if i >= 2 && toks[i-2].Type == TokReserved &&
			(toks[i-2].Value == "for" || toks[i-2].Value == "case") &&
			t.Value == "in" {
			t.Type = TokReserved
		}
	}
	return toks
}

// passIoNumbers is post-pass 3: a Word of only digits directly preceding a
// redirection operator becomes an IoNumber.
func passIoNumbers(toks []Token) []Token {
	isRedirOp := func(tt TokenType) bool {
		switch tt {
		case TokLss, TokGtr, TokShl, TokShr, TokDHeredoc, TokDeindentHeredoc,
			TokRdrInOut, TokDplIn, TokDplOut, TokRdrAll:
			return true
		}
		return false
	}
	for i := range toks {
		if toks[i].Type != TokWord || !isAllDigits(toks[i].Value) {
			continue
		}
		if i+1 < len(toks) && isRedirOp(toks[i+1].Type) {
			toks[i].Type = TokIoNumber
		}
	}
	return toks
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// passCouldStartSimpleCommand is post-pass 4: mark each token whose
// preceding token is a separator/paren/newline/reserved.
func passCouldStartSimpleCommand(toks []Token) []Token {
	for i := range toks {
		if i == 0 || isSeparator(toks[i-1]) || toks[i-1].Type == TokReserved || toks[i-1].Type == TokRparen {
			toks[i].Flags |= FlagCouldStartSimpleCommand
		}
	}
	return toks
}

// isValidIdentifier reports whether name is a valid shell variable name:
// starts with a letter or underscore, and contains only word characters
// thereafter.
func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// passAssignmentWords is post-pass 5: in command-prefix position, a Word
// of form NAME=... becomes an AssignmentWord; one ending in "=(" with no
// trivia becomes a ListAssignmentWord.
func passAssignmentWords(toks []Token) []Token {
	for i := range toks {
		t := &toks[i]
		if t.Type != TokWord || t.Flags&FlagCouldStartSimpleCommand == 0 {
			continue
		}
		eq := strings.IndexByte(t.Value, '=')
		if eq <= 0 {
			continue
		}
		name := t.Value[:eq]
		if !isValidIdentifier(name) {
			continue
		}
		if eq == len(t.Value)-1 && i+1 < len(toks) && toks[i+1].Type == TokLparen {
			t.Type = TokListAssignmentWord
		} else {
			t.Type = TokAssignmentWord
		}
	}
	return toks
}

// resolveParamOperator maps the raw operator spelling found inside a
// `${name OP word}` body to a ParamOperator, per §4.1/§4.4.
func resolveParamOperator(op string) ParamOperator {
	switch op {
	case ":-":
		return ParamDefaultUnset
	case ":=":
		return ParamAssignUnset
	case ":?":
		return ParamErrorUnset
	case ":+":
		return ParamAltUnset
	case "-":
		return ParamDefault
	case "=":
		return ParamAssign
	case "?":
		return ParamError
	case "+":
		return ParamAlt
	case "%%":
		return ParamRemoveSuffixLongest
	case "%":
		return ParamRemoveSuffix
	case "##":
		return ParamRemovePrefixLongest
	case "#":
		return ParamRemovePrefix
	}
	return ParamNone
}

var paramOperatorSpellings = []string{":-", ":=", ":?", ":+", "##", "#", "%%", "%", "-", "=", "?", "+"}

// passResolveExpansions is post-pass 6: classify each expansion annotation
// into its resolved form (parameter operator, command-sub tokens already
// attached at scan time, or arithmetic source text already attached).
func passResolveExpansions(toks []Token) []Token {
	for i := range toks {
		t := &toks[i]
		for j := range t.Expans {
			e := &t.Expans[j]
			if e.Kind != ExpParameter {
				e.Resolved = true
				continue
			}
			raw := t.Value[e.Start:e.End]
			body := raw
			if strings.HasPrefix(body, "${") && strings.HasSuffix(body, "}") {
				body = body[2 : len(body)-1]
			} else {
				body = strings.TrimPrefix(body, "$")
			}
			if strings.HasPrefix(body, "#") && len(body) > 1 && isValidIdentifier(body[1:]) {
				e.ParamOp = ParamLength
				e.ParamName = body[1:]
				e.Resolved = true
				continue
			}
			name := body
			for _, spelling := range paramOperatorSpellings {
				if idx := strings.Index(body, spelling); idx > 0 && isValidIdentifier(body[:idx]) {
					name = body[:idx]
					e.ParamOp = resolveParamOperator(spelling)
					e.ParamWord = body[idx+len(spelling):]
					break
				}
			}
			if e.ParamName == "" {
				e.ParamName = name
			}
			e.Resolved = true
		}
	}
	return toks
}

// passVariableNameAfterFor is post-pass 7: the word right after a `for`
// reserved word is classified TokVariableName.
func passVariableNameAfterFor(toks []Token) []Token {
	for i := range toks {
		if toks[i].Type == TokReserved && toks[i].Value == "for" && i+1 < len(toks) && toks[i+1].Type == TokWord {
			toks[i+1].Type = TokVariableName
		}
	}
	return toks
}

// passFunctionName is post-pass 8: the pattern `NAME ( )` at command start
// marks NAME as TokVariableName.
func passFunctionName(toks []Token) []Token {
	for i := range toks {
		if toks[i].Type != TokWord || toks[i].Flags&FlagCouldStartSimpleCommand == 0 {
			continue
		}
		if i+2 < len(toks) && toks[i+1].Type == TokLparen && toks[i+2].Type == TokRparen {
			toks[i].Type = TokVariableName
		}
	}
	return toks
}
