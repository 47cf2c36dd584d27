// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "strings"

// Formatter renders a Node back to source text (§8's round-trip testable
// property: parse(print(parse(n))) ≡ parse(n)). For a node with a valid
// Position it simply re-slices Source, the cheapest possible printer and
// the one guaranteed to reproduce the author's own formatting; for a
// synthetic node (one an immediate function or a POSIX desugaring built,
// with no source span of its own) it falls back to a generic
// reconstruction from the node's children.
//
// IndentWidth is consulted only by formatSynthetic, for the handful of
// node kinds that introduce a nested block; cmd/loom fills it in from
// editorconfig's indent_size when a project declares one.
type Formatter struct {
	IndentWidth int
	Source      string
}

// Format renders n as source text.
func (f *Formatter) Format(n Node) string {
	if n == nil {
		return ""
	}
	if p := n.Pos(); p.IsValid() && p.EndOffset <= len(f.Source) && p.StartOffset >= 0 {
		return f.Source[p.StartOffset:p.EndOffset]
	}
	return f.formatSynthetic(n)
}

func (f *Formatter) indent() string {
	w := f.IndentWidth
	if w <= 0 {
		w = 2
	}
	return strings.Repeat(" ", w)
}

func (f *Formatter) formatDecl(d VariableDecl) string {
	return d.Name + "=" + f.Format(d.Value)
}

// formatSynthetic reconstructs source text for a node built by a transform
// rather than parsed from it, using the same textual shape the parser
// accepts back in (so the round trip still holds even though the bytes
// aren't byte-identical to anything the user wrote).
func (f *Formatter) formatSynthetic(n Node) string {
	switch t := n.(type) {
	case *StringLiteral:
		return t.Text
	case *BarewordLiteral:
		return t.Text
	case *DoubleQuotedString:
		var b strings.Builder
		b.WriteByte('"')
		for _, c := range t.Parts {
			b.WriteString(f.Format(c))
		}
		b.WriteByte('"')
		return b.String()
	case *SimpleVariable:
		return "$" + t.Name
	case *SpecialVariable:
		return "$" + string(t.Char)
	case *Tilde:
		return "~" + t.Username
	case *Glob:
		return t.Pattern
	case *CommandLiteral:
		return strings.Join(t.Argv, " ")
	case *Juxtaposition:
		return f.Format(t.Left) + f.Format(t.Right)
	case *StringPartCompose:
		var parts []string
		for _, p := range t.Parts {
			parts = append(parts, f.Format(p))
		}
		return strings.Join(parts, "")
	case *ListConcatenate:
		var parts []string
		for _, e := range t.Items {
			parts = append(parts, f.Format(e))
		}
		return strings.Join(parts, " ")
	case *BraceExpansion:
		var parts []string
		for _, e := range t.Entries {
			parts = append(parts, f.Format(e))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case *VariableDeclarations:
		var parts []string
		for _, d := range t.Decls {
			parts = append(parts, f.formatDecl(d))
		}
		return strings.Join(parts, " ")
	case *ImmediateExpression:
		var parts []string
		for _, a := range t.Arguments {
			parts = append(parts, f.Format(a))
		}
		return t.Name + "(" + strings.Join(parts, ", ") + ")"
	case *Sequence:
		return f.Format(t.Left) + "\n" + f.Format(t.Right)
	case *And:
		return f.Format(t.Left) + " && " + f.Format(t.Right)
	case *Or:
		return f.Format(t.Left) + " || " + f.Format(t.Right)
	case *Pipe:
		sep := " | "
		if t.StderrToo {
			sep = " |& "
		}
		return f.Format(t.Left) + sep + f.Format(t.Right)
	case *Join:
		return f.Format(t.Left) + " " + f.Format(t.Right)
	case *Background:
		return f.Format(t.Command) + " &"
	case *Subshell:
		return "(" + f.Format(t.Block) + ")"
	case *IfCond:
		s := "if " + f.Format(t.Cond) + " { " + f.Format(t.True) + " }"
		if t.False != nil {
			s += " else { " + f.Format(t.False) + " }"
		}
		return s
	case *ForLoop:
		head := "for " + t.Variable
		if t.IndexVariable != "" {
			head += ", " + t.IndexVariable
		}
		if t.Iterated != nil {
			head += " in " + f.Format(t.Iterated)
		} else {
			head = "loop"
		}
		return head + " { " + f.Format(t.Body) + " }"
	case *FunctionDeclaration:
		body := f.Format(t.Body)
		return t.Name + "(" + strings.Join(t.ArgNames, ", ") + ") {\n" + f.indent() + body + "\n}"
	case *Execute:
		s := f.Format(t.Command)
		if t.CaptureStdout {
			return "$(" + s + ")"
		}
		return s
	case *CastToCommand:
		return f.Format(t.Inner)
	case *CastToList:
		return f.Format(t.Inner)
	case *ContinuationControl:
		if t.Kind == ContinuationBreak {
			return "break"
		}
		return "continue"
	case *Comment:
		return "# " + t.Text
	default:
		var parts []string
		for _, c := range Children(n) {
			parts = append(parts, f.Format(c))
		}
		return strings.Join(parts, " ")
	}
}
