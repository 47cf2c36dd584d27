// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

// Children returns n's direct child nodes, skipping nils. It is the single
// place that knows how to decompose every variant in the closed node set,
// so Walk, Erroneous, and the highlighter's generic fallback all share one
// implementation instead of re-deriving it.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch x := n.(type) {
	case *And:
		add(x.Left, x.Right)
	case *Or:
		add(x.Left, x.Right)
	case *Pipe:
		add(x.Left, x.Right)
	case *Sequence:
		add(x.Left, x.Right)
	case *Background:
		add(x.Command)
	case *Join:
		add(x.Left, x.Right)
	case *Execute:
		add(x.Command)
	case *CastToCommand:
		add(x.Inner)
	case *CastToList:
		add(x.Inner)
	case *ReadRedirection:
		add(x.Path, x.Subject)
	case *WriteRedirection:
		add(x.Path, x.Subject)
	case *WriteAppendRedirection:
		add(x.Path, x.Subject)
	case *ReadWriteRedirection:
		add(x.Path, x.Subject)
	case *Fd2FdRedirection:
		add(x.Subject)
	case *CloseFdRedirection:
		add(x.Subject)
	case *DoubleQuotedString:
		add(x.Parts...)
	case *Heredoc:
		add(x.Contents)
	case *StringPartCompose:
		add(x.Parts...)
	case *Juxtaposition:
		add(x.Left, x.Right)
	case *SimpleVariable:
		if x.Slice != nil {
			add(x.Slice)
		}
	case *SpecialVariable:
		if x.Slice != nil {
			add(x.Slice)
		}
	case *Slice:
		add(x.Subject)
		add(x.Selectors...)
	case *ListConcatenate:
		add(x.Items...)
	case *BraceExpansion:
		add(x.Entries...)
	case *Range:
		add(x.Start, x.End)
	case *IfCond:
		add(x.Cond, x.True, x.False)
	case *ForLoop:
		add(x.Iterated, x.Body)
	case *Subshell:
		add(x.Block)
	case *MatchExpr:
		add(x.Subject)
		for _, e := range x.Entries {
			add(e.Patterns...)
			add(e.Body)
		}
	case *FunctionDeclaration:
		add(x.Body)
	case *DynamicEvaluate:
		add(x.Inner)
	case *ImmediateExpression:
		add(x.Arguments...)
	case *VariableDeclarations:
		for _, d := range x.Decls {
			add(d.Value)
		}
	case *SyntheticNode:
		add(x.Wrapped)
	}
	return out
}

// Erroneous reports whether n, or any node reachable from it, carries a
// non-cleared SyntaxError (§3.2).
func Erroneous(n Node) bool {
	if n == nil {
		return false
	}
	if _, ok := n.(*SyntaxError); ok {
		return true
	}
	if base, ok := errNode(n); ok && base != nil {
		return true
	}
	for _, c := range Children(n) {
		if Erroneous(c) {
			return true
		}
	}
	return false
}

// errNode extracts the embedded Base's attached error, if the node exposes
// one (every concrete node does, via Base.Err).
func errNode(n Node) (*SyntaxError, bool) {
	type errer interface{ Err() *SyntaxError }
	if e, ok := n.(errer); ok {
		return e.Err(), true
	}
	return nil, false
}

// Clone deep-copies n and its descendants. Alias expansion uses this to
// splice the alias's parsed body into multiple call sites without ever
// sharing (and hence without ever being able to create a cycle, per §3.2).
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	switch x := n.(type) {
	case *And:
		c := *x
		c.Left, c.Right = Clone(x.Left), Clone(x.Right)
		return &c
	case *Or:
		c := *x
		c.Left, c.Right = Clone(x.Left), Clone(x.Right)
		return &c
	case *Pipe:
		c := *x
		c.Left, c.Right = Clone(x.Left), Clone(x.Right)
		return &c
	case *Sequence:
		c := *x
		c.Left, c.Right = Clone(x.Left), Clone(x.Right)
		return &c
	case *Background:
		c := *x
		c.Command = Clone(x.Command)
		return &c
	case *Join:
		c := *x
		c.Left, c.Right = Clone(x.Left), Clone(x.Right)
		return &c
	case *Execute:
		c := *x
		c.Command = Clone(x.Command)
		return &c
	case *CastToCommand:
		c := *x
		c.Inner = Clone(x.Inner)
		return &c
	case *CastToList:
		c := *x
		c.Inner = Clone(x.Inner)
		return &c
	case *ReadRedirection:
		c := *x
		c.Path, c.Subject = Clone(x.Path), Clone(x.Subject)
		return &c
	case *WriteRedirection:
		c := *x
		c.Path, c.Subject = Clone(x.Path), Clone(x.Subject)
		return &c
	case *WriteAppendRedirection:
		c := *x
		c.Path, c.Subject = Clone(x.Path), Clone(x.Subject)
		return &c
	case *ReadWriteRedirection:
		c := *x
		c.Path, c.Subject = Clone(x.Path), Clone(x.Subject)
		return &c
	case *Fd2FdRedirection:
		c := *x
		c.Subject = Clone(x.Subject)
		return &c
	case *CloseFdRedirection:
		c := *x
		c.Subject = Clone(x.Subject)
		return &c
	case *DoubleQuotedString:
		c := *x
		c.Parts = cloneSlice(x.Parts)
		return &c
	case *Heredoc:
		c := *x
		c.Contents = Clone(x.Contents)
		return &c
	case *StringPartCompose:
		c := *x
		c.Parts = cloneSlice(x.Parts)
		return &c
	case *Juxtaposition:
		c := *x
		c.Left, c.Right = Clone(x.Left), Clone(x.Right)
		return &c
	case *SimpleVariable:
		c := *x
		if x.Slice != nil {
			c.Slice = Clone(x.Slice).(*Slice)
		}
		return &c
	case *SpecialVariable:
		c := *x
		if x.Slice != nil {
			c.Slice = Clone(x.Slice).(*Slice)
		}
		return &c
	case *Slice:
		c := *x
		c.Subject = Clone(x.Subject)
		c.Selectors = cloneSlice(x.Selectors)
		return &c
	case *ListConcatenate:
		c := *x
		c.Items = cloneSlice(x.Items)
		return &c
	case *BraceExpansion:
		c := *x
		c.Entries = cloneSlice(x.Entries)
		return &c
	case *Range:
		c := *x
		c.Start, c.End = Clone(x.Start), Clone(x.End)
		return &c
	case *IfCond:
		c := *x
		c.Cond, c.True, c.False = Clone(x.Cond), Clone(x.True), Clone(x.False)
		return &c
	case *ForLoop:
		c := *x
		c.Iterated, c.Body = Clone(x.Iterated), Clone(x.Body)
		return &c
	case *Subshell:
		c := *x
		c.Block = Clone(x.Block)
		return &c
	case *MatchExpr:
		c := *x
		c.Subject = Clone(x.Subject)
		c.Entries = make([]MatchEntry, len(x.Entries))
		for i, e := range x.Entries {
			c.Entries[i] = MatchEntry{
				Patterns: cloneSlice(e.Patterns),
				Kind:     e.Kind,
				Names:    append([]string(nil), e.Names...),
				Body:     Clone(e.Body),
			}
		}
		return &c
	case *FunctionDeclaration:
		c := *x
		c.Body = Clone(x.Body)
		return &c
	case *DynamicEvaluate:
		c := *x
		c.Inner = Clone(x.Inner)
		return &c
	case *ImmediateExpression:
		c := *x
		c.Arguments = cloneSlice(x.Arguments)
		return &c
	case *VariableDeclarations:
		c := *x
		c.Decls = make([]VariableDecl, len(x.Decls))
		for i, d := range x.Decls {
			c.Decls[i] = VariableDecl{Name: d.Name, Value: Clone(d.Value)}
		}
		return &c
	case *SyntheticNode:
		c := *x
		c.Wrapped = Clone(x.Wrapped)
		return &c
	case *StringLiteral:
		c := *x
		return &c
	case *BarewordLiteral:
		c := *x
		return &c
	case *Glob:
		c := *x
		return &c
	case *Tilde:
		c := *x
		return &c
	case *ContinuationControl:
		c := *x
		return &c
	case *SyntaxError:
		c := *x
		return &c
	case *Comment:
		c := *x
		return &c
	case *CommandLiteral:
		c := *x
		c.Argv = append([]string(nil), x.Argv...)
		return &c
	case *HistoryEvent:
		c := *x
		return &c
	default:
		// Closed node set: reaching here is a bug, not a fallback.
		panic("syntax: Clone: unhandled node type")
	}
}

func cloneSlice(ns []Node) []Node {
	if ns == nil {
		return nil
	}
	out := make([]Node, len(ns))
	for i, n := range ns {
		out[i] = Clone(n)
	}
	return out
}
