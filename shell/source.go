// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"fmt"
	"io"
	"os"

	"github.com/loom-sh/loom/interp"
	"github.com/loom-sh/loom/syntax"
)

// SourceFile sources a shell file from disk and returns the variables it
// declares. It is a convenience function that parses a file from disk with
// the default (native) grammar and calls SourceNode.
func SourceFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("could not read: %v", err)
	}
	sh := interp.New(interp.RestrictExec(purePrograms))
	node, err := sh.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("could not parse: %v", err)
	}
	return SourceNode(sh, node)
}

// purePrograms lists external commands with no side effects, safe for a
// sourced file to invoke even though its purpose is only to read variable
// declarations back out.
var purePrograms = []string{
	"sed", "grep", "tr", "cut", "cat", "head", "tail", "seq", "yes", "wc",
	"ls", "pwd", "basename", "realpath",
	"env", "sleep", "uniq", "sort",
}

// SourceNode sources a shell program from an already-parsed node and
// returns the variables it declares in its outermost frame.
//
// Running the program is restricted to purePrograms via
// interp.RestrictExec, so a sourced file cannot shell out to anything with
// side effects; it can still read and write files directly, since that
// restriction isn't plumbed through the redirection path.
func SourceNode(sh *interp.Shell, node syntax.Node) (map[string]string, error) {
	if sh == nil {
		sh = interp.New(interp.RestrictExec(purePrograms))
	}
	if _, err := sh.Eval(node); err != nil {
		return nil, fmt.Errorf("could not run: %v", err)
	}
	vars := sh.CurrentFrame().Variables
	out := make(map[string]string, len(vars))
	for name, v := range vars {
		switch name {
		case "PWD", "HOME", "PATH", "IFS", "OPTIND", "ARGV":
			continue
		}
		str, err := v.ResolveAsString(sh)
		if err != nil {
			continue
		}
		out[name] = str
	}
	return out, nil
}
