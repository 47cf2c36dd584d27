// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"os"
	"strings"

	"github.com/loom-sh/loom/interp"
	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

// Expand performs shell expansion on s, using env to resolve variables. It
// applies to parameter expansions like $var and ${#var}, arithmetic
// expansions like $((var + 3)), and brace expressions like foo{1,2,3}.
//
// If env is nil, the current environment variables are used. Empty
// variables are treated as unset; to support variables which are set but
// empty, build an interp.Shell directly and call SetLocal.
//
// s is parsed once as a standalone program. If the top-level result looks
// like a command invocation, only the argv expression feeding it is
// evaluated, so a bare "foo $bar" never spawns a process. A command
// substitution nested inside s, like "pre $(echo foo) post", is still
// executed when reached during expansion; callers that must forbid that
// should build an interp.Shell and reject any syntax.Execute themselves.
//
// An error is reported if s has invalid syntax.
func Expand(s string, env func(string) string) (string, error) {
	sh, node, err := parseForExpand(s, env)
	if err != nil {
		return "", err
	}
	return sh.EvalString(node)
}

// Fields performs shell expansion on s, using env to resolve variables, and
// returns the separate fields that result. It is similar to Expand, but
// word splitting is performed and the resulting fields are not joined.
//
// An error is reported if s has invalid syntax.
func Fields(s string, env func(string) string) ([]string, error) {
	sh, node, err := parseForExpand(s, env)
	if err != nil {
		return nil, err
	}
	v, err := sh.Eval(node)
	if err != nil {
		return nil, err
	}
	return v.ResolveAsList(sh)
}

// parseForExpand builds a Shell seeded from env, parses s, and unwraps a
// top-level Execute node down to the Node feeding its argv, so the caller
// never triggers an actual command run.
func parseForExpand(s string, env func(string) string) (*interp.Shell, syntax.Node, error) {
	sh := interp.New()
	if env == nil {
		env = os.Getenv
	}
	bindEnv(sh, env)
	node, err := sh.Parse(s)
	if err != nil {
		return nil, nil, err
	}
	// Names referenced in s are bound from env too, even when they are
	// absent from the process environment.
	var bindRefs func(syntax.Node)
	bindRefs = func(n syntax.Node) {
		if v, ok := n.(*syntax.SimpleVariable); ok {
			if val := env(v.Name); val != "" {
				sh.SetLocal(v.Name, value.NewString(val))
			}
		}
		for _, c := range syntax.Children(n) {
			bindRefs(c)
		}
	}
	bindRefs(node)
	if exec, ok := node.(*syntax.Execute); ok {
		node = exec.Command
	}
	return sh, node, nil
}

// bindEnv seeds sh's global frame from every name in the process's own
// environment that env still resolves to a non-empty value, matching the
// "empty variables are treated as unset" rule documented on Expand.
func bindEnv(sh *interp.Shell, env func(string) string) {
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if v := env(name); v != "" {
			sh.SetLocal(name, value.NewString(v))
		}
	}
}
