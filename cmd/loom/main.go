// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// loom is a Unix-style shell built on top of interp.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"
	"mvdan.cc/editorconfig"

	"github.com/loom-sh/loom/interp"
	"github.com/loom-sh/loom/syntax"
	"github.com/loom-sh/loom/value"
)

var (
	posixFlag = pflag.BoolP("posix", "p", false, "use POSIX grammar and semantics")
	cmdFlag   = pflag.StringP("command", "c", "", "evaluate string and exit")
)

// ecQuery caches .editorconfig lookups the way shfmt's formatter does,
// across every path loadInitFiles and the interactive loop ever query.
var ecQuery = editorconfig.Query{
	FileCache:   make(map[string]*editorconfig.File),
	RegexpCache: make(map[string]*regexp.Regexp),
}

// historyAutosaveInterval is the autosave interval used when
// HISTORY_AUTOSAVE_TIME_MS is unset or not a positive number (§A.3).
const historyAutosaveInterval = 10 * time.Second

func main() {
	pflag.Parse()
	os.Exit(run())
}

func run() int {
	opts := []interp.Option{
		interp.Posix(*posixFlag),
		interp.StdIO(os.Stdin, os.Stdout, os.Stderr),
	}

	args := pflag.Args()
	interactive := *cmdFlag == "" && len(args) == 0
	opts = append(opts, interp.Interactive(interactive && term.IsTerminal(int(os.Stdin.Fd()))))

	s := interp.New(opts...)
	loadInitFiles(s)

	switch {
	case *cmdFlag != "":
		s.SetLocal("ARGV", value.NewList(args))
		return evalSource(s, *cmdFlag, "-c")
	case len(args) == 0:
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return runInteractive(s)
		}
		return evalReader(s, os.Stdin, "<stdin>")
	default:
		s.SetLocal("ARGV", value.NewList(args[1:]))
		return runScript(s, args[0])
	}
}

// loadInitFiles sources the shell's rc files in order (§6): the system
// one first, then the user's, so a user override always wins; a missing
// file is silently skipped, matching an interactive login shell's usual
// tolerance for an absent rc.
func loadInitFiles(s *interp.Shell) {
	sys, user := "/etc/shellrc", "~/.shellrc"
	if s.PosixMode() {
		sys, user = "/etc/posixshrc", "~/.posixshrc"
	}
	for _, path := range []string{sys, expandHome(user)} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		node, err := s.Parse(string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "loom: %s: %v\n", path, err)
			continue
		}
		s.Eval(node)
	}
	loadFormatter(s)
	if hist := os.Getenv("HISTFILE"); hist != "" {
		if err := s.LoadHistoryFile(expandHome(hist)); err != nil {
			fmt.Fprintf(os.Stderr, "loom: HISTFILE: %v\n", err)
		}
	}
}

// loadFormatter builds a *syntax.Formatter from the current directory's
// .editorconfig indent_size/indent_style (§A.3), the same query shfmt's
// formatPath runs before printing a file, so `dump` and any future
// round-trip tooling reflow indentation per project instead of a single
// hardcoded width.
func loadFormatter(s *interp.Shell) {
	width := 2
	if cwd := s.Cwd(); cwd != "" {
		if props, err := ecQuery.Find(filepath.Join(cwd, "shell"), []string{"shell"}); err == nil {
			if props.Get("indent_style") == "space" {
				if n := props.IndentSize(); n > 0 {
					width = n
				}
			}
		}
	}
	s.SetFormatter(&syntax.Formatter{IndentWidth: width})
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func evalSource(s *interp.Shell, src, name string) int {
	node, err := s.Parse(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom: %s: %v\n", name, err)
		return 2
	}
	return evalNode(s, node)
}

// evalNode runs node and translates an *interp.ExitError (the `exit`
// builtin's unwind signal) into the process exit code it carries;
// otherwise it reports the shell's last exit status.
func evalNode(s *interp.Shell, node syntax.Node) int {
	_, err := s.Eval(node)
	var exitErr *interp.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		return 1
	}
	return s.LastExitCode()
}

func evalReader(s *interp.Shell, r io.Reader, name string) int {
	data, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		return 1
	}
	return evalSource(s, string(data), name)
}

func runScript(s *interp.Shell, path string) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		return 127
	}
	defer f.Close()
	return evalReader(s, f, path)
}

func runInteractive(s *interp.Shell) int {
	reader := bufio.NewReader(os.Stdin)
	code := 0

	histfile := expandHome(os.Getenv("HISTFILE"))
	if histfile != "" {
		stop := make(chan struct{})
		defer close(stop)
		go autosaveHistory(s, histfile, stop)
	}

	for {
		fmt.Fprint(os.Stdout, prompt(s))
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			break
		}
		s.AppendHistory(line)
		node, perr := s.Parse(line)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "loom: %v\n", perr)
			continue
		}
		_, evalErr := s.Eval(node)
		var exitErr *interp.ExitError
		if errors.As(evalErr, &exitErr) {
			code = exitErr.Code
			break
		}
		if evalErr != nil {
			fmt.Fprintf(os.Stderr, "loom: %v\n", evalErr)
		}
		code = s.LastExitCode()
		if err != nil {
			break
		}
	}
	if histfile != "" {
		if err := s.SaveHistoryFile(histfile); err != nil {
			fmt.Fprintf(os.Stderr, "loom: HISTFILE: %v\n", err)
		}
	}
	return code
}

// autosaveHistory persists HISTFILE every historyAutosaveInterval (§A.3's
// HISTORY_AUTOSAVE_TIME_MS), independent of the final save runInteractive
// does on exit, so a crash doesn't lose the whole session's history.
func autosaveHistory(s *interp.Shell, path string, stop <-chan struct{}) {
	interval := historyAutosaveInterval
	if d, err := time.ParseDuration(os.Getenv("HISTORY_AUTOSAVE_TIME_MS") + "ms"); err == nil && d > 0 {
		interval = d
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.SaveHistoryFile(path)
		}
	}
}

func prompt(s *interp.Shell) string {
	if p, ok := s.Lookup("PROMPT"); ok {
		str, err := p.ResolveAsString(s)
		if err == nil && str != "" {
			return str
		}
	}
	return "$ "
}
