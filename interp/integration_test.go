// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/loom-sh/loom/interp"
	"github.com/loom-sh/loom/internal"
)

func TestMain(m *testing.M) {
	internal.TestMainSetup()
	os.Exit(m.Run())
}

func run(t *testing.T, src string) (string, int) {
	t.Helper()
	var out bytes.Buffer
	sh := interp.New(interp.StdIO(nil, &out, &out))
	node, err := sh.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if _, err := sh.Eval(node); err != nil {
		var exitErr *interp.ExitError
		if !errorsAs(err, &exitErr) {
			t.Fatalf("eval %q: %v", src, err)
		}
		return out.String(), exitErr.Code
	}
	return out.String(), sh.LastExitCode()
}

// errorsAs avoids importing "errors" purely for the single call site in
// run above.
func errorsAs(err error, target **interp.ExitError) bool {
	for err != nil {
		if e, ok := err.(*interp.ExitError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestBuiltinsEndToEnd(t *testing.T) {
	tests := []struct {
		src      string
		want     string
		wantExit int
	}{
		{"echo hi", "hi\n", 0},
		{"true", "", 0},
		{"false", "", 1},
		{"set a=x\necho $a", "x\n", 0},
		{"exit 3", "", 3},
		{"if true { echo yes } else { echo no }", "yes\n", 0},
		{"if false { echo yes } else { echo no }", "no\n", 0},
		{"for v in a b c { echo $v }", "a\nb\nc\n", 0},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			got, exit := run(t, tc.src)
			if got != tc.want {
				t.Fatalf("output: want %q, got %q", tc.want, got)
			}
			if exit != tc.wantExit {
				t.Fatalf("exit: want %d, got %d", tc.wantExit, exit)
			}
		})
	}
}

func TestExternalCommand(t *testing.T) {
	// cat isn't one of the registered builtins, so this exercises the
	// real fork/exec path in runExternal/spawnAndWait.
	f, err := os.CreateTemp(t.TempDir(), "loom-integration-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("hello\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, exit := run(t, "cat "+f.Name())
	if exit != 0 || strings.TrimSpace(out) != "hello" {
		t.Fatalf("unexpected result: %q, %d", out, exit)
	}
}

func TestPipeline(t *testing.T) {
	// The shell's own echo and a real /bin/cat exercise the evalPipe path
	// that clones Shell state across the two concurrently running sides.
	got, exit := run(t, "echo hello | cat")
	if exit != 0 {
		t.Fatalf("exit: want 0, got %d", exit)
	}
	if strings.TrimSpace(got) != "hello" {
		t.Fatalf("want %q, got %q", "hello", got)
	}
}
