// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/diff"

	"github.com/loom-sh/loom/syntax"
)

// TestFormatRoundTrip checks §8's round-trip property — parse(print(parse(n)))
// equivalent to parse(n) — at the source-text level: re-slicing a node's
// own span must reproduce exactly what was parsed, and re-parsing that
// text must itself parse without error.
func TestFormatRoundTrip(t *testing.T) {
	sources := []string{
		"echo hello world\n",
		"ls -la | grep foo\n",
		"if true { echo yes } else { echo no }\n",
		"foo() { echo bar }\n",
		"a && b || c\n",
	}
	for _, src := range sources {
		src := src
		t.Run(src, func(t *testing.T) {
			n, err := syntax.ParseNative(src)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if syntax.Erroneous(n) {
				t.Fatalf("fixture itself failed to parse cleanly: %q", src)
			}
			f := &syntax.Formatter{Source: src}
			printed := f.Format(n)

			if diffStr := cmp.Diff(strings.TrimRight(src, "\n"), strings.TrimRight(printed, "\n")); diffStr != "" {
				var buf strings.Builder
				diff.Text("original", "printed", strings.NewReader(src), strings.NewReader(printed), &buf)
				t.Fatalf("round-trip mismatch (-want +got):\n%s\nunified diff:\n%s", diffStr, buf.String())
			}

			n2, err := syntax.ParseNative(printed)
			if err != nil {
				t.Fatalf("re-parse of printed output: %v", err)
			}
			if syntax.Erroneous(n2) {
				t.Fatalf("re-parsed output carries a syntax error: %q", printed)
			}
		})
	}
}
