// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"regexp"
	"testing"
)

var compilePatternTests = []struct {
	pattern string
	mode    PatternMode
	wantErr bool

	mustMatch    []string
	mustNotMatch []string
}{
	{pattern: ``, mustMatch: []string{""}},
	{pattern: `foo`, mustMatch: []string{"foo", "xfoox"}},
	{
		pattern: `foo`, mode: PatternEntireString,
		mustMatch:    []string{"foo"},
		mustNotMatch: []string{"xfoo", "foox"},
	},
	{
		pattern: `foo*`, mode: PatternEntireString,
		mustMatch:    []string{"foo", "foobar"},
		mustNotMatch: []string{"xfoo"},
	},
	{
		pattern: `*.go`, mode: PatternEntireString,
		mustMatch:    []string{"main.go", ".go"},
		mustNotMatch: []string{"main.go.bak"},
	},
	{
		pattern: `fo?`, mode: PatternEntireString,
		mustMatch:    []string{"foo", "for"},
		mustNotMatch: []string{"fo", "fooo"},
	},
	{
		pattern: `FOO`, mode: PatternEntireString | PatternNoCase,
		mustMatch: []string{"foo", "Foo", "FOO"},
	},
	{pattern: `[`, wantErr: true},
}

func TestCompilePattern(t *testing.T) {
	t.Parallel()
	for _, tc := range compilePatternTests {
		tc := tc
		t.Run(tc.pattern, func(t *testing.T) {
			t.Parallel()
			reStr, err := CompilePattern(tc.pattern, tc.mode)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("CompilePattern(%q) did not error", tc.pattern)
				}
				return
			}
			if err != nil {
				t.Fatalf("CompilePattern(%q) errored with %v", tc.pattern, err)
			}
			re, err := regexp.Compile(reStr)
			if err != nil {
				t.Fatalf("regexp.Compile(%q) (from pattern %q): %v", reStr, tc.pattern, err)
			}
			for _, s := range tc.mustMatch {
				if !re.MatchString(s) {
					t.Errorf("pattern %q (regex %q) should match %q but did not", tc.pattern, reStr, s)
				}
			}
			for _, s := range tc.mustNotMatch {
				if re.MatchString(s) {
					t.Errorf("pattern %q (regex %q) should not match %q but did", tc.pattern, reStr, s)
				}
			}
		})
	}
}

func TestMustCompilePattern(t *testing.T) {
	t.Parallel()
	re := MustCompilePattern("foo*", PatternEntireString)
	if !re.MatchString("foobar") {
		t.Fatalf("MustCompilePattern(%q) did not match %q", "foo*", "foobar")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("MustCompilePattern did not panic on an invalid pattern")
		}
	}()
	MustCompilePattern("[", 0)
}
