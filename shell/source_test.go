// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/loom-sh/loom/interp"
)

var mapTests = []struct {
	in   string
	want map[string]string
}{
	{
		"set a=x, b=y",
		map[string]string{"a": "x", "b": "y"},
	},
	{
		"set a=x\nset a=y",
		map[string]string{"a": "y"},
	},
}

var errTests = []struct {
	in   string
	want string
}{
	{
		"set a=b\nexit 1",
		"exit 1",
	},
}

func TestSourceNode(t *testing.T) {
	for i := range mapTests {
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			tc := mapTests[i]
			t.Parallel()
			sh := interp.New(interp.RestrictExec(purePrograms))
			node, err := sh.Parse(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			got, err := SourceNode(sh, node)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(tc.want, got) {
				t.Fatalf("want %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestSourceNodeErr(t *testing.T) {
	for i := range errTests {
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			tc := errTests[i]
			t.Parallel()
			sh := interp.New(interp.RestrictExec(purePrograms))
			node, err := sh.Parse(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			_, err = SourceNode(sh, node)
			if err == nil {
				t.Fatal("wanted non-nil error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not match %q", err, tc.want)
			}
		})
	}
}

func TestSourceFileRestrictsExec(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := dir + "/script.shx"
	script := "rm -rf /\nset a=ok"
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	vars, err := SourceFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if vars["a"] != "ok" {
		t.Fatalf("want a=ok, got %#v", vars)
	}
}
