// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell_test

import (
	"fmt"
	"os"

	"github.com/loom-sh/loom/shell"
)

func ExampleExpand() {
	env := func(name string) string {
		switch name {
		case "HOME":
			return "/home/user"
		}
		return "" // leave the rest unset
	}
	out, _ := shell.Expand("No place like $HOME", env)
	fmt.Println(out)

	out, _ = shell.Expand("Some vars are ${value_or_default missing awesome}", env)
	fmt.Println(out)

	out, _ = shell.Expand("Math is fun! $((12 * 34))", nil)
	fmt.Println(out)
	// Output:
	// No place like /home/user
	// Some vars are awesome
	// Math is fun! 408
}

func ExampleFields() {
	out, _ := shell.Fields("foo bar baz", nil)
	fmt.Printf("%#v\n", out)

	env := func(name string) string {
		switch name {
		case "foo":
			return "bar baz"
		}
		return ""
	}
	out, _ = shell.Fields("prefix $foo suffix", env)
	fmt.Printf("%#v\n", out)
	// Output:
	// []string{"foo", "bar", "baz"}
	// []string{"prefix", "bar baz", "suffix"}
}

func ExampleSourceFile() {
	src := "set foo=abc, bar=xyz"
	os.WriteFile("f.shx", []byte(src), 0o666)
	defer os.Remove("f.shx")
	vars, err := shell.SourceFile("f.shx")
	if err != nil {
		return
	}
	fmt.Println(len(vars))
	fmt.Println("foo", vars["foo"])
	fmt.Println("bar", vars["bar"])
	// Output:
	// 2
	// foo abc
	// bar xyz
}
