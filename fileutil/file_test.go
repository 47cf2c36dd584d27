// Copyright (c) 2025, Ville Skyttä <ville.skytta@iki.fi>
// See LICENSE for licensing information

package fileutil

import (
	"strings"
	"testing"
)

func TestHasShebang(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []byte
		want bool
	}{
		{
			in:   []byte("#!/usr/bin/env bash\n"),
			want: true,
		},
		{
			in:   []byte("#!/bin/bash\n"),
			want: true,
		},
		{
			in:   []byte("#!/bin/sh\n"),
			want: true,
		},
		{
			in:   []byte("#!foo bar\n"),
			want: false,
		},
		{
			in:   []byte("#!/bin/zsh\n"),
			want: false,
		},
		{
			in:   []byte("#! /bin/sh true\n"),
			want: true,
		},
		{
			in:   []byte("#!  /bin/sh\n"),
			want: false,
		},
		{
			in:   []byte("#!\t/bin/sh\n"),
			want: false,
		},
		{
			in:   []byte("#!/bin/sh"),
			want: false,
		},
	}

	for _, test := range tests {
		name := strings.ReplaceAll(strings.ReplaceAll(string(test.in), "\f", "\\f"), "\t", "\\t")
		t.Run(name, func(t *testing.T) {
			if got := HasShebang(test.in); got != test.want {
				t.Fatalf("want %v, got %v", test.want, got)
			}
		})
	}
}
