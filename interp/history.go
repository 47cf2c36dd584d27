// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"bufio"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// AppendHistory records line in the in-memory command history the
// `history` builtin lists (§6). cmd/loom calls this once per interactive
// line read, the same point the original shell's line editor appends to
// its own history buffer.
func (s *Shell) AppendHistory(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	s.history = append(s.history, line)
}

// History returns the recorded command history, oldest first.
func (s *Shell) History() []string { return s.history }

// LoadHistoryFile reads a newline-delimited HISTFILE into the in-memory
// history, ignoring a missing file (there's simply nothing to load yet).
func (s *Shell) LoadHistoryFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		s.AppendHistory(scan.Text())
	}
	return scan.Err()
}

// SaveHistoryFile atomically writes the in-memory history to path via
// renameio, so a crash or a concurrent reader never observes a
// half-written HISTFILE (the same atomic-rewrite guarantee the teacher's
// formatter gives shfmt -w, here applied to the shell's own state file
// instead of a source file).
func (s *Shell) SaveHistoryFile(path string) error {
	var b strings.Builder
	for _, line := range s.history {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return renameio.WriteFile(path, []byte(b.String()), 0o644)
}
