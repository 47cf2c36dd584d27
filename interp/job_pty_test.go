// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"os/exec"
	"testing"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// TestJobSuspendResume exercises the state machine in job.go against a
// real child process attached to a controlling terminal (via
// github.com/creack/pty): SIGSTOP must land it in JobSuspended the same
// way a terminal-driven Ctrl-Z (SIGTSTP) would, and SIGCONT/SIGKILL must move it on
// from there. A pipe-attached child wouldn't exercise this path the same
// way — WIFSTOPPED is only reliably observable for a process with a
// controlling terminal (§4.8, §A.3).
func TestJobSuspendResume(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	ptmx, err := pty.Start(cmd)
	if err != nil {
		t.Skipf("pty.Start: %v", err)
	}
	defer ptmx.Close()

	s := New()
	pgid := cmd.Process.Pid
	job := s.jobs.Add(cmd.Process.Pid, pgid, "sleep 5")

	if err := unix.Kill(pgid, unix.SIGSTOP); err != nil {
		t.Skipf("kill SIGSTOP: %v", err)
	}
	waitForState(t, s, job, JobSuspended)

	if err := unix.Kill(pgid, unix.SIGCONT); err != nil {
		t.Fatalf("kill SIGCONT: %v", err)
	}
	job.State = JobRunning // bg/fg both do this themselves around SIGCONT

	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	waitForTerminal(t, s, job)
	cmd.Wait()
}

func waitForState(t *testing.T, s *Shell, j *Job, want JobState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.jobs.Reap()
		if j.State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never reached state %v, stuck at %v", want, j.State)
}

func waitForTerminal(t *testing.T, s *Shell, j *Job) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.jobs.Reap()
		if j.State == JobExited || j.State == JobSignaled {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job never reaped to a terminal state, stuck at %v", j.State)
}
