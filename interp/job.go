// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// JobState is one node of the §4.8 state machine.
type JobState int

const (
	JobRunning JobState = iota
	JobSuspended
	JobExited
	JobSignaled
)

func (st JobState) String() string {
	switch st {
	case JobRunning:
		return "Running"
	case JobSuspended:
		return "Suspended"
	case JobExited:
		return "Exited"
	case JobSignaled:
		return "Signaled"
	default:
		return "Unknown"
	}
}

// Job owns one spawned process or pipeline leader (§3.6): pid, pgid,
// monotonic job-id, a human-readable command description, start time, and
// its current state.
type Job struct {
	ID      int
	Pid     int
	Pgid    int
	Command string
	Started time.Time

	State    JobState
	ExitCode int
	Signal   unix.Signal

	disowned bool
	notified bool
}

// JobID implements value.JobRef.
func (j *Job) JobID() int { return j.ID }

func (j *Job) String() string {
	switch j.State {
	case JobExited:
		return fmt.Sprintf("[%d]  Done(%d)     %s", j.ID, j.ExitCode, j.Command)
	case JobSignaled:
		return fmt.Sprintf("[%d]  Signaled(%d) %s", j.ID, j.Signal, j.Command)
	case JobSuspended:
		return fmt.Sprintf("[%d]+ Stopped      %s", j.ID, j.Command)
	default:
		return fmt.Sprintf("[%d]  Running      %s", j.ID, j.Command)
	}
}

// JobTable is the shell's set of live jobs, keyed by job-id. A Job is
// removed once it has exited, been waited on, and either disowned or
// reaped (§3.6's removal rule).
type JobTable struct {
	shell *Shell
	jobs  map[int]*Job
	next  int
}

func newJobTable(s *Shell) *JobTable {
	return &JobTable{shell: s, jobs: map[int]*Job{}, next: 1}
}

// Add registers a freshly forked job under a new monotonic id.
func (t *JobTable) Add(pid, pgid int, command string) *Job {
	j := &Job{ID: t.next, Pid: pid, Pgid: pgid, Command: command, Started: time.Now(), State: JobRunning}
	t.jobs[j.ID] = j
	t.next++
	return j
}

// List returns every live job, ordered by id.
func (t *JobTable) List() []*Job {
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Get resolves a job spec: a bare pid, "%N" by job-id, or "%?text" by
// substring match against the tracked command text, per §4.8.
func (t *JobTable) Get(spec string) (*Job, error) {
	if spec == "" {
		return t.latest()
	}
	if !strings.HasPrefix(spec, "%") {
		pid, err := strconv.Atoi(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: no such job", spec)
		}
		for _, j := range t.jobs {
			if j.Pid == pid {
				return j, nil
			}
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	}
	rest := spec[1:]
	if rest == "" || rest == "%" || rest == "+" {
		return t.latest()
	}
	if strings.HasPrefix(rest, "?") {
		needle := rest[1:]
		for _, j := range t.jobs {
			if strings.Contains(j.Command, needle) {
				return j, nil
			}
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return nil, fmt.Errorf("%s: no such job", spec)
	}
	if j, ok := t.jobs[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("%s: no such job", spec)
}

func (t *JobTable) latest() (*Job, error) {
	jobs := t.List()
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no current job")
	}
	return jobs[len(jobs)-1], nil
}

// Remove drops a job from the table; called once it has exited, been
// waited on, and either disowned or reaped.
func (t *JobTable) Remove(id int) { delete(t.jobs, id) }

// Disown marks a job so its table entry can be dropped on exit without an
// announcement, per §4.8.
func (j *Job) Disown() { j.disowned = true }

// Reap services SIGCHLD: it iterates every live job non-blockingly with
// WNOHANG|WUNTRACED, updating state, and retries with exponential backoff
// up to 10 attempts to cope with the race between signal delivery and
// observable child state (§4.8).
func (t *JobTable) Reap() {
	for _, j := range t.List() {
		if j.State == JobExited || j.State == JobSignaled {
			continue
		}
		t.reapOne(j)
	}
}

func (t *JobTable) reapOne(j *Job) {
	backoff := time.Millisecond
	for attempt := 0; attempt < 10; attempt++ {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(j.Pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if err == unix.ECHILD {
			j.State = JobExited
			j.ExitCode = 0
			return
		}
		if err != nil {
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		if pid == 0 {
			// Not yet reapable; the next SIGCHLD (or caller) will retry.
			return
		}
		switch {
		case ws.Exited():
			j.State = JobExited
			j.ExitCode = ws.ExitStatus()
		case ws.Signaled():
			j.State = JobSignaled
			j.Signal = ws.Signal()
		case ws.Stopped():
			j.State = JobSuspended
		}
		return
	}
}

// Shutdown sends SIGHUP to every remaining job, then SIGKILL after a brief
// delay, per §4.8's shell-exit cleanup.
func (t *JobTable) Shutdown() {
	jobs := t.List()
	for _, j := range jobs {
		if j.State == JobExited || j.State == JobSignaled {
			continue
		}
		unix.Kill(-j.Pgid, unix.SIGHUP)
	}
	if len(jobs) == 0 {
		return
	}
	time.Sleep(50 * time.Millisecond)
	for _, j := range jobs {
		if j.State == JobExited || j.State == JobSignaled {
			continue
		}
		unix.Kill(-j.Pgid, unix.SIGKILL)
	}
}

// foregroundPgid gives pgid the controlling terminal, if stdin is one.
func foregroundPgid(pgid int) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	_ = unix.IoctlSetPointerInt(int(os.Stdin.Fd()), unix.TIOCSPGRP, pgid)
}

func currentForegroundPgid() (int, error) {
	return unix.IoctlGetInt(int(os.Stdin.Fd()), unix.TIOCGPGRP)
}
