// Package launcher abstracts the OS-level facility that runs a job
// script as a resource-limited unit. The scheduler depends only on this
// interface, never on a specific resource-limiting mechanism.
package launcher

import (
	"context"
	"errors"
)

// LaunchError is returned when a launcher fails to start a unit.
var LaunchError = errors.New("launch error")

// StillRunning is returned by ExitCode while the unit has not exited.
var StillRunning = errors.New("still running")

// Spec describes what to run and under what limits.
type Spec struct {
	JobID      int64
	Command    string // path to the job script
	Workdir    string
	Cores      int
	MemMB      int
	StdoutPath string
	StderrPath string
}

// Launcher is the seam for platform variation: a systemd transient
// scope, cgroups v2 directly, or a fake for tests.
type Launcher interface {
	// Launch starts spec as a resource-limited unit and returns an
	// opaque handle, derivable purely from spec.JobID so that
	// post-restart probing needs no in-memory state.
	Launch(ctx context.Context, spec Spec) (handle string, err error)
	// Alive reports whether the unit behind handle is still running.
	Alive(ctx context.Context, handle string) (bool, error)
	// ExitCode returns the unit's exit code once it has terminated, or
	// StillRunning if it has not.
	ExitCode(ctx context.Context, handle string) (int, error)
	// Terminate sends a single signal to the unit and returns
	// immediately; it never blocks waiting for the unit to exit. force
	// selects a forceful kill (SIGKILL) over the default graceful one
	// (SIGTERM). Callers that need a grace period before escalating are
	// responsible for calling Terminate again with force=true once that
	// period has elapsed; Alive/ExitCode/reap observe the actual exit.
	Terminate(ctx context.Context, handle string, force bool) error
}

// New returns the launcher named by kind ("systemd-run" or "process").
func New(kind string) (Launcher, error) {
	switch kind {
	case "", "systemd-run":
		return NewSystemdRun(), nil
	case "process":
		return NewProcess(), nil
	default:
		return nil, errors.New("unknown launcher kind: " + kind)
	}
}
