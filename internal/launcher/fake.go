package launcher

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Launcher for scheduler tests; it never touches
// the OS.
type Fake struct {
	mu       sync.Mutex
	units    map[string]*fakeUnit
	OnLaunch func(spec Spec) error
}

type fakeUnit struct {
	alive    bool
	exitCode int
	done     bool
}

func NewFake() *Fake {
	return &Fake{units: make(map[string]*fakeUnit)}
}

func (f *Fake) Launch(ctx context.Context, spec Spec) (string, error) {
	if f.OnLaunch != nil {
		if err := f.OnLaunch(spec); err != nil {
			return "", err
		}
	}
	handle := fmt.Sprintf("fake-%010d", spec.JobID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units[handle] = &fakeUnit{alive: true}
	return handle, nil
}

func (f *Fake) Alive(ctx context.Context, handle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[handle]
	if !ok {
		return false, fmt.Errorf("unknown handle %s", handle)
	}
	return u.alive, nil
}

func (f *Fake) ExitCode(ctx context.Context, handle string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[handle]
	if !ok {
		return 0, fmt.Errorf("unknown handle %s", handle)
	}
	if !u.done {
		return 0, StillRunning
	}
	return u.exitCode, nil
}

// Terminate mirrors the non-blocking real adapters: a graceful signal
// (force=false) is recorded but does not by itself kill the unit, since
// a real process may ignore or take time to act on SIGTERM. A forceful
// signal (force=true) always succeeds immediately, like SIGKILL.
func (f *Fake) Terminate(ctx context.Context, handle string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.units[handle]
	if !ok {
		return fmt.Errorf("unknown handle %s", handle)
	}
	if force {
		u.alive = false
		u.done = true
		u.exitCode = -1
	}
	return nil
}

// Finish marks handle as exited with code, for tests driving the
// scheduler's reap step.
func (f *Fake) Finish(handle string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.units[handle]; ok {
		u.alive = false
		u.done = true
		u.exitCode = code
	}
}
