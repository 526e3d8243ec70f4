package launcher

import (
	"context"
	"testing"
)

func TestFakeLaunchAliveFinishExitCode(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	handle, err := f.Launch(ctx, Spec{JobID: 42, Cores: 1, MemMB: 256})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	alive, err := f.Alive(ctx, handle)
	if err != nil || !alive {
		t.Fatalf("expected alive right after launch: alive=%v err=%v", alive, err)
	}

	if _, err := f.ExitCode(ctx, handle); err != StillRunning {
		t.Fatalf("expected StillRunning before finish, got %v", err)
	}

	f.Finish(handle, 7)

	alive, err = f.Alive(ctx, handle)
	if err != nil || alive {
		t.Fatalf("expected not alive after finish: alive=%v err=%v", alive, err)
	}
	code, err := f.ExitCode(ctx, handle)
	if err != nil || code != 7 {
		t.Fatalf("expected exit code 7, got %d err=%v", code, err)
	}
}

func TestFakeTerminateOnlyKillsWhenForced(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	handle, err := f.Launch(ctx, Spec{JobID: 1})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	if err := f.Terminate(ctx, handle, false); err != nil {
		t.Fatalf("graceful terminate: %v", err)
	}
	alive, err := f.Alive(ctx, handle)
	if err != nil || !alive {
		t.Fatalf("expected still alive after graceful signal: alive=%v err=%v", alive, err)
	}

	if err := f.Terminate(ctx, handle, true); err != nil {
		t.Fatalf("forceful terminate: %v", err)
	}
	alive, err = f.Alive(ctx, handle)
	if err != nil || alive {
		t.Fatalf("expected not alive after forceful terminate: alive=%v err=%v", alive, err)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New("bogus"); err == nil {
		t.Fatalf("expected error for unknown launcher kind")
	}
}

func TestNewDefaultsToSystemdRun(t *testing.T) {
	l, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := l.(*SystemdRun); !ok {
		t.Fatalf("expected default launcher to be SystemdRun, got %T", l)
	}
}

func TestUnitNameAndProcessHandleDerivedFromJobID(t *testing.T) {
	if got, want := unitName(7), "jqs-job-0000000007"; got != want {
		t.Fatalf("unitName: got %s want %s", got, want)
	}
	if got, want := processHandle(7), "0000000007"; got != want {
		t.Fatalf("processHandle: got %s want %s", got, want)
	}
}
