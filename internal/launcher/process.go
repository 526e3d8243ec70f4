package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a portable fallback launcher for hosts without systemd
// --user (containers, CI, local development). It runs the job under a
// shell wrapper that applies an RLIMIT_AS memory cap and records the
// exit code to disk so a later, unrelated process can probe it purely
// from jobid, matching the handle contract of Launcher.
type Process struct {
	// StateDir holds "<jobid>.pid" and "<jobid>.exit" files. Defaults to
	// os.TempDir() when empty.
	StateDir string
}

func NewProcess() *Process {
	return &Process{}
}

func (l *Process) stateDir() string {
	if l.StateDir != "" {
		return l.StateDir
	}
	return os.TempDir()
}

func (l *Process) pidFile(handle string) string  { return filepath.Join(l.stateDir(), handle+".pid") }
func (l *Process) exitFile(handle string) string { return filepath.Join(l.stateDir(), handle+".exit") }

func processHandle(jobID int64) string {
	return fmt.Sprintf("%010d", jobID)
}

func (l *Process) Launch(ctx context.Context, spec Spec) (string, error) {
	handle := processHandle(spec.JobID)
	memBytes := int64(spec.MemMB) * 1024 * 1024
	// ulimit -v takes KiB.
	body := fmt.Sprintf("ulimit -v %d\n%s >>%s 2>>%s\necho $? > %s",
		memBytes/1024, shellQuote(spec.Command), shellQuote(spec.StdoutPath), shellQuote(spec.StderrPath),
		shellQuote(l.exitFile(handle)))
	script, err := writeScratchScript(l.StateDir, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", LaunchError, err)
	}

	cmd := exec.Command("/bin/sh", script)
	cmd.Dir = spec.Workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %v", LaunchError, err)
	}
	// Released so the scheduler process does not need to Wait() on it;
	// the wrapper script records the exit code to exitFile itself.
	cmd.Process.Release()
	if err := os.WriteFile(l.pidFile(handle), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		return "", fmt.Errorf("%w: write pid file: %v", LaunchError, err)
	}
	return handle, nil
}

func (l *Process) Alive(ctx context.Context, handle string) (bool, error) {
	pid, err := l.readPID(handle)
	if err != nil {
		return false, err
	}
	if _, exitErr := os.Stat(l.exitFile(handle)); exitErr == nil {
		return false, nil
	}
	err = unix.Kill(pid, 0)
	if err == nil {
		return true, nil
	}
	if err == unix.ESRCH {
		return false, nil
	}
	return false, err
}

func (l *Process) ExitCode(ctx context.Context, handle string) (int, error) {
	data, err := os.ReadFile(l.exitFile(handle))
	if os.IsNotExist(err) {
		return 0, StillRunning
	}
	if err != nil {
		return 0, err
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		return 0, fmt.Errorf("parse exit code for %s: %w", handle, convErr)
	}
	return code, nil
}

func (l *Process) Terminate(ctx context.Context, handle string, force bool) error {
	pid, err := l.readPID(handle)
	if err != nil {
		return err
	}
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(-pid, sig); err != nil && err != unix.ESRCH {
		return fmt.Errorf("signal %s: %w", handle, err)
	}
	return nil
}

func (l *Process) readPID(handle string) (int, error) {
	data, err := os.ReadFile(l.pidFile(handle))
	if err != nil {
		return 0, fmt.Errorf("read pid file for %s: %w", handle, err)
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		return 0, fmt.Errorf("parse pid for %s: %w", handle, convErr)
	}
	return pid, nil
}
