package launcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// SystemdRun launches jobs as transient systemd --user service units via
// systemd-run, giving each job its own cgroup with CPUQuota and
// MemoryMax enforced by the kernel rather than by the scheduler.
type SystemdRun struct {
	// ScratchDir holds the per-launch wrapper scripts. Defaults to
	// os.TempDir() when empty.
	ScratchDir string
}

func NewSystemdRun() *SystemdRun {
	return &SystemdRun{}
}

func unitName(jobID int64) string {
	return fmt.Sprintf("jqs-job-%010d", jobID)
}

func (l *SystemdRun) Launch(ctx context.Context, spec Spec) (string, error) {
	handle := unitName(spec.JobID)
	script, err := writeScratchScript(l.ScratchDir, fmt.Sprintf("exec %s >>%s 2>>%s",
		shellQuote(spec.Command), shellQuote(spec.StdoutPath), shellQuote(spec.StderrPath)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", LaunchError, err)
	}
	args := []string{
		"--user",
		"--unit=" + handle,
		"--collect",
		"--quiet",
		"--working-directory=" + spec.Workdir,
		fmt.Sprintf("--property=CPUQuota=%d%%", spec.Cores*100),
		fmt.Sprintf("--property=MemoryMax=%dM", spec.MemMB),
		"--",
		script,
	}
	cmd := exec.CommandContext(ctx, "systemd-run", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: systemd-run %s: %v: %s", LaunchError, handle, err, strings.TrimSpace(string(out)))
	}
	return handle, nil
}

func (l *SystemdRun) Alive(ctx context.Context, handle string) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "--user", "is-active", "--quiet", handle+".service")
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

func (l *SystemdRun) ExitCode(ctx context.Context, handle string) (int, error) {
	alive, err := l.Alive(ctx, handle)
	if err != nil {
		return 0, err
	}
	if alive {
		return 0, StillRunning
	}
	out, err := exec.CommandContext(ctx, "systemctl", "--user", "show", handle+".service",
		"--property=ExecMainStatus", "--value").Output()
	if err != nil {
		return 0, fmt.Errorf("query exit code for %s: %w", handle, err)
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(string(out)))
	if convErr != nil {
		return 0, fmt.Errorf("parse exit code for %s: %w", handle, convErr)
	}
	return code, nil
}

func (l *SystemdRun) Terminate(ctx context.Context, handle string, force bool) error {
	signal := "TERM"
	if force {
		signal = "KILL"
	}
	if err := exec.CommandContext(ctx, "systemctl", "--user", "kill", "--signal="+signal, handle+".service").Run(); err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(signal), handle, err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
