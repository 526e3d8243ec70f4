// Package accountant tracks cores/memory totals and current usage and
// gates admission against them.
package accountant

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jqs-project/jqs/internal/jobstore"
)

// Limits mirrors limits.json.
type Limits struct {
	CoresTotal int `json:"cores_total"`
	MemMBTotal int `json:"mem_mb_total"`
}

// Usage mirrors usage.json.
type Usage struct {
	CoresUsed int `json:"cores_used"`
	MemMBUsed int `json:"mem_mb_used"`
}

// Request is the subset of a job record the accountant cares about.
type Request struct {
	Cores int
	MemMB int
}

// Accountant reads/writes limits.json and usage.json under
// resources.lock.
type Accountant struct {
	layout jobstore.Layout
	lock   *jobstore.FileLock
	logger *slog.Logger
}

func New(layout jobstore.Layout, logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{
		layout: layout,
		lock:   jobstore.NewFileLock(layout.ResourcesLockFile()),
		logger: logger,
	}
}

// EnsureDefaults writes limits.json/usage.json with the given defaults
// if they do not already exist.
func (a *Accountant) EnsureDefaults(coresTotal, memMBTotal int) error {
	return a.lock.WithLock(func() error {
		if _, err := os.Stat(a.layout.LimitsFile()); os.IsNotExist(err) {
			if err := writeJSON(a.layout.LimitsFile(), Limits{CoresTotal: coresTotal, MemMBTotal: memMBTotal}); err != nil {
				return err
			}
		}
		if _, err := os.Stat(a.layout.UsageFile()); os.IsNotExist(err) {
			if err := writeJSON(a.layout.UsageFile(), Usage{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Limits re-reads limits.json. Callers should call this at the start of
// every tick so that edits to limits.json while the scheduler runs take
// effect without a restart.
func (a *Accountant) Limits() (Limits, error) {
	var l Limits
	err := readJSON(a.layout.LimitsFile(), &l)
	return l, err
}

// Usage re-reads usage.json.
func (a *Accountant) Usage() (Usage, error) {
	var u Usage
	err := readJSON(a.layout.UsageFile(), &u)
	return u, err
}

// IsOversized reports whether req can never fit, regardless of current
// usage, because it exceeds the total budget.
func (a *Accountant) IsOversized(req Request, limits Limits) bool {
	return req.Cores > limits.CoresTotal || req.MemMB > limits.MemMBTotal
}

// Fits reports whether req can be admitted given current usage, without
// mutating anything. Callers that intend to admit should call
// TryReserve instead to avoid a race between Fits and Reserve.
func (a *Accountant) Fits(req Request) (bool, error) {
	limits, err := a.Limits()
	if err != nil {
		return false, err
	}
	usage, err := a.Usage()
	if err != nil {
		return false, err
	}
	return fits(req, limits, usage), nil
}

func fits(req Request, limits Limits, usage Usage) bool {
	return req.Cores+usage.CoresUsed <= limits.CoresTotal && req.MemMB+usage.MemMBUsed <= limits.MemMBTotal
}

// TryReserve checks fit and reserves atomically under resources.lock. It
// returns false (no error) if the request does not currently fit.
func (a *Accountant) TryReserve(req Request) (bool, error) {
	var reserved bool
	err := a.lock.WithLock(func() error {
		limits, err := a.Limits()
		if err != nil {
			return err
		}
		usage, err := a.Usage()
		if err != nil {
			return err
		}
		if !fits(req, limits, usage) {
			return nil
		}
		usage.CoresUsed += req.Cores
		usage.MemMBUsed += req.MemMB
		reserved = true
		return writeJSON(a.layout.UsageFile(), usage)
	})
	return reserved, err
}

// Release subtracts req from current usage, saturating at zero. A
// release that would go negative indicates a prior accounting bug and
// is logged as a warning rather than returned as an error, since
// releasing must never be allowed to fail a reap.
func (a *Accountant) Release(req Request) error {
	return a.lock.WithLock(func() error {
		usage, err := a.Usage()
		if err != nil {
			return err
		}
		if usage.CoresUsed-req.Cores < 0 || usage.MemMBUsed-req.MemMB < 0 {
			a.logger.Warn("resource release would go negative; saturating at zero",
				slog.Int("cores_used", usage.CoresUsed), slog.Int("release_cores", req.Cores),
				slog.Int("mem_mb_used", usage.MemMBUsed), slog.Int("release_mem_mb", req.MemMB))
		}
		usage.CoresUsed = saturateSub(usage.CoresUsed, req.Cores)
		usage.MemMBUsed = saturateSub(usage.MemMBUsed, req.MemMB)
		return writeJSON(a.layout.UsageFile(), usage)
	})
}

func saturateSub(a, b int) int {
	if a-b < 0 {
		return 0
	}
	return a - b
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
