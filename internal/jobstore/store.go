package jobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned by Find/MarkCancelRequested when a jobid does
// not exist in any of queue/, running/, finished/.
var ErrNotFound = errors.New("job not found")

// ErrAlreadyTerminal is returned by MarkCancelRequested when the job is
// already in a terminal state.
var ErrAlreadyTerminal = errors.New("job already terminal")

// Store is the filesystem-rooted job state store.
type Store struct {
	Layout    Layout
	jobIDLock *FileLock
}

func New(layout Layout) *Store {
	return &Store{
		Layout:    layout,
		jobIDLock: NewFileLock(layout.JobIDLockFile()),
	}
}

// NewJobID atomically increments and returns the next jobid, under
// jobid.lock.
func (s *Store) NewJobID() (int64, error) {
	var next int64
	err := s.jobIDLock.WithLock(func() error {
		path := s.Layout.JobIDCounterFile()
		cur := int64(0)
		if data, err := os.ReadFile(path); err == nil {
			cur, _ = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("read jobid counter: %w", err)
		}
		next = cur + 1
		return writeFileAtomic(path, []byte(strconv.FormatInt(next, 10)))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Enqueue writes a new record into queue/ via temp+rename.
func (s *Store) Enqueue(r Record) error {
	r.State = StateQueued
	return s.writeInto(s.Layout.QueueDir(), r)
}

// List returns all decodable records in a directory, in lexical (=
// submission order, thanks to zero-padded ids) filename order. Records
// that fail to decode are omitted; use ListIDs + ReadAt to discover and
// quarantine them.
func (s *Store) List(dir string) ([]Record, error) {
	ids, err := s.ListIDs(dir)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, id := range ids {
		rec, err := s.ReadAt(dir, id)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListIDs returns the jobids present in dir, in ascending (= submission
// order) order, regardless of whether each record decodes cleanly.
func (s *Store) ListIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".job") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		ids = append(ids, corruptJobID(name))
	}
	return ids, nil
}

// ReadAt decodes the record for jobid in dir without searching other
// directories.
func (s *Store) ReadAt(dir string, jobid int64) (Record, error) {
	return s.readRecord(filepath.Join(dir, filename(jobid)))
}

// QuarantineCorrupt moves an undecodable record file straight to
// finished/ as FAILED(CorruptRecord), bypassing the normal decode+mutate
// path since the source can't be decoded. The finished/ record holds
// only jobid, state and reason; the original file's contents are not
// kept.
func (s *Store) QuarantineCorrupt(fromDir string, jobid int64, cause error) error {
	srcPath := filepath.Join(fromDir, filename(jobid))
	rec := Record{
		JobID:  jobid,
		State:  StateFailed,
		Reason: strPtr("CorruptRecord: " + cause.Error()),
	}
	if err := s.writeInto(s.Layout.FinishedDir(), rec); err != nil {
		return err
	}
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove quarantined record %s: %w", srcPath, err)
	}
	return nil
}

// corruptJobID best-effort parses the jobid out of a filename whose
// contents failed to decode, so callers can still report which job is
// corrupt.
func corruptJobID(name string) int64 {
	base := strings.TrimSuffix(name, ".job")
	n, _ := strconv.ParseInt(base, 10, 64)
	return n
}

func (s *Store) readRecord(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Find scans running/, queue/, finished/ in that order for jobid and
// returns its directory and record.
func (s *Store) Find(jobid int64) (dir string, rec Record, err error) {
	for _, d := range []string{s.Layout.RunningDir(), s.Layout.QueueDir(), s.Layout.FinishedDir()} {
		path := filepath.Join(d, filename(jobid))
		if _, statErr := os.Stat(path); statErr == nil {
			rec, err = s.readRecord(path)
			return d, rec, err
		}
	}
	return "", Record{}, ErrNotFound
}

// Move loads the record at <fromDir>/<jobid>.job, applies mutate, writes
// it into toDir via temp+rename, and unlinks the source. The composite
// operation is not atomic across directories; RecoverCrashed restores
// the invariant after a crash between the two steps.
func (s *Store) Move(jobid int64, fromDir, toDir string, mutate func(Record) Record) (Record, error) {
	srcPath := filepath.Join(fromDir, filename(jobid))
	rec, err := s.readRecord(srcPath)
	if err != nil {
		return Record{}, err
	}
	rec = mutate(rec)
	if err := s.writeInto(toDir, rec); err != nil {
		return Record{}, err
	}
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		return Record{}, fmt.Errorf("remove source record %s: %w", srcPath, err)
	}
	return rec, nil
}

// Rewrite performs an in-place update of a record that stays in dir
// (e.g. stamping supervisor_handle once a job is running), via
// temp+rename within the same directory.
func (s *Store) Rewrite(dir string, jobid int64, mutate func(Record) Record) (Record, error) {
	path := filepath.Join(dir, filename(jobid))
	rec, err := s.readRecord(path)
	if err != nil {
		return Record{}, err
	}
	rec = mutate(rec)
	if err := s.writeInto(dir, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// MarkCancelRequested sets cancel_requested=true on a QUEUED or RUNNING
// job via an in-place atomic rewrite.
func (s *Store) MarkCancelRequested(jobid int64) error {
	dir, rec, err := s.Find(jobid)
	if err != nil {
		return err
	}
	if rec.InTerminalState() {
		return ErrAlreadyTerminal
	}
	_, err = s.Rewrite(dir, jobid, func(r Record) Record {
		r.CancelRequested = true
		return r
	})
	return err
}

func (s *Store) writeInto(dir string, r Record) error {
	path := filepath.Join(dir, filename(r.JobID))
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp record %s: %w", tmp, err)
	}
	if err := Encode(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp record %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp record %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// RecoverCrashed deletes stale .tmp files and, for any jobid present in
// more than one of queue/running/finished, keeps the copy in whichever
// directory a move always writes its target last (finished > running >
// queue) and removes the rest. Every move in this system writes its
// destination before unlinking its source, so the destination copy is
// always the newer one regardless of which of the three possible moves
// (queue->running, running->finished, queue->finished) crashed
// mid-flight; this ordering keeps that destination copy in all three
// cases. It is run once at scheduler startup before the first admit
// tick.
func (s *Store) RecoverCrashed() error {
	dirs := []string{s.Layout.QueueDir(), s.Layout.RunningDir(), s.Layout.FinishedDir()}
	for _, d := range dirs {
		if err := removeStaleTemps(d); err != nil {
			return err
		}
	}

	seen := map[int64]string{}
	priority := []string{s.Layout.FinishedDir(), s.Layout.RunningDir(), s.Layout.QueueDir()}
	for _, d := range priority {
		entries, err := os.ReadDir(d)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", d, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".job") {
				continue
			}
			id := corruptJobID(e.Name())
			if authoritative, dup := seen[id]; dup {
				if err := os.Remove(filepath.Join(d, e.Name())); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove stale duplicate of job %d (kept in %s): %w", id, authoritative, err)
				}
				continue
			}
			seen[id] = d
		}
	}
	return nil
}

func removeStaleTemps(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tmp") {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale temp %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
