// Package jobstore implements the on-disk job state machine: the job
// record codec, the directory layout and advisory locks, and the
// queue/running/finished state store.
package jobstore

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// State is a job's lifecycle state.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateFinished  State = "FINISHED"
	StateCancelled State = "CANCELLED"
	StateFailed    State = "FAILED"
)

// Record is a job's full persisted metadata, decoded from a single
// <jobid>.job file.
type Record struct {
	JobID             int64
	Name              string
	ScriptPath        string
	Workdir           string
	Cores             int
	MemMB             int
	StdoutPath        string
	StderrPath        string
	TimeLimitSec      *int64
	State             State
	SubmitTime        *int64
	StartTime         *int64
	EndTime           *int64
	SupervisorHandle  *string
	ExitCode          *int
	CancelRequested   bool
	Reason            *string
}

// InTerminalState reports whether the record's state is one of the
// terminal finished states.
func (r Record) InTerminalState() bool {
	switch r.State {
	case StateFinished, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// filename returns the zero-padded, lexically-sortable file name for a
// job id, e.g. jobid 7 -> "0000000007.job".
func filename(jobid int64) string {
	return fmt.Sprintf("%010d.job", jobid)
}

// Encode writes r in the key=value record format.
func Encode(w io.Writer, r Record) error {
	lines := []string{
		kvInt("jobid", r.JobID),
		kvString("name", r.Name),
		kvString("script_path", r.ScriptPath),
		kvString("workdir", r.Workdir),
		kvInt("cores", int64(r.Cores)),
		kvInt("mem_mb", int64(r.MemMB)),
		kvString("stdout_path", r.StdoutPath),
		kvString("stderr_path", r.StderrPath),
		kvOptInt("time_limit_sec", r.TimeLimitSec),
		kvString("state", string(r.State)),
		kvOptInt("submit_time", r.SubmitTime),
		kvOptInt("start_time", r.StartTime),
		kvOptInt("end_time", r.EndTime),
		kvOptString("supervisor_handle", r.SupervisorHandle),
		kvOptIntPtr(r.ExitCode, "exit_code"),
		kvBool("cancel_requested", r.CancelRequested),
		kvOptString("reason", r.Reason),
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}

// Decode reads a key=value record, tolerating unknown keys, blank
// lines, and "#"-prefixed comments.
func Decode(r io.Reader) (Record, error) {
	rec := Record{}
	fields := map[string]string{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return Record{}, fmt.Errorf("corrupt record at line %d: missing '='", lineNo)
		}
		key := line[:idx]
		value := line[idx+1:]
		fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var err error
	if rec.JobID, err = reqInt(fields, "jobid"); err != nil {
		return Record{}, err
	}
	rec.Name = reqString(fields, "name")
	rec.ScriptPath = reqString(fields, "script_path")
	rec.Workdir = reqString(fields, "workdir")
	if cores, err := reqInt(fields, "cores"); err != nil {
		return Record{}, err
	} else {
		rec.Cores = int(cores)
	}
	if mem, err := reqInt(fields, "mem_mb"); err != nil {
		return Record{}, err
	} else {
		rec.MemMB = int(mem)
	}
	rec.StdoutPath = reqString(fields, "stdout_path")
	rec.StderrPath = reqString(fields, "stderr_path")
	if rec.TimeLimitSec, err = optInt(fields, "time_limit_sec"); err != nil {
		return Record{}, err
	}
	rec.State = State(reqString(fields, "state"))
	if rec.SubmitTime, err = optInt(fields, "submit_time"); err != nil {
		return Record{}, err
	}
	if rec.StartTime, err = optInt(fields, "start_time"); err != nil {
		return Record{}, err
	}
	if rec.EndTime, err = optInt(fields, "end_time"); err != nil {
		return Record{}, err
	}
	rec.SupervisorHandle = optString(fields, "supervisor_handle")
	if exitCode, err := optInt(fields, "exit_code"); err != nil {
		return Record{}, err
	} else if exitCode != nil {
		v := int(*exitCode)
		rec.ExitCode = &v
	}
	rec.CancelRequested = reqString(fields, "cancel_requested") == "true"
	rec.Reason = optString(fields, "reason")

	if rec.State == "" {
		return Record{}, fmt.Errorf("corrupt record: missing state")
	}
	return rec, nil
}

func kvString(key, value string) string {
	return fmt.Sprintf("%s=%s", key, quote(value))
}

func kvOptString(key string, value *string) string {
	if value == nil {
		return fmt.Sprintf("%s=null", key)
	}
	return kvString(key, *value)
}

func kvInt(key string, value int64) string {
	return fmt.Sprintf("%s=%d", key, value)
}

func kvOptInt(key string, value *int64) string {
	if value == nil {
		return fmt.Sprintf("%s=null", key)
	}
	return kvInt(key, *value)
}

func kvOptIntPtr(value *int, key string) string {
	if value == nil {
		return fmt.Sprintf("%s=null", key)
	}
	return kvInt(key, int64(*value))
}

func kvBool(key string, value bool) string {
	return fmt.Sprintf("%s=%t", key, value)
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		var b strings.Builder
		for i := 0; i < len(inner); i++ {
			if inner[i] == '\\' && i+1 < len(inner) && (inner[i+1] == '"' || inner[i+1] == '\\') {
				b.WriteByte(inner[i+1])
				i++
				continue
			}
			b.WriteByte(inner[i])
		}
		return b.String()
	}
	return s
}

func reqString(fields map[string]string, key string) string {
	return unquote(fields[key])
}

func optString(fields map[string]string, key string) *string {
	v, ok := fields[key]
	if !ok || v == "null" {
		return nil
	}
	s := unquote(v)
	return &s
}

func reqInt(fields map[string]string, key string) (int64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("corrupt record: missing required field %q", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt record: field %q is not an integer: %w", key, err)
	}
	return n, nil
}

func optInt(fields map[string]string, key string) (*int64, error) {
	v, ok := fields[key]
	if !ok || v == "null" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt record: field %q is not an integer: %w", key, err)
	}
	return &n, nil
}
