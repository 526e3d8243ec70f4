package jobstore

import (
	"bytes"
	"testing"
)

func sampleRecord() Record {
	tl := int64(120)
	submit := int64(1000)
	start := int64(1010)
	handle := "jqs-job-0000000007"
	exit := 0
	reason := "it's \"fine\"\\ok"
	return Record{
		JobID:            7,
		Name:             `my "job"`,
		ScriptPath:       "/home/u/job.sh",
		Workdir:          "/home/u",
		Cores:            2,
		MemMB:            1024,
		StdoutPath:       "/home/u/stdout.log",
		StderrPath:       "/home/u/stderr.log",
		TimeLimitSec:     &tl,
		State:            StateRunning,
		SubmitTime:       &submit,
		StartTime:        &start,
		EndTime:          nil,
		SupervisorHandle: &handle,
		ExitCode:         &exit,
		CancelRequested:  true,
		Reason:           &reason,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := sampleRecord()
	var buf bytes.Buffer
	if err := Encode(&buf, r); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assertRecordsEqual(t, r, got)
}

func TestDecodeToleratesUnknownKeysAndComments(t *testing.T) {
	input := `# a comment

jobid=1
name="x"
script_path="/a.sh"
workdir="/"
cores=1
mem_mb=512
stdout_path="/o"
stderr_path="/e"
time_limit_sec=null
state=QUEUED
submit_time=5
start_time=null
end_time=null
supervisor_handle=null
exit_code=null
cancel_requested=false
reason=null
future_field="ignored"
`
	rec, err := Decode(bytes.NewReader([]byte(input)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.JobID != 1 || rec.State != StateQueued {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestDecodeMissingEqualsIsCorrupt(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a kv line\n")))
	if err == nil {
		t.Fatalf("expected corrupt record error")
	}
}

func assertRecordsEqual(t *testing.T, want, got Record) {
	t.Helper()
	if want.JobID != got.JobID || want.Name != got.Name || want.State != got.State ||
		want.Cores != got.Cores || want.MemMB != got.MemMB || want.CancelRequested != got.CancelRequested {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
	if (want.TimeLimitSec == nil) != (got.TimeLimitSec == nil) || (want.TimeLimitSec != nil && *want.TimeLimitSec != *got.TimeLimitSec) {
		t.Fatalf("time_limit_sec mismatch: want %v got %v", want.TimeLimitSec, got.TimeLimitSec)
	}
	if (want.SupervisorHandle == nil) != (got.SupervisorHandle == nil) || (want.SupervisorHandle != nil && *want.SupervisorHandle != *got.SupervisorHandle) {
		t.Fatalf("supervisor_handle mismatch: want %v got %v", want.SupervisorHandle, got.SupervisorHandle)
	}
	if (want.Reason == nil) != (got.Reason == nil) || (want.Reason != nil && *want.Reason != *got.Reason) {
		t.Fatalf("reason mismatch: want %v got %v", want.Reason, got.Reason)
	}
}
