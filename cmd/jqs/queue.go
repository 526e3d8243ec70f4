package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jqs-project/jqs/internal/jobstore"
)

func (a *app) cmdQueue(_ []string) int {
	fmt.Printf("%-8s %-10s %-16s %5s %8s %12s %12s %12s\n",
		"JOBID", "STATE", "NAME", "CORES", "MEM_MB", "SUBMIT", "START", "END")
	for _, dir := range []string{a.store.Layout.QueueDir(), a.store.Layout.RunningDir(), a.store.Layout.FinishedDir()} {
		recs, err := a.store.List(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
			return 3
		}
		for _, r := range recs {
			fmt.Printf("%-8d %-10s %-16s %5d %8d %12s %12s %12s\n",
				r.JobID, r.State, r.Name, r.Cores, r.MemMB,
				formatUnix(r.SubmitTime), formatUnix(r.StartTime), formatUnix(r.EndTime))
		}
	}
	return 0
}

func formatUnix(sec *int64) string {
	if sec == nil {
		return "-"
	}
	return strconv.FormatInt(*sec, 10)
}

func (a *app) cmdInfo(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: jqs info <jobid>")
		return 4
	}
	jobid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: invalid jobid %q\n", args[0])
		return 4
	}
	_, rec, err := a.store.Find(jobid)
	if err == jobstore.ErrNotFound {
		fmt.Fprintf(os.Stderr, "jqs: job %d not found\n", jobid)
		return 4
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}
	printRecord(rec)
	return 0
}

func printRecord(r jobstore.Record) {
	fmt.Printf("jobid: %d\n", r.JobID)
	fmt.Printf("name: %s\n", r.Name)
	fmt.Printf("state: %s\n", r.State)
	fmt.Printf("script_path: %s\n", r.ScriptPath)
	fmt.Printf("workdir: %s\n", r.Workdir)
	fmt.Printf("cores: %d\n", r.Cores)
	fmt.Printf("mem_mb: %d\n", r.MemMB)
	fmt.Printf("stdout_path: %s\n", r.StdoutPath)
	fmt.Printf("stderr_path: %s\n", r.StderrPath)
	fmt.Printf("time_limit_sec: %s\n", formatUnix(r.TimeLimitSec))
	fmt.Printf("submit_time: %s\n", formatUnix(r.SubmitTime))
	fmt.Printf("start_time: %s\n", formatUnix(r.StartTime))
	fmt.Printf("end_time: %s\n", formatUnix(r.EndTime))
	if r.SupervisorHandle != nil {
		fmt.Printf("supervisor_handle: %s\n", *r.SupervisorHandle)
	} else {
		fmt.Println("supervisor_handle: -")
	}
	if r.ExitCode != nil {
		fmt.Printf("exit_code: %d\n", *r.ExitCode)
	} else {
		fmt.Println("exit_code: -")
	}
	fmt.Printf("cancel_requested: %t\n", r.CancelRequested)
	if r.Reason != nil {
		fmt.Printf("reason: %s\n", *r.Reason)
	}
}
