package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jqs-project/jqs/internal/jobspec"
	"github.com/jqs-project/jqs/internal/jobstore"
)

func (a *app) cmdSubmit(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: jqs submit <script>")
		return 2
	}
	scriptArg := args[0]

	scriptPath, err := filepath.Abs(scriptArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}
	f, err := os.Open(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}
	defer f.Close()

	req, err := jobspec.Parse(f, scriptPath, func(msg string) {
		fmt.Fprintf(os.Stderr, "jqs: warning: %s\n", msg)
	})
	if badErr, ok := err.(*jobspec.BadDirectiveError); ok {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", badErr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}

	workdir := req.Workdir
	if workdir == "" {
		workdir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
			return 3
		}
	}
	stdoutPath := req.Stdout
	if !filepath.IsAbs(stdoutPath) {
		stdoutPath = filepath.Join(workdir, stdoutPath)
	}
	stderrPath := req.Stderr
	if !filepath.IsAbs(stderrPath) {
		stderrPath = filepath.Join(workdir, stderrPath)
	}

	jobid, err := a.store.NewJobID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}

	now := time.Now().Unix()
	rec := jobstore.Record{
		JobID:        jobid,
		Name:         req.Name,
		ScriptPath:   scriptPath,
		Workdir:      workdir,
		Cores:        req.Cores,
		MemMB:        req.MemMB,
		StdoutPath:   stdoutPath,
		StderrPath:   stderrPath,
		TimeLimitSec: req.TimeLimitSec,
		State:        jobstore.StateQueued,
		SubmitTime:   &now,
	}
	if err := a.store.Enqueue(rec); err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}

	fmt.Println(jobid)
	return 0
}
