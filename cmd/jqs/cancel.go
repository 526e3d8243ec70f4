package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jqs-project/jqs/internal/jobstore"
)

func (a *app) cmdCancel(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: jqs cancel <jobid>")
		return 4
	}
	jobid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: invalid jobid %q\n", args[0])
		return 4
	}
	err = a.store.MarkCancelRequested(jobid)
	switch err {
	case nil:
		return 0
	case jobstore.ErrNotFound:
		fmt.Fprintf(os.Stderr, "jqs: job %d not found\n", jobid)
		return 4
	case jobstore.ErrAlreadyTerminal:
		fmt.Fprintf(os.Stderr, "jqs: job %d is already terminal\n", jobid)
		return 5
	default:
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}
}
