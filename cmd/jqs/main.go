// Command jqs is the submission and inspection CLI for jqs: a thin
// view/mutation layer over the filesystem-rooted job store. It never
// talks to the scheduler daemon over a network; every command reads or
// writes the store directly.
package main

import (
	"fmt"
	"os"

	"github.com/jqs-project/jqs/internal/accountant"
	"github.com/jqs-project/jqs/internal/config"
	"github.com/jqs-project/jqs/internal/jobstore"
)

type app struct {
	store *jobstore.Store
	acct  *accountant.Accountant
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	layout := jobstore.NewLayout(cfg.Root)
	if err := layout.EnsureTree(); err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		os.Exit(3)
	}
	a := &app{
		store: jobstore.New(layout),
		acct:  accountant.New(layout, nil),
	}

	var code int
	switch os.Args[1] {
	case "submit":
		code = a.cmdSubmit(os.Args[2:])
	case "q":
		code = a.cmdQueue(os.Args[2:])
	case "info":
		code = a.cmdInfo(os.Args[2:])
	case "cancel":
		code = a.cmdCancel(os.Args[2:])
	case "nodes":
		code = a.cmdNodes(os.Args[2:])
	default:
		usage()
		code = 1
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: jqs <submit|q|info|cancel|nodes> [args]")
}
