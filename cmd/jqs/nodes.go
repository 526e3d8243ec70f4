package main

import (
	"fmt"
	"os"
)

func (a *app) cmdNodes(_ []string) int {
	limits, err := a.acct.Limits()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}
	usage, err := a.acct.Usage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		return 3
	}
	fmt.Printf("cores_used/cores_total: %d/%d\n", usage.CoresUsed, limits.CoresTotal)
	fmt.Printf("mem_mb_used/mem_mb_total: %d/%d\n", usage.MemMBUsed, limits.MemMBTotal)
	return 0
}
