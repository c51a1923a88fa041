// Command ntt-recover is the operator-facing recovery tool (C7): it
// lists failed inodes grouped by (status, error_type) and, on
// request, resets failed_retryable inodes for a medium back to
// pending so the next worker pass retries them (spec.md §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/db"
	"github.com/vm-wylbur/ntt-sub000/recovery"
)

func main() {
	medium := flag.String("medium", "", "medium_hash to inspect or reset (required)")
	errorType := flag.String("error-type", "", "error_type to reset (required with -reset)")
	reset := flag.Bool("reset", false, "reset matching failed_retryable inodes to pending")
	dryRun := flag.Bool("dry-run", true, "with -reset, report the row count without mutating (pass -dry-run=false to execute)")
	flag.Parse()

	if *medium == "" {
		fmt.Fprintln(os.Stderr, "ntt-recover: -medium is required")
		os.Exit(1)
	}

	ntt.ConfigureLogging()
	ctx := context.Background()

	cfg, err := ntt.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ntt-recover: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ntt-recover: connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *reset {
		if *errorType == "" {
			fmt.Fprintln(os.Stderr, "ntt-recover: -error-type is required with -reset")
			os.Exit(1)
		}
		runReset(ctx, pool, *medium, ntt.ErrorType(*errorType), *dryRun)
		return
	}

	runList(ctx, pool, *medium)
}

func runList(ctx context.Context, pool db.Querier, medium string) {
	counts, err := recovery.ListFailures(ctx, pool, medium)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ntt-recover: list-failures: %v\n", err)
		os.Exit(1)
	}
	if len(counts) == 0 {
		fmt.Printf("no failures recorded for medium %s\n", medium)
		return
	}

	fmt.Printf("%-20s %-16s %8s\n", "status", "error_type", "count")
	for _, fc := range counts {
		fmt.Printf("%-20s %-16s %8d\n", fc.Status, fc.ErrorType, fc.Count)
	}
}

func runReset(ctx context.Context, pool db.Querier, medium string, errType ntt.ErrorType, dryRun bool) {
	result, err := recovery.ResetFailures(ctx, pool, medium, errType, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ntt-recover: reset-failures: %v\n", err)
		os.Exit(1)
	}

	if result.DryRun {
		fmt.Printf("dry run: %d row(s) for medium=%s error_type=%s would reset to pending\n", result.RowCount, medium, errType)
		fmt.Println("pass -dry-run=false to execute")
		return
	}
	fmt.Printf("reset %d row(s) for medium=%s error_type=%s to pending\n", result.RowCount, medium, errType)
}
