package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dsrph/registry_backend/config"
	"github.com/dsrph/registry_backend/workflow"
)

func main() {
	schedule := flag.Bool("schedule", false, "Run on the cron schedule instead of once")
	withAudit := flag.Bool("with-audit", false, "Also run the duplicate audit after the scan (one-shot mode)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()
	logger := config.GetLogger()

	codec, err := workflow.NewSnapshotCodec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "archive codec: %v\n", err)
		os.Exit(1)
	}

	cfg := workflow.DefaultPipelineConfig()
	stores := workflow.NewStores(db)
	archiver := workflow.NewArchiver(stores, codec, config.GetRedisLock(), cfg, logger)
	auditor := workflow.NewDedupAuditor(stores, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *schedule {
		scheduler := workflow.NewScheduler(archiver, auditor, logger)
		if err := scheduler.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "scheduler start: %v\n", err)
			os.Exit(1)
		}
		<-ctx.Done()
		scheduler.Stop()
		return
	}

	report, err := archiver.Scan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retention scan failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("retention scan: archived=%d expired=%d skipped=%d\n", report.Archived, report.Expired, report.Skipped)

	if *withAudit {
		flagged, err := auditor.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dedup audit failed: %v\n", err)
			os.Exit(1)
		}
		unresolved, err := stores.Reviews.ListUnresolved(ctx, 1000)
		if err != nil {
			fmt.Fprintf(os.Stderr, "listing unresolved flags failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dedup audit: flagged=%d unresolved=%d\n", flagged, len(unresolved))
		for _, flag := range unresolved {
			fmt.Printf("  %s ~ %s score=%.2f\n", flag.EntityID, flag.CandidateID, flag.SimilarityScore)
		}
	}
}
