package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dsrph/registry_backend/config"
	"github.com/dsrph/registry_backend/models"
	"github.com/dsrph/registry_backend/workflow"
)

func main() {
	batchID := flag.String("batch-id", "", "Required: external batch id")
	source := flag.String("source", "", "Required: source system (LISTAHANAN/I_REGISTRO/MANUAL_ENTRY)")
	dataType := flag.String("data-type", "", "Required: data type (HOUSEHOLD/INDIVIDUAL/ECONOMIC_PROFILE)")
	filePath := flag.String("file", "", "Required: input file (.xlsx, .csv or .json)")
	priority := flag.String("priority", "NORMAL", "Optional: processing priority (HIGH/NORMAL/LOW)")
	submittedBy := flag.String("submitted-by", "cli", "Optional: submitter identity")
	migrate := flag.Bool("migrate", false, "Run schema migration before submitting")
	flag.Parse()

	if strings.TrimSpace(*batchID) == "" || strings.TrimSpace(*source) == "" ||
		strings.TrimSpace(*dataType) == "" || strings.TrimSpace(*filePath) == "" {
		fmt.Fprintln(os.Stderr, "--batch-id, --source, --data-type and --file are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if *migrate {
		if err := models.Migrate(db); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	records, err := workflow.NewLegacyParser().ParseFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse %s: %v\n", *filePath, err)
		os.Exit(1)
	}

	cfg := workflow.DefaultPipelineConfig()
	stores := workflow.NewStores(db)

	var verifier workflow.PSNVerifier
	if baseURL := os.Getenv("PSN_VERIFIER_URL"); baseURL != "" {
		config.ConnectRedisWithRetry()
		verifier = workflow.NewCachedPSNVerifier(workflow.NewHTTPPSNVerifier(baseURL, os.Getenv("PSN_VERIFIER_API_KEY")))
	}
	processor := workflow.NewRecordProcessor(stores, verifier, cfg, logger)
	coordinator := workflow.NewBatchCoordinator(stores, processor, cfg, logger)

	ctx := context.Background()
	batch, err := coordinator.Submit(ctx, workflow.BatchSubmission{
		BatchID:      *batchID,
		SourceSystem: models.SourceSystem(strings.ToUpper(*source)),
		DataType:     models.DataType(strings.ToUpper(*dataType)),
		Priority:     models.ProcessingPriority(strings.ToUpper(*priority)),
		SubmittedBy:  *submittedBy,
		FilePath:     *filePath,
		Records:      records,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch submission failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("batch %s: %s\n", batch.BatchID, batch.Status)
	fmt.Printf("  total=%d success=%d failed=%d duplicates=%d\n",
		batch.TotalRecords, batch.SuccessRecords, batch.FailedRecords, batch.DuplicateRecords)
	if batch.Status == models.BatchStatusFailed {
		os.Exit(1)
	}
}
