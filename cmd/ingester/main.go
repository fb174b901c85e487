package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"indicator-platform/internal/config"
	"indicator-platform/internal/repository"
	"indicator-platform/internal/services"
	"indicator-platform/pkg/database"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

func main() {
	// Parse command-line flags
	filePath := flag.String("file", "", "Path to the xlsx file to load")
	indicatorID := flag.Int64("indicator", 0, "ID of the indicator to load data into")
	flag.Parse()

	if *filePath == "" || *indicatorID == 0 {
		fmt.Fprintln(os.Stderr, "Usage: ingester -file <path.xlsx> -indicator <id>")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("indicator-ingester", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting bulk data load", logging.Fields{
		"version":      "1.0.0",
		"file":         *filePath,
		"indicator_id": *indicatorID,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("indicator_ingester")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository and service
	repo := repository.NewIndicatorRepository(db, logger, metricsCollector)
	ingestionService := services.NewIngestionService(repo, logger, metricsCollector)

	// Open and ingest the file
	file, err := os.Open(*filePath)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to open file", logging.Fields{
			"file": *filePath,
		}, err)
	}
	defer file.Close()

	result, err := ingestionService.IngestFile(ctx, *indicatorID, file)
	if err != nil {
		var allFailed *services.AllRowsFailedError
		if errors.As(err, &allFailed) {
			fmt.Println(strings.Repeat("=", 80))
			fmt.Println("LOAD FAILED: every row was rejected")
			fmt.Println(strings.Repeat("=", 80))
			for _, errMsg := range allFailed.Errors {
				fmt.Printf("  - %s\n", errMsg)
			}
			os.Exit(1)
		}
		logger.Fatal(ctx, "[INGESTION_ERROR] Load failed", logging.Fields{
			"error": err.Error(),
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("LOAD COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Records Created: %d\n", result.Created)
	fmt.Printf("Rows Failed:     %d\n", len(result.Errors))

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Load completed", logging.Fields{
		"records_created": result.Created,
		"rows_failed":     len(result.Errors),
		"partial":         result.Partial,
	})
}
