package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JulianTonti/specify7/internal/config"
	"github.com/JulianTonti/specify7/internal/datamodel"
	"github.com/JulianTonti/specify7/internal/logging"
	"github.com/JulianTonti/specify7/internal/rows"
	"github.com/JulianTonti/specify7/internal/store"
	"github.com/JulianTonti/specify7/internal/upload"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	var (
		datamodelPath = flag.String("datamodel", "datamodel.json", "path to the datamodel definition")
		planPath      = flag.String("plan", "", "path to the upload plan document (required)")
		scopePath     = flag.String("scope", "", "path to the collection scope document (required)")
		dataPath      = flag.String("data", "", "path to the dataset, .csv or .xlsx (required)")
		sheet         = flag.String("sheet", "", "worksheet name for .xlsx input (default: first sheet)")
		dryRun        = flag.Bool("dry-run", false, "validate against an empty in-memory store instead of the database")
	)
	flag.Parse()

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *planPath == "" || *scopePath == "" || *dataPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, *datamodelPath, *planPath, *scopePath, *dataPath, *sheet, *dryRun); err != nil {
		slog.Error("upload failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, datamodelPath, planPath, scopePath, dataPath, sheet string, dryRun bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Upload.Timeout)
	defer cancel()

	dm, err := loadDatamodel(datamodelPath)
	if err != nil {
		return err
	}

	scope, err := loadScope(scopePath)
	if err != nil {
		return err
	}

	planDoc, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	plan, err := upload.ParsePlan(dm, scope, planDoc)
	if err != nil {
		return err
	}

	dataRows, err := loadRows(dataPath, sheet)
	if err != nil {
		return err
	}
	if len(dataRows) > cfg.Upload.MaxRows {
		return fmt.Errorf("dataset has %d rows, limit is %d", len(dataRows), cfg.Upload.MaxRows)
	}

	st, cleanup, err := openStore(ctx, cfg, dm, dryRun)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := upload.NewEngine(st, plan, slog.Default())
	slog.Info("starting upload", "job_id", engine.JobID(), "rows", len(dataRows), "dry_run", dryRun)

	results, err := engine.UploadRows(ctx, dataRows)
	if err != nil {
		return err
	}

	return writeReport(os.Stdout, results)
}

func loadDatamodel(path string) (*datamodel.Datamodel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open datamodel: %w", err)
	}
	defer f.Close()
	dm, err := datamodel.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load datamodel: %w", err)
	}
	return dm, nil
}

func loadScope(path string) (*upload.Scope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scope: %w", err)
	}
	scope := &upload.Scope{}
	if err := json.Unmarshal(data, scope); err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	return scope, nil
}

func loadRows(path, sheet string) ([]upload.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return rows.FromXLSX(f, sheet)
	default:
		return rows.FromCSV(f)
	}
}

func openStore(ctx context.Context, cfg *config.Config, dm *datamodel.Datamodel, dryRun bool) (upload.Store, func(), error) {
	if dryRun {
		return store.NewMemory(dm), func() {}, nil
	}

	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required unless -dry-run is set")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return store.NewPostgres(pool, dm), pool.Close, nil
}

// writeReport emits one tagged-JSON result line per row, then the aggregated
// validation report.
func writeReport(w io.Writer, results []*upload.UploadResult) error {
	enc := json.NewEncoder(w)
	for _, result := range results {
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	report := make([]upload.RowValidation, 0, len(results))
	for _, result := range results {
		report = append(report, result.Validation())
	}
	if err := enc.Encode(map[string]any{"validation": report}); err != nil {
		return fmt.Errorf("encode validation report: %w", err)
	}
	return nil
}
