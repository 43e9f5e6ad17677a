package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// PlanError is a fatal plan or configuration problem: an unknown table, an
// unknown field or relationship, a malformed document, or an unrecognized
// tree table. The job cannot start.
type PlanError struct {
	Message string
}

func (e *PlanError) Error() string { return "upload plan: " + e.Message }

func planErrorf(format string, args ...any) *PlanError {
	return &PlanError{Message: fmt.Sprintf(format, args...)}
}

// BusinessRuleError is a store-level rejection of a would-be record. It is
// recoverable at row granularity: the containing row rolls back, other rows
// proceed.
type BusinessRuleError struct {
	Message string
}

func (e *BusinessRuleError) Error() string { return "business rule: " + e.Message }

// Querier is the read/write surface of the persistence collaborator inside
// one row's transaction.
//
// Query returns the IDs of records in table matching any of the filter sets
// and none of the excludes. Filter keys may traverse to-one relationships
// with "__" separators. Create persists a new record and returns its ID, or
// a BusinessRuleError when a schema rule rejects it.
type Querier interface {
	Query(ctx context.Context, table string, filters []Filter, excludes []Exclude) ([]int64, error)
	Create(ctx context.Context, table string, values Filter) (int64, error)
}

// Tx is one row's transaction. Creates made through it must all commit or
// all roll back.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the persistence collaborator the engine drives.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Engine uploads rows against a parsed plan. The plan is immutable after
// parsing, so one Engine is safe to share across goroutines uploading
// independent rows.
type Engine struct {
	store Store
	plan  Uploadable
	log   *slog.Logger
	jobID string
}

// NewEngine builds an engine for one upload job.
func NewEngine(store Store, plan Uploadable, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	jobID := uuid.New().String()
	return &Engine{
		store: store,
		plan:  plan,
		log:   logger.With("job_id", jobID),
		jobID: jobID,
	}
}

// JobID returns the identifier this engine tags its log entries with.
func (e *Engine) JobID() string { return e.jobID }

// Plan returns the plan the engine uploads against.
func (e *Engine) Plan() Uploadable { return e.plan }

// UploadRow uploads one row inside its own all-or-nothing transaction.
//
// Every mapped cell in the whole plan tree is parsed first; if any cell
// fails, the result is FailedParsing carrying every failure and no database
// work happens. Otherwise the plan's match-or-create procedure runs; any
// failure anywhere in the result tree rolls the row back.
func (e *Engine) UploadRow(ctx context.Context, row Row) (*UploadResult, error) {
	if issues := e.plan.collectIssues(row); len(issues) > 0 {
		return &UploadResult{Record: FailedParsing{Failures: issues}}, nil
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin row transaction: %w", err)
	}

	result, err := e.plan.UploadRow(ctx, tx, row)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if result.ContainsFailure() {
		if err := tx.Rollback(ctx); err != nil {
			return nil, fmt.Errorf("rollback row: %w", err)
		}
		return result, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit row: %w", err)
	}
	return result, nil
}

// UploadRows uploads rows sequentially, one transaction per row. A failed
// row never aborts its siblings; only a collaborator error that makes
// continuing pointless stops the loop.
func (e *Engine) UploadRows(ctx context.Context, rows []Row) ([]*UploadResult, error) {
	results := make([]*UploadResult, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := e.UploadRow(ctx, row)
		if err != nil {
			return results, fmt.Errorf("row %d: %w", i+1, err)
		}
		if result.ContainsFailure() {
			e.log.Debug("row failed validation", "row", i+1)
		}
		results = append(results, result)
	}
	e.log.Info("upload finished", "rows", len(rows))
	return results, nil
}
