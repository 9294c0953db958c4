// Package syncer runs one sheet-to-Shopify-to-sheet pass: read identifiers,
// resolve each order in sequence, write the derived columns back and record
// the run.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sipeed/ordersync/pkg/commerce"
	"github.com/sipeed/ordersync/pkg/logger"
	"github.com/sipeed/ordersync/pkg/runlog"
	"github.com/sipeed/ordersync/pkg/sheets"
)

// OrderResolver is the slice of the commerce client a run needs.
type OrderResolver interface {
	ResolveByName(ctx context.Context, name string) (commerce.Order, error)
	FetchAttributes(ctx context.Context, orderID int64) (commerce.Attributes, error)
}

type Transformer interface {
	Transform(attrs commerce.Attributes) [4]string
}

type RunRecorder interface {
	Append(entry runlog.Entry) error
}

type Options struct {
	Store         sheets.Store
	Tab           string
	InputColumn   string
	OutputColumns sheets.Columns
	Resolver      OrderResolver
	Transformer   Transformer
	// RunLog may be nil, in which case runs are not recorded.
	RunLog RunRecorder
	// DryRun resolves and transforms but skips the sheet write and the log.
	DryRun bool
	NowFn  func() time.Time
}

type Syncer struct {
	opts Options
}

func New(opts Options) *Syncer {
	if opts.InputColumn == "" {
		opts.InputColumn = "B"
	}
	if opts.OutputColumns == (sheets.Columns{}) {
		opts.OutputColumns = sheets.DefaultOutputColumns
	}
	if opts.NowFn == nil {
		opts.NowFn = time.Now
	}
	return &Syncer{opts: opts}
}

// Run performs one sync. It returns an error only when the sheet cannot be
// read or ctx ends; per-row problems are collected in Result.Failures.
func (s *Syncer) Run(ctx context.Context, trigger string) (*Result, error) {
	runID := uuid.NewString()
	started := s.opts.NowFn()
	result := &Result{
		RunID:         runID,
		Trigger:       trigger,
		InputColumn:   s.opts.InputColumn,
		OutputColumns: s.opts.OutputColumns,
		DryRun:        s.opts.DryRun,
	}

	rows, err := sheets.ReadIdentifierColumn(ctx, s.opts.Store, s.opts.Tab, s.opts.InputColumn)
	if err != nil {
		return nil, err
	}
	result.OrdersSeen = len(rows)
	if len(rows) == 0 {
		logger.InfoCF("syncer", "No order numbers in sheet", map[string]any{
			"run_id": runID,
			"column": s.opts.InputColumn,
		})
		return result, nil
	}

	logger.InfoCF("syncer", "Sync run started", map[string]any{
		"run_id":  runID,
		"trigger": trigger,
		"orders":  len(rows),
	})

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sync run %s interrupted: %w", runID, err)
		}
		values, err := s.resolveRow(ctx, row)
		if err != nil {
			result.Failures = append(result.Failures, runlog.Failure{
				Row:   row.Position,
				Order: row.Identifier,
				Error: FailureMessage(err),
			})
			logger.WarnCF("syncer", "Row failed", map[string]any{
				"run_id": runID,
				"row":    row.Position,
				"order":  row.Identifier,
				"error":  err.Error(),
			})
			continue
		}
		result.Updates = append(result.Updates, sheets.RowUpdate{Position: row.Position, Values: values})
	}

	if s.opts.DryRun {
		logger.InfoCF("syncer", "Dry run finished", map[string]any{
			"run_id":   runID,
			"updates":  len(result.Updates),
			"failures": len(result.Failures),
		})
		return result, nil
	}

	if err := sheets.WriteUpdates(ctx, s.opts.Store, s.opts.Tab, s.opts.OutputColumns, result.Updates); err != nil {
		result.WriteError = err
		logger.ErrorCF("syncer", "Sheet write failed", map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
	} else {
		result.RowsWritten = len(result.Updates)
	}

	s.persist(result, started)

	logger.InfoCF("syncer", "Sync run finished", map[string]any{
		"run_id":       runID,
		"orders":       result.OrdersSeen,
		"rows_written": result.RowsWritten,
		"failures":     len(result.Failures),
		"duration_ms":  s.opts.NowFn().Sub(started).Milliseconds(),
	})
	return result, nil
}

func (s *Syncer) resolveRow(ctx context.Context, row sheets.Row) ([4]string, error) {
	order, err := s.opts.Resolver.ResolveByName(ctx, row.Identifier)
	if err != nil {
		return [4]string{}, err
	}
	attrs, err := s.opts.Resolver.FetchAttributes(ctx, order.ID)
	if err != nil {
		return [4]string{}, fmt.Errorf("fetch metafields for %s: %w", row.Identifier, err)
	}
	return s.opts.Transformer.Transform(attrs), nil
}

// persist records the run. A failure here is logged and never fails the run.
func (s *Syncer) persist(result *Result, started time.Time) {
	if s.opts.RunLog == nil {
		return
	}
	entry := runlog.Entry{
		Timestamp:   started.UTC(),
		RunID:       result.RunID,
		Trigger:     result.Trigger,
		OrdersSeen:  result.OrdersSeen,
		RowsWritten: result.RowsWritten,
		Failures:    append([]runlog.Failure(nil), result.Failures...),
	}
	if result.WriteError != nil {
		entry.WriteError = result.WriteError.Error()
	}
	if err := s.opts.RunLog.Append(entry); err != nil {
		logger.ErrorCF("syncer", "Failed to append run log", map[string]any{
			"run_id": result.RunID,
			"error":  err.Error(),
		})
	}
}

// FailureMessage renders a row error for the summary and the run log.
func FailureMessage(err error) string {
	if commerce.IsNotFound(err) {
		return "Order not found in Shopify"
	}
	return err.Error()
}
