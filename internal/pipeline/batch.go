package pipeline

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// BatchItem is the outcome for one payload of a batch.
type BatchItem struct {
	Index  int
	Result *domain.TriageResult
	Err    error
}

// BatchHooks let callers gate and observe each ticket of a batch. Both run on
// the worker goroutine and must be safe for concurrent use.
type BatchHooks struct {
	// Before runs ahead of each ticket; an error skips the ticket and becomes its Err.
	Before func(ctx context.Context, index int) error
	// After runs once a ticket has an outcome, before the next ticket on that worker starts.
	After func(ctx context.Context, item BatchItem)
}

// ProcessBatch triages payloads concurrently, bounded by the configured
// concurrency. Items are returned in input order. One ticket's failure never
// cancels the others; cancelling ctx stops tickets that have not finished.
func (o *Orchestrator) ProcessBatch(ctx context.Context, payloads []json.RawMessage) []BatchItem {
	return o.ProcessBatchWithHooks(ctx, payloads, BatchHooks{})
}

// ProcessBatchWithHooks is ProcessBatch with per-ticket hooks.
func (o *Orchestrator) ProcessBatchWithHooks(ctx context.Context, payloads []json.RawMessage, hooks BatchHooks) []BatchItem {
	items := make([]BatchItem, len(payloads))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, payload := range payloads {
		g.Go(func() error {
			ticketCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			item := BatchItem{Index: i}
			if hooks.Before != nil {
				item.Err = hooks.Before(ticketCtx, i)
			}
			if item.Err == nil {
				item.Result, item.Err = o.Process(ticketCtx, payload)
			}
			items[i] = item
			if hooks.After != nil {
				hooks.After(ticketCtx, item)
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
