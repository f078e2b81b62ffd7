// Package worker removes receipt artifacts that no expense references
// anymore. Deletions arrive over the cleanup queue; a periodic sweep
// backstops lost messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"kharcha/internal/amqp"
	"kharcha/internal/receipts"
	"kharcha/internal/storage"
)

const sweepConcurrency = 4

type CleanupWorker struct {
	storage *storage.SQLiteRepository
	store   *receipts.Store
	grace   time.Duration
}

// NewCleanupWorker builds a worker. grace protects freshly uploaded
// artifacts whose expense row may not be committed yet; the sweep skips
// anything younger.
func NewCleanupWorker(storage *storage.SQLiteRepository, store *receipts.Store, grace time.Duration) *CleanupWorker {
	return &CleanupWorker{storage: storage, store: store, grace: grace}
}

// HandleCleanupMessage processes a single receipt cleanup message. The ref
// is re-checked against the ledger before deletion: an expense updated
// twice in quick succession can re-reference a ref that was queued for
// cleanup in between.
func (w *CleanupWorker) HandleCleanupMessage(ctx context.Context, msg *amqp.ReceiptCleanupMessage) error {
	slog.InfoContext(ctx, "Processing receipt cleanup message",
		"ref", msg.Ref,
		"queued_at", msg.Timestamp)

	inUse, err := w.storage.ReceiptRefInUse(ctx, msg.Ref)
	if err != nil {
		return fmt.Errorf("check receipt ref: %w", err)
	}
	if inUse {
		slog.InfoContext(ctx, "Receipt re-referenced, skipping deletion", "ref", msg.Ref)
		return nil
	}

	if err := w.store.Delete(msg.Ref); err != nil {
		return fmt.Errorf("delete receipt %s: %w", msg.Ref, err)
	}
	slog.InfoContext(ctx, "Deleted receipt artifact", "ref", msg.Ref)
	return nil
}

// SweepOrphans scans the artifact store and deletes every file older than
// the grace period that no expense references. It returns the number of
// artifacts removed.
func (w *CleanupWorker) SweepOrphans(ctx context.Context) (int, error) {
	artifacts, err := w.store.List()
	if err != nil {
		return 0, fmt.Errorf("list receipts: %w", err)
	}

	cutoff := time.Now().Add(-w.grace)
	deleted := make(chan string, len(artifacts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, a := range artifacts {
		if a.ModTime.After(cutoff) {
			continue
		}
		g.Go(func() error {
			inUse, err := w.storage.ReceiptRefInUse(ctx, a.Ref)
			if err != nil {
				return fmt.Errorf("check receipt ref %s: %w", a.Ref, err)
			}
			if inUse {
				return nil
			}
			if err := w.store.Delete(a.Ref); err != nil {
				return fmt.Errorf("delete orphan %s: %w", a.Ref, err)
			}
			deleted <- a.Ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	close(deleted)

	n := 0
	for ref := range deleted {
		slog.InfoContext(ctx, "Swept orphaned receipt", "ref", ref)
		n++
	}
	if n > 0 {
		slog.InfoContext(ctx, "Orphan sweep finished", "deleted", n)
	}
	return n, nil
}

// RunSweepLoop runs SweepOrphans on the given interval until ctx is
// cancelled. Sweep failures are logged and the loop keeps going.
func (w *CleanupWorker) RunSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.SweepOrphans(ctx); err != nil {
				slog.ErrorContext(ctx, "Orphan sweep failed", "error", err)
			}
		}
	}
}
