package associate

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Upserter persists a single associate.
type Upserter interface {
	Upsert(ctx context.Context, rec Record) error
}

// Importer loads normalized associates into the store with bounded concurrency.
type Importer struct {
	store       Upserter
	concurrency int
	logger      *slog.Logger
}

func NewImporter(store Upserter, concurrency int, logger *slog.Logger) *Importer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, concurrency: concurrency, logger: logger}
}

// Import upserts every record and returns how many were written. The first
// failure cancels the remaining writes.
func (i *Importer) Import(ctx context.Context, records []Record) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	var written atomic.Int64
	for _, rec := range records {
		g.Go(func() error {
			if rec.ID == "" {
				return fmt.Errorf("associate: import: record %q has no id", rec.Name)
			}
			if err := i.store.Upsert(gctx, rec); err != nil {
				return fmt.Errorf("associate: import %s: %w", rec.ID, err)
			}
			written.Add(1)
			return nil
		})
	}

	err := g.Wait()
	n := int(written.Load())
	if err != nil {
		return n, err
	}

	i.logger.InfoContext(ctx, "associates imported", slog.Int("count", n))
	return n, nil
}
