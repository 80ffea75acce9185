package analysis

import (
	"context"
	"fmt"
)

// DefaultBatchSize is used when a batch processor is created without a size
const DefaultBatchSize = 1000

// BatchProcessor walks records in ascending id order, one batch at a time.
// The cursor advances past every fetched record, so records the process
// step leaves untouched are not fetched again within the same walk.
type BatchProcessor[T any] struct {
	BatchSize int
	Fetch     func(ctx context.Context, afterID int64, limit int) ([]T, error)
	ID        func(T) int64
	Process   func(ctx context.Context, batch []T) error
}

// Walk processes batches until Fetch returns nothing. Returns the number
// of fetched records.
func (b *BatchProcessor[T]) Walk(ctx context.Context, progress *Progress) (int64, error) {
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var cursor, fetched int64
	for {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}

		batch, err := b.Fetch(ctx, cursor, size)
		if err != nil {
			return fetched, fmt.Errorf("failed to fetch batch after id %d: %w", cursor, err)
		}
		if len(batch) == 0 {
			return fetched, nil
		}

		if err := b.Process(ctx, batch); err != nil {
			if progress != nil {
				progress.Fail(int64(len(batch)))
			}
			return fetched, err
		}

		cursor = b.ID(batch[len(batch)-1])
		fetched += int64(len(batch))
		if progress != nil {
			progress.Add(int64(len(batch)))
		}
	}
}
