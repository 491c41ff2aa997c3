package store

import (
	"context"
	"iter"

	"github.com/phrazzld/genflow/internal/domain"
)

// DefaultPageSize is the page size used when ScanOptions.PageSize is unset.
const DefaultPageSize = 100

// ScanOptions controls a full-store scan.
type ScanOptions struct {
	// PageSize is the number of tasks fetched per round trip.
	PageSize int

	// StartToken resumes a scan from a token previously returned by ScanPage.
	StartToken string
}

// Scan returns a lazy sequence over every task in s. Pages are fetched on
// demand in a loop until the store reports no next token; the caller sees
// one logical sequence. A page error is yielded once and ends the sequence.
func Scan(ctx context.Context, s TaskStore, opts ScanOptions) iter.Seq2[*domain.Task, error] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return func(yield func(*domain.Task, error) bool) {
		token := opts.StartToken
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, next, err := s.ScanPage(ctx, token, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, task := range page {
				if !yield(task, nil) {
					return
				}
			}

			if next == "" {
				return
			}
			token = next
		}
	}
}

// CollectAll materializes a full scan of s.
func CollectAll(ctx context.Context, s TaskStore, opts ScanOptions) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0)
	for task, err := range Scan(ctx, s, opts) {
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
