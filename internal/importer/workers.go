package importer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"catalog-importer/internal/records"
)

// runConcurrent processes records on a bounded worker pool. Workers share
// the enricher and therefore its rate limiter. Results are tagged with their
// input index and released through a reorder buffer, so apply still sees
// them strictly in input order.
func (p *Pipeline) runConcurrent(ctx context.Context, recs []records.Record, apply func(result)) {
	jobs := make(chan int)
	results := make(chan result, p.config.Workers)

	var g errgroup.Group

	g.Go(func() error {
		defer close(jobs)
		for i := range recs {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case jobs <- i:
			}
		}
		return nil
	})

	for w := 0; w < p.config.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				res := p.process(ctx, recs[i])
				res.index = i
				results <- res
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	// Dispatch is in index order, so the set of started records is always a
	// prefix of the input and the buffer drains completely.
	pending := make(map[int]result)
	next := 0
	for res := range results {
		pending[res.index] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			apply(ready)
			next++
		}
	}
}
