package view

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
)

// WorkerPool runs independent operations on a fixed number of goroutines.
// Results always come back in input order.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// WorkerCount returns the number of worker goroutines
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// ExecuteParallel applies operation to every input and returns the results in
// input order. The first failure (by input index) is returned and the remaining
// jobs are skipped through ctx cancellation.
func ExecuteParallel[In, Out any](
	ctx context.Context,
	p *WorkerPool,
	inputs []In,
	operation func(context.Context, In) (Out, error),
) ([]Out, error) {
	if len(inputs) == 0 {
		return []Out{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Out, len(inputs))
	errs := make([]error, len(inputs))

	jobs := make(chan int, len(inputs))
	for i := range inputs {
		jobs <- i
	}
	close(jobs)

	workers := p.workerCount
	if workers > len(inputs) {
		workers = len(inputs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					continue
				}
				result, err := operation(ctx, inputs[idx])
				if err != nil {
					errs[idx] = err
					cancel()
					continue
				}
				results[idx] = result
			}
		}()
	}
	wg.Wait()

	// Prefer the operation's own error over the cancellations it caused
	firstIdx := -1
	for i, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("parallel execution failed at index %d: %w", i, err)
		}
		if firstIdx < 0 {
			firstIdx = i
		}
	}
	if firstIdx >= 0 {
		return nil, fmt.Errorf("parallel execution failed at index %d: %w", firstIdx, errs[firstIdx])
	}
	return results, nil
}

// ExecuteParallelBatched splits inputs into chunks of batchSize and runs
// operation once per chunk. Chunk outputs are concatenated in input order.
func ExecuteParallelBatched[In, Out any](
	ctx context.Context,
	p *WorkerPool,
	inputs []In,
	batchSize int,
	operation func(context.Context, []In) ([]Out, error),
) ([]Out, error) {
	if len(inputs) == 0 {
		return []Out{}, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var batches [][]In
	for i := 0; i < len(inputs); i += batchSize {
		end := i + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batches = append(batches, inputs[i:end])
	}

	batchResults, err := ExecuteParallel(ctx, p, batches, operation)
	if err != nil {
		return nil, err
	}

	all := make([]Out, 0, len(inputs))
	for _, r := range batchResults {
		all = append(all, r...)
	}
	return all, nil
}
