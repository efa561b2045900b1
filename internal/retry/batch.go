package retry

import (
	"context"
	"sync"
)

// Operation is a named unit of work for batch execution.
type Operation struct {
	Name string
	Run  RetryableFunc
}

// Report is the per-operation outcome of a batch execution.
type Report struct {
	Name     string
	Attempts int
	Err      error
}

// Success reports whether the operation eventually succeeded.
func (r Report) Success() bool {
	return r.Err == nil
}

// DoAll runs the operations concurrently, each under its own
// independent retry sequence, and returns one report per operation in
// input order. One operation exhausting its attempts has no effect on
// the others.
func DoAll(ctx context.Context, cfg *Config, ops []Operation, opts *Options) []Report {
	reports := make([]Report, len(ops))

	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op Operation) {
			defer wg.Done()
			reports[i] = runOne(ctx, cfg, op, opts)
		}(i, op)
	}
	wg.Wait()

	return reports
}

// runOne executes a single batch operation, counting its attempts.
func runOne(ctx context.Context, cfg *Config, op Operation, opts *Options) Report {
	attempts := 0
	counted := func(ctx context.Context) error {
		attempts++
		return op.Run(ctx)
	}

	perOp := Options{Name: op.Name}
	if opts != nil {
		perOp.ShouldRetry = opts.ShouldRetry
		perOp.OnRetry = opts.OnRetry
		perOp.Logger = opts.Logger
		if perOp.Name == "" {
			perOp.Name = opts.Name
		}
	}

	err := Do(ctx, cfg, counted, &perOp)
	return Report{Name: op.Name, Attempts: attempts, Err: err}
}
