// Package sweep runs one signal list against many run configurations in
// parallel, one isolated engine per variant.
package sweep

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signal-backtest/services/arrowpipeline"
	"signal-backtest/services/engine"
)

// Variant is one parameter combination to evaluate.
type Variant struct {
	Name   string
	Config engine.RunConfig
}

// Result pairs a variant with its finished report. Err is set when the run
// rejected its input; other variants still complete.
type Result struct {
	JobID   string
	Variant Variant
	Report  *engine.Report
	Err     error
}

// Runner fans variants out over a bounded worker pool. The bar series is
// shared between workers as an encoded Arrow stream; each worker decodes its
// own private copy, so no run can see another's data.
type Runner struct {
	workers int
	codec   *arrowpipeline.Codec
	logger  *zap.Logger
}

func NewRunner(workers int, codec *arrowpipeline.Codec, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{workers: workers, codec: codec, logger: logger}
}

// Run evaluates every variant and returns results in variant order regardless
// of completion order. It fails outright only when the shared series cannot
// be encoded or the context is cancelled.
func (r *Runner) Run(ctx context.Context, bars []engine.Bar, signals []engine.Signal, variants []Variant) ([]Result, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	encoded, err := r.codec.EncodeBars(bars)
	if err != nil {
		return nil, fmt.Errorf("encode shared series: %w", err)
	}

	type job struct {
		idx     int
		variant Variant
	}
	jobs := make(chan job)
	results := make([]Result, len(variants))

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local, err := r.codec.DecodeBars(encoded)
			for j := range jobs {
				if err != nil {
					results[j.idx] = Result{Variant: j.variant, Err: fmt.Errorf("decode shared series: %w", err)}
					continue
				}
				results[j.idx] = r.runOne(j.variant, local, signals)
			}
		}()
	}

	var cancelled error
drain:
	for i, v := range variants {
		select {
		case jobs <- job{idx: i, variant: v}:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break drain
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}
	return results, nil
}

func (r *Runner) runOne(v Variant, bars []engine.Bar, signals []engine.Signal) Result {
	id := uuid.New().String()
	bt := engine.NewBacktester(v.Config, r.logger.With(
		zap.String("job_id", id),
		zap.String("variant", v.Name),
	))
	report, err := bt.Run(bars, signals)
	if err != nil {
		r.logger.Warn("variant failed", zap.String("variant", v.Name), zap.Error(err))
		return Result{JobID: id, Variant: v, Err: err}
	}
	return Result{JobID: id, Variant: v, Report: report}
}

// Best returns the completed result with the highest total return, or nil
// when every variant failed.
func Best(results []Result) *Result {
	var best *Result
	for i := range results {
		r := &results[i]
		if r.Err != nil || r.Report == nil {
			continue
		}
		if best == nil || r.Report.TotalReturnPct > best.Report.TotalReturnPct {
			best = r
		}
	}
	return best
}
