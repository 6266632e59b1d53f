package batch

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/metrics"
	"streamcheck/work/probe"
	"streamcheck/work/streamerr"
	"streamcheck/work/types"
)

// ProgressFunc receives completion counts at a fixed cadence during a batch run.
type ProgressFunc func(completed, total int)

// progressEvery is the completion cadence for progress callbacks; the callback
// additionally fires once at completion.
const progressEvery = 10

// FetchFunc pages through a channel source. Returning an empty slice ends a
// paginated run.
type FetchFunc func(offset, limit int) ([]types.Channel, error)

// BatchedOptions configures a paginated multi-batch validation run.
type BatchedOptions struct {
	BatchSize           int
	Concurrency         int
	PauseBetweenBatches time.Duration
	Progress            ProgressFunc
}

// Orchestrator runs bounded-concurrency validation over channel sets. Workers
// come from a shared ants pool sized per run: the pool pulls channels from a
// shared queue, each worker probing one channel at a time with per-item failure
// isolation so a single bad URL never aborts the batch.
type Orchestrator struct {
	cfg    *config.Config
	prober *probe.Prober
}

func New(cfg *config.Config, prober *probe.Prober) *Orchestrator {
	return &Orchestrator{cfg: cfg, prober: prober}
}

// AdaptiveConcurrency clamps the requested worker count into [2, ceil(total/10)]
// so small batches don't spin up idle workers and large batches don't hammer
// origins beyond the configured base.
func AdaptiveConcurrency(base, total int) int {
	if total <= 0 {
		return 1
	}
	ceil := (total + 9) / 10
	if ceil < 2 {
		ceil = 2
	}
	n := base
	if n < 2 {
		n = 2
	}
	if n > ceil {
		n = ceil
	}
	if n > total {
		n = total
	}
	return n
}

// CheckChannels validates every channel in the slice under the adaptive
// concurrency limit. Results arrive in completion order; the report always
// satisfies OK+Fail == Total and len(Results) == Total.
func (o *Orchestrator) CheckChannels(ctx context.Context, channels []types.Channel, concurrency int, progress ProgressFunc) types.BatchReport {
	start := time.Now()
	total := len(channels)

	report := types.BatchReport{
		Total:   total,
		Results: make([]types.ValidationResult, 0, total),
	}
	if total == 0 {
		report.Duration = time.Since(start)
		return report
	}

	if concurrency <= 0 {
		concurrency = o.cfg.WorkerThreads
	}
	workers := AdaptiveConcurrency(concurrency, total)

	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		// pool creation only fails on invalid size; fall back to serial
		logger.Error("[BATCH] Worker pool creation failed: %v", err)
		pool = nil
	}
	if pool != nil {
		defer pool.Release()
	}

	queue := make(chan types.Channel)
	resultCh := make(chan types.ValidationResult)

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for ch := range queue {
			resultCh <- o.checkOne(ctx, ch)
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		if pool != nil {
			if err := pool.Submit(worker); err != nil {
				wg.Done()
			}
		} else {
			go worker()
		}
	}

	go func() {
		defer close(queue)
		for _, ch := range channels {
			select {
			case queue <- ch:
			case <-ctx.Done():
				// remaining channels become cancellation failures below
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	completed := 0
	seen := make(map[string]bool, total)
	for result := range resultCh {
		report.Results = append(report.Results, result)
		seen[result.ChannelID] = true
		if result.OK {
			report.OK++
		} else {
			report.Fail++
		}
		completed++
		if progress != nil && (completed%progressEvery == 0 || completed == total) {
			progress(completed, total)
		}
	}

	// channels never dequeued (context cancellation) still get a result each
	for _, ch := range channels {
		if !seen[ch.ID] {
			report.Results = append(report.Results, types.ValidationResult{
				ChannelID:    ch.ID,
				ProcessedURL: ch.StreamURL,
				Reason:       streamerr.ReasonCategory(streamerr.CategoryTimeout),
				Category:     streamerr.CategoryTimeout,
				CheckedAt:    time.Now(),
			})
			report.Fail++
		}
	}

	report.Duration = time.Since(start)
	logger.Info("[BATCH] Checked %d channels: %d ok, %d failed in %s",
		report.Total, report.OK, report.Fail, report.Duration.Round(time.Millisecond))

	return report
}

// checkOne isolates a single channel probe, converting panics into failures.
func (o *Orchestrator) checkOne(ctx context.Context, ch types.Channel) (result types.ValidationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("[BATCH] Recovered probing channel %s: %v", ch.ID, rec)
			result = types.ValidationResult{
				ChannelID:    ch.ID,
				ProcessedURL: ch.StreamURL,
				Reason:       streamerr.ReasonBatchError,
				Category:     streamerr.CategoryBatch,
				CheckedAt:    time.Now(),
			}
		}
	}()
	return o.prober.CheckStream(ctx, ch.StreamURL, ch.ID)
}

// ValidateAllBatched pages through the channel source until an empty page is
// returned, validating each page as one batch and pausing between batches to
// avoid overloading target servers. A page fetch failure marks that page's
// span as failed with a batch error and the run continues; batch execution is
// strictly sequential so batch-to-batch ordering is deterministic.
func (o *Orchestrator) ValidateAllBatched(ctx context.Context, fetch FetchFunc, opts BatchedOptions) types.BatchReport {
	start := time.Now()

	if opts.BatchSize <= 0 {
		opts.BatchSize = o.cfg.BatchSize
	}
	if opts.PauseBetweenBatches <= 0 {
		opts.PauseBetweenBatches = o.cfg.PauseBetweenBatches
	}

	report := types.BatchReport{}
	offset := 0
	fetchFailures := 0

	for {
		channels, err := fetch(offset, opts.BatchSize)
		if err != nil {
			fetchFailures++
			if fetchFailures >= 3 {
				logger.Error("[BATCH] Aborting run after %d consecutive fetch failures", fetchFailures)
				break
			}
			// the failed page is recorded as one synthetic batch and skipped
			logger.Error("[BATCH] Fetch failed at offset %d: %v", offset, err)
			report.Batches++
			metrics.BatchesTotal.Inc()
			report.Results = append(report.Results, types.ValidationResult{
				Reason:    streamerr.ReasonBatchError,
				Category:  streamerr.CategoryBatch,
				CheckedAt: time.Now(),
			})
			report.Fail++
			report.Total++
			offset += opts.BatchSize
			if !pauseCtx(ctx, opts.PauseBetweenBatches) {
				break
			}
			continue
		}
		fetchFailures = 0
		if len(channels) == 0 {
			break
		}

		batchReport := o.CheckChannels(ctx, channels, opts.Concurrency, opts.Progress)
		report.OK += batchReport.OK
		report.Fail += batchReport.Fail
		report.Total += batchReport.Total
		report.Results = append(report.Results, batchReport.Results...)
		report.Batches++
		metrics.BatchesTotal.Inc()

		offset += len(channels)

		if !pauseCtx(ctx, opts.PauseBetweenBatches) {
			break
		}
	}

	report.Duration = time.Since(start)
	logger.Info("[BATCH] Batched validation done: %d batches, %d total, %d ok, %d failed",
		report.Batches, report.Total, report.OK, report.Fail)

	return report
}

func pauseCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
