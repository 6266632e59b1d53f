package convert

import (
	"context"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"streamcheck/work/batch"
	"streamcheck/work/config"
	"streamcheck/work/logger"
	"streamcheck/work/probe"
	"streamcheck/work/types"
	"streamcheck/work/utils"
)

// Options controls a conversion advisory pass.
type Options struct {
	Concurrency int
	// OnlyWorkingHTTP keeps the HTTPS original unless the HTTP twin actually
	// validates. When false, a channel whose HTTPS original also failed is
	// converted optimistically, since there is nothing left to break.
	OnlyWorkingHTTP bool
}

// Advisor compares HTTPS stream URLs against their HTTP equivalents and
// non-destructively decides which to keep. Many set-top boxes and older smart
// TVs cannot negotiate modern TLS, so a working plain-HTTP variant is preferred
// when the origin serves one. The advisor never drops a channel: a failed
// comparison degrades to passing the original URL through unchanged.
type Advisor struct {
	cfg    *config.Config
	prober *probe.Prober
}

func New(cfg *config.Config, prober *probe.Prober) *Advisor {
	return &Advisor{cfg: cfg, prober: prober}
}

// ProcessChannels runs the advisory over every channel under bounded
// concurrency. The returned Processed slice has exactly the same length and
// order as the input.
func (a *Advisor) ProcessChannels(ctx context.Context, channels []types.Channel, opts Options) types.ConversionReport {
	total := len(channels)

	report := types.ConversionReport{
		Processed: make([]types.Channel, total),
		Results:   make([]types.ConversionDecision, total),
	}
	report.Stats.Total = total

	if total == 0 {
		return report
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = a.cfg.WorkerThreads
	}
	workers := batch.AdaptiveConcurrency(concurrency, total)

	pool, poolErr := ants.NewPool(workers, ants.WithPreAlloc(true))
	if poolErr != nil {
		logger.Error("[CONVERT] Worker pool creation failed, running serial: %v", poolErr)
	} else {
		defer pool.Release()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	process := func(i int) func() {
		return func() {
			defer wg.Done()
			decision := a.adviseOne(ctx, channels[i], opts)

			processed := channels[i]
			processed.StreamURL = decision.FinalURL

			mu.Lock()
			report.Processed[i] = processed
			report.Results[i] = decision
			if decision.Converted {
				report.Stats.Converted++
			}
			if decision.HTTPWorking {
				report.Stats.HTTPWorking++
			}
			if decision.OriginalWorking {
				report.Stats.OriginalWorking++
			}
			if !decision.HTTPWorking && !decision.OriginalWorking {
				report.Stats.Failed++
			}
			mu.Unlock()
		}
	}

	for i := 0; i < total; i++ {
		wg.Add(1)
		task := process(i)
		if pool != nil {
			if err := pool.Submit(task); err != nil {
				task()
			}
		} else {
			task()
		}
	}
	wg.Wait()

	logger.Info("[CONVERT] Processed %d channels: %d converted, %d http working, %d original working, %d failed",
		report.Stats.Total, report.Stats.Converted, report.Stats.HTTPWorking,
		report.Stats.OriginalWorking, report.Stats.Failed)

	return report
}

// adviseOne validates one channel's URL and, for HTTPS URLs, its HTTP twin.
// Decision policy: prefer HTTP if it validates, else keep HTTPS if it
// validates, else pass the original through unchanged.
func (a *Advisor) adviseOne(ctx context.Context, ch types.Channel, opts Options) types.ConversionDecision {
	decision := types.ConversionDecision{
		ChannelID:   ch.ID,
		OriginalURL: ch.StreamURL,
		FinalURL:    ch.StreamURL,
	}

	original := a.prober.CheckStream(ctx, ch.StreamURL, ch.ID)
	decision.OriginalWorking = original.OK

	if !strings.HasPrefix(strings.ToLower(ch.StreamURL), "https://") {
		return decision
	}

	httpTwin := "http://" + ch.StreamURL[len("https://"):]
	twin := a.prober.CheckStream(ctx, httpTwin, ch.ID)
	decision.HTTPWorking = twin.OK

	switch {
	case twin.OK:
		decision.FinalURL = httpTwin
		decision.Converted = true
	case original.OK:
		// keep the validated HTTPS original
	case !opts.OnlyWorkingHTTP:
		// neither variant works; downgrade anyway so legacy clients get a chance
		decision.FinalURL = httpTwin
		decision.Converted = true
	}

	if decision.Converted {
		logger.Debug("[CONVERT] Channel %s converted to %s",
			ch.ID, utils.LogURL(a.cfg.ObfuscateUrls, decision.FinalURL))
	}

	return decision
}
