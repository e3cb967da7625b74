package scraper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BatchOptions tunes the generic batch runner.
type BatchOptions struct {
	// WindowSize is the number of in-flight requests per window. This is
	// deliberate backpressure against upstream rate limits, not tuning.
	WindowSize int
	// Delay is the pause between windows.
	Delay time.Duration
	// Scrape carries per-URL options.
	Scrape Options
}

func (o *BatchOptions) defaults() {
	if o.WindowSize <= 0 {
		o.WindowSize = 5
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
}

// RunBatch scrapes URLs through a plugin in fixed-size windows with an
// inter-batch delay. A per-URL failure is captured into Failed and never
// aborts the rest; cancellation stops new windows but lets the current
// window finish.
func RunBatch(ctx context.Context, s Scraper, urls []string, opts BatchOptions) *BatchResult {
	opts.defaults()
	started := time.Now()

	// The limiter gates window starts: one window per delay interval.
	var limiter *rate.Limiter
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)

	for start := 0; start < len(urls); start += opts.WindowSize {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				markRemaining(&result, urls[start:], err)
				break
			}
		} else if ctx.Err() != nil {
			markRemaining(&result, urls[start:], ctx.Err())
			break
		}

		end := min(start+opts.WindowSize, len(urls))
		window := urls[start:end]

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(opts.WindowSize)

		for _, u := range window {
			g.Go(func() error {
				pass, err := s.Scrape(gCtx, u, opts.Scrape)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					zap.L().Debug("scraper: batch url failed",
						zap.String("scraper", s.Name()),
						zap.String("url", u),
						zap.Error(err),
					)
					result.Failed = append(result.Failed, BatchFailure{
						URL:       u,
						Error:     err.Error(),
						Retriable: gCtx.Err() == nil,
					})
					return nil
				}
				result.Successful = append(result.Successful, *pass)
				return nil
			})
		}
		_ = g.Wait()
	}

	result.Metrics = BatchMetrics{
		Requested: len(urls),
		Succeeded: len(result.Successful),
		Failed:    len(result.Failed),
		Duration:  time.Since(started),
	}
	return &result
}

// markRemaining records URLs never attempted because the run was cancelled.
func markRemaining(result *BatchResult, urls []string, err error) {
	for _, u := range urls {
		result.Failed = append(result.Failed, BatchFailure{
			URL:       u,
			Error:     err.Error(),
			Retriable: true,
		})
	}
}
