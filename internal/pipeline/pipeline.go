// Package pipeline orchestrates one intelligence run end to end:
// discovery, batch scraping through the plugin registry, category
// extraction, multi-pass merging, and session persistence. Each stage
// advances the session's status and phase under optimistic locking and
// reports progress through the stream guard.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/discovery"
	"github.com/sells-group/company-intel/internal/extract"
	"github.com/sells-group/company-intel/internal/merge"
	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/scraper"
	"github.com/sells-group/company-intel/internal/session"
	"github.com/sells-group/company-intel/internal/stream"
)

// Options tunes one pipeline run.
type Options struct {
	Discovery  discovery.Options
	BatchSize  int
	BatchDelay time.Duration
	Merge      merge.Options
	// Passes is how many scraping passes to attempt per URL. Additional
	// passes go through plugins implementing Enhancer.
	Passes int
}

// DefaultOptions returns the standard pipeline configuration.
func DefaultOptions() Options {
	return Options{
		Discovery:  discovery.DefaultOptions(),
		BatchSize:  5,
		BatchDelay: time.Second,
		Merge:      merge.DefaultOptions(),
		Passes:     1,
	}
}

// Result is what one completed run produced.
type Result struct {
	SessionID    string                        `json:"session_id"`
	Discovery    *model.DiscoveryResult        `json:"discovery"`
	Merged       []model.MergedScrapingData    `json:"merged"`
	Intelligence []model.ExtractedIntelligence `json:"intelligence"`
	Failed       []scraper.BatchFailure        `json:"failed,omitempty"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	registry  *scraper.Registry
	extractor *extract.Extractor
	store     session.Store
	opts      Options
}

// New builds a pipeline over the given plugin registry, extractor, and
// session store.
func New(registry *scraper.Registry, extractor *extract.Extractor, store session.Store, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.Passes <= 0 {
		opts.Passes = 1
	}
	return &Pipeline{
		registry:  registry,
		extractor: extractor,
		store:     store,
		opts:      opts,
	}
}

// Run executes the full pipeline for an existing session. The guard
// guarantees a start event and exactly one terminal event even on early
// abort; persistence failures after successful in-memory computation are
// logged without invalidating the returned result.
func (p *Pipeline) Run(ctx context.Context, sessionID string, emit stream.Emitter) (*Result, error) {
	guard := stream.NewGuard(emit)
	guard.Start(0, "pipeline starting")

	result, err := p.run(ctx, sessionID, guard)
	if err != nil {
		p.setStatus(ctx, sessionID, model.SessionFailed, 0)
		stream.Error(guard, err, false, map[string]any{"session_id": sessionID})
		return result, err
	}

	stream.Complete(guard, map[string]any{
		"session_id": sessionID,
		"urls":       len(result.Discovery.URLs),
		"merged":     len(result.Merged),
		"categories": len(result.Intelligence),
	})
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, sessionID string, guard *stream.Guard) (*Result, error) {
	sess, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: loading session")
	}

	// Phase 1: discovery.
	p.setStatus(ctx, sessionID, model.SessionDiscovery, 1)

	executor := discovery.NewExecutor(p.opts.Discovery)
	disco, err := executor.Discover(ctx, sess.Domain, guard)
	if err != nil {
		return &Result{SessionID: sessionID, Discovery: disco}, eris.Wrap(err, "pipeline: discovery")
	}
	if err := discovery.PersistResult(ctx, p.store, sessionID, disco); err != nil {
		zap.L().Warn("pipeline: persisting discovery result failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	stream.Data(guard, disco, map[string]any{"stage": "discovery"})

	// Phase 2: scraping.
	p.setStatus(ctx, sessionID, model.SessionScraping, 2)

	batch := scraper.RunBatch(ctx, scraper.ViaRegistry(p.registry), disco.URLs, scraper.BatchOptions{
		WindowSize: p.opts.BatchSize,
		Delay:      p.opts.BatchDelay,
	})
	stream.Progress(guard, batch.Metrics.Succeeded, batch.Metrics.Requested, "scraping finished")

	if ctx.Err() != nil {
		return &Result{SessionID: sessionID, Discovery: disco, Failed: batch.Failed},
			eris.Wrap(ctx.Err(), "pipeline: scraping cancelled")
	}

	// Phase 3: merge passes per URL, with optional enhancement passes
	// layered on top of the first merge.
	passes := batch.Successful
	merged := p.mergePasses(passes)
	if extra := p.enhance(ctx, merged); len(extra) > 0 {
		passes = append(passes, extra...)
		merged = p.mergePasses(passes)
	}

	// Phase 4: extraction.
	p.setStatus(ctx, sessionID, model.SessionExtracting, 3)

	pages := make(map[string]extract.PagePayload, len(merged))
	for _, m := range merged {
		pages[m.URL] = extract.PagePayload{
			Markdown: m.Content,
			Text:     m.Text,
			HTML:     m.HTML,
			Schema:   m.StructuredData,
		}
	}
	intelligence := p.extractor.Extract(pages)
	stream.Data(guard, intelligence, map[string]any{"stage": "extraction"})

	result := &Result{
		SessionID:    sessionID,
		Discovery:    disco,
		Merged:       merged,
		Intelligence: intelligence,
		Failed:       batch.Failed,
	}

	// Persistence is best-effort: the computed result survives a save
	// failure from the caller's perspective.
	p.persistResult(ctx, sessionID, result)
	p.setStatus(ctx, sessionID, model.SessionCompleted, 4)

	return result, nil
}

// enhance runs additional passes over the first-merge records through
// plugins that support enhancement. A failed enhancement is logged and
// the record keeps its existing passes.
func (p *Pipeline) enhance(ctx context.Context, merged []model.MergedScrapingData) []model.ScrapingPass {
	if p.opts.Passes <= 1 {
		return nil
	}

	var enhancers []scraper.Enhancer
	for _, name := range p.registry.List() {
		s := p.registry.Get(name)
		if s == nil || !s.Enabled() {
			continue
		}
		if e, ok := s.(scraper.Enhancer); ok {
			enhancers = append(enhancers, e)
		}
	}
	if len(enhancers) == 0 {
		return nil
	}

	var extra []model.ScrapingPass
	for i := range merged {
		if ctx.Err() != nil {
			break
		}
		for _, e := range enhancers {
			pass, err := e.Enhance(ctx, &merged[i], merged[i].URL, scraper.Options{})
			if err != nil {
				zap.L().Debug("pipeline: enhancement failed",
					zap.String("url", merged[i].URL),
					zap.Error(err),
				)
				continue
			}
			extra = append(extra, *pass)
		}
	}
	return extra
}

// mergePasses groups passes by URL and merges each group. URLs keep the
// order of their first appearance.
func (p *Pipeline) mergePasses(passes []model.ScrapingPass) []model.MergedScrapingData {
	byURL := make(map[string][]model.ScrapingPass)
	var order []string
	for _, pass := range passes {
		if _, seen := byURL[pass.URL]; !seen {
			order = append(order, pass.URL)
		}
		byURL[pass.URL] = append(byURL[pass.URL], pass)
	}

	var merged []model.MergedScrapingData
	for _, u := range order {
		m, err := merge.Merge(byURL[u], p.opts.Merge)
		if err != nil {
			zap.L().Warn("pipeline: merge failed",
				zap.String("url", u),
				zap.Error(err),
			)
			continue
		}
		merged = append(merged, *m)
	}
	return merged
}

func (p *Pipeline) persistResult(ctx context.Context, sessionID string, result *Result) {
	patch := make(map[string]json.RawMessage)
	if blob, err := json.Marshal(result.Intelligence); err == nil {
		patch["intelligence"] = blob
	}
	if blob, err := json.Marshal(result.Merged); err == nil {
		patch["merged"] = blob
	}
	if _, err := session.MergeData(ctx, p.store, sessionID, patch); err != nil {
		zap.L().Warn("pipeline: persisting results failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// setStatus advances the session's status and phase with a short CAS
// retry loop. Status updates are advisory; losing the race is logged,
// not fatal.
func (p *Pipeline) setStatus(ctx context.Context, sessionID string, status model.SessionStatus, phase int) {
	for attempt := 0; attempt < 3; attempt++ {
		sess, err := p.store.Get(ctx, sessionID)
		if err != nil {
			zap.L().Warn("pipeline: loading session for status update failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return
		}
		_, err = p.store.Update(ctx, sessionID, session.Update{Status: &status, Phase: &phase}, sess.Version)
		if err == nil {
			return
		}
		if !eris.Is(err, session.ErrVersionConflict) {
			zap.L().Warn("pipeline: status update failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return
		}
	}
	zap.L().Warn("pipeline: status update lost optimistic-lock race",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
	)
}
