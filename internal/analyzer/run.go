package analyzer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/element-memory/internal/fingerprint"
	"github.com/rcliao/element-memory/internal/logger"
	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
)

// RunOptions controls a page analysis run.
type RunOptions struct {
	Fresh       bool // reclassify every element
	Concurrency int  // elements resolved in parallel, default 1
}

// Result is the outcome for one element of a run, in extraction order.
type Result struct {
	Index       int                     `json:"index"`
	Selector    string                  `json:"selector"`
	Fingerprint model.Fingerprint       `json:"fingerprint"`
	Cached      bool                    `json:"cached"`
	Knowledge   *model.ElementKnowledge `json:"knowledge,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// RunReport summarises a run.
type RunReport struct {
	RunID        string    `json:"run_id"`
	Site         string    `json:"site"`
	Analyzed     int       `json:"analyzed"`
	CacheHits    int64     `json:"cache_hits"`
	LLMCalls     int64     `json:"llm_calls"`
	CachePercent float64   `json:"cache_percent"`
	Failures     int       `json:"failures"`
	Missing      int       `json:"missing,omitempty"`
	Duration     string    `json:"duration"`
	StartedAt    time.Time `json:"started_at"`
	Results      []Result  `json:"results"`
}

// Summary is the one-line status shown after a run.
func (r *RunReport) Summary() string {
	return fmt.Sprintf("Analysis complete: %d elements (%.0f%% from cache)", r.Analyzed, r.CachePercent)
}

func (r *RunReport) finish(start time.Time) {
	if r.Analyzed > 0 {
		r.CachePercent = float64(r.CacheHits) / float64(r.Analyzed) * 100
	}
	r.Duration = time.Since(start).Round(time.Millisecond).String()
}

// Run resolves every descriptor of seq for site id. The orchestrator's
// counters are reset first. Classification failures are recorded per element
// and the run continues; store failures abort the run.
func (o *Orchestrator) Run(ctx context.Context, id site.Identity, seq iter.Seq[model.ElementDescriptor], opts RunOptions) (*RunReport, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	o.ResetStats()

	start := time.Now()
	report := &RunReport{
		RunID:     o.newRunID(),
		Site:      id.String(),
		StartedAt: start.UTC(),
	}
	var descs []model.ElementDescriptor
	for d := range seq {
		descs = append(descs, d)
	}
	report.Results = make([]Result, len(descs))

	ctx = logger.WithFields(ctx, logger.Fields{RunID: report.RunID, Site: report.Site})
	o.log.InfoContext(ctx, "analyzer: run started", "elements", len(descs), "fresh", opts.Fresh)

	var hits, calls atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, d := range descs {
		g.Go(func() error {
			res := Result{
				Index:       i,
				Selector:    fingerprint.Selector(d),
				Fingerprint: fingerprint.Of(d),
			}
			k, cached, err := o.Resolve(gctx, id, d, opts.Fresh)
			var ce *ClassificationError
			switch {
			case errors.As(err, &ce):
				if !ce.Shared {
					calls.Add(1)
				}
				res.Error = ce.Err.Error()
				o.log.WarnContext(gctx, "analyzer: element classification failed",
					"selector", res.Selector, "fingerprint", res.Fingerprint, "error", ce.Err)
			case err != nil:
				return fmt.Errorf("element %d (%s): %w", i, res.Selector, err)
			default:
				if cached {
					hits.Add(1)
				} else {
					calls.Add(1)
				}
				res.Cached = cached
				res.Knowledge = k
			}
			report.Results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range report.Results {
		if r.Error != "" {
			report.Failures++
		} else {
			report.Analyzed++
		}
	}
	report.CacheHits = hits.Load()
	report.LLMCalls = calls.Load()
	report.finish(start)

	o.log.InfoContext(ctx, "analyzer: "+report.Summary(),
		"cache_hits", report.CacheHits, "llm_calls", report.LLMCalls,
		"failures", report.Failures, "duration", report.Duration)
	return report, nil
}

// Replay serves seq from stored knowledge only. The classifier is never
// called; descriptors without stored knowledge are counted as missing.
func (o *Orchestrator) Replay(ctx context.Context, id site.Identity, seq iter.Seq[model.ElementDescriptor]) (*RunReport, error) {
	o.ResetStats()

	start := time.Now()
	report := &RunReport{
		RunID:     o.newRunID(),
		Site:      id.String(),
		StartedAt: start.UTC(),
	}
	ctx = logger.WithFields(ctx, logger.Fields{RunID: report.RunID, Site: report.Site})
	m, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	i := 0
	for d := range seq {
		fp := fingerprint.Of(d)
		k, ok := m[fp]
		if !ok {
			report.Missing++
			i++
			continue
		}
		o.cacheHits.Add(1)
		report.Results = append(report.Results, Result{
			Index:       i,
			Selector:    fingerprint.Selector(d),
			Fingerprint: fp,
			Cached:      true,
			Knowledge:   k,
		})
		i++
	}
	report.Analyzed = len(report.Results)
	report.CacheHits = int64(report.Analyzed)
	report.finish(start)

	o.log.InfoContext(ctx, "analyzer: loaded cached analysis",
		"loaded", report.Analyzed, "missing", report.Missing)
	return report, nil
}
