// Package analyzer decides, per element, whether stored knowledge applies or
// the classifier must run, and drives whole-page analysis runs.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/element-memory/internal/classifier"
	"github.com/rcliao/element-memory/internal/fingerprint"
	"github.com/rcliao/element-memory/internal/logger"
	"github.com/rcliao/element-memory/internal/model"
	"github.com/rcliao/element-memory/internal/site"
	"github.com/rcliao/element-memory/internal/store"
)

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Store      store.Store
	Classifier classifier.Classifier
	Logger     *slog.Logger
}

// Orchestrator resolves element descriptors to knowledge, consulting the
// store before the classifier. It is safe for concurrent use; writes for one
// site are serialized by the store.
type Orchestrator struct {
	store store.Store
	cls   classifier.Classifier
	log   *slog.Logger

	cacheHits atomic.Int64
	llmCalls  atomic.Int64

	group singleflight.Group

	mu      sync.Mutex
	entropy *rand.Rand
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		store:   cfg.Store,
		cls:     cfg.Classifier,
		log:     cfg.Logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type resolved struct {
	k      *model.ElementKnowledge
	cached bool
}

// Resolve returns knowledge for d on site id. Unless forceFresh is set, a
// stored entry with the same fingerprint is returned unchanged and counted as
// a cache hit. Otherwise the classifier runs, the result replaces any stored
// entry, and the call is counted as an LLM call. The bool reports whether the
// result came from the store.
//
// Classifier failures return a *ClassificationError and persist nothing.
// Store write failures wrap store.ErrWrite.
func (o *Orchestrator) Resolve(ctx context.Context, id site.Identity, d model.ElementDescriptor, forceFresh bool) (*model.ElementKnowledge, bool, error) {
	fp := fingerprint.Of(d)
	ctx = logger.WithFields(ctx, logger.Fields{Site: id.String()})

	if forceFresh {
		k, err := o.classify(ctx, id, d, fp)
		return k, false, err
	}

	k, err := o.store.Find(ctx, id, fp)
	if err == nil {
		o.cacheHits.Add(1)
		o.log.DebugContext(ctx, "analyzer: cache hit", "selector", k.Selector, "fingerprint", fp)
		return k, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("find %s: %w", fp, err)
	}

	// Concurrent misses for one element share a single classifier call.
	leader := false
	v, err, _ := o.group.Do(id.String()+"\x00"+string(fp), func() (any, error) {
		leader = true
		if k, err := o.store.Find(ctx, id, fp); err == nil {
			o.cacheHits.Add(1)
			return resolved{k: k, cached: true}, nil
		}
		k, err := o.classify(ctx, id, d, fp)
		if err != nil {
			return nil, err
		}
		return resolved{k: k}, nil
	})
	if err != nil {
		var ce *ClassificationError
		if !leader && errors.As(err, &ce) {
			shared := *ce
			shared.Shared = true
			return nil, false, &shared
		}
		return nil, false, err
	}
	r := v.(resolved)
	if !leader {
		o.cacheHits.Add(1)
		return r.k.Clone(), true, nil
	}
	return r.k, r.cached, nil
}

func (o *Orchestrator) classify(ctx context.Context, id site.Identity, d model.ElementDescriptor, fp model.Fingerprint) (*model.ElementKnowledge, error) {
	o.llmCalls.Add(1)

	c, err := o.cls.Classify(ctx, d)
	if err != nil {
		return nil, &ClassificationError{Descriptor: d, Fingerprint: fp, Err: err}
	}
	understanding, ok := c.Understanding()
	if !ok || strings.TrimSpace(understanding) == "" {
		return nil, &ClassificationError{Descriptor: d, Fingerprint: fp, Err: classifier.ErrUnusableResponse}
	}

	k := &model.ElementKnowledge{
		URL:           id.String(),
		Selector:      fingerprint.Selector(d),
		ElementHash:   fp,
		Understanding: understanding,
		Purpose:       c.Purpose(),
		Confidence:    c.Confidence(),
		Timestamp:     model.Now(),
		LLMResponse:   c,
	}
	if err := o.store.Put(ctx, id, k); err != nil {
		return nil, fmt.Errorf("persist %s: %w", fp, err)
	}
	o.log.DebugContext(ctx, "analyzer: classified element",
		"selector", k.Selector, "fingerprint", fp, "confidence", k.Confidence)
	return k, nil
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() model.Stats {
	return model.Stats{
		CacheHits: o.cacheHits.Load(),
		LLMCalls:  o.llmCalls.Load(),
	}
}

// ResetStats zeroes the counters.
func (o *Orchestrator) ResetStats() {
	o.cacheHits.Store(0)
	o.llmCalls.Store(0)
}

func (o *Orchestrator) newRunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), o.entropy).String()
}
