// Package pipeline implements the Pipeline Orchestrator: the single
// entry point that dispatches a DataSourceConfig to the bulk, API, or
// HTML handler and returns a typed ExtractionResult, the way the
// teacher's job runner (internal/jobs) drives a scrape end to end but
// generalized to the four-stage manifest-driven pipeline.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"civicpipe/internal/analyzer"
	"civicpipe/internal/apiingest"
	"civicpipe/internal/bulk"
	"civicpipe/internal/compare"
	"civicpipe/internal/config"
	"civicpipe/internal/distlock"
	"civicpipe/internal/extractor"
	"civicpipe/internal/healing"
	"civicpipe/internal/mapper"
	"civicpipe/internal/model"
	"civicpipe/internal/store"
	"civicpipe/internal/structhash"
)

// Fetcher retrieves raw HTML for the HTML pipeline; caching and retry
// are the implementation's responsibility, not the orchestrator's.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Analyzer is the subset of analyzer.Analyzer the orchestrator needs,
// narrowed to an interface so tests can substitute a fake without a
// real LLM.
type Analyzer interface {
	Analyze(ctx context.Context, html string, source config.DataSourceConfig) (model.StructuralManifest, error)
	GetCurrentPromptHash(dataType string) (string, error)
}

// Orchestrator wires the Fetcher, Analyzer, ManifestStore, and the
// bulk/API handlers' HTTP collaborators into the single `Execute`
// entry point spec'd in §4.12.
type Orchestrator struct {
	Fetcher    Fetcher
	Analyzer   Analyzer
	Store      store.ManifestStore
	BulkClient bulk.HTTPClient
	APIClient  apiingest.HTTPClient
	Sleep      apiingest.Sleeper
	Locker     distlock.Locker
	Logger     *slog.Logger
}

// New builds an Orchestrator from its collaborators. Locker may be
// nil (distlock.NoopLocker{} is used as the default), in which case
// the Postgres unique index is the only serialization mechanism.
func New(fetcher Fetcher, llmAnalyzer Analyzer, manifestStore store.ManifestStore, bulkClient bulk.HTTPClient, apiClient apiingest.HTTPClient) *Orchestrator {
	return &Orchestrator{
		Fetcher:    fetcher,
		Analyzer:   llmAnalyzer,
		Store:      manifestStore,
		BulkClient: bulkClient,
		APIClient:  apiClient,
		Sleep:      time.Sleep,
		Locker:     distlock.NoopLocker{},
		Logger:     slog.Default(),
	}
}

// Execute runs the pipeline for one DataSourceConfig and returns a
// result-typed outcome; it never panics and never returns a Go error.
func (o *Orchestrator) Execute(ctx context.Context, source config.DataSourceConfig, regionID string) model.ExtractionResult[any] {
	start := time.Now()

	switch source.EffectiveSourceType() {
	case config.SourceTypeBulkDownload:
		if source.Bulk == nil {
			return failureResult(start, "missing bulk configuration")
		}
		raw := bulk.Fetch(ctx, o.BulkClient, source.URL, source)
		return o.finishNonHTML(raw, source, start)

	case config.SourceTypeAPI:
		if source.API == nil {
			return failureResult(start, "missing api configuration")
		}
		sleep := o.Sleep
		if sleep == nil {
			sleep = time.Sleep
		}
		raw := apiingest.Fetch(ctx, o.APIClient, sleep, source.URL, source)
		return o.finishNonHTML(raw, source, start)

	default:
		return o.executeHTML(ctx, source, regionID, start)
	}
}

func (o *Orchestrator) finishNonHTML(raw model.RawExtractionResult, source config.DataSourceConfig, start time.Time) model.ExtractionResult[any] {
	mapped := mapper.Map(raw, source)
	return model.ExtractionResult[any]{
		Items:            mapped.Items,
		ManifestVersion:  0,
		Success:          raw.Success,
		Warnings:         append(append([]string{}, raw.Warnings...), mapped.Warnings...),
		Errors:           append(append([]string{}, raw.Errors...), mapped.Errors...),
		ExtractionTimeMs: time.Since(start).Milliseconds(),
	}
}

func (o *Orchestrator) executeHTML(ctx context.Context, source config.DataSourceConfig, regionID string, start time.Time) model.ExtractionResult[any] {
	logger := o.logger()

	html, err := o.Fetcher.Fetch(ctx, source.URL)
	if err != nil {
		logger.Error("fetch failed", "url", source.URL, "error", err)
		return failureResult(start, fmt.Sprintf("fetch failed: %v", err))
	}

	currentStructureHash, err := structhash.ComputeStructureHash(html)
	if err != nil {
		return failureResult(start, fmt.Sprintf("structure hash failed: %v", err))
	}
	currentPromptHash, err := o.Analyzer.GetCurrentPromptHash(string(source.DataType))
	if err != nil {
		return failureResult(start, fmt.Sprintf("prompt hash lookup failed: %v", err))
	}

	identity := model.Identity{RegionID: regionID, SourceURL: source.URL, DataType: string(source.DataType)}

	existing, err := o.Store.FindLatest(ctx, identity)
	if err != nil {
		return failureResult(start, fmt.Sprintf("manifest lookup failed: %v", err))
	}

	cmp := compare.Compare(existing, currentStructureHash, currentPromptHash)

	manifest, err := o.reconcileManifest(ctx, existing, cmp, html, source, regionID, identity)
	if err != nil {
		return failureResult(start, err.Error())
	}

	raw := extractor.Extract(html, manifest, source.URL)
	decision := healing.Evaluate(raw, manifest, -1, false)

	finalManifest := manifest
	if decision.ShouldHeal {
		logger.Warn("self-healing manifest", "identity", identity, "reason", decision.Reason)

		healed, err := o.deriveAndSave(ctx, html, source, regionID, identity)
		if err != nil {
			// A failed re-derivation (e.g. a malformed LLM response) saves
			// no manifest, so the pre-heal manifest's counters stay
			// untouched per §7 — nothing here to increment against.
			return failureResult(start, fmt.Sprintf("self-heal analysis failed: %v", err))
		}
		finalManifest = healed
		raw = extractor.Extract(html, finalManifest, source.URL)
		final := healing.Evaluate(raw, finalManifest, -1, true)

		if final.Validation.Valid {
			_ = o.Store.IncrementSuccess(ctx, finalManifest.ID)
		} else {
			_ = o.Store.IncrementFailure(ctx, finalManifest.ID)
		}
	} else {
		_ = o.Store.IncrementSuccess(ctx, manifest.ID)
		_ = o.Store.MarkChecked(ctx, manifest.ID)
	}

	mapped := mapper.Map(raw, source)

	return model.ExtractionResult[any]{
		Items:            mapped.Items,
		ManifestVersion:  finalManifest.Version,
		Success:          raw.Success,
		Warnings:         append(append([]string{}, raw.Warnings...), mapped.Warnings...),
		Errors:           append(append([]string{}, raw.Errors...), mapped.Errors...),
		ExtractionTimeMs: time.Since(start).Milliseconds(),
	}
}

// reconcileManifest returns the manifest to extract with: the cached
// one when the comparator says it's reusable, or a freshly derived and
// saved one otherwise. The analyze+save critical section is bracketed
// by the distributed lock (when configured) so concurrent invocations
// for the same identity don't both pay for an LLM call only to have
// one save lost to the store's conflict retry.
func (o *Orchestrator) reconcileManifest(ctx context.Context, existing *model.StructuralManifest, cmp compare.Result, html string, source config.DataSourceConfig, regionID string, identity model.Identity) (model.StructuralManifest, error) {
	if cmp.CanReuse {
		return *existing, nil
	}
	return o.deriveAndSave(ctx, html, source, regionID, identity)
}

func (o *Orchestrator) deriveAndSave(ctx context.Context, html string, source config.DataSourceConfig, regionID string, identity model.Identity) (model.StructuralManifest, error) {
	lockName := identity.RegionID + "/" + identity.SourceURL + "/" + identity.DataType
	locker := o.Locker
	if locker == nil {
		locker = distlock.NoopLocker{}
	}

	lock, ok, err := locker.Acquire(ctx, lockName, 2*time.Minute)
	if err != nil {
		return model.StructuralManifest{}, err
	}
	if ok {
		defer lock.Release(ctx)
	}

	derived, err := o.Analyzer.Analyze(ctx, html, source)
	if err != nil {
		return model.StructuralManifest{}, fmt.Errorf("analysis failed: %w", err)
	}
	derived.RegionID = regionID

	saved, err := o.saveWithRetry(ctx, derived)
	if err != nil {
		return model.StructuralManifest{}, fmt.Errorf("manifest save failed: %w", err)
	}
	return saved, nil
}

// saveWithRetry retries once on a StoreConflict, per §5's "loser
// re-reads and retries as v+2" resolution.
func (o *Orchestrator) saveWithRetry(ctx context.Context, manifest model.StructuralManifest) (model.StructuralManifest, error) {
	saved, err := o.Store.Save(ctx, manifest)
	if err == nil {
		return saved, nil
	}
	if err != store.ErrConflict {
		return model.StructuralManifest{}, err
	}
	return o.Store.Save(ctx, manifest)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func failureResult(start time.Time, message string) model.ExtractionResult[any] {
	return model.ExtractionResult[any]{
		Items:            nil,
		Success:          false,
		Errors:           []string{message},
		ExtractionTimeMs: time.Since(start).Milliseconds(),
	}
}
