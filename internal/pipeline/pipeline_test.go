package pipeline

import (
	"context"
	"testing"

	"civicpipe/internal/analyzer"
	"civicpipe/internal/config"
	"civicpipe/internal/model"
	"civicpipe/internal/store"
	"civicpipe/internal/structhash"
)

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.html, f.err
}

type fakeAnalyzer struct {
	promptHash string
	manifests  []model.StructuralManifest // consumed in order across calls to Analyze
	calls      int
	failOnCall int // 1-based; that call returns failErr instead of consuming manifests
	failErr    error
}

func (f *fakeAnalyzer) GetCurrentPromptHash(_ string) (string, error) {
	return f.promptHash, nil
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, _ config.DataSourceConfig) (model.StructuralManifest, error) {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return model.StructuralManifest{}, f.failErr
	}
	return f.manifests[f.calls-1], nil
}

func propositionsSource() config.DataSourceConfig {
	return config.DataSourceConfig{
		URL:         "https://example.gov/props",
		DataType:    config.DataTypePropositions,
		ContentGoal: "ballot propositions for the region",
	}
}

const twoItemHTML = `<html><body><div class="items">
<div class="item"><span class="id">prop-001</span><span class="title">Prop 1</span></div>
<div class="item"><span class="id">prop-002</span><span class="title">Prop 2</span></div>
</div></body></html>`

func workingExtractionRules() model.ExtractionRules {
	return model.ExtractionRules{
		ContainerSelector: ".items",
		ItemSelector:      ".item",
		FieldMappings: []model.FieldMapping{
			{FieldName: "externalId", Selector: ".id", ExtractionMethod: model.ExtractText, Required: true},
			{FieldName: "title", Selector: ".title", ExtractionMethod: model.ExtractText, Required: true},
		},
	}
}

func TestExecuteCacheHitSkipsAnalyzer(t *testing.T) {
	memStore := store.NewMemory()
	source := propositionsSource()
	ctx := context.Background()

	structureHash, err := structhash.ComputeStructureHash(twoItemHTML)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	existing, err := memStore.Save(ctx, model.StructuralManifest{
		RegionID:        "ca",
		SourceURL:       source.URL,
		DataType:        string(source.DataType),
		StructureHash:   structureHash,
		PromptHash:      "prompt-v1",
		ExtractionRules: workingExtractionRules(),
	})
	if err != nil {
		t.Fatalf("setup save: %v", err)
	}

	analyzerFake := &fakeAnalyzer{promptHash: "prompt-v1"}
	orch := New(&fakeFetcher{html: twoItemHTML}, analyzerFake, memStore, nil, nil)

	result := orch.Execute(ctx, source, "ca")

	if analyzerFake.calls != 0 {
		t.Fatalf("expected analyzer not to be invoked on a cache hit, got %d calls", analyzerFake.calls)
	}
	if result.ManifestVersion != existing.Version {
		t.Fatalf("expected manifestVersion=%d, got %d", existing.Version, result.ManifestVersion)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings on a clean cache hit, got %v", result.Warnings)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}

	latest, _ := memStore.FindLatest(ctx, model.Identity{RegionID: "ca", SourceURL: source.URL, DataType: string(source.DataType)})
	if latest.SuccessCount != 1 {
		t.Fatalf("expected incrementSuccess to have been called exactly once, got successCount=%d", latest.SuccessCount)
	}
	if latest.LastCheckedAt == nil {
		t.Fatalf("expected markChecked to have stamped lastCheckedAt")
	}
}

func TestExecuteFirstRunDerivesAndSavesManifest(t *testing.T) {
	memStore := store.NewMemory()
	source := propositionsSource()
	ctx := context.Background()

	analyzerFake := &fakeAnalyzer{
		promptHash: "prompt-v1",
		manifests: []model.StructuralManifest{
			{PromptHash: "prompt-v1", ExtractionRules: workingExtractionRules()},
		},
	}
	orch := New(&fakeFetcher{html: twoItemHTML}, analyzerFake, memStore, nil, nil)

	result := orch.Execute(ctx, source, "ca")

	if analyzerFake.calls != 1 {
		t.Fatalf("expected exactly one analyzer call, got %d", analyzerFake.calls)
	}
	if result.ManifestVersion != 1 {
		t.Fatalf("expected manifestVersion=1, got %d", result.ManifestVersion)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 propositions, got %d", len(result.Items))
	}
	first, ok := result.Items[0].(model.Proposition)
	if !ok {
		t.Fatalf("expected a model.Proposition, got %T", result.Items[0])
	}
	if first.ExternalID != "prop-001" {
		t.Fatalf("expected first item externalId=prop-001, got %q", first.ExternalID)
	}

	history, _ := memStore.GetHistory(ctx, model.Identity{RegionID: "ca", SourceURL: source.URL, DataType: string(source.DataType)})
	if len(history) != 1 {
		t.Fatalf("expected exactly one saved manifest version, got %d", len(history))
	}
}

const emptyItemsHTML = `<html><body><div class="items"></div></body></html>`

func TestExecuteSelfHealsWhenFirstExtractionIsEmpty(t *testing.T) {
	memStore := store.NewMemory()
	source := propositionsSource()
	ctx := context.Background()

	staleRules := model.ExtractionRules{
		ContainerSelector: ".items",
		ItemSelector:      ".nonexistent-item",
		FieldMappings: []model.FieldMapping{
			{FieldName: "externalId", Selector: ".id", ExtractionMethod: model.ExtractText, Required: true},
		},
	}

	analyzerFake := &fakeAnalyzer{
		promptHash: "prompt-v1",
		manifests: []model.StructuralManifest{
			{PromptHash: "prompt-v1", ExtractionRules: staleRules},
			{PromptHash: "prompt-v1", ExtractionRules: workingExtractionRules()},
		},
	}
	orch := New(&fakeFetcher{html: twoItemHTML}, analyzerFake, memStore, nil, nil)

	result := orch.Execute(ctx, source, "ca")

	if analyzerFake.calls != 2 {
		t.Fatalf("expected self-healing to call the analyzer exactly twice, got %d", analyzerFake.calls)
	}
	if result.ManifestVersion != 2 {
		t.Fatalf("expected manifestVersion=2 after self-heal, got %d", result.ManifestVersion)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items after self-heal, got %d", len(result.Items))
	}

	latest, _ := memStore.FindLatest(ctx, model.Identity{RegionID: "ca", SourceURL: source.URL, DataType: string(source.DataType)})
	if latest.Version != 2 {
		t.Fatalf("expected active manifest version=2, got %d", latest.Version)
	}
	if latest.SuccessCount != 1 {
		t.Fatalf("expected incrementSuccess on the healed v2 manifest, got successCount=%d", latest.SuccessCount)
	}
}

func TestExecuteSelfHealFailureLeavesCountersUntouched(t *testing.T) {
	memStore := store.NewMemory()
	source := propositionsSource()
	ctx := context.Background()

	staleRules := model.ExtractionRules{
		ContainerSelector: ".items",
		ItemSelector:      ".nonexistent-item",
		FieldMappings: []model.FieldMapping{
			{FieldName: "externalId", Selector: ".id", ExtractionMethod: model.ExtractText, Required: true},
		},
	}

	analyzerFake := &fakeAnalyzer{
		promptHash: "prompt-v1",
		manifests: []model.StructuralManifest{
			{PromptHash: "prompt-v1", ExtractionRules: staleRules},
		},
		failOnCall: 2,
		failErr:    &analyzer.MalformedAnalysisError{Detail: "missing fieldMappings"},
	}
	orch := New(&fakeFetcher{html: twoItemHTML}, analyzerFake, memStore, nil, nil)

	result := orch.Execute(ctx, source, "ca")

	if result.Success {
		t.Fatalf("expected failure when the forced re-analysis errors")
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected a self-heal failure error message")
	}

	latest, _ := memStore.FindLatest(ctx, model.Identity{RegionID: "ca", SourceURL: source.URL, DataType: string(source.DataType)})
	if latest == nil {
		t.Fatalf("expected the stale v1 manifest to still be active")
	}
	if latest.Version != 1 {
		t.Fatalf("expected no new manifest version to have been saved, got version %d", latest.Version)
	}
	if latest.SuccessCount != 0 || latest.FailureCount != 0 {
		t.Fatalf("expected counters untouched on a failed self-heal, got success=%d failure=%d", latest.SuccessCount, latest.FailureCount)
	}
}

func TestExecuteMissingBulkConfigFails(t *testing.T) {
	orch := New(&fakeFetcher{}, &fakeAnalyzer{}, store.NewMemory(), nil, nil)
	source := config.DataSourceConfig{
		URL:         "https://example.gov/bulk",
		DataType:    config.DataTypeCampaignFinance,
		ContentGoal: "campaign finance bulk data",
		SourceType:  config.SourceTypeBulkDownload,
	}
	result := orch.Execute(context.Background(), source, "ca")
	if result.Success {
		t.Fatalf("expected failure when bulk config is missing")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "missing bulk configuration" {
		t.Fatalf("expected a single missing-bulk-configuration error, got %v", result.Errors)
	}
}

func TestExecuteMissingAPIConfigFails(t *testing.T) {
	orch := New(&fakeFetcher{}, &fakeAnalyzer{}, store.NewMemory(), nil, nil)
	source := config.DataSourceConfig{
		URL:         "https://example.gov/api",
		DataType:    config.DataTypeCampaignFinance,
		ContentGoal: "campaign finance API data",
		SourceType:  config.SourceTypeAPI,
	}
	result := orch.Execute(context.Background(), source, "ca")
	if result.Success {
		t.Fatalf("expected failure when api config is missing")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "missing api configuration" {
		t.Fatalf("expected a single missing-api-configuration error, got %v", result.Errors)
	}
}

func TestExecuteFetchFailurePropagates(t *testing.T) {
	orch := New(&fakeFetcher{err: errFetchBoom}, &fakeAnalyzer{}, store.NewMemory(), nil, nil)
	result := orch.Execute(context.Background(), propositionsSource(), "ca")
	if result.Success {
		t.Fatalf("expected failure when the fetcher errors")
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected a fetch-failure error message")
	}
}

var errFetchBoom = fetchBoom{}

type fetchBoom struct{}

func (fetchBoom) Error() string { return "connection reset" }
