package config

import "testing"

func validRegion() *DeclarativeRegionConfig {
	return &DeclarativeRegionConfig{
		RegionID:   "california",
		RegionName: "California",
		DataSources: []DataSourceConfig{
			{
				URL:         "https://example.gov/props",
				DataType:    DataTypePropositions,
				ContentGoal: "ballot propositions for the current cycle",
			},
		},
	}
}

func TestValidateIdempotent(t *testing.T) {
	cfg := validRegion()
	first := cfg.Validate()
	second := cfg.Validate()
	if len(first) != len(second) {
		t.Fatalf("validate not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("validate not idempotent at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestValidateRejectsHTTP(t *testing.T) {
	cfg := validRegion()
	cfg.DataSources[0].URL = "http://example.gov/props"
	errs := cfg.Validate()
	if !hasPath(errs, "dataSources[0].url") {
		t.Fatalf("expected url error, got %v", errs)
	}
}

func TestValidateRejectsBadRegionID(t *testing.T) {
	cfg := validRegion()
	cfg.RegionID = "9invalid"
	errs := cfg.Validate()
	if !hasPath(errs, "regionId") {
		t.Fatalf("expected regionId error, got %v", errs)
	}
}

func TestValidateRequiresBulkConfig(t *testing.T) {
	cfg := validRegion()
	cfg.DataSources[0].SourceType = SourceTypeBulkDownload
	errs := cfg.Validate()
	if !hasPath(errs, "dataSources[0].bulk") {
		t.Fatalf("expected bulk error, got %v", errs)
	}
}

func TestValidateRequiresAPIConfig(t *testing.T) {
	cfg := validRegion()
	cfg.DataSources[0].SourceType = SourceTypeAPI
	errs := cfg.Validate()
	if !hasPath(errs, "dataSources[0].api") {
		t.Fatalf("expected api error, got %v", errs)
	}
}

func TestValidateDetectsDuplicateTriples(t *testing.T) {
	cfg := validRegion()
	cfg.DataSources = append(cfg.DataSources, cfg.DataSources[0])
	errs := cfg.Validate()
	if !hasPath(errs, "dataSources[1]") {
		t.Fatalf("expected duplicate error, got %v", errs)
	}
}

func TestValidateContentGoalMinLength(t *testing.T) {
	cfg := validRegion()
	cfg.DataSources[0].ContentGoal = "too short"
	errs := cfg.Validate()
	if !hasPath(errs, "dataSources[0].contentGoal") {
		t.Fatalf("expected contentGoal error, got %v", errs)
	}
}

func hasPath(errs []FieldError, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}
