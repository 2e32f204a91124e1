package store

import (
	"context"
	"testing"

	"civicpipe/internal/model"
)

func testIdentity() model.Identity {
	return model.Identity{RegionID: "ca", SourceURL: "https://example.gov/props", DataType: "propositions"}
}

func TestSaveAssignsMonotonicVersions(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := testIdentity()

	first, err := s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType, StructureHash: "h1"})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected Version=1, got %d", first.Version)
	}

	second, err := s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType, StructureHash: "h2"})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected Version=2, got %d", second.Version)
	}
}

func TestSaveDeactivatesPreviousVersion(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := testIdentity()

	first, _ := s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType})
	if _, err := s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	history, err := s.GetHistory(ctx, id)
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}

	activeCount := 0
	for _, m := range history {
		if m.IsActive {
			activeCount++
		}
		if m.ID == first.ID && m.IsActive {
			t.Fatalf("expected version 1 to be deactivated once version 2 is saved")
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active manifest, found %d", activeCount)
	}
}

func TestFindLatestReturnsNilWhenNoManifestStored(t *testing.T) {
	s := NewMemory()
	found, err := s.FindLatest(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("FindLatest returned error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for an identity with no stored manifest, got %+v", found)
	}
}

func TestIncrementSuccessAndFailureBumpCounters(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := testIdentity()

	saved, _ := s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType})

	if err := s.IncrementSuccess(ctx, saved.ID); err != nil {
		t.Fatalf("IncrementSuccess returned error: %v", err)
	}
	if err := s.IncrementSuccess(ctx, saved.ID); err != nil {
		t.Fatalf("IncrementSuccess returned error: %v", err)
	}
	if err := s.IncrementFailure(ctx, saved.ID); err != nil {
		t.Fatalf("IncrementFailure returned error: %v", err)
	}

	latest, err := s.FindLatest(ctx, id)
	if err != nil {
		t.Fatalf("FindLatest returned error: %v", err)
	}
	if latest.SuccessCount != 2 {
		t.Fatalf("expected SuccessCount=2, got %d", latest.SuccessCount)
	}
	if latest.FailureCount != 1 {
		t.Fatalf("expected FailureCount=1, got %d", latest.FailureCount)
	}
}

func TestGetHistoryOrdersNewestFirst(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	id := testIdentity()

	s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType})
	s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType})
	s.Save(ctx, model.StructuralManifest{RegionID: id.RegionID, SourceURL: id.SourceURL, DataType: id.DataType})

	history, err := s.GetHistory(ctx, id)
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	if history[0].Version != 3 || history[1].Version != 2 || history[2].Version != 1 {
		t.Fatalf("expected versions ordered 3,2,1, got %d,%d,%d", history[0].Version, history[1].Version, history[2].Version)
	}
}
