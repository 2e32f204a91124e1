package validator

import (
	"testing"

	"civicpipe/internal/model"
)

func itemsWithMissingFraction(total, missing int) []map[string]any {
	items := make([]map[string]any, total)
	for i := 0; i < total; i++ {
		if i < missing {
			items[i] = map[string]any{}
		} else {
			items[i] = map[string]any{"externalId": "x"}
		}
	}
	return items
}

func manifestRequiring(field string) model.StructuralManifest {
	return model.StructuralManifest{
		ExtractionRules: model.ExtractionRules{
			FieldMappings: []model.FieldMapping{
				{FieldName: field, Required: true},
			},
		},
	}
}

func severityFor(res Result, substr string) (Severity, bool) {
	for _, iss := range res.Issues {
		if contains(iss.Message, substr) {
			return iss.Severity, true
		}
	}
	return "", false
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || (len(substr) > 0 && indexOf(s, substr) >= 0))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestMissingFractionBoundaries(t *testing.T) {
	cases := []struct {
		name          string
		missing       int
		total         int
		wantIssue     bool
		wantSeverity  Severity
	}{
		{"9_percent", 9, 100, false, ""},
		{"10_percent", 10, 100, true, SeverityWarning},
		{"50_percent", 50, 100, true, SeverityWarning},
		{"51_percent", 51, 100, true, SeverityError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := model.RawExtractionResult{
				Items:   itemsWithMissingFraction(tc.total, tc.missing),
				Success: true,
			}
			res := Validate(raw, manifestRequiring("externalId"), -1)
			sev, found := severityFor(res, "externalId")
			if found != tc.wantIssue {
				t.Fatalf("found=%v, want %v (issues: %+v)", found, tc.wantIssue, res.Issues)
			}
			if found && sev != tc.wantSeverity {
				t.Fatalf("severity=%v, want %v", sev, tc.wantSeverity)
			}
		})
	}
}

func TestZeroItemsIsError(t *testing.T) {
	res := Validate(model.RawExtractionResult{Success: true}, model.StructuralManifest{}, -1)
	if res.Valid {
		t.Fatalf("expected invalid for zero items")
	}
	if _, found := severityFor(res, "zero items"); !found {
		t.Fatalf("expected zero items error, got %+v", res.Issues)
	}
}

func TestExtractionFailedIsError(t *testing.T) {
	res := Validate(model.RawExtractionResult{Success: false, Items: []map[string]any{{"a": "b"}}}, model.StructuralManifest{}, -1)
	if res.Valid {
		t.Fatalf("expected invalid when success=false")
	}
}

func TestCountDropThresholds(t *testing.T) {
	raw := model.RawExtractionResult{Success: true, Items: itemsWithMissingFraction(20, 0)}
	res := Validate(raw, model.StructuralManifest{}, 100)
	if res.Valid {
		t.Fatalf("20/100=0.2 ratio should be error (<0.25): got valid=%v issues=%+v", res.Valid, res.Issues)
	}
	if _, found := severityFor(res, "count dropped dramatically"); !found {
		t.Fatalf("expected count dropped dramatically error, got %+v", res.Issues)
	}

	raw2 := model.RawExtractionResult{Success: true, Items: itemsWithMissingFraction(50, 0)}
	res2 := Validate(raw2, model.StructuralManifest{}, 100)
	if !res2.Valid {
		t.Fatalf("50/100=0.5 ratio is only a warning and should stay valid: issues=%+v", res2.Issues)
	}
	if _, found := severityFor(res2, "count decreased"); !found {
		t.Fatalf("expected count decreased warning, got %+v", res2.Issues)
	}
}

func TestHighWarningCount(t *testing.T) {
	warnings := make([]string, 10)
	raw := model.RawExtractionResult{Success: true, Items: itemsWithMissingFraction(1, 0), Warnings: warnings}
	res := Validate(raw, model.StructuralManifest{}, -1)
	if _, found := severityFor(res, "high warning count"); !found {
		t.Fatalf("expected high warning count, got %+v", res.Issues)
	}
}
