// Package validator implements the Extraction Validator: scoring a
// RawExtractionResult against the manifest's required fields.
package validator

import (
	"fmt"

	"civicpipe/internal/model"
)

// Severity classifies an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding.
type Issue struct {
	Severity Severity
	Message  string
}

// Result is the Validator's verdict. Valid is true iff no issue has
// error severity.
type Result struct {
	Valid  bool
	Issues []Issue
}

// Validate scores raw against the required fields named in manifest's
// extraction rules, per the ordered rules of §4.7. previousItemCount
// is optional (pass -1 to omit rule 4). Validate depends only on
// raw.Items, raw.Success, raw.Warnings, and the set of required field
// names — never on selector strings.
func Validate(raw model.RawExtractionResult, manifest model.StructuralManifest, previousItemCount int) Result {
	var issues []Issue

	if !raw.Success {
		issues = append(issues, Issue{Severity: SeverityError, Message: "extraction failed"})
	}

	itemCount := len(raw.Items)
	if itemCount == 0 {
		issues = append(issues, Issue{Severity: SeverityError, Message: "zero items extracted"})
	}

	if itemCount > 0 {
		for _, fm := range manifest.ExtractionRules.FieldMappings {
			if !fm.Required {
				continue
			}
			missing := 0
			for _, item := range raw.Items {
				if isEmptyField(item, fm.FieldName) {
					missing++
				}
			}
			fraction := float64(missing) / float64(itemCount)
			switch {
			case fraction > 0.5:
				issues = append(issues, Issue{
					Severity: SeverityError,
					Message:  fmt.Sprintf("required field %q missing in %.0f%% of items", fm.FieldName, fraction*100),
				})
			case fraction >= 0.1:
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("required field %q missing in %.0f%% of items", fm.FieldName, fraction*100),
				})
			}
		}
	}

	if previousItemCount >= 0 && previousItemCount > 0 {
		ratio := float64(itemCount) / float64(previousItemCount)
		switch {
		case ratio < 0.25:
			issues = append(issues, Issue{Severity: SeverityError, Message: "count dropped dramatically"})
		case ratio < 0.75:
			issues = append(issues, Issue{Severity: SeverityWarning, Message: "count decreased"})
		}
	}

	if len(raw.Warnings) >= 10 {
		issues = append(issues, Issue{Severity: SeverityWarning, Message: "high warning count"})
	}

	valid := true
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			valid = false
			break
		}
	}

	return Result{Valid: valid, Issues: issues}
}

func isEmptyField(item map[string]any, field string) bool {
	v, ok := item[field]
	if !ok || v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
