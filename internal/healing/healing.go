// Package healing implements the Self-Healing Controller: policy
// wrapped around the Extraction Validator that decides whether to
// re-derive a manifest.
package healing

import (
	"civicpipe/internal/model"
	"civicpipe/internal/validator"
)

// Decision is the controller's verdict.
type Decision struct {
	ShouldHeal bool
	Reason     string
	Validation validator.Result
}

// Evaluate runs the Validator and applies the one-shot healing
// policy: shouldHeal is true iff validation is invalid and this is
// not already the second attempt. Healing is strictly one-shot per
// pipeline invocation.
func Evaluate(raw model.RawExtractionResult, manifest model.StructuralManifest, previousItemCount int, secondAttempt bool) Decision {
	result := validator.Validate(raw, manifest, previousItemCount)

	decision := Decision{Validation: result}
	if result.Valid {
		return decision
	}

	decision.Reason = mostSevere(result.Issues)
	decision.ShouldHeal = !secondAttempt
	return decision
}

// mostSevere returns the message of the most severe issue, preferring
// errors over warnings and otherwise the first issue encountered.
func mostSevere(issues []validator.Issue) string {
	for _, iss := range issues {
		if iss.Severity == validator.SeverityError {
			return iss.Message
		}
	}
	if len(issues) > 0 {
		return issues[0].Message
	}
	return ""
}
