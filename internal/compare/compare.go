// Package compare implements the Manifest Comparator: a pure decision
// of cache-hit vs. miss reason between an optional existing manifest
// and the freshly computed structure/prompt hashes.
package compare

import "civicpipe/internal/model"

// Reason names why a manifest cannot be reused; it is empty when
// CanReuse is true.
type Reason string

const (
	ReasonNoManifest       Reason = "no_manifest"
	ReasonStructureChanged Reason = "structure_changed"
	ReasonPromptChanged    Reason = "prompt_changed"
	ReasonBothChanged      Reason = "both_changed"
)

// Result is the Comparator's decision.
type Result struct {
	CanReuse         bool
	Reason           Reason
	StructureChanged bool
	PromptChanged    bool
}

// Compare decides whether existing can be reused given the freshly
// computed structure and prompt hashes. Reuse requires bytewise
// equality on both hashes; anything else forces re-analysis.
func Compare(existing *model.StructuralManifest, structureHash, promptHash string) Result {
	if existing == nil {
		return Result{CanReuse: false, Reason: ReasonNoManifest}
	}

	structureChanged := existing.StructureHash != structureHash
	promptChanged := existing.PromptHash != promptHash

	if !structureChanged && !promptChanged {
		return Result{CanReuse: true}
	}

	switch {
	case structureChanged && promptChanged:
		return Result{CanReuse: false, Reason: ReasonBothChanged, StructureChanged: true, PromptChanged: true}
	case structureChanged:
		return Result{CanReuse: false, Reason: ReasonStructureChanged, StructureChanged: true}
	default:
		return Result{CanReuse: false, Reason: ReasonPromptChanged, PromptChanged: true}
	}
}
