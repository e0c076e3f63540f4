// Package assessor defines the assessment collaborator contract and its
// implementations: LLM-backed accuracy, compliance and quality assessors
// over Ollama, and a deterministic language assessor built on lingua-go.
package assessor

import (
	"context"

	"github.com/valpere/perevir/internal/model"
)

// Assessor evaluates one candidate against one unit and produces a scored
// result. Implementations must honor the AssessmentResult contract: a valid
// score in [0,5] or an error, never an out-of-range score. Name must be
// stable and unique within a configured set.
type Assessor interface {
	Name() string
	Assess(ctx context.Context, unit model.TranslationUnit, candidate model.Candidate, verification model.Verification) (*model.AssessmentResult, error)
}
