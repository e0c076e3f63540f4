// Package gate implements the release guard: a pure, deterministic decision
// over one joined assessment, and the feedback synthesis that feeds the
// regeneration loop. Nothing here performs I/O; identical inputs always
// produce byte-identical decisions, which is what makes the gate auditable.
package gate

import (
	"fmt"
	"strings"

	"github.com/valpere/perevir/internal/model"
)

// Thresholds configures the decision bands. All values are read-only after
// construction.
type Thresholds struct {
	// Pass is the minimum score every assessor must reach for publication.
	Pass int `mapstructure:"pass"`
	// Fail is the score at or below which a single assessor blocks the unit.
	Fail int `mapstructure:"fail"`
	// Disagreement is the max-min spread at or above which the assessor set
	// is considered in conflict.
	Disagreement int `mapstructure:"disagreement"`
}

// DefaultThresholds mirrors the production defaults: unanimous top score to
// publish, 2 or below blocks, a spread of 3 escalates.
func DefaultThresholds() Thresholds {
	return Thresholds{Pass: model.MaxScore, Fail: 2, Disagreement: 3}
}

// Policy decides what happens to a candidate after evaluation.
type Policy struct {
	thresholds Thresholds
}

func NewPolicy(t Thresholds) Policy {
	return Policy{thresholds: t}
}

func (p Policy) Thresholds() Thresholds {
	return p.thresholds
}

// Decide maps a joined assessment and the attempt position onto a gate
// decision. maxRegenerations is the business retry budget: attempts beyond
// it cannot regenerate. First matching rule wins:
//
//  1. partial join            -> Block (missing assessors named)
//  2. all scores >= pass      -> Pass
//  3. any score <= fail       -> Block (lowest scorer, priority tie-break)
//  4. spread >= disagreement  -> Escalate (whole set under review)
//  5. borderline              -> Regenerate while attempts remain, else Escalate
//
// Partial joins and hard fails pre-empt softer signals; disagreement is
// checked before borderline-retry because a wide spread invalidates the
// borderline reading.
func (p Policy) Decide(joined model.JoinedAssessment, attempt, maxRegenerations int) model.GateDecision {
	if joined.IsPartial() {
		return model.GateDecision{
			Verdict: model.VerdictBlock,
			Joined:  joined,
			Message: fmt.Sprintf("evaluation incomplete: no result from %s. Blocked.",
				strings.Join(joined.Missing, ", ")),
		}
	}

	if joined.Min() >= p.thresholds.Pass {
		return model.GateDecision{
			Verdict:    model.VerdictPass,
			CanPublish: true,
			Joined:     joined,
			Message:    fmt.Sprintf("all assessors passed [%s]. Ready for publishing.", scoreLine(joined)),
		}
	}

	if joined.Min() <= p.thresholds.Fail {
		blocker := joined.MinAssessor()
		r := joined.Results[blocker]
		return model.GateDecision{
			Verdict:          model.VerdictBlock,
			Joined:           joined,
			BlockingAssessor: blocker,
			Message:          fmt.Sprintf("blocked by %s (score=%d): %s", blocker, r.Score, issueLine(r)),
		}
	}

	if spread := joined.Spread(); spread >= p.thresholds.Disagreement {
		return model.GateDecision{
			Verdict:         model.VerdictEscalate,
			Joined:          joined,
			ReviewAssessors: joined.Order,
			Message: fmt.Sprintf("assessor disagreement (spread=%d): [%s]. Review required.",
				spread, scoreLine(joined)),
		}
	}

	borderline := joined.Below(p.thresholds.Pass)

	if attempt <= maxRegenerations {
		return model.GateDecision{
			Verdict:         model.VerdictRegenerate,
			Joined:          joined,
			ReviewAssessors: borderline,
			Message: fmt.Sprintf("regenerating (attempt %d/%d). Assessors below threshold: %s",
				attempt, maxRegenerations, strings.Join(borderline, ", ")),
		}
	}

	return model.GateDecision{
		Verdict:         model.VerdictEscalate,
		Joined:          joined,
		ReviewAssessors: borderline,
		Message: fmt.Sprintf("review required: %d attempts exhausted. Assessors below threshold: %s",
			attempt, strings.Join(borderline, ", ")),
	}
}

// scoreLine renders "accuracy=5, compliance=4" in priority order.
func scoreLine(joined model.JoinedAssessment) string {
	parts := make([]string, 0, len(joined.Order))
	for _, name := range joined.Order {
		if r, ok := joined.Results[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", name, r.Score))
		}
	}
	return strings.Join(parts, ", ")
}

func issueLine(r model.AssessmentResult) string {
	if len(r.Issues) == 0 {
		return "critical quality issues"
	}
	return strings.Join(r.Issues, "; ")
}
