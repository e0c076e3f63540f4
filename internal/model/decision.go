package model

import "fmt"

// Verdict is the closed set of gate outcomes. Branching on it is done with
// exhaustive switches; an unknown value is a defect, never a fallthrough.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictBlock
	VerdictRegenerate
	VerdictEscalate
)

var verdictNames = map[Verdict]string{
	VerdictPass:       "pass",
	VerdictBlock:      "block",
	VerdictRegenerate: "regenerate",
	VerdictEscalate:   "escalate",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// ParseVerdict converts a stored verdict string back into the enum.
func ParseVerdict(s string) (Verdict, error) {
	for v, name := range verdictNames {
		if name == s {
			return v, nil
		}
	}
	return VerdictBlock, fmt.Errorf("unknown verdict %q", s)
}

// GateDecision is the full, auditable outcome of one gate evaluation.
// Immutable once produced; one per attempt.
type GateDecision struct {
	Verdict    Verdict          `json:"verdict"`
	CanPublish bool             `json:"can_publish"`
	Joined     JoinedAssessment `json:"joined"`

	// BlockingAssessor is set only for a Block verdict.
	BlockingAssessor string `json:"blocking_assessor,omitempty"`
	// ReviewAssessors is set only for Regenerate and Escalate verdicts.
	ReviewAssessors []string `json:"review_assessors,omitempty"`

	// Message states which rule fired and with what values. It is
	// byte-reproducible for identical inputs.
	Message string `json:"message"`
}

// Feedback is the structured input to the next generation attempt,
// synthesized from assessors that scored below the pass threshold. It lives
// only until the next attempt.
type Feedback struct {
	Issues       []string     `json:"issues,omitempty"`
	Corrections  []Correction `json:"corrections,omitempty"`
	TriggeredBy  []string     `json:"triggered_by,omitempty"`
	PreviousText string       `json:"previous_text,omitempty"`
}

// Empty reports whether the feedback carries nothing actionable.
func (f Feedback) Empty() bool {
	return len(f.Issues) == 0 && len(f.Corrections) == 0
}
