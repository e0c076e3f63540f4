package model

import (
	"fmt"
	"time"
)

// Score bounds for a single assessment. A collaborator that cannot produce a
// score inside this range must fail its call; the engine treats an
// out-of-range score as a contract violation, not as data.
const (
	MinScore = 0
	MaxScore = 5
)

// ErrContract marks a collaborator contract violation. Calls failing with
// this error are never retried.
var ErrContract = fmt.Errorf("collaborator contract violation")

// AssessmentVerdict is the informational pass/review/fail tag an assessor
// attaches to its score. The gate decides from scores, not from this tag.
type AssessmentVerdict string

const (
	AssessmentPass   AssessmentVerdict = "pass"
	AssessmentReview AssessmentVerdict = "review"
	AssessmentFail   AssessmentVerdict = "fail"
)

// VerdictForScore maps a score onto the informational verdict bands used by
// all assessors: >=4 pass, 3 review, <=2 fail.
func VerdictForScore(score int) AssessmentVerdict {
	switch {
	case score >= 4:
		return AssessmentPass
	case score == 3:
		return AssessmentReview
	default:
		return AssessmentFail
	}
}

// Correction is one suggested replacement for an identified issue.
type Correction struct {
	Original  string `json:"original"`
	Suggested string `json:"suggested"`
	Reason    string `json:"reason"`
}

// AssessmentResult is the output of one assessment task for one candidate.
type AssessmentResult struct {
	Name        string            `json:"name"`
	Score       int               `json:"score"`
	Verdict     AssessmentVerdict `json:"verdict"`
	Issues      []string          `json:"issues,omitempty"`
	Corrections []Correction      `json:"corrections,omitempty"`
	Latency     time.Duration     `json:"latency"`
}

// Validate checks the structural contract of an assessment result.
func (r *AssessmentResult) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: assessment has no assessor name", ErrContract)
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return fmt.Errorf("%w: %s returned score %d outside [%d,%d]",
			ErrContract, r.Name, r.Score, MinScore, MaxScore)
	}
	return nil
}

// JoinedAssessment is the joined result set of one evaluation round, keyed
// by assessor name. Order is the configured assessor priority order and
// always lists the full configured set. Missing names assessors that failed
// or did not return before the join deadline; a non-empty Missing set marks
// the join as partial and is never silently defaulted to a score.
type JoinedAssessment struct {
	Results map[string]AssessmentResult `json:"results"`
	Order   []string                    `json:"order"`
	Missing []string                    `json:"missing,omitempty"`
}

// IsPartial reports whether at least one configured assessor has no result.
func (j JoinedAssessment) IsPartial() bool {
	return len(j.Missing) > 0
}

// Min returns the lowest score in the joined set.
func (j JoinedAssessment) Min() int {
	first := true
	min := 0
	for _, name := range j.Order {
		r, ok := j.Results[name]
		if !ok {
			continue
		}
		if first || r.Score < min {
			min = r.Score
			first = false
		}
	}
	return min
}

// Max returns the highest score in the joined set.
func (j JoinedAssessment) Max() int {
	max := 0
	for _, name := range j.Order {
		if r, ok := j.Results[name]; ok && r.Score > max {
			max = r.Score
		}
	}
	return max
}

// Average returns the mean score across present results, 0 when empty.
func (j JoinedAssessment) Average() float64 {
	if len(j.Results) == 0 {
		return 0
	}
	sum := 0
	for _, r := range j.Results {
		sum += r.Score
	}
	return float64(sum) / float64(len(j.Results))
}

// Spread returns max - min, the disagreement width.
func (j JoinedAssessment) Spread() int {
	if len(j.Results) == 0 {
		return 0
	}
	return j.Max() - j.Min()
}

// MinAssessor returns the name of the lowest-scoring assessor. Ties are
// broken by the configured priority order, which makes the answer stable
// across identical inputs.
func (j JoinedAssessment) MinAssessor() string {
	min := j.Min()
	for _, name := range j.Order {
		if r, ok := j.Results[name]; ok && r.Score == min {
			return name
		}
	}
	return ""
}

// Below returns, in priority order, the assessors scoring strictly below
// threshold.
func (j JoinedAssessment) Below(threshold int) []string {
	var names []string
	for _, name := range j.Order {
		if r, ok := j.Results[name]; ok && r.Score < threshold {
			names = append(names, name)
		}
	}
	return names
}
