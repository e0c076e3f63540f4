package assessor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/valpere/perevir/internal/detector"
	"github.com/valpere/perevir/internal/model"
)

// minDetectionLength is the minimum rune count required to attempt language
// detection. Shorter texts produce unreliable results and skip the check.
const minDetectionLength = 20

// LanguageAssessor is a deterministic, non-LLM assessor. It verifies that
// the candidate is written in the unit's target language and that glossary
// terms present in the source are applied in the translation.
type LanguageAssessor struct {
	name string
	det  *detector.Detector
}

// NewLanguage creates the language assessor. The lingua detector is built
// once here; reuse the instance.
func NewLanguage(name string) *LanguageAssessor {
	if name == "" {
		name = "language"
	}
	return &LanguageAssessor{name: name, det: detector.New()}
}

func (a *LanguageAssessor) Name() string {
	return a.name
}

func (a *LanguageAssessor) Assess(ctx context.Context, unit model.TranslationUnit, candidate model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	text := strings.TrimSpace(candidate.Text)
	if text == "" {
		return a.result(0, []string{"translation is empty"}, nil, start), nil
	}

	score := model.MaxScore
	var issues []string
	var corrections []model.Correction

	if len([]rune(text)) >= minDetectionLength && unit.TargetLang != "" {
		match, determined := a.det.Matches(text, unit.TargetLang)
		switch {
		case determined && !match:
			detected, _ := a.det.DetectISO(text)
			issues = append(issues, fmt.Sprintf("expected %s but detected %s", unit.TargetLang, detected))
			score = 1
		case !determined:
			issues = append(issues, "target language could not be determined")
			score = 4
		}
	}

	// Glossary terms that occur in the source must surface in the
	// translation. Only degrade to borderline; wording is the LLM
	// assessors' territory. Terms are walked in sorted order so the issue
	// list is reproducible.
	if score > 3 {
		terms := make([]string, 0, len(unit.Glossary))
		for src := range unit.Glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)
		for _, src := range terms {
			want := unit.Glossary[src]
			if !strings.Contains(unit.SourceText, src) {
				continue
			}
			if !strings.Contains(text, want) {
				issues = append(issues, fmt.Sprintf("glossary term %q not applied", want))
				corrections = append(corrections, model.Correction{
					Original:  src,
					Suggested: want,
					Reason:    "required by glossary",
				})
				score = 3
			}
		}
	}

	return a.result(score, issues, corrections, start), nil
}

func (a *LanguageAssessor) result(score int, issues []string, corrections []model.Correction, start time.Time) *model.AssessmentResult {
	return &model.AssessmentResult{
		Name:        a.name,
		Score:       score,
		Verdict:     model.VerdictForScore(score),
		Issues:      issues,
		Corrections: corrections,
		Latency:     time.Since(start),
	}
}
