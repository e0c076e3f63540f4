package report

import (
	"strings"
	"testing"

	"github.com/valpere/perevir/internal/model"
)

func sampleRun() *model.WorkflowRun {
	run := model.NewRun(model.TranslationUnit{
		Key:        "faq.password-reset",
		SourceText: "How do I reset my password?",
		SourceLang: "en",
		TargetLang: "uk",
	})
	run.State = model.StatePublished
	run.FinalText = "Як скинути пароль?"
	run.AttemptCount = 1

	joined := model.JoinedAssessment{
		Results: map[string]model.AssessmentResult{
			"compliance": {Name: "compliance", Score: 5, Verdict: model.AssessmentPass},
			"accuracy":   {Name: "accuracy", Score: 5, Verdict: model.AssessmentPass},
		},
		Order: []string{"compliance", "accuracy"},
	}
	run.Attempts = []model.Attempt{{
		Number:       1,
		Candidate:    model.Candidate{Text: "Як скинути пароль?"},
		Verification: model.Verification{Text: "How to reset a password?"},
		Joined:       joined,
		Decision: model.GateDecision{
			Verdict:    model.VerdictPass,
			CanPublish: true,
			Joined:     joined,
			Message:    "all assessors passed [compliance=5, accuracy=5]. Ready for publishing.",
		},
	}}
	return run
}

func TestBuildMarkdown(t *testing.T) {
	md := BuildMarkdown(sampleRun())

	for _, want := range []string{
		"# Translation Run",
		"**Unit:** faq.password-reset",
		"en → uk",
		"published after 1 attempt(s)",
		"How do I reset my password?",
		"## Published Translation",
		"## Attempt 1",
		"| compliance | 5 | pass |",
		"| accuracy | 5 | pass |",
		"Ready for publishing.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestBuildMarkdown_MissingAssessorRow(t *testing.T) {
	run := sampleRun()
	a := &run.Attempts[0]
	a.Joined.Order = append(a.Joined.Order, "quality")
	a.Joined.Missing = []string{"quality"}

	md := BuildMarkdown(run)
	if !strings.Contains(md, "| quality | — | — | no result |") {
		t.Errorf("missing assessor not rendered:\n%s", md)
	}
}

func TestBuildMarkdown_FailedRun(t *testing.T) {
	run := sampleRun()
	run.State = model.StateFailed
	run.FinalText = ""
	run.FailureReason = "translator unreachable"

	md := BuildMarkdown(run)
	if !strings.Contains(md, "## Failure") || !strings.Contains(md, "translator unreachable") {
		t.Errorf("failure section missing:\n%s", md)
	}
	if strings.Contains(md, "## Published Translation") {
		t.Error("failed run must not render a published section")
	}
}

func TestToHTML(t *testing.T) {
	html := ToHTML([]byte("# Title\n\nSome **bold** text."))

	if !strings.Contains(html, "<h1") || !strings.Contains(html, "Title") {
		t.Errorf("heading missing: %s", html)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("bold missing: %s", html)
	}
}

func TestToHTML_Table(t *testing.T) {
	md := BuildMarkdown(sampleRun())
	html := ToHTML([]byte(md))
	if !strings.Contains(html, "<table>") {
		t.Error("assessment table not rendered as HTML table")
	}
}

func TestToPlainText(t *testing.T) {
	got := ToPlainText([]byte("# Title\n\nSome **bold** text."))
	if strings.Contains(got, "<") {
		t.Errorf("tags left in plain text: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "bold") {
		t.Errorf("content lost: %q", got)
	}
}
