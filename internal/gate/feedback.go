package gate

import (
	"fmt"
	"strings"

	"github.com/valpere/perevir/internal/model"
)

// Synthesize collects issues and corrections from every assessor scoring
// below passThreshold, in priority order, together with the rejected text.
// Pure and deterministic; assessors with no issues contribute nothing
// beyond their corrections.
func Synthesize(joined model.JoinedAssessment, passThreshold int, previousText string) model.Feedback {
	fb := model.Feedback{PreviousText: previousText}

	for _, name := range joined.Order {
		r, ok := joined.Results[name]
		if !ok || r.Score >= passThreshold {
			continue
		}
		fb.TriggeredBy = append(fb.TriggeredBy, name)
		fb.Issues = append(fb.Issues, r.Issues...)
		fb.Corrections = append(fb.Corrections, r.Corrections...)
	}

	return fb
}

// FormatPrompt renders feedback as the instruction block injected into the
// next translation attempt. When the feedback carries nothing actionable it
// returns an explicit sentinel instead of an empty block, so the translator
// never receives a vacuous prompt.
func FormatPrompt(fb model.Feedback) string {
	if fb.Empty() {
		return "<previous_feedback>\nNo issues recorded in the previous attempt.\n</previous_feedback>"
	}

	var b strings.Builder
	b.WriteString("<previous_feedback>\n")
	b.WriteString("The following issues were found in the previous translation:\n\n")

	if len(fb.Issues) > 0 {
		b.WriteString("Issues found:\n")
		for i, issue := range fb.Issues {
			fmt.Fprintf(&b, "%d. %s\n", i+1, issue)
		}
		b.WriteString("\n")
	}

	if len(fb.Corrections) > 0 {
		b.WriteString("Suggested corrections:\n")
		for _, c := range fb.Corrections {
			fmt.Fprintf(&b, "- %q -> %q\n", c.Original, c.Suggested)
			fmt.Fprintf(&b, "  Reason: %s\n", c.Reason)
		}
		b.WriteString("\n")
	}

	if fb.PreviousText != "" {
		b.WriteString("Previous translation (for reference):\n")
		b.WriteString(fb.PreviousText)
		b.WriteString("\n\n")
	}

	b.WriteString("Generate a new translation avoiding the issues above.\n")
	b.WriteString("</previous_feedback>")

	return b.String()
}
