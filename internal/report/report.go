// Package report renders a finished workflow run as a human-readable audit
// report, in Markdown or HTML.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/valpere/perevir/internal/model"
)

// BuildMarkdown renders the full decision trail of a run: every attempt with
// its candidate, back-translation, per-assessor scores and the gate message.
func BuildMarkdown(run *model.WorkflowRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Translation Run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- **Unit:** %s\n", run.Unit.Key)
	fmt.Fprintf(&b, "- **Language pair:** %s → %s\n", run.Unit.SourceLang, run.Unit.TargetLang)
	fmt.Fprintf(&b, "- **Outcome:** %s after %d attempt(s)\n", run.State, run.AttemptCount)
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n## Source\n\n")
	fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(run.Unit.SourceText, "\n", "\n> "))

	if run.FinalText != "" {
		b.WriteString("## Published Translation\n\n")
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(run.FinalText, "\n", "\n> "))
	}
	if run.FailureReason != "" {
		b.WriteString("## Failure\n\n")
		fmt.Fprintf(&b, "%s\n\n", run.FailureReason)
	}

	for _, a := range run.Attempts {
		fmt.Fprintf(&b, "## Attempt %d\n\n", a.Number)
		b.WriteString("### Candidate\n\n")
		fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(a.Candidate.Text, "\n", "\n> "))
		if a.Verification.Text != "" {
			b.WriteString("### Back-translation\n\n")
			fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(a.Verification.Text, "\n", "\n> "))
		}

		b.WriteString("### Assessments\n\n")
		b.WriteString("| Assessor | Score | Verdict | Issues |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, name := range a.Joined.Order {
			r, ok := a.Joined.Results[name]
			if !ok {
				fmt.Fprintf(&b, "| %s | — | — | no result |\n", name)
				continue
			}
			issues := strings.Join(r.Issues, "; ")
			if issues == "" {
				issues = "—"
			}
			fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", r.Name, r.Score, r.Verdict, escapePipes(issues))
		}
		b.WriteString("\n")

		fmt.Fprintf(&b, "**Decision:** %s — %s\n\n", a.Decision.Verdict, a.Decision.Message)
	}

	return b.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	}
	renderer := html.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Tables
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

func ToPlainText(md []byte) string {
	htmlContent := ToHTML(md)
	return stripHTMLTags(htmlContent)
}

func stripHTMLTags(htmlContent string) string {
	var result bytes.Buffer
	inTag := false

	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				result.WriteRune(ch)
			}
		}
	}

	return result.String()
}
