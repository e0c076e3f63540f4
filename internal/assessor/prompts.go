package assessor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/perevir/internal/model"
)

// responseFormat is appended to every assessor prompt so the model answers
// with a parseable object.
const responseFormat = `Respond with a single JSON object and nothing else:
{
  "score": <integer 0-5>,
  "verdict": "pass" | "review" | "fail",
  "issues": ["<issue>", ...],
  "corrections": [{"original": "<text>", "suggested": "<text>", "reason": "<why>"}, ...]
}
Scoring bands: 5 = flawless, 4 = minor polish possible, 3 = borderline, 2 or below = unacceptable.
Verdict must match the score: pass for 4-5, review for 3, fail for 0-2.`

func buildAccuracyPrompt(unit model.TranslationUnit, candidate model.Candidate, verification model.Verification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a translation accuracy reviewer for %s to %s translations.\n", unit.SourceLang, unit.TargetLang)
	b.WriteString("Evaluate semantic fidelity: no meaning lost, added, or distorted.\n")
	b.WriteString("Compare the back-translation against the source to detect drift.\n\n")
	fmt.Fprintf(&b, "SOURCE (%s):\n%s\n\n", unit.SourceLang, unit.SourceText)
	fmt.Fprintf(&b, "TRANSLATION (%s):\n%s\n\n", unit.TargetLang, candidate.Text)
	if verification.Text != "" {
		fmt.Fprintf(&b, "BACK-TRANSLATION (%s):\n%s\n\n", unit.SourceLang, verification.Text)
	}
	writeGlossary(&b, unit.Glossary)
	b.WriteString(responseFormat)
	return b.String()
}

func buildCompliancePrompt(unit model.TranslationUnit, candidate model.Candidate, _ model.Verification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a regulatory compliance reviewer for %s content.\n", unit.TargetLang)
	b.WriteString("Check for prohibited claims, legally risky wording, and terms that must not appear in the target market.\n")
	if unit.RiskProfile != "" {
		fmt.Fprintf(&b, "Apply the %q market risk profile.\n", unit.RiskProfile)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "SOURCE (%s):\n%s\n\n", unit.SourceLang, unit.SourceText)
	fmt.Fprintf(&b, "TRANSLATION (%s):\n%s\n\n", unit.TargetLang, candidate.Text)
	b.WriteString(responseFormat)
	return b.String()
}

func buildQualityPrompt(unit model.TranslationUnit, candidate model.Candidate, _ model.Verification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a linguistic quality reviewer for %s.\n", unit.TargetLang)
	b.WriteString("Evaluate fluency, tone, and naturalness for the target audience.\n\n")
	writeStyleGuide(&b, unit.StyleGuide)
	fmt.Fprintf(&b, "SOURCE (%s):\n%s\n\n", unit.SourceLang, unit.SourceText)
	fmt.Fprintf(&b, "TRANSLATION (%s):\n%s\n\n", unit.TargetLang, candidate.Text)
	if len(candidate.Alternates) > 0 {
		b.WriteString("ALTERNATE CANDIDATES (for comparison only):\n")
		for i, alt := range candidate.Alternates {
			fmt.Fprintf(&b, "%d. %s\n", i+1, alt)
		}
		b.WriteString("\n")
	}
	b.WriteString(responseFormat)
	return b.String()
}

func writeGlossary(b *strings.Builder, glossary map[string]string) {
	if len(glossary) == 0 {
		return
	}
	b.WriteString("GLOSSARY (source term -> required target term):\n")
	terms := make([]string, 0, len(glossary))
	for src := range glossary {
		terms = append(terms, src)
	}
	sort.Strings(terms)
	for _, src := range terms {
		fmt.Fprintf(b, "- %s -> %s\n", src, glossary[src])
	}
	b.WriteString("\n")
}

func writeStyleGuide(b *strings.Builder, style map[string]string) {
	if len(style) == 0 {
		return
	}
	b.WriteString("STYLE GUIDE:\n")
	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, style[k])
	}
	b.WriteString("\n")
}
