// Package model defines the immutable value types that flow through the
// translation workflow: the input unit, per-attempt candidates and
// verification results, assessment outputs, gate decisions and the run
// aggregate itself.
package model

import "time"

// TranslationUnit is a single short text unit to translate. It is immutable
// for the lifetime of one workflow run. Glossary, StyleGuide and RiskProfile
// are opaque context passed through to collaborators unopened.
type TranslationUnit struct {
	Key        string `json:"key"`
	SourceText string `json:"source_text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`

	Glossary    map[string]string `json:"glossary,omitempty"`
	StyleGuide  map[string]string `json:"style_guide,omitempty"`
	RiskProfile string            `json:"risk_profile,omitempty"`

	Product string `json:"product,omitempty"`
}

// Candidate is one attempt's generated translation. A regeneration produces
// a new Candidate; an existing one is never mutated.
type Candidate struct {
	Text       string         `json:"text"`
	Alternates []string       `json:"alternates,omitempty"`
	TokenUsage map[string]int `json:"token_usage,omitempty"`
	Latency    time.Duration  `json:"latency"`
}

// Verification is the back-translation of a candidate into the source
// language, used by assessors as corroborating evidence. One per attempt.
type Verification struct {
	Text    string        `json:"text"`
	Notes   string        `json:"notes,omitempty"`
	Latency time.Duration `json:"latency"`
}
