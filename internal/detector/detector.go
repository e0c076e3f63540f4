// Package detector wraps lingua-go language detection behind a small,
// reusable API. The detector is expensive to build; callers should keep one
// instance.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lowercase ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Matches reports whether text appears to be written in the language given
// by isoCode. Region suffixes ("en-rUS", "pt-BR") are ignored; only the
// primary subtag is compared. The second return is false when the language
// could not be determined at all.
func (d *Detector) Matches(text, isoCode string) (bool, bool) {
	detected, ok := d.DetectISO(text)
	if !ok {
		return false, false
	}
	want := strings.ToLower(isoCode)
	if i := strings.IndexAny(want, "-_"); i > 0 {
		want = want[:i]
	}
	return detected == want, true
}
