package translator

import (
	"context"
	"fmt"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/perevir/internal/model"
)

// GoogleVerifier back-translates candidates with the Google Cloud Translate
// API. Using a separate MT vendor for verification keeps the check
// independent from the LLM that produced the candidate.
type GoogleVerifier struct {
	credentials string
}

func NewGoogleVerifier(credentials string) *GoogleVerifier {
	return &GoogleVerifier{credentials: credentials}
}

func (v *GoogleVerifier) Name() string {
	return "google"
}

func (v *GoogleVerifier) Verify(ctx context.Context, candidate model.Candidate, unit model.TranslationUnit) (*model.Verification, error) {
	start := time.Now()

	// Back-translation inverts the unit's language pair.
	targetTag, err := language.Parse(unit.SourceLang)
	if err != nil {
		return nil, fmt.Errorf("invalid source language %q: %w", unit.SourceLang, err)
	}
	sourceTag, err := language.Parse(unit.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", unit.TargetLang, err)
	}

	opts := []option.ClientOption{}
	if v.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(v.credentials))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate client: %w", err)
	}
	defer client.Close()

	translations, err := client.Translate(ctx, []string{candidate.Text}, targetTag, &translate.Options{
		Source: sourceTag,
	})
	if err != nil {
		return nil, fmt.Errorf("back-translation failed: %w", err)
	}
	if len(translations) == 0 {
		return nil, fmt.Errorf("%w: no back-translation returned", model.ErrContract)
	}

	return &model.Verification{
		Text:    translations[0].Text,
		Latency: time.Since(start),
	}, nil
}
