// Package translator defines the generation-side collaborator contracts of
// the workflow (translation and back-translation) and their
// implementations.
package translator

import (
	"context"

	"github.com/valpere/perevir/internal/model"
)

// Translator produces one candidate translation for a unit. feedback is the
// rendered instruction block from a previous rejected attempt, empty on the
// first attempt. Re-invocation with the same feedback must be safe.
type Translator interface {
	Name() string
	Translate(ctx context.Context, unit model.TranslationUnit, feedback string) (*model.Candidate, error)
}

// Verifier back-translates a candidate into the unit's source language so
// assessors can compare it against the original.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, candidate model.Candidate, unit model.TranslationUnit) (*model.Verification, error)
}
