/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/valpere/perevir/internal/assessor"
	"github.com/valpere/perevir/internal/config"
	"github.com/valpere/perevir/internal/evaluator"
	"github.com/valpere/perevir/internal/gate"
	"github.com/valpere/perevir/internal/observability"
	"github.com/valpere/perevir/internal/translator"
	"github.com/valpere/perevir/internal/workflow"
)

// buildEngine wires the configured translator, verifier and assessor panel
// into a workflow engine.
func buildEngine(cfg *config.Config) (*workflow.Engine, error) {
	logger := observability.Logger()

	var tr translator.Translator
	switch cfg.Translator.Backend {
	case "ollama":
		tr = translator.NewOllamaTranslator(cfg.Translator.Model, cfg.Translator.BaseURL, cfg.Translator.NumAlternates)
	case "openai":
		var err error
		tr, err = translator.NewOpenAITranslator(cfg.Translator.APIKey, cfg.Translator.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to build openai translator: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown translator backend %q", cfg.Translator.Backend)
	}

	var vr translator.Verifier
	switch cfg.Verifier.Backend {
	case "ollama":
		vr = translator.NewOllamaVerifier(cfg.Verifier.Model, cfg.Verifier.BaseURL)
	case "google":
		vr = translator.NewGoogleVerifier(cfg.Verifier.Credentials)
	default:
		return nil, fmt.Errorf("unknown verifier backend %q", cfg.Verifier.Backend)
	}

	assessors, err := buildAssessors(cfg.Assessors)
	if err != nil {
		return nil, err
	}

	coordinator, err := evaluator.New(assessors, evaluator.Config{
		TaskTimeout:  cfg.TaskTimeout,
		JoinDeadline: cfg.JoinDeadline,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluator: %w", err)
	}

	return workflow.New(tr, vr, coordinator, gate.NewPolicy(cfg.Thresholds), workflow.Config{
		MaxRegenerations: cfg.MaxRegenerations,
		CallRetries:      cfg.CallRetries,
		RetryDelay:       cfg.RetryDelay,
		RunTimeout:       cfg.RunTimeout,
	}, logger)
}

// buildAssessors keeps the configured order: it is the priority order used
// for tie-breaks downstream.
func buildAssessors(configs []config.AssessorConfig) ([]assessor.Assessor, error) {
	var list []assessor.Assessor
	for _, a := range configs {
		switch a.Kind {
		case "llm":
			llm, err := assessor.NewOllama(a.Role, a.Model, a.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to build assessor %q: %w", a.Name, err)
			}
			list = append(list, llm)
		case "language":
			list = append(list, assessor.NewLanguage(a.Name))
		default:
			return nil, fmt.Errorf("unknown assessor kind %q for %q", a.Kind, a.Name)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no assessors configured")
	}
	return list, nil
}
