package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/postprocess"
)

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// ollamaClient is the shared HTTP plumbing for the Ollama translator and
// verifier.
type ollamaClient struct {
	model   string
	baseURL string
	client  *http.Client
}

func newOllamaClient(modelName, baseURL string) ollamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.2"
	}
	return ollamaClient{
		model:   modelName,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *ollamaClient) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaRequest{Model: c.model, Prompt: prompt, Stream: false}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", c.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return postprocess.Clean(ollamaResp.Response), nil
}

// OllamaTranslator generates candidates with a local Ollama model. When a
// feedback block is supplied it is injected ahead of the task so the model
// avoids the previously rejected wording.
type OllamaTranslator struct {
	ollamaClient
	numAlternates int
}

func NewOllamaTranslator(modelName, baseURL string, numAlternates int) *OllamaTranslator {
	return &OllamaTranslator{
		ollamaClient:  newOllamaClient(modelName, baseURL),
		numAlternates: numAlternates,
	}
}

func (t *OllamaTranslator) Name() string {
	return "ollama"
}

func (t *OllamaTranslator) Translate(ctx context.Context, unit model.TranslationUnit, feedback string) (*model.Candidate, error) {
	start := time.Now()

	text, err := t.generate(ctx, buildTranslationPrompt(unit, feedback))
	if err != nil {
		return nil, fmt.Errorf("ollama translation failed: %w", err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: translator returned empty text", model.ErrContract)
	}

	candidate := &model.Candidate{Text: text}

	// Alternates are best-effort; a failed extra generation never fails
	// the attempt.
	for i := 0; i < t.numAlternates; i++ {
		alt, altErr := t.generate(ctx, buildTranslationPrompt(unit, feedback))
		if altErr != nil {
			break
		}
		if alt != "" && alt != text {
			candidate.Alternates = append(candidate.Alternates, alt)
		}
	}

	candidate.Latency = time.Since(start)
	return candidate, nil
}

// OllamaVerifier back-translates a candidate with a local Ollama model.
type OllamaVerifier struct {
	ollamaClient
}

func NewOllamaVerifier(modelName, baseURL string) *OllamaVerifier {
	return &OllamaVerifier{ollamaClient: newOllamaClient(modelName, baseURL)}
}

func (v *OllamaVerifier) Name() string {
	return "ollama"
}

func (v *OllamaVerifier) Verify(ctx context.Context, candidate model.Candidate, unit model.TranslationUnit) (*model.Verification, error) {
	start := time.Now()

	prompt := fmt.Sprintf(`Translate the following text from %s back to %s.
Translate literally so the result can be compared against the original.
Only respond with the translation, nothing else.

Text: "%s"

Translation:`, unit.TargetLang, unit.SourceLang, candidate.Text)

	text, err := v.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ollama back-translation failed: %w", err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: verifier returned empty text", model.ErrContract)
	}

	return &model.Verification{Text: text, Latency: time.Since(start)}, nil
}

func buildTranslationPrompt(unit model.TranslationUnit, feedback string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Translate the following text from %s to %s.\n", unit.SourceLang, unit.TargetLang)
	b.WriteString("Only respond with the translation, nothing else.\n\n")

	if len(unit.Glossary) > 0 {
		b.WriteString("Use these exact term translations:\n")
		terms := make([]string, 0, len(unit.Glossary))
		for src := range unit.Glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)
		for _, src := range terms {
			fmt.Fprintf(&b, "- %s -> %s\n", src, unit.Glossary[src])
		}
		b.WriteString("\n")
	}

	if len(unit.StyleGuide) > 0 {
		b.WriteString("Style requirements:\n")
		keys := make([]string, 0, len(unit.StyleGuide))
		for k := range unit.StyleGuide {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, unit.StyleGuide[k])
		}
		b.WriteString("\n")
	}

	if feedback != "" {
		b.WriteString(feedback)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Text: \"%s\"\n\nTranslation:", unit.SourceText)
	return b.String()
}
