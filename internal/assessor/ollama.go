package assessor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/postprocess"
)

// promptBuilder renders the role-specific evaluation prompt.
type promptBuilder func(model.TranslationUnit, model.Candidate, model.Verification) string

var rolePrompts = map[string]promptBuilder{
	"accuracy":   buildAccuracyPrompt,
	"compliance": buildCompliancePrompt,
	"quality":    buildQualityPrompt,
}

// OllamaAssessor runs one evaluation role against a local Ollama model.
type OllamaAssessor struct {
	name    string
	model   string
	baseURL string
	prompt  promptBuilder
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// assessorReply is the JSON shape every LLM assessor must answer with.
type assessorReply struct {
	Score       *int               `json:"score"`
	Verdict     string             `json:"verdict"`
	Issues      []string           `json:"issues"`
	Corrections []model.Correction `json:"corrections"`
}

// NewOllama creates an Ollama-backed assessor for one of the known roles:
// accuracy, compliance, quality.
func NewOllama(role, modelName, baseURL string) (*OllamaAssessor, error) {
	prompt, ok := rolePrompts[role]
	if !ok {
		return nil, fmt.Errorf("unknown assessor role %q", role)
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.2"
	}
	return &OllamaAssessor{
		name:    role,
		model:   modelName,
		baseURL: baseURL,
		prompt:  prompt,
		client:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (a *OllamaAssessor) Name() string {
	return a.name
}

func (a *OllamaAssessor) Assess(ctx context.Context, unit model.TranslationUnit, candidate model.Candidate, verification model.Verification) (*model.AssessmentResult, error) {
	start := time.Now()

	reqBody := ollamaRequest{
		Model:  a.model,
		Prompt: a.prompt(unit, candidate, verification),
		Stream: false,
		Format: "json",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", a.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", a.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", a.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s assessor returned status %d", a.name, resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", a.name, err)
	}

	result, err := a.parseReply(ollamaResp.Response)
	if err != nil {
		return nil, err
	}
	result.Latency = time.Since(start)
	return result, nil
}

// parseReply extracts and validates the JSON verdict. A reply without a
// usable in-range score is a contract violation and surfaces as an error,
// never as a defaulted score.
func (a *OllamaAssessor) parseReply(raw string) (*model.AssessmentResult, error) {
	payload := postprocess.ExtractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: %s reply contains no JSON object", model.ErrContract, a.name)
	}

	var reply assessorReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return nil, fmt.Errorf("%w: %s reply is not valid JSON: %v", model.ErrContract, a.name, err)
	}
	if reply.Score == nil {
		return nil, fmt.Errorf("%w: %s reply omits the score", model.ErrContract, a.name)
	}

	result := &model.AssessmentResult{
		Name:        a.name,
		Score:       *reply.Score,
		Verdict:     model.VerdictForScore(*reply.Score),
		Issues:      reply.Issues,
		Corrections: reply.Corrections,
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}
