package translator

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/postprocess"
)

// OpenAITranslator generates candidates through the OpenAI chat completion
// API.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

func NewOpenAITranslator(apiKey, modelName string) (*OpenAITranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAITranslator{
		client: openai.NewClient(apiKey),
		model:  modelName,
	}, nil
}

func (t *OpenAITranslator) Name() string {
	return "openai"
}

func (t *OpenAITranslator) Translate(ctx context.Context, unit model.TranslationUnit, feedback string) (*model.Candidate, error) {
	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("You are a professional %s to %s translator. Respond only with the translation.", unit.SourceLang, unit.TargetLang),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildTranslationPrompt(unit, feedback),
			},
		},
	}

	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	text := postprocess.Clean(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: translator returned empty text", model.ErrContract)
	}

	return &model.Candidate{
		Text: text,
		TokenUsage: map[string]int{
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
		},
		Latency: time.Since(start),
	}, nil
}
