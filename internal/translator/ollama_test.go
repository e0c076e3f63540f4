package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/valpere/perevir/internal/model"
)

// ollamaStub records prompts sent to /api/generate and answers each with the
// next reply from the list (the last reply repeats).
type ollamaStub struct {
	*httptest.Server
	prompts []string
}

func newOllamaStub(t *testing.T, replies ...string) *ollamaStub {
	t.Helper()
	stub := &ollamaStub{}
	i := 0
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		stub.prompts = append(stub.prompts, req.Prompt)
		reply := replies[i]
		if i < len(replies)-1 {
			i++
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: reply})
	}))
	return stub
}

func unitEnUk() model.TranslationUnit {
	return model.TranslationUnit{
		Key:        "faq.password-reset",
		SourceText: "How do I reset my password?",
		SourceLang: "en",
		TargetLang: "uk",
	}
}

func TestOllamaTranslator_Translate(t *testing.T) {
	stub := newOllamaStub(t, "Як скинути пароль?")
	defer stub.Close()

	tr := NewOllamaTranslator("llama3.2", stub.URL, 0)
	cand, err := tr.Translate(context.Background(), unitEnUk(), "")
	if err != nil {
		t.Fatal(err)
	}

	if cand.Text != "Як скинути пароль?" {
		t.Errorf("text = %q", cand.Text)
	}
	if cand.Latency <= 0 {
		t.Error("latency not recorded")
	}
	prompt := stub.prompts[0]
	if !strings.Contains(prompt, "from en to uk") {
		t.Errorf("prompt missing language pair:\n%s", prompt)
	}
	if strings.Contains(prompt, "previous_feedback") {
		t.Error("first attempt prompt must not carry feedback")
	}
}

func TestOllamaTranslator_FeedbackInjected(t *testing.T) {
	stub := newOllamaStub(t, "Як відновити пароль?")
	defer stub.Close()

	feedback := "<previous_feedback>\nIssues found:\n1. wrong verb\n</previous_feedback>"
	tr := NewOllamaTranslator("llama3.2", stub.URL, 0)
	if _, err := tr.Translate(context.Background(), unitEnUk(), feedback); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(stub.prompts[0], feedback) {
		t.Errorf("feedback block not injected:\n%s", stub.prompts[0])
	}
}

func TestOllamaTranslator_GlossaryInPrompt(t *testing.T) {
	stub := newOllamaStub(t, "Переклад")
	defer stub.Close()

	unit := unitEnUk()
	unit.Glossary = map[string]string{"password": "пароль", "account": "обліковий запис"}

	tr := NewOllamaTranslator("llama3.2", stub.URL, 0)
	if _, err := tr.Translate(context.Background(), unit, ""); err != nil {
		t.Fatal(err)
	}

	prompt := stub.prompts[0]
	accountIdx := strings.Index(prompt, "account -> обліковий запис")
	passwordIdx := strings.Index(prompt, "password -> пароль")
	if accountIdx < 0 || passwordIdx < 0 {
		t.Fatalf("glossary terms missing:\n%s", prompt)
	}
	// sorted term order keeps prompts reproducible
	if accountIdx > passwordIdx {
		t.Error("glossary terms not in sorted order")
	}
}

func TestOllamaTranslator_Alternates(t *testing.T) {
	stub := newOllamaStub(t, "Як скинути пароль?", "Як відновити пароль?")
	defer stub.Close()

	tr := NewOllamaTranslator("llama3.2", stub.URL, 1)
	cand, err := tr.Translate(context.Background(), unitEnUk(), "")
	if err != nil {
		t.Fatal(err)
	}

	if cand.Text != "Як скинути пароль?" {
		t.Errorf("text = %q", cand.Text)
	}
	if len(cand.Alternates) != 1 || cand.Alternates[0] != "Як відновити пароль?" {
		t.Errorf("alternates = %v", cand.Alternates)
	}
}

func TestOllamaTranslator_EmptyReplyIsContractViolation(t *testing.T) {
	stub := newOllamaStub(t, "   ")
	defer stub.Close()

	tr := NewOllamaTranslator("llama3.2", stub.URL, 0)
	_, err := tr.Translate(context.Background(), unitEnUk(), "")
	if !errors.Is(err, model.ErrContract) {
		t.Errorf("expected contract violation, got %v", err)
	}
}

func TestOllamaTranslator_CleansArtifacts(t *testing.T) {
	stub := newOllamaStub(t, `<think>short question, simple translation</think>"Як скинути пароль?"`)
	defer stub.Close()

	tr := NewOllamaTranslator("llama3.2", stub.URL, 0)
	cand, err := tr.Translate(context.Background(), unitEnUk(), "")
	if err != nil {
		t.Fatal(err)
	}
	if cand.Text != "Як скинути пароль?" {
		t.Errorf("artifacts not cleaned: %q", cand.Text)
	}
}

func TestOllamaVerifier_Verify(t *testing.T) {
	stub := newOllamaStub(t, "How to reset a password?")
	defer stub.Close()

	v := NewOllamaVerifier("llama3.2", stub.URL)
	ver, err := v.Verify(context.Background(), model.Candidate{Text: "Як скинути пароль?"}, unitEnUk())
	if err != nil {
		t.Fatal(err)
	}

	if ver.Text != "How to reset a password?" {
		t.Errorf("text = %q", ver.Text)
	}
	// Back-translation inverts the language pair.
	if !strings.Contains(stub.prompts[0], "from uk back to en") {
		t.Errorf("prompt does not invert the pair:\n%s", stub.prompts[0])
	}
}

func TestOllamaVerifier_EmptyReplyIsContractViolation(t *testing.T) {
	stub := newOllamaStub(t, "")
	defer stub.Close()

	v := NewOllamaVerifier("llama3.2", stub.URL)
	_, err := v.Verify(context.Background(), model.Candidate{Text: "Привіт"}, unitEnUk())
	if !errors.Is(err, model.ErrContract) {
		t.Errorf("expected contract violation, got %v", err)
	}
}
