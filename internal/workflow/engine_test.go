package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal/assessor"
	"github.com/valpere/perevir/internal/evaluator"
	"github.com/valpere/perevir/internal/gate"
	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/translator"
)

type mockTranslator struct {
	translateFunc func(ctx context.Context, unit model.TranslationUnit, feedback string) (*model.Candidate, error)
	callCount     atomic.Int32
	lastFeedback  atomic.Value
}

func (m *mockTranslator) Name() string { return "mock-translator" }

func (m *mockTranslator) Translate(ctx context.Context, unit model.TranslationUnit, feedback string) (*model.Candidate, error) {
	m.callCount.Add(1)
	m.lastFeedback.Store(feedback)
	if m.translateFunc != nil {
		return m.translateFunc(ctx, unit, feedback)
	}
	return &model.Candidate{Text: "переклад"}, nil
}

type mockVerifier struct {
	verifyFunc func(ctx context.Context, candidate model.Candidate, unit model.TranslationUnit) (*model.Verification, error)
	callCount  atomic.Int32
}

func (m *mockVerifier) Name() string { return "mock-verifier" }

func (m *mockVerifier) Verify(ctx context.Context, candidate model.Candidate, unit model.TranslationUnit) (*model.Verification, error) {
	m.callCount.Add(1)
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, candidate, unit)
	}
	return &model.Verification{Text: "back-translation"}, nil
}

type mockAssessor struct {
	nameVal    string
	assessFunc func(ctx context.Context, unit model.TranslationUnit, candidate model.Candidate, verification model.Verification) (*model.AssessmentResult, error)
}

func (m *mockAssessor) Name() string { return m.nameVal }

func (m *mockAssessor) Assess(ctx context.Context, unit model.TranslationUnit, candidate model.Candidate, verification model.Verification) (*model.AssessmentResult, error) {
	if m.assessFunc != nil {
		return m.assessFunc(ctx, unit, candidate, verification)
	}
	return &model.AssessmentResult{Name: m.nameVal, Score: 5, Verdict: model.AssessmentPass}, nil
}

func fixedScore(name string, score int) *mockAssessor {
	return &mockAssessor{
		nameVal: name,
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			return &model.AssessmentResult{Name: name, Score: score, Verdict: model.VerdictForScore(score)}, nil
		},
	}
}

func testUnit() model.TranslationUnit {
	return model.TranslationUnit{
		Key:        "faq.password-reset",
		SourceText: "How do I reset my password?",
		SourceLang: "en",
		TargetLang: "uk",
	}
}

func newTestEngine(t *testing.T, tr translator.Translator, vr translator.Verifier, assessors []assessor.Assessor, cfg Config) *Engine {
	t.Helper()
	coord, err := evaluator.New(assessors, evaluator.Config{
		TaskTimeout:  time.Second,
		JoinDeadline: 2 * time.Second,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	engine, err := New(tr, vr, coord, gate.NewPolicy(gate.DefaultThresholds()), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestRun_PublishedFirstAttempt(t *testing.T) {
	tr := &mockTranslator{}
	vr := &mockVerifier{}
	engine := newTestEngine(t, tr, vr, []assessor.Assessor{
		fixedScore("compliance", 5), fixedScore("accuracy", 5), fixedScore("quality", 5),
	}, Config{MaxRegenerations: 1})

	run, err := engine.Run(context.Background(), testUnit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != model.StatePublished {
		t.Fatalf("expected published, got %s", run.State)
	}
	if run.FinalText != "переклад" {
		t.Errorf("FinalText = %q", run.FinalText)
	}
	if run.AttemptCount != 1 || len(run.Attempts) != 1 {
		t.Errorf("expected exactly one attempt, got count=%d history=%d", run.AttemptCount, len(run.Attempts))
	}
	if fb := tr.lastFeedback.Load().(string); fb != "" {
		t.Errorf("first attempt must carry no feedback, got %q", fb)
	}
}

func TestRun_RegenerateThenPublish(t *testing.T) {
	var round atomic.Int32
	quality := &mockAssessor{
		nameVal: "quality",
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			score := 4
			if round.Load() > 0 {
				score = 5
			}
			round.Add(1)
			return &model.AssessmentResult{Name: "quality", Score: score, Verdict: model.VerdictForScore(score)}, nil
		},
	}

	tr := &mockTranslator{}
	vr := &mockVerifier{}
	engine := newTestEngine(t, tr, vr, []assessor.Assessor{
		fixedScore("compliance", 5), fixedScore("accuracy", 5), quality,
	}, Config{MaxRegenerations: 1})

	run, err := engine.Run(context.Background(), testUnit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != model.StatePublished {
		t.Fatalf("expected published, got %s", run.State)
	}
	if run.AttemptCount != 2 {
		t.Errorf("expected 2 attempts, got %d", run.AttemptCount)
	}
	if got := tr.callCount.Load(); got != 2 {
		t.Errorf("translator called %d times, want 2", got)
	}

	// Second attempt must carry the rendered feedback block.
	fb := tr.lastFeedback.Load().(string)
	if !strings.Contains(fb, "<previous_feedback>") {
		t.Errorf("regeneration feedback missing, got %q", fb)
	}

	// Attempt history is complete and ordered.
	for i, a := range run.Attempts {
		if a.Number != i+1 {
			t.Errorf("attempt %d has number %d", i, a.Number)
		}
	}
	if run.Attempts[0].Decision.Verdict != model.VerdictRegenerate {
		t.Errorf("first decision = %s, want regenerate", run.Attempts[0].Decision.Verdict)
	}
	if run.Attempts[1].Decision.Verdict != model.VerdictPass {
		t.Errorf("second decision = %s, want pass", run.Attempts[1].Decision.Verdict)
	}
}

func TestRun_HardFailRejects(t *testing.T) {
	tr := &mockTranslator{}
	engine := newTestEngine(t, tr, &mockVerifier{}, []assessor.Assessor{
		fixedScore("compliance", 1), fixedScore("accuracy", 5), fixedScore("quality", 5),
	}, Config{MaxRegenerations: 3})

	run, err := engine.Run(context.Background(), testUnit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != model.StateRejected {
		t.Fatalf("expected rejected, got %s", run.State)
	}
	if run.FinalText != "" {
		t.Error("rejected run must not expose a final text")
	}
	if got := tr.callCount.Load(); got != 1 {
		t.Errorf("hard fail must not regenerate, translator called %d times", got)
	}
	decision, _ := run.LastDecision()
	if decision.BlockingAssessor != "compliance" {
		t.Errorf("BlockingAssessor = %q", decision.BlockingAssessor)
	}
}

func TestRun_BudgetExhaustedEscalates(t *testing.T) {
	engine := newTestEngine(t, &mockTranslator{}, &mockVerifier{}, []assessor.Assessor{
		fixedScore("compliance", 4), fixedScore("accuracy", 4), fixedScore("quality", 4),
	}, Config{MaxRegenerations: 0})

	run, err := engine.Run(context.Background(), testUnit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.State != model.StatePendingReview {
		t.Fatalf("expected pending review, got %s", run.State)
	}
	if run.AttemptCount != 1 {
		t.Errorf("zero budget allows exactly one attempt, got %d", run.AttemptCount)
	}
}

func TestRun_TranslatorFailureAfterRetries(t *testing.T) {
	tr := &mockTranslator{
		translateFunc: func(ctx context.Context, _ model.TranslationUnit, _ string) (*model.Candidate, error) {
			return nil, errors.New("connection refused")
		},
	}
	engine := newTestEngine(t, tr, &mockVerifier{}, []assessor.Assessor{
		fixedScore("accuracy", 5),
	}, Config{MaxRegenerations: 1, CallRetries: 2})

	run, err := engine.Run(context.Background(), testUnit())
	if err == nil {
		t.Fatal("expected error")
	}

	if run.State != model.StateFailed {
		t.Fatalf("expected failed, got %s", run.State)
	}
	if run.FailureReason == "" {
		t.Error("expected a failure reason")
	}
	if got := tr.callCount.Load(); got != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d", got)
	}
	if len(run.Attempts) != 0 {
		t.Errorf("no attempt completed, history has %d entries", len(run.Attempts))
	}
}

func TestRun_ContractViolationNotRetried(t *testing.T) {
	tr := &mockTranslator{
		translateFunc: func(ctx context.Context, _ model.TranslationUnit, _ string) (*model.Candidate, error) {
			return nil, fmt.Errorf("%w: empty translation", model.ErrContract)
		},
	}
	engine := newTestEngine(t, tr, &mockVerifier{}, []assessor.Assessor{
		fixedScore("accuracy", 5),
	}, Config{MaxRegenerations: 1, CallRetries: 5})

	run, err := engine.Run(context.Background(), testUnit())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, model.ErrContract) {
		t.Errorf("expected contract violation, got %v", err)
	}
	if run.State != model.StateFailed {
		t.Errorf("expected failed, got %s", run.State)
	}
	if got := tr.callCount.Load(); got != 1 {
		t.Errorf("contract violations must not be retried, got %d calls", got)
	}
}

func TestRun_VerifierFailureFailsRun(t *testing.T) {
	vr := &mockVerifier{
		verifyFunc: func(ctx context.Context, _ model.Candidate, _ model.TranslationUnit) (*model.Verification, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	engine := newTestEngine(t, &mockTranslator{}, vr, []assessor.Assessor{
		fixedScore("accuracy", 5),
	}, Config{MaxRegenerations: 0, CallRetries: 1})

	run, err := engine.Run(context.Background(), testUnit())
	if err == nil {
		t.Fatal("expected error")
	}
	if run.State != model.StateFailed {
		t.Fatalf("expected failed, got %s", run.State)
	}
	if !strings.Contains(run.FailureReason, "quota exceeded") {
		t.Errorf("failure reason %q does not name the cause", run.FailureReason)
	}
}

func TestRun_RunTimeout(t *testing.T) {
	tr := &mockTranslator{
		translateFunc: func(ctx context.Context, _ model.TranslationUnit, _ string) (*model.Candidate, error) {
			select {
			case <-time.After(5 * time.Second):
				return &model.Candidate{Text: "late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	engine := newTestEngine(t, tr, &mockVerifier{}, []assessor.Assessor{
		fixedScore("accuracy", 5),
	}, Config{MaxRegenerations: 0, RunTimeout: 50 * time.Millisecond})

	start := time.Now()
	run, err := engine.Run(context.Background(), testUnit())
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("run did not respect its timeout")
	}
	if run.State != model.StateFailed {
		t.Fatalf("expected failed, got %s", run.State)
	}
	if !strings.Contains(run.FailureReason, "run deadline exceeded") {
		t.Errorf("failure reason %q", run.FailureReason)
	}
}

func TestRun_RunTimeoutDuringEvaluation(t *testing.T) {
	slow := &mockAssessor{
		nameVal: "quality",
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			select {
			case <-time.After(5 * time.Second):
				return &model.AssessmentResult{Name: "quality", Score: 5, Verdict: model.AssessmentPass}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	engine := newTestEngine(t, &mockTranslator{}, &mockVerifier{}, []assessor.Assessor{
		fixedScore("compliance", 5), fixedScore("accuracy", 5), slow,
	}, Config{MaxRegenerations: 0, RunTimeout: 100 * time.Millisecond})

	run, err := engine.Run(context.Background(), testUnit())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}

	// Deadline expiry mid-evaluation is a run failure, never a quality
	// rejection built from the partial join.
	if run.State != model.StateFailed {
		t.Fatalf("expected failed, got %s", run.State)
	}
	if !strings.Contains(run.FailureReason, "run deadline exceeded") {
		t.Errorf("failure reason %q", run.FailureReason)
	}
	if decision, ok := run.LastDecision(); ok && decision.Verdict == model.VerdictBlock {
		t.Errorf("partial join was decided despite the expired deadline: %s", decision.Message)
	}
}

func TestRun_PartialJoinRejects(t *testing.T) {
	failing := &mockAssessor{
		nameVal: "quality",
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			return nil, errors.New("model not loaded")
		},
	}
	engine := newTestEngine(t, &mockTranslator{}, &mockVerifier{}, []assessor.Assessor{
		fixedScore("compliance", 5), fixedScore("accuracy", 5), failing,
	}, Config{MaxRegenerations: 2})

	run, err := engine.Run(context.Background(), testUnit())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A missing assessor blocks publication even with perfect sibling scores.
	if run.State != model.StateRejected {
		t.Fatalf("expected rejected, got %s", run.State)
	}
	decision, _ := run.LastDecision()
	if !strings.Contains(decision.Message, "no result from quality") {
		t.Errorf("message %q does not name the missing assessor", decision.Message)
	}
}

func TestNew_NilCollaborators(t *testing.T) {
	coord, err := evaluator.New([]assessor.Assessor{fixedScore("accuracy", 5)}, evaluator.Config{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(nil, &mockVerifier{}, coord, gate.NewPolicy(gate.DefaultThresholds()), Config{}, nil); err == nil {
		t.Error("expected error for nil translator")
	}
	if _, err := New(&mockTranslator{}, nil, coord, gate.NewPolicy(gate.DefaultThresholds()), Config{}, nil); err == nil {
		t.Error("expected error for nil verifier")
	}
	if _, err := New(&mockTranslator{}, &mockVerifier{}, nil, gate.NewPolicy(gate.DefaultThresholds()), Config{}, nil); err == nil {
		t.Error("expected error for nil coordinator")
	}
}
