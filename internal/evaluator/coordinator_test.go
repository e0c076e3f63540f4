package evaluator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/valpere/perevir/internal/assessor"
	"github.com/valpere/perevir/internal/model"
)

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

func scoring(name string, score int) *mockAssessor {
	return &mockAssessor{
		nameVal: name,
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			return &model.AssessmentResult{Name: name, Score: score, Verdict: model.VerdictForScore(score)}, nil
		},
	}
}

func testInputs() (model.TranslationUnit, model.Candidate, model.Verification) {
	unit := model.TranslationUnit{Key: "faq.1", SourceText: "Hello", SourceLang: "en", TargetLang: "uk"}
	return unit, model.Candidate{Text: "Привіт"}, model.Verification{Text: "Hello"}
}

func TestNew_RejectsDuplicateNames(t *testing.T) {
	_, err := New([]assessor.Assessor{
		scoring("accuracy", 5),
		scoring("accuracy", 4),
	}, Config{}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for duplicate assessor names")
	}
}

func TestNew_RejectsEmptySet(t *testing.T) {
	if _, err := New(nil, Config{}, zap.NewNop()); err == nil {
		t.Fatal("expected error for empty assessor set")
	}
}

func TestEvaluate_AllComplete(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, err := New([]assessor.Assessor{
		scoring("compliance", 5),
		scoring("accuracy", 4),
		scoring("quality", 3),
	}, Config{TaskTimeout: time.Second, JoinDeadline: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	unit, cand, ver := testInputs()
	j := c.Evaluate(context.Background(), unit, cand, ver)

	if j.IsPartial() {
		t.Fatalf("expected complete join, missing %v", j.Missing)
	}
	if !reflect.DeepEqual(j.Order, []string{"compliance", "accuracy", "quality"}) {
		t.Errorf("order = %v", j.Order)
	}
	if j.Results["accuracy"].Score != 4 {
		t.Errorf("accuracy score = %d, want 4", j.Results["accuracy"].Score)
	}
}

func TestEvaluate_FailureIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	failing := &mockAssessor{
		nameVal: "accuracy",
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			return nil, errors.New("model server unreachable")
		},
	}

	c, err := New([]assessor.Assessor{
		scoring("compliance", 5),
		failing,
		scoring("quality", 5),
	}, Config{TaskTimeout: time.Second, JoinDeadline: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	unit, cand, ver := testInputs()
	j := c.Evaluate(context.Background(), unit, cand, ver)

	// The failed task lands in Missing; its siblings' results survive.
	if !reflect.DeepEqual(j.Missing, []string{"accuracy"}) {
		t.Errorf("Missing = %v, want [accuracy]", j.Missing)
	}
	if len(j.Results) != 2 {
		t.Errorf("expected 2 surviving results, got %d", len(j.Results))
	}
	if _, ok := j.Results["accuracy"]; ok {
		t.Error("failed assessor must not appear in results")
	}
}

func TestEvaluate_InvalidScoreBecomesMissing(t *testing.T) {
	defer goleak.VerifyNone(t)

	outOfRange := &mockAssessor{
		nameVal: "accuracy",
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			return &model.AssessmentResult{Name: "accuracy", Score: 9}, nil
		},
	}

	c, err := New([]assessor.Assessor{scoring("compliance", 5), outOfRange},
		Config{TaskTimeout: time.Second, JoinDeadline: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	unit, cand, ver := testInputs()
	j := c.Evaluate(context.Background(), unit, cand, ver)

	if !reflect.DeepEqual(j.Missing, []string{"accuracy"}) {
		t.Errorf("out-of-range score must not be merged, Missing = %v", j.Missing)
	}
}

func TestEvaluate_SlowAssessorMissesDeadline(t *testing.T) {
	slow := &mockAssessor{
		nameVal: "quality",
		assessFunc: func(ctx context.Context, _ model.TranslationUnit, _ model.Candidate, _ model.Verification) (*model.AssessmentResult, error) {
			select {
			case <-time.After(5 * time.Second):
				return &model.AssessmentResult{Name: "quality", Score: 5}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	c, err := New([]assessor.Assessor{scoring("compliance", 5), slow},
		Config{TaskTimeout: 50 * time.Millisecond, JoinDeadline: 200 * time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	unit, cand, ver := testInputs()
	start := time.Now()
	j := c.Evaluate(context.Background(), unit, cand, ver)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("join waited for the straggler: %s", elapsed)
	}
	if !reflect.DeepEqual(j.Missing, []string{"quality"}) {
		t.Errorf("Missing = %v, want [quality]", j.Missing)
	}
	if j.Results["compliance"].Score != 5 {
		t.Error("fast sibling result lost")
	}
}

func TestEvaluate_ManyAssessorsNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	var set []assessor.Assessor
	for i := 0; i < 8; i++ {
		set = append(set, scoring(fmt.Sprintf("assessor-%d", i), 4))
	}

	c, err := New(set, Config{TaskTimeout: time.Second, JoinDeadline: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	unit, cand, ver := testInputs()
	j := c.Evaluate(context.Background(), unit, cand, ver)

	if len(j.Results) != 8 {
		t.Errorf("expected 8 results, got %d", len(j.Results))
	}
	names := make([]string, 0, len(j.Results))
	for name := range j.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	if names[0] != "assessor-0" || names[7] != "assessor-7" {
		t.Errorf("unexpected result set: %v", names)
	}
}
