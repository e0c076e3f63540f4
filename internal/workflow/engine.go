// Package workflow drives one translation unit through the gated pipeline:
// translate, verify, evaluate, decide, and either finalize or regenerate
// with feedback until the retry budget runs out.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal/evaluator"
	"github.com/valpere/perevir/internal/gate"
	"github.com/valpere/perevir/internal/model"
	"github.com/valpere/perevir/internal/translator"
)

type Config struct {
	// MaxRegenerations is the business retry budget. Total attempts per
	// run is MaxRegenerations + 1.
	MaxRegenerations int
	// CallRetries is the transient-failure retry count per collaborator
	// call. These retries are local to the call and never show up in the
	// attempt history.
	CallRetries int
	// RetryDelay is the initial backoff between transient retries; it
	// doubles on each retry.
	RetryDelay time.Duration
	// RunTimeout bounds the whole run wall-clock, across all attempts.
	// Zero disables the bound.
	RunTimeout time.Duration
}

// Engine executes workflow runs. One engine may serve many concurrent runs;
// it holds no per-run state and its configuration is read-only after New.
type Engine struct {
	translator  translator.Translator
	verifier    translator.Verifier
	coordinator *evaluator.Coordinator
	policy      gate.Policy
	config      Config
	logger      *zap.Logger
}

// terminalFor maps each finalizing verdict onto its terminal state. A
// verdict missing from this table is a defect and fails the run.
var terminalFor = map[model.Verdict]model.State{
	model.VerdictPass:     model.StatePublished,
	model.VerdictBlock:    model.StateRejected,
	model.VerdictEscalate: model.StatePendingReview,
}

func New(tr translator.Translator, vr translator.Verifier, coordinator *evaluator.Coordinator, policy gate.Policy, config Config, logger *zap.Logger) (*Engine, error) {
	if tr == nil || vr == nil || coordinator == nil {
		return nil, fmt.Errorf("cannot initialize engine with nil collaborators")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRegenerations < 0 {
		config.MaxRegenerations = 0
	}
	if config.CallRetries < 0 {
		config.CallRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	return &Engine{
		translator:  tr,
		verifier:    vr,
		coordinator: coordinator,
		policy:      policy,
		config:      config,
		logger:      logger,
	}, nil
}

// Run executes the full workflow for one unit and returns the terminal run.
// The returned error is non-nil only for run-level failures (state Failed);
// Rejected and PendingReview are successful executions of the policy.
func (e *Engine) Run(ctx context.Context, unit model.TranslationUnit) (*model.WorkflowRun, error) {
	run := model.NewRun(unit)

	if e.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.RunTimeout)
		defer cancel()
	}

	e.logger.Info("workflow started",
		zap.String("run", run.ID),
		zap.String("unit", unit.Key),
		zap.String("source", unit.SourceLang),
		zap.String("target", unit.TargetLang))

	feedback := ""
	maxAttempts := e.config.MaxRegenerations + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		decision, candidate, err := e.runAttempt(ctx, run, attempt, feedback)
		if err != nil {
			return e.fail(run, err)
		}

		switch decision.Verdict {
		case model.VerdictPass, model.VerdictBlock, model.VerdictEscalate:
			next := terminalFor[decision.Verdict]
			if err := run.Transition(next); err != nil {
				return e.fail(run, err)
			}
			if decision.Verdict == model.VerdictPass {
				run.FinalText = candidate.Text
			}
			e.logger.Info("workflow finished",
				zap.String("run", run.ID),
				zap.String("unit", unit.Key),
				zap.String("state", string(run.State)),
				zap.Int("attempts", run.AttemptCount))
			return run, nil

		case model.VerdictRegenerate:
			fb := gate.Synthesize(decision.Joined, e.policy.Thresholds().Pass, candidate.Text)
			feedback = gate.FormatPrompt(fb)
			if err := run.Transition(model.StateRegenerating); err != nil {
				return e.fail(run, err)
			}
			e.logger.Info("regenerating",
				zap.String("run", run.ID),
				zap.String("unit", unit.Key),
				zap.Int("attempt", attempt),
				zap.Strings("triggered_by", fb.TriggeredBy))

		default:
			return e.fail(run, fmt.Errorf("unmapped decision %s in state %s", decision.Verdict, run.State))
		}
	}

	// The policy escalates on the last attempt, so this is unreachable
	// through a well-behaved decision; the loop bound stays authoritative
	// regardless and hands the run to review.
	if err := run.Transition(model.StatePendingReview); err != nil {
		return e.fail(run, err)
	}
	return run, nil
}

// runAttempt drives one translate-verify-evaluate-decide pass and appends
// its record to the run history.
func (e *Engine) runAttempt(ctx context.Context, run *model.WorkflowRun, attempt int, feedback string) (model.GateDecision, model.Candidate, error) {
	var (
		decision  model.GateDecision
		candidate model.Candidate
	)

	if err := run.Transition(model.StateTranslating); err != nil {
		return decision, candidate, err
	}
	cand, err := e.translate(ctx, run.Unit, feedback)
	if err != nil {
		return decision, candidate, fmt.Errorf("translate: %w", err)
	}
	candidate = *cand

	if err := run.Transition(model.StateVerifying); err != nil {
		return decision, candidate, err
	}
	verification, err := e.verify(ctx, candidate, run.Unit)
	if err != nil {
		return decision, candidate, fmt.Errorf("verify: %w", err)
	}

	if err := run.Transition(model.StateEvaluating); err != nil {
		return decision, candidate, err
	}
	joined := e.coordinator.Evaluate(ctx, run.Unit, candidate, *verification)
	// A join cut short by the run context is a run-level failure, not a
	// quality outcome; only the coordinator's own join deadline may surface
	// as a partial-join block.
	if err := ctx.Err(); err != nil {
		return decision, candidate, fmt.Errorf("evaluate: %w", err)
	}

	if err := run.Transition(model.StateDeciding); err != nil {
		return decision, candidate, err
	}
	decision = e.policy.Decide(joined, attempt, e.config.MaxRegenerations)

	e.logger.Info("gate decision",
		zap.String("run", run.ID),
		zap.String("unit", run.Unit.Key),
		zap.Int("attempt", attempt),
		zap.String("verdict", decision.Verdict.String()),
		zap.String("message", decision.Message))

	record := model.Attempt{
		Number:       attempt,
		Candidate:    candidate,
		Verification: *verification,
		Joined:       joined,
		Decision:     decision,
	}
	if err := run.AppendAttempt(record); err != nil {
		return decision, candidate, err
	}

	return decision, candidate, nil
}

func (e *Engine) translate(ctx context.Context, unit model.TranslationUnit, feedback string) (*model.Candidate, error) {
	var candidate *model.Candidate
	err := e.callWithRetry(ctx, "translate", func(ctx context.Context) error {
		var err error
		candidate, err = e.translator.Translate(ctx, unit, feedback)
		return err
	})
	return candidate, err
}

func (e *Engine) verify(ctx context.Context, candidate model.Candidate, unit model.TranslationUnit) (*model.Verification, error) {
	var verification *model.Verification
	err := e.callWithRetry(ctx, "verify", func(ctx context.Context) error {
		var err error
		verification, err = e.verifier.Verify(ctx, candidate, unit)
		return err
	})
	return verification, err
}

// fail moves the run to Failed with a structured reason, keeping whatever
// history has accumulated, and reports the cause to the caller.
func (e *Engine) fail(run *model.WorkflowRun, cause error) (*model.WorkflowRun, error) {
	reason := cause.Error()
	if ctxErr := contextReason(cause); ctxErr != "" {
		reason = ctxErr
	}
	run.Fail(reason)
	e.logger.Error("workflow failed",
		zap.String("run", run.ID),
		zap.String("unit", run.Unit.Key),
		zap.String("reason", reason))
	return run, cause
}

func contextReason(err error) string {
	switch {
	case err == nil:
		return ""
	case containsErr(err, context.DeadlineExceeded):
		return "run deadline exceeded: " + err.Error()
	case containsErr(err, context.Canceled):
		return "run cancelled: " + err.Error()
	}
	return ""
}
