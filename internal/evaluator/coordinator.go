// Package evaluator runs the configured assessor set concurrently against
// one candidate and joins the results under a deadline.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/perevir/internal/assessor"
	"github.com/valpere/perevir/internal/model"
)

type Config struct {
	// TaskTimeout bounds each individual assessment call.
	TaskTimeout time.Duration
	// JoinDeadline bounds the whole join, independently of TaskTimeout.
	JoinDeadline time.Duration
}

const (
	defaultTaskTimeout  = 60 * time.Second
	defaultJoinDeadline = 90 * time.Second
)

// Coordinator fans one candidate out to all configured assessors and joins
// their results. The assessor list order doubles as the priority order used
// downstream for tie-breaks and feedback ordering.
type Coordinator struct {
	assessors []assessor.Assessor
	order     []string
	config    Config
	logger    *zap.Logger
}

// New validates the assessor set and builds a Coordinator. Duplicate
// assessor names are a configuration error, rejected before anything runs.
func New(assessors []assessor.Assessor, config Config, logger *zap.Logger) (*Coordinator, error) {
	if len(assessors) == 0 {
		return nil, fmt.Errorf("at least one assessor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaultTaskTimeout
	}
	if config.JoinDeadline <= 0 {
		config.JoinDeadline = defaultJoinDeadline
	}

	seen := make(map[string]bool, len(assessors))
	order := make([]string, 0, len(assessors))
	for _, a := range assessors {
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("assessor with empty name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate assessor name %q", name)
		}
		seen[name] = true
		order = append(order, name)
	}

	return &Coordinator{
		assessors: assessors,
		order:     order,
		config:    config,
		logger:    logger,
	}, nil
}

// Order returns the configured assessor priority order.
func (c *Coordinator) Order() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

type taskResult struct {
	name   string
	result *model.AssessmentResult
	err    error
}

// Evaluate launches every assessor concurrently against the same inputs and
// waits for the set to complete or the join deadline to elapse, whichever
// comes first. A failed or slow assessor never cancels its siblings; it
// simply ends up in the Missing set of the returned join. Results arriving
// after the deadline are discarded, not merged.
func (c *Coordinator) Evaluate(ctx context.Context, unit model.TranslationUnit, candidate model.Candidate, verification model.Verification) model.JoinedAssessment {
	// Buffered to the task count so stragglers can always complete their
	// send after the join stops reading.
	resultCh := make(chan taskResult, len(c.assessors))

	for _, a := range c.assessors {
		go func(a assessor.Assessor) {
			taskCtx, cancel := context.WithTimeout(ctx, c.config.TaskTimeout)
			defer cancel()

			res, err := a.Assess(taskCtx, unit, candidate, verification)
			if err == nil {
				err = res.Validate()
			}
			resultCh <- taskResult{name: a.Name(), result: res, err: err}
		}(a)
	}

	joined := model.JoinedAssessment{
		Results: make(map[string]model.AssessmentResult, len(c.assessors)),
		Order:   c.Order(),
	}

	deadline := time.NewTimer(c.config.JoinDeadline)
	defer deadline.Stop()

	settled := make(map[string]bool, len(c.assessors))

collect:
	for len(settled) < len(c.assessors) {
		select {
		case tr := <-resultCh:
			settled[tr.name] = true
			if tr.err != nil {
				c.logger.Warn("assessment task failed",
					zap.String("unit", unit.Key),
					zap.String("assessor", tr.name),
					zap.Error(tr.err))
				continue
			}
			joined.Results[tr.name] = *tr.result
		case <-deadline.C:
			c.logger.Warn("join deadline elapsed",
				zap.String("unit", unit.Key),
				zap.Int("settled", len(settled)),
				zap.Int("expected", len(c.assessors)))
			break collect
		case <-ctx.Done():
			c.logger.Warn("evaluation context cancelled",
				zap.String("unit", unit.Key),
				zap.Error(ctx.Err()))
			break collect
		}
	}

	// Missing is derived from the priority order so partial-join messages
	// are reproducible.
	for _, name := range joined.Order {
		if _, ok := joined.Results[name]; !ok {
			joined.Missing = append(joined.Missing, name)
		}
	}

	return joined
}
