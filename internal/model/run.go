package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is one node of the workflow state machine.
type State string

const (
	StateInitialized State = "initialized"

	StateTranslating State = "translating"
	StateVerifying   State = "verifying"
	StateEvaluating  State = "evaluating"
	StateDeciding    State = "deciding"

	StateRegenerating State = "regenerating"

	StatePublished     State = "published"
	StateRejected      State = "rejected"
	StatePendingReview State = "pending_review"
	StateFailed        State = "failed"
)

// validTransitions is the total transition table. StateFailed is reachable
// from every non-terminal state and therefore not listed per source.
var validTransitions = map[State][]State{
	StateInitialized:  {StateTranslating},
	StateTranslating:  {StateVerifying},
	StateVerifying:    {StateEvaluating},
	StateEvaluating:   {StateDeciding},
	StateDeciding:     {StatePublished, StateRejected, StatePendingReview, StateRegenerating},
	StateRegenerating: {StateTranslating, StatePendingReview},

	StatePublished:     {},
	StateRejected:      {},
	StatePendingReview: {},
	StateFailed:        {},
}

// IsTerminal reports whether no further transitions exist from s.
func (s State) IsTerminal() bool {
	switch s {
	case StatePublished, StateRejected, StatePendingReview, StateFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a valid transition.
func (s State) CanTransitionTo(next State) bool {
	if next == StateFailed {
		return !s.IsTerminal()
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Attempt is the full record of one translate-verify-evaluate-decide pass.
type Attempt struct {
	Number       int              `json:"number"`
	Candidate    Candidate        `json:"candidate"`
	Verification Verification     `json:"verification"`
	Joined       JoinedAssessment `json:"joined"`
	Decision     GateDecision     `json:"decision"`
}

// WorkflowRun is the top-level aggregate for one unit's journey through the
// workflow. Only the engine mutates it; once a terminal state is reached it
// is immutable.
type WorkflowRun struct {
	ID   string          `json:"id"`
	Unit TranslationUnit `json:"unit"`

	State        State     `json:"state"`
	AttemptCount int       `json:"attempt_count"`
	Attempts     []Attempt `json:"attempts"`

	FinalText     string `json:"final_text,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewRun creates a run in StateInitialized.
func NewRun(unit TranslationUnit) *WorkflowRun {
	return &WorkflowRun{
		ID:        uuid.New().String(),
		Unit:      unit,
		State:     StateInitialized,
		StartedAt: time.Now().UTC(),
	}
}

// Transition moves the run to next, enforcing the transition table and
// terminal immutability.
func (r *WorkflowRun) Transition(next State) error {
	if r.State.IsTerminal() {
		return fmt.Errorf("run %s is terminal in state %s, cannot move to %s", r.ID, r.State, next)
	}
	if !r.State.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition %s -> %s for run %s", r.State, next, r.ID)
	}
	r.State = next
	if next.IsTerminal() {
		r.FinishedAt = time.Now().UTC()
	}
	return nil
}

// Fail forces the run into StateFailed with a structured reason, keeping the
// attempt history accumulated so far. Calling Fail on a terminal run is a
// no-op.
func (r *WorkflowRun) Fail(reason string) {
	if r.State.IsTerminal() {
		return
	}
	r.State = StateFailed
	r.FailureReason = reason
	r.FinishedAt = time.Now().UTC()
}

// AppendAttempt appends one completed attempt record. History is append-only
// and attempt numbers must increase by exactly one.
func (r *WorkflowRun) AppendAttempt(a Attempt) error {
	if r.State.IsTerminal() {
		return fmt.Errorf("run %s is terminal, history is immutable", r.ID)
	}
	if a.Number != len(r.Attempts)+1 {
		return fmt.Errorf("attempt %d out of order, history has %d entries", a.Number, len(r.Attempts))
	}
	r.Attempts = append(r.Attempts, a)
	r.AttemptCount = a.Number
	return nil
}

// LastDecision returns the most recent gate decision, if any attempt has
// completed.
func (r *WorkflowRun) LastDecision() (GateDecision, bool) {
	if len(r.Attempts) == 0 {
		return GateDecision{}, false
	}
	return r.Attempts[len(r.Attempts)-1].Decision, true
}
