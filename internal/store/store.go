// Package store persists finished workflow runs and the terminology
// glossary in a local sqlite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/perevir/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		unit_key TEXT NOT NULL,
		source_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		state TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		final_text TEXT,
		failure_reason TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS attempts (
		run_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		candidate_text TEXT NOT NULL,
		backtranslation TEXT,
		verdict TEXT NOT NULL,
		can_publish BOOLEAN DEFAULT FALSE,
		blocking_assessor TEXT,
		review_assessors TEXT,
		missing_assessors TEXT,
		message TEXT,
		PRIMARY KEY (run_id, attempt),
		FOREIGN KEY (run_id) REFERENCES workflow_runs(id)
	);

	CREATE TABLE IF NOT EXISTS assessments (
		run_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		assessor TEXT NOT NULL,
		score INTEGER NOT NULL,
		verdict TEXT NOT NULL,
		issues TEXT,
		corrections TEXT,
		latency_ms INTEGER DEFAULT 0,
		PRIMARY KEY (run_id, attempt, assessor),
		FOREIGN KEY (run_id) REFERENCES workflow_runs(id)
	);

	-- glossary stores user-defined terminology applied when building units
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_term TEXT NOT NULL,
		target_term TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_lang, target_lang, source_term)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_state ON workflow_runs(state);
	CREATE INDEX IF NOT EXISTS idx_runs_unit ON workflow_runs(unit_key);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	CREATE INDEX IF NOT EXISTS idx_assessments_run ON assessments(run_id, attempt);
	CREATE INDEX IF NOT EXISTS idx_glossary_lookup ON glossary(source_lang, target_lang);
	`

	_, err := s.db.Exec(schema)
	return err
}

func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// SaveRun persists a terminal run with its full attempt history in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, run *model.WorkflowRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, unit_key, source_text, source_lang, target_lang, state, attempt_count, final_text, failure_reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Unit.Key, normalizeText(run.Unit.SourceText), run.Unit.SourceLang, run.Unit.TargetLang,
		string(run.State), run.AttemptCount, run.FinalText, run.FailureReason, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, a := range run.Attempts {
		reviewJSON, err := json.Marshal(a.Decision.ReviewAssessors)
		if err != nil {
			return err
		}
		missingJSON, err := json.Marshal(a.Joined.Missing)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO attempts (run_id, attempt, candidate_text, backtranslation, verdict, can_publish, blocking_assessor, review_assessors, missing_assessors, message)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, a.Number, a.Candidate.Text, a.Verification.Text,
			a.Decision.Verdict.String(), a.Decision.CanPublish,
			a.Decision.BlockingAssessor, string(reviewJSON), string(missingJSON), a.Decision.Message)
		if err != nil {
			return fmt.Errorf("failed to save attempt %d: %w", a.Number, err)
		}

		for _, name := range a.Joined.Order {
			r, ok := a.Joined.Results[name]
			if !ok {
				continue
			}
			issuesJSON, err := json.Marshal(r.Issues)
			if err != nil {
				return err
			}
			correctionsJSON, err := json.Marshal(r.Corrections)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO assessments (run_id, attempt, assessor, score, verdict, issues, corrections, latency_ms)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, a.Number, r.Name, r.Score, string(r.Verdict),
				string(issuesJSON), string(correctionsJSON), r.Latency.Milliseconds())
			if err != nil {
				return fmt.Errorf("failed to save assessment %s: %w", r.Name, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun reassembles a stored run including attempts and assessments.
func (s *Store) GetRun(ctx context.Context, id string) (*model.WorkflowRun, error) {
	run := &model.WorkflowRun{ID: id}
	var state string

	err := s.db.QueryRowContext(ctx,
		`SELECT unit_key, source_text, source_lang, target_lang, state, attempt_count, final_text, failure_reason, started_at, finished_at
		 FROM workflow_runs WHERE id = ?`, id).Scan(
		&run.Unit.Key, &run.Unit.SourceText, &run.Unit.SourceLang, &run.Unit.TargetLang,
		&state, &run.AttemptCount, &run.FinalText, &run.FailureReason, &run.StartedAt, &run.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	run.State = model.State(state)

	attempts, err := s.loadAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Attempts = attempts

	return run, nil
}

func (s *Store) loadAttempts(ctx context.Context, runID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt, candidate_text, backtranslation, verdict, can_publish, blocking_assessor, review_assessors, missing_assessors, message
		 FROM attempts WHERE run_id = ? ORDER BY attempt`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var (
			a                        model.Attempt
			verdict                  string
			reviewJSON, missingJSON  string
		)
		if err := rows.Scan(&a.Number, &a.Candidate.Text, &a.Verification.Text,
			&verdict, &a.Decision.CanPublish, &a.Decision.BlockingAssessor,
			&reviewJSON, &missingJSON, &a.Decision.Message); err != nil {
			return nil, err
		}
		v, err := model.ParseVerdict(verdict)
		if err != nil {
			return nil, err
		}
		a.Decision.Verdict = v
		if err := json.Unmarshal([]byte(reviewJSON), &a.Decision.ReviewAssessors); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(missingJSON), &a.Joined.Missing); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range attempts {
		if err := s.loadAssessments(ctx, runID, &attempts[i]); err != nil {
			return nil, err
		}
		attempts[i].Decision.Joined = attempts[i].Joined
	}

	return attempts, nil
}

func (s *Store) loadAssessments(ctx context.Context, runID string, a *model.Attempt) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT assessor, score, verdict, issues, corrections, latency_ms
		 FROM assessments WHERE run_id = ? AND attempt = ? ORDER BY rowid`, runID, a.Number)
	if err != nil {
		return err
	}
	defer rows.Close()

	a.Joined.Results = make(map[string]model.AssessmentResult)
	for rows.Next() {
		var (
			r                         model.AssessmentResult
			verdict                   string
			issuesJSON, correctionsJSON string
			latencyMs                 int64
		)
		if err := rows.Scan(&r.Name, &r.Score, &verdict, &issuesJSON, &correctionsJSON, &latencyMs); err != nil {
			return err
		}
		r.Verdict = model.AssessmentVerdict(verdict)
		r.Latency = time.Duration(latencyMs) * time.Millisecond
		if err := json.Unmarshal([]byte(issuesJSON), &r.Issues); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(correctionsJSON), &r.Corrections); err != nil {
			return err
		}
		a.Joined.Results[r.Name] = r
		a.Joined.Order = append(a.Joined.Order, r.Name)
	}
	// Assessors that never returned are part of the configured order too.
	a.Joined.Order = append(a.Joined.Order, a.Joined.Missing...)
	return rows.Err()
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	ID           string
	UnitKey      string
	SourceLang   string
	TargetLang   string
	State        model.State
	AttemptCount int
	FinishedAt   time.Time
}

// ListRuns returns the most recently finished runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, unit_key, source_lang, target_lang, state, attempt_count, finished_at
		 FROM workflow_runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var (
			r     RunSummary
			state string
		)
		if err := rows.Scan(&r.ID, &r.UnitKey, &r.SourceLang, &r.TargetLang, &state, &r.AttemptCount, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.State = model.State(state)
		results = append(results, r)
	}

	return results, rows.Err()
}

// RunStats summarises terminal outcomes.
type RunStats struct {
	Total         int
	Published     int
	Rejected      int
	PendingReview int
	Failed        int
}

// GlossaryEntry represents a row in the glossary table.
type GlossaryEntry struct {
	ID         string
	SourceLang string
	TargetLang string
	SourceTerm string
	TargetTerm string
	CreatedAt  time.Time
}

// AddGlossaryTerm inserts or replaces a glossary entry.
func (s *Store) AddGlossaryTerm(ctx context.Context, sourceLang, targetLang, sourceTerm, targetTerm string) error {
	id := fmt.Sprintf("gl_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, source_lang, target_lang, source_term, target_term)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sourceLang, targetLang, normalizeText(sourceTerm), normalizeText(targetTerm))
	return err
}

// GetGlossaryTerms returns the glossary for a language pair as a
// source-term to target-term map, ready to attach to a unit.
func (s *Store) GetGlossaryTerms(ctx context.Context, sourceLang, targetLang string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_term, target_term FROM glossary WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		terms[src] = tgt
	}
	return terms, rows.Err()
}

// ListGlossaryTerms returns all glossary entries, optionally filtered by
// language pair (pass empty strings to return everything).
func (s *Store) ListGlossaryTerms(ctx context.Context, sourceLang, targetLang string) ([]GlossaryEntry, error) {
	query := `SELECT id, source_lang, target_lang, source_term, target_term, created_at FROM glossary`
	var args []interface{}

	switch {
	case sourceLang != "" && targetLang != "":
		query += ` WHERE source_lang = ? AND target_lang = ?`
		args = append(args, sourceLang, targetLang)
	case sourceLang != "":
		query += ` WHERE source_lang = ?`
		args = append(args, sourceLang)
	case targetLang != "":
		query += ` WHERE target_lang = ?`
		args = append(args, targetLang)
	}
	query += ` ORDER BY source_lang, target_lang, source_term`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.SourceTerm, &e.TargetTerm, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGlossaryTerm removes a glossary entry by ID.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	return err
}

func (s *Store) Stats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state = 'published' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'pending_review' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0)
		FROM workflow_runs`).Scan(
		&stats.Total, &stats.Published, &stats.Rejected, &stats.PendingReview, &stats.Failed)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
