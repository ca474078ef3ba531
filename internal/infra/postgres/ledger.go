package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"rater-tracker-service/internal/domain"
)

// Ledger implements app.Ledger on Postgres. Per-session write ordering is
// guaranteed by the session lock above this layer; statements here only need
// to be individually atomic.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) UpsertSession(ctx context.Context, rec domain.SessionRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, started_at, ended_at, is_active, target_minutes_per_question)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			is_active = EXCLUDED.is_active,
			target_minutes_per_question = EXCLUDED.target_minutes_per_question`,
		rec.ID, rec.UserID, rec.StartedAt, rec.EndedAt, rec.IsActive, rec.TargetMinutesPerQuestion)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (l *Ledger) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := l.pool.QueryRow(ctx, `
		SELECT id, user_id, started_at, ended_at, is_active, target_minutes_per_question
		FROM sessions WHERE id = $1`, sessionID).
		Scan(&rec.ID, &rec.UserID, &rec.StartedAt, &rec.EndedAt, &rec.IsActive, &rec.TargetMinutesPerQuestion)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

func (l *Ledger) SessionsForRange(ctx context.Context, userID string, start, end time.Time) ([]domain.SessionRecord, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, user_id, started_at, ended_at, is_active, target_minutes_per_question
		FROM sessions
		WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at ASC`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.StartedAt, &rec.EndedAt, &rec.IsActive, &rec.TargetMinutesPerQuestion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *Ledger) DeleteSession(ctx context.Context, sessionID string) error {
	// Questions cascade; events are audit history and stay.
	if _, err := l.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (l *Ledger) CloseActiveSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE sessions
		SET is_active = FALSE, ended_at = COALESCE(ended_at, $1)
		WHERE is_active`, now)
	if err != nil {
		return 0, fmt.Errorf("close active sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (l *Ledger) CommitQuestion(ctx context.Context, q domain.Question) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO questions (session_id, "index", started_at, ended_at, raw_seconds, active_seconds, ghost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.SessionID, q.Index, q.StartedAt, q.EndedAt, q.RawSeconds, q.ActiveSeconds, q.Ghost)
	if err != nil {
		return fmt.Errorf("commit question: %w", err)
	}
	return nil
}

func (l *Ledger) RemoveLastQuestion(ctx context.Context, sessionID string) (domain.Question, bool, error) {
	var q domain.Question
	err := l.pool.QueryRow(ctx, `
		DELETE FROM questions
		WHERE session_id = $1 AND "index" = (
			SELECT MAX("index") FROM questions WHERE session_id = $1
		)
		RETURNING session_id, "index", started_at, ended_at, raw_seconds, active_seconds, ghost`,
		sessionID).
		Scan(&q.SessionID, &q.Index, &q.StartedAt, &q.EndedAt, &q.RawSeconds, &q.ActiveSeconds, &q.Ghost)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, false, nil
	}
	if err != nil {
		return domain.Question{}, false, fmt.Errorf("remove last question: %w", err)
	}
	return q, true, nil
}

func (l *Ledger) QuestionsForSession(ctx context.Context, sessionID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT session_id, "index", started_at, ended_at, raw_seconds, active_seconds, ghost
		FROM questions WHERE session_id = $1 ORDER BY "index" ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.SessionID, &q.Index, &q.StartedAt, &q.EndedAt, &q.RawSeconds, &q.ActiveSeconds, &q.Ghost); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (l *Ledger) AppendEvent(ctx context.Context, ev domain.Event) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO events (session_id, type, client_timestamp, received_at)
		VALUES ($1, $2, $3, $4)`,
		ev.SessionID, string(ev.Type), ev.ClientTimestamp, ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
