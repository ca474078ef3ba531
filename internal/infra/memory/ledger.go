package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"rater-tracker-service/internal/domain"
)

// Ledger is the in-memory implementation of app.Ledger, used for tests and
// single-node deployments without Postgres.
type Ledger struct {
	mu        sync.RWMutex
	sessions  map[string]domain.SessionRecord
	questions map[string][]domain.Question // per session, index order
	events    []domain.Event
}

func NewLedger() *Ledger {
	return &Ledger{
		sessions:  make(map[string]domain.SessionRecord),
		questions: make(map[string][]domain.Question),
	}
}

func (l *Ledger) UpsertSession(_ context.Context, rec domain.SessionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[rec.ID] = rec
	return nil
}

func (l *Ledger) GetSession(_ context.Context, sessionID string) (domain.SessionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.sessions[sessionID]
	if !ok {
		return domain.SessionRecord{}, domain.ErrSessionNotFound
	}
	return rec, nil
}

func (l *Ledger) SessionsForRange(_ context.Context, userID string, start, end time.Time) ([]domain.SessionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.SessionRecord
	for _, rec := range l.sessions {
		if rec.UserID != userID {
			continue
		}
		if rec.StartedAt.Before(start) || !rec.StartedAt.Before(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (l *Ledger) DeleteSession(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, sessionID)
	delete(l.questions, sessionID)
	// Events are audit history and survive session deletion.
	return nil
}

func (l *Ledger) CloseActiveSessions(_ context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	closed := 0
	for id, rec := range l.sessions {
		if !rec.IsActive {
			continue
		}
		rec.IsActive = false
		if rec.EndedAt == nil {
			ended := now
			rec.EndedAt = &ended
		}
		l.sessions[id] = rec
		closed++
	}
	return closed, nil
}

func (l *Ledger) CommitQuestion(_ context.Context, q domain.Question) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.questions[q.SessionID] = append(l.questions[q.SessionID], q)
	return nil
}

func (l *Ledger) RemoveLastQuestion(_ context.Context, sessionID string) (domain.Question, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	qs := l.questions[sessionID]
	if len(qs) == 0 {
		return domain.Question{}, false, nil
	}
	last := qs[len(qs)-1]
	l.questions[sessionID] = qs[:len(qs)-1]
	return last, true, nil
}

func (l *Ledger) QuestionsForSession(_ context.Context, sessionID string) ([]domain.Question, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	qs := l.questions[sessionID]
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (l *Ledger) AppendEvent(_ context.Context, ev domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the audit trail, for tests and debugging.
func (l *Ledger) Events() []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Event, len(l.events))
	copy(out, l.events)
	return out
}
