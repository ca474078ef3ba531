package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rater-tracker-service/internal/domain"
	"rater-tracker-service/internal/timing"
)

// Session is the in-memory aggregate for one open work session. All state
// transitions happen under the session mutex, so concurrent events for the
// same session serialize while other users' sessions proceed in parallel.
//
// Duration math trusts client timestamps; the service clamps and sanity-
// checks them before they reach the aggregate.
type Session struct {
	mu sync.Mutex

	id            string
	userID        string
	startedAt     time.Time
	targetMinutes float64

	// questionIndex counts committed questions; the open question, while the
	// session is active, is always questionIndex+1.
	questionIndex int
	openStartedAt time.Time

	paused         bool
	pauseStartedAt time.Time
	pauseAccumSecs float64

	closed  bool
	endedAt time.Time
}

func newSession(id, userID string, startedAt time.Time, targetMinutes float64) *Session {
	return &Session{
		id:            id,
		userID:        userID,
		startedAt:     startedAt,
		targetMinutes: targetMinutes,
		openStartedAt: startedAt,
	}
}

// ID returns the session's public identifier.
func (s *Session) ID() string {
	return s.id
}

// IsClosed reports whether EXIT has been applied.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) snapshotLocked() domain.SessionRecord {
	rec := domain.SessionRecord{
		ID:                       s.id,
		UserID:                   s.userID,
		StartedAt:                s.startedAt,
		IsActive:                 !s.closed,
		TargetMinutesPerQuestion: s.targetMinutes,
	}
	if s.closed {
		ended := s.endedAt
		rec.EndedAt = &ended
	}
	return rec
}

// Snapshot returns the persistable view of the session.
func (s *Session) Snapshot() domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) resultLocked(evType domain.EventType, now time.Time, closedQ *domain.ClosedQuestion) domain.EventResult {
	return domain.EventResult{
		SessionID:            s.id,
		LastEventType:        evType,
		ServerTimestamp:      now,
		IsSessionClosed:      s.closed,
		IsPaused:             s.paused,
		CurrentQuestionIndex: s.questionIndex,
		LastQuestion:         closedQ,
	}
}

// started reports the fresh pointer right after the creating NEXT opened
// question #1.
func (s *Session) started(ev domain.Event) domain.EventResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked(ev.Type, ev.ReceivedAt, nil)
}

// apply runs one event through the state machine. The ledger write happens
// inside the lock so a duplicate event cannot double-commit; on any ledger
// error the in-memory state is left untouched and the event is rejected.
func (s *Session) apply(ctx context.Context, ev domain.Event, ledger Ledger) (domain.EventResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.EventResult{}, domain.ErrSessionClosed
	}

	switch ev.Type {
	case domain.EventNext:
		return s.applyNextLocked(ctx, ev, ledger)
	case domain.EventPause:
		return s.applyPauseLocked(ev), nil
	case domain.EventUndo:
		return s.applyUndoLocked(ctx, ev, ledger)
	case domain.EventExit:
		return s.applyExitLocked(ctx, ev, ledger)
	}
	return domain.EventResult{}, domain.ErrUnknownEventType
}

func (s *Session) applyNextLocked(ctx context.Context, ev domain.Event, ledger Ledger) (domain.EventResult, error) {
	q, err := s.commitOpenQuestionLocked(ctx, ev, ledger)
	if err != nil {
		return domain.EventResult{}, err
	}

	s.questionIndex++
	s.openStartedAt = ev.ClientTimestamp
	s.pauseAccumSecs = 0
	s.paused = false
	s.pauseStartedAt = time.Time{}

	return s.resultLocked(ev.Type, ev.ReceivedAt, closedView(q)), nil
}

func (s *Session) applyPauseLocked(ev domain.Event) domain.EventResult {
	if s.paused {
		// Second PAUSE resumes: fold the interval into the accumulator.
		s.pauseAccumSecs += timing.ClosePause(s.pauseStartedAt, ev.ClientTimestamp)
		s.paused = false
		s.pauseStartedAt = time.Time{}
	} else {
		s.paused = true
		s.pauseStartedAt = ev.ClientTimestamp
	}
	return s.resultLocked(ev.Type, ev.ReceivedAt, nil)
}

func (s *Session) applyUndoLocked(ctx context.Context, ev domain.Event, ledger Ledger) (domain.EventResult, error) {
	if s.questionIndex == 0 {
		return domain.EventResult{}, domain.ErrNothingToUndo
	}

	removed, ok, err := ledger.RemoveLastQuestion(ctx, s.id)
	if err != nil {
		return domain.EventResult{}, fmt.Errorf("undo question %d: %w", s.questionIndex, err)
	}
	if !ok {
		return domain.EventResult{}, domain.ErrNothingToUndo
	}

	// Reopen the removed question at its original start. Sub-question pause
	// granularity is discarded: the accumulator restarts at zero.
	s.questionIndex = removed.Index - 1
	s.openStartedAt = removed.StartedAt
	s.pauseAccumSecs = 0
	s.paused = false
	s.pauseStartedAt = time.Time{}

	return s.resultLocked(ev.Type, ev.ReceivedAt, nil), nil
}

func (s *Session) applyExitLocked(ctx context.Context, ev domain.Event, ledger Ledger) (domain.EventResult, error) {
	q, err := s.commitOpenQuestionLocked(ctx, ev, ledger)
	if err != nil {
		return domain.EventResult{}, err
	}

	// Both ledger writes land before any field changes, so a rejected EXIT
	// leaves the aggregate running and the ledger as it was.
	rec := s.snapshotLocked()
	rec.IsActive = false
	ended := ev.ClientTimestamp
	rec.EndedAt = &ended
	if err := ledger.UpsertSession(ctx, rec); err != nil {
		_, _, _ = ledger.RemoveLastQuestion(ctx, s.id)
		return domain.EventResult{}, fmt.Errorf("close session %s: %w", s.id, err)
	}

	s.questionIndex++
	s.closed = true
	s.endedAt = ev.ClientTimestamp
	s.paused = false
	s.pauseStartedAt = time.Time{}
	s.pauseAccumSecs = 0

	return s.resultLocked(ev.Type, ev.ReceivedAt, closedView(q)), nil
}

// commitOpenQuestionLocked folds any pending pause and writes the open
// question to the ledger. The caller advances the pointer on success.
func (s *Session) commitOpenQuestionLocked(ctx context.Context, ev domain.Event, ledger Ledger) (domain.Question, error) {
	pauseSecs := s.pauseAccumSecs
	if s.paused {
		pauseSecs += timing.ClosePause(s.pauseStartedAt, ev.ClientTimestamp)
	}

	raw := timing.Elapsed(s.openStartedAt, ev.ClientTimestamp)
	active := raw - pauseSecs
	if active < 0 {
		active = 0
	}

	q := domain.Question{
		SessionID:     s.id,
		Index:         s.questionIndex + 1,
		StartedAt:     s.openStartedAt,
		EndedAt:       ev.ClientTimestamp,
		RawSeconds:    raw,
		ActiveSeconds: active,
		Ghost:         raw == 0 && active == 0,
	}
	if err := ledger.CommitQuestion(ctx, q); err != nil {
		return domain.Question{}, fmt.Errorf("commit question %d: %w", q.Index, err)
	}
	return q, nil
}

// rewind drops the session's pointer after an out-of-band deletion of
// the most recent committed question. Pause state is left untouched.
func (s *Session) rewind(removedIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if removedIndex > 0 && s.questionIndex >= removedIndex {
		s.questionIndex = removedIndex - 1
	}
}

func closedView(q domain.Question) *domain.ClosedQuestion {
	return &domain.ClosedQuestion{
		Index:         q.Index,
		RawSeconds:    q.RawSeconds,
		ActiveSeconds: q.ActiveSeconds,
		ActiveMMSS:    timing.FormatMMSS(q.ActiveSeconds),
	}
}
