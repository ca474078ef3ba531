package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rater-tracker-service/internal/domain"
	"rater-tracker-service/internal/pace"
	"rater-tracker-service/internal/timing"
)

// SessionStore abstracts how open sessions are held (in-memory, Redis-marked, etc).
// At most one active session exists per user.
type SessionStore interface {
	Active(userID string) (*Session, bool)
	GetOrCreate(userID string, create func() *Session) (*Session, bool)
	Remove(userID string)
}

// Ledger persists committed questions, session snapshots and the event audit
// trail. Implementations must be safe for concurrent use; per-session write
// ordering is guaranteed by the session lock above this interface.
type Ledger interface {
	UpsertSession(ctx context.Context, rec domain.SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
	SessionsForRange(ctx context.Context, userID string, start, end time.Time) ([]domain.SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
	CloseActiveSessions(ctx context.Context, now time.Time) (int, error)

	CommitQuestion(ctx context.Context, q domain.Question) error
	RemoveLastQuestion(ctx context.Context, sessionID string) (domain.Question, bool, error)
	QuestionsForSession(ctx context.Context, sessionID string) ([]domain.Question, error)

	AppendEvent(ctx context.Context, ev domain.Event) error
}

// EventInput is the parsed inbound event handed to the core by a transport.
type EventInput struct {
	Type      domain.EventType
	Timestamp time.Time
	// SessionID optionally pins the event to a specific session so stale
	// widgets get ErrSessionClosed instead of acting on a newer session.
	SessionID string
}

// TrackerService contains the tracker use cases: the event state machine,
// summaries, reports and the out-of-band deletion operations.
//
// The service does not deduplicate retried events: two identical NEXTs are
// two real NEXTs. Request-id dedup belongs to the transport layer.
type TrackerService struct {
	sessions SessionStore
	ledger   Ledger
	log      *logrus.Logger

	targetMinutes float64
	maxFutureSkew time.Duration
	now           func() time.Time
	newID         func() string
}

// Option tweaks service construction.
type Option func(*TrackerService)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TrackerService) { s.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *TrackerService) { s.newID = newID }
}

// WithTargetMinutes sets the default per-question pace target.
func WithTargetMinutes(minutes float64) Option {
	return func(s *TrackerService) {
		if minutes > 0 {
			s.targetMinutes = minutes
		}
	}
}

// WithMaxFutureSkew bounds how far ahead of server time a client timestamp
// may be before the event is rejected.
func WithMaxFutureSkew(d time.Duration) Option {
	return func(s *TrackerService) {
		if d > 0 {
			s.maxFutureSkew = d
		}
	}
}

func NewTrackerService(store SessionStore, ledger Ledger, log *logrus.Logger, opts ...Option) *TrackerService {
	s := &TrackerService{
		sessions:      store,
		ledger:        ledger,
		log:           log,
		targetMinutes: pace.DefaultTargetMinutes,
		maxFutureSkew: 10 * time.Minute,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleEvent runs one widget event through the state machine and returns the
// updated session pointer. A rejected event leaves all state untouched.
func (s *TrackerService) HandleEvent(ctx context.Context, userID string, in EventInput) (domain.EventResult, error) {
	now := s.now()

	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	// Future timestamps beyond the skew bound are rejected; past timestamps
	// are trusted as-is since the widget batches during network hiccups.
	if ts.After(now.Add(s.maxFutureSkew)) {
		return domain.EventResult{}, fmt.Errorf("timestamp %s ahead of server time %s: %w",
			ts.Format(time.RFC3339), now.Format(time.RFC3339), domain.ErrInvalidTimestamp)
	}

	ev := domain.Event{Type: in.Type, ClientTimestamp: ts, ReceivedAt: now}

	session, created, err := s.resolveSession(ctx, userID, in, ev)
	if err != nil {
		return domain.EventResult{}, err
	}
	ev.SessionID = session.ID()

	var result domain.EventResult
	if created {
		// The creating NEXT opened question #1 itself; nothing to commit yet.
		result = session.started(ev)
	} else {
		result, err = session.apply(ctx, ev, s.ledger)
		if err != nil {
			return domain.EventResult{}, err
		}
	}
	if result.IsSessionClosed {
		s.sessions.Remove(userID)
	}

	if err := s.ledger.AppendEvent(ctx, ev); err != nil {
		// Audit trail is best-effort; the state transition already committed.
		s.log.WithError(err).WithField("sessionId", ev.SessionID).Warn("append event audit failed")
	}
	if ts.Before(now.Add(-24 * time.Hour)) {
		s.log.WithFields(logrus.Fields{
			"sessionId": ev.SessionID,
			"clientTs":  ts.Format(time.RFC3339),
		}).Warn("client timestamp far in the past")
	}
	return result, nil
}

// resolveSession locates (or, for NEXT, creates) the aggregate an event acts
// on. Events pinned to a session other than the user's active one are
// resolved against the ledger so stale widgets see ErrSessionClosed.
func (s *TrackerService) resolveSession(ctx context.Context, userID string, in EventInput, ev domain.Event) (*Session, bool, error) {
	active, ok := s.sessions.Active(userID)
	if ok && (in.SessionID == "" || in.SessionID == active.ID()) {
		return active, false, nil
	}

	if in.SessionID != "" {
		rec, err := s.ledger.GetSession(ctx, in.SessionID)
		if err == nil && !rec.IsActive {
			return nil, false, domain.ErrSessionClosed
		}
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, false, fmt.Errorf("resolve session %s: %w", in.SessionID, err)
		}
	}

	if in.Type != domain.EventNext {
		return nil, false, domain.ErrNoActiveSession
	}

	session, created := s.sessions.GetOrCreate(userID, func() *Session {
		return newSession(s.newID(), userID, ev.ClientTimestamp, s.targetMinutes)
	})
	if !created {
		// A concurrent NEXT won the race; this one applies to the winner.
		return session, false, nil
	}
	if err := s.ledger.UpsertSession(ctx, session.Snapshot()); err != nil {
		s.sessions.Remove(userID)
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"sessionId": session.ID(),
		"userId":    userID,
	}).Info("session started")
	return session, true, nil
}

// SessionSummary aggregates one session's ledger records.
func (s *TrackerService) SessionSummary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	rec, err := s.ledger.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	questions, err := s.ledger.QuestionsForSession(ctx, sessionID)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("list questions: %w", err)
	}
	return buildSessionSummary(rec, questions), nil
}

func buildSessionSummary(rec domain.SessionRecord, questions []domain.Question) domain.SessionSummary {
	target := rec.TargetMinutesPerQuestion
	if target <= 0 {
		target = pace.DefaultTargetMinutes
	}

	countable := pace.Countable(questions)
	var totalRaw, totalActive float64
	for _, q := range countable {
		totalRaw += q.RawSeconds
		totalActive += q.ActiveSeconds
	}
	avg := pace.AverageActiveSeconds(countable)
	tier := pace.NoQuestions
	if len(countable) > 0 {
		tier = pace.Compute(avg, target)
	}

	items := make([]domain.QuestionSummary, 0, len(questions))
	for _, q := range questions {
		items = append(items, domain.QuestionSummary{
			Index:         q.Index,
			StartedAt:     q.StartedAt,
			EndedAt:       q.EndedAt,
			RawSeconds:    q.RawSeconds,
			ActiveSeconds: q.ActiveSeconds,
			ActiveMMSS:    timing.FormatMMSS(q.ActiveSeconds),
		})
	}

	return domain.SessionSummary{
		SessionID:          rec.ID,
		UserID:             rec.UserID,
		StartedAt:          rec.StartedAt,
		EndedAt:            rec.EndedAt,
		IsActive:           rec.IsActive,
		TargetMinutes:      target,
		TotalQuestions:     len(countable),
		TotalRawSeconds:    totalRaw,
		TotalActiveSeconds: totalActive,
		AvgActiveSeconds:   avg,
		AvgActiveMMSS:      timing.FormatMMSS(avg),
		PaceLabel:          tier.Label,
		PaceEmoji:          tier.Emoji,
		Score:              tier.Score,
		Questions:          items,
	}
}

// DaySummary aggregates the user's sessions that started on the given local
// day, bucketing active time by hour in loc.
func (s *TrackerService) DaySummary(ctx context.Context, userID string, date time.Time, loc *time.Location) (domain.DaySummary, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := date.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sessions, err := s.ledger.SessionsForRange(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return domain.DaySummary{}, fmt.Errorf("list sessions: %w", err)
	}

	summary := domain.DaySummary{
		Date:            dayStart,
		UserID:          userID,
		TotalActiveMMSS: timing.FormatMMSS(0),
		Sessions:        []domain.DaySessionItem{},
	}

	var dayQuestions []domain.Question
	for _, rec := range sessions {
		questions, err := s.ledger.QuestionsForSession(ctx, rec.ID)
		if err != nil {
			return domain.DaySummary{}, fmt.Errorf("list questions for %s: %w", rec.ID, err)
		}
		countable := pace.Countable(questions)
		summary.TotalSessions++

		item := domain.DaySessionItem{
			SessionID:     rec.ID,
			StartedAt:     rec.StartedAt,
			EndedAt:       rec.EndedAt,
			IsActive:      rec.IsActive,
			AvgActiveMMSS: timing.FormatMMSS(0),
			PaceLabel:     pace.NoQuestions.Label,
			PaceEmoji:     pace.NoQuestions.Emoji,
		}
		if len(countable) > 0 {
			target := rec.TargetMinutesPerQuestion
			if target <= 0 {
				target = pace.DefaultTargetMinutes
			}
			var totalActive, totalRaw float64
			for _, q := range countable {
				totalActive += q.ActiveSeconds
				totalRaw += q.RawSeconds
			}
			avg := totalActive / float64(len(countable))
			tier := pace.Compute(avg, target)

			item.TotalQuestions = len(countable)
			item.TotalActiveSecs = totalActive
			item.AvgActiveSeconds = avg
			item.AvgActiveMMSS = timing.FormatMMSS(avg)
			item.PaceLabel = tier.Label
			item.PaceEmoji = tier.Emoji
			item.Score = tier.Score

			summary.TotalQuestions += len(countable)
			summary.TotalActiveSeconds += totalActive
			summary.TotalRawSeconds += totalRaw
			dayQuestions = append(dayQuestions, countable...)
		}
		summary.Sessions = append(summary.Sessions, item)
	}

	summary.TotalActiveMMSS = timing.FormatMMSS(summary.TotalActiveSeconds)
	summary.HourlyActivity = pace.HourlyActivity(dayQuestions, loc)
	return summary, nil
}

// WeekReport builds seven consecutive day summaries from the local midnight
// of weekStart.
func (s *TrackerService) WeekReport(ctx context.Context, userID string, weekStart time.Time, loc *time.Location) (domain.WeekReport, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := weekStart.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	report := domain.WeekReport{
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 7),
	}
	for offset := 0; offset < 7; offset++ {
		day, err := s.DaySummary(ctx, userID, start.AddDate(0, 0, offset), loc)
		if err != nil {
			return domain.WeekReport{}, err
		}
		report.Days = append(report.Days, day)
		report.Totals.TotalSessions += day.TotalSessions
		report.Totals.TotalQuestions += day.TotalQuestions
		report.Totals.TotalActiveSeconds += day.TotalActiveSeconds
		report.Totals.TotalRawSeconds += day.TotalRawSeconds
	}
	return report, nil
}

// DeleteSession removes a session and its questions from the ledger. The
// event audit trail is retained. Idempotent: deleting a missing session is
// not an error.
func (s *TrackerService) DeleteSession(ctx context.Context, sessionID string) error {
	rec, err := s.ledger.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if active, ok := s.sessions.Active(rec.UserID); ok && active.ID() == sessionID {
		s.sessions.Remove(rec.UserID)
	}
	return s.ledger.DeleteSession(ctx, sessionID)
}

// DeleteLastQuestion removes the most recent committed question of a session.
// This is not an UNDO: the open question and pause state are left as they
// are; an active session's pointer is rewound so future indices stay
// contiguous. Idempotent on an empty ledger.
func (s *TrackerService) DeleteLastQuestion(ctx context.Context, sessionID string) (domain.Question, bool, error) {
	rec, err := s.ledger.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Question{}, false, err
	}

	removed, ok, err := s.ledger.RemoveLastQuestion(ctx, sessionID)
	if err != nil || !ok {
		return domain.Question{}, false, err
	}

	if active, present := s.sessions.Active(rec.UserID); present && active.ID() == sessionID {
		active.rewind(removed.Index)
	}
	return removed, true, nil
}

// CloseAllActiveSessions force-closes every active session in the ledger,
// for the admin command run after a deploy or crash.
func (s *TrackerService) CloseAllActiveSessions(ctx context.Context) (int, error) {
	return s.ledger.CloseActiveSessions(ctx, s.now())
}
