package domain

import "time"

// EventType enumerates the four control events the widget can emit.
type EventType string

const (
	EventNext  EventType = "NEXT"
	EventPause EventType = "PAUSE"
	EventUndo  EventType = "UNDO"
	EventExit  EventType = "EXIT"
)

// ParseEventType validates a raw event type from the wire.
// Unknown types are rejected at the boundary rather than ignored.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(raw) {
	case EventNext, EventPause, EventUndo, EventExit:
		return EventType(raw), nil
	}
	return "", ErrUnknownEventType
}

// Event is the immutable audit record of one control event.
// It is append-only and never used to rebuild session state.
type Event struct {
	SessionID       string    `json:"sessionId"`
	Type            EventType `json:"type"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
	ReceivedAt      time.Time `json:"receivedAt"`
}

// Question is a committed per-question timing record. Immutable once
// committed; UNDO removes the most recent record instead of editing it.
type Question struct {
	SessionID     string    `json:"sessionId"`
	Index         int       `json:"index"` // 1-based, contiguous within a session
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
	RawSeconds    float64   `json:"rawSeconds"`
	ActiveSeconds float64   `json:"activeSeconds"`
	Ghost         bool      `json:"ghost"`
}

// SessionRecord is the persisted snapshot of a session, as read by
// summaries and reports after (or while) the session runs.
type SessionRecord struct {
	ID                       string     `json:"sessionId"`
	UserID                   string     `json:"userId"`
	StartedAt                time.Time  `json:"startedAt"`
	EndedAt                  *time.Time `json:"endedAt,omitempty"`
	IsActive                 bool       `json:"isActive"`
	TargetMinutesPerQuestion float64    `json:"targetMinutesPerQuestion"`
}

// EventResult confirms a processed event back to the widget.
type EventResult struct {
	SessionID            string          `json:"sessionId"`
	LastEventType        EventType       `json:"lastEventType"`
	ServerTimestamp      time.Time       `json:"serverTimestamp"`
	IsSessionClosed      bool            `json:"isSessionClosed"`
	IsPaused             bool            `json:"isPaused"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	LastQuestion         *ClosedQuestion `json:"lastQuestion,omitempty"`
}

// ClosedQuestion describes the question a NEXT or EXIT just committed.
type ClosedQuestion struct {
	Index         int     `json:"index"`
	RawSeconds    float64 `json:"rawSeconds"`
	ActiveSeconds float64 `json:"activeSeconds"`
	ActiveMMSS    string  `json:"activeMmss"`
}

// QuestionSummary is the per-question line of a session summary.
type QuestionSummary struct {
	Index         int       `json:"index"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
	RawSeconds    float64   `json:"rawSeconds"`
	ActiveSeconds float64   `json:"activeSeconds"`
	ActiveMMSS    string    `json:"activeMmss"`
}

// SessionSummary aggregates one session's committed questions.
// Ghost records are excluded from the averages but listed for audit.
type SessionSummary struct {
	SessionID          string            `json:"sessionId"`
	UserID             string            `json:"userId"`
	StartedAt          time.Time         `json:"startedAt"`
	EndedAt            *time.Time        `json:"endedAt,omitempty"`
	IsActive           bool              `json:"isActive"`
	TargetMinutes      float64           `json:"targetMinutesPerQuestion"`
	TotalQuestions     int               `json:"totalQuestions"`
	TotalRawSeconds    float64           `json:"totalRawSeconds"`
	TotalActiveSeconds float64           `json:"totalActiveSeconds"`
	AvgActiveSeconds   float64           `json:"avgActiveSeconds"`
	AvgActiveMMSS      string            `json:"avgActiveMmss"`
	PaceLabel          string            `json:"paceLabel"`
	PaceEmoji          string            `json:"paceEmoji"`
	Score              int               `json:"score"`
	Questions          []QuestionSummary `json:"questions"`
}

// HourlyBucket holds active time attributed to one local hour of a day.
type HourlyBucket struct {
	Hour           int     `json:"hour"`
	TotalQuestions int     `json:"totalQuestions"`
	ActiveSeconds  float64 `json:"activeSeconds"`
}

// DaySessionItem is the compact per-session line inside a day summary.
type DaySessionItem struct {
	SessionID        string     `json:"sessionId"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	IsActive         bool       `json:"isActive"`
	TotalQuestions   int        `json:"totalQuestions"`
	TotalActiveSecs  float64    `json:"totalActiveSeconds"`
	AvgActiveSeconds float64    `json:"avgActiveSeconds"`
	AvgActiveMMSS    string     `json:"avgActiveMmss"`
	PaceLabel        string     `json:"paceLabel"`
	PaceEmoji        string     `json:"paceEmoji"`
	Score            int        `json:"score"`
}

// DaySummary aggregates all of a user's sessions started on one local day.
type DaySummary struct {
	Date               time.Time        `json:"date"`
	UserID             string           `json:"userId"`
	TotalSessions      int              `json:"totalSessions"`
	TotalQuestions     int              `json:"totalQuestions"`
	TotalActiveSeconds float64          `json:"totalActiveSeconds"`
	TotalRawSeconds    float64          `json:"totalRawSeconds"`
	TotalActiveMMSS    string           `json:"totalActiveMmss"`
	HourlyActivity     []HourlyBucket   `json:"hourlyActivity"`
	Sessions           []DaySessionItem `json:"sessions"`
}

// WeekTotals accumulates over the seven days of a weekly report.
type WeekTotals struct {
	TotalSessions      int     `json:"totalSessions"`
	TotalQuestions     int     `json:"totalQuestions"`
	TotalActiveSeconds float64 `json:"totalActiveSeconds"`
	TotalRawSeconds    float64 `json:"totalRawSeconds"`
}

// WeekReport bundles seven consecutive day summaries.
type WeekReport struct {
	WeekStart time.Time    `json:"weekStart"`
	WeekEnd   time.Time    `json:"weekEnd"`
	Days      []DaySummary `json:"days"`
	Totals    WeekTotals   `json:"totals"`
}
