package memory

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"rater-tracker-service/internal/app"
	"rater-tracker-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	session := seedSession(t, store)

	got, ok := store.Active("u1")
	if !ok || got != session {
		t.Fatalf("expected active session for u1")
	}

	reused, created := store.GetOrCreate("u1", func() *app.Session {
		t.Fatal("create callback must not run for existing session")
		return nil
	})
	if created || reused != session {
		t.Fatalf("expected existing session reused")
	}

	store.Remove("u1")
	if _, ok := store.Active("u1"); ok {
		t.Fatalf("expected session removed")
	}
}

func seedSession(t *testing.T, store *SessionStore) *app.Session {
	t.Helper()
	svc := app.NewTrackerService(store, NewLedger(), logrus.New())
	if _, err := svc.HandleEvent(context.Background(), "u1", app.EventInput{
		Type:      domain.EventNext,
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	session, ok := store.Active("u1")
	if !ok {
		t.Fatalf("expected seeded session")
	}
	return session
}

func TestLedgerRemoveLast(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		err := ledger.CommitQuestion(ctx, domain.Question{
			SessionID:     "s1",
			Index:         i,
			StartedAt:     base,
			EndedAt:       base.Add(time.Minute),
			RawSeconds:    60,
			ActiveSeconds: 60,
		})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	removed, ok, err := ledger.RemoveLastQuestion(ctx, "s1")
	if err != nil || !ok || removed.Index != 3 {
		t.Fatalf("expected to remove index 3, got %+v ok=%v err=%v", removed, ok, err)
	}
	left, _ := ledger.QuestionsForSession(ctx, "s1")
	if len(left) != 2 {
		t.Fatalf("expected 2 questions left, got %d", len(left))
	}

	if _, ok, _ := ledger.RemoveLastQuestion(ctx, "missing"); ok {
		t.Fatalf("expected no removal for unknown session")
	}
}

func TestLedgerSessionsForRange(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, started := range []time.Time{
		day.Add(9 * time.Hour),
		day.Add(14 * time.Hour),
		day.AddDate(0, 0, 1), // next day, excluded
	} {
		rec := domain.SessionRecord{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			StartedAt: started,
			IsActive:  false,
		}
		if err := ledger.UpsertSession(ctx, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := ledger.SessionsForRange(ctx, "u1", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected [a b] in start order, got %+v", got)
	}
}
