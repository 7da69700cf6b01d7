package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/54b3r/pharmabot/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AppendAndHistory(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Turn{UserID: "u1", SessionID: "s1", Question: "hello", Answer: "hi there"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("want 1 turn, got %d", len(turns))
	}
	got := turns[0]
	if got.UserID != "u1" || got.SessionID != "s1" || got.Question != "hello" || got.Answer != "hi there" {
		t.Errorf("turn: got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt was not set")
	}
}

func TestStore_OldestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// Same timestamp for all three: insertion order must break the tie.
	at := time.UnixMilli(1_700_000_000_000)
	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		if err := s.Append(ctx, Turn{UserID: "u", SessionID: "s", Question: q, Answer: "a", CreatedAt: at}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Append(ctx, Turn{UserID: "u", SessionID: "s", Question: "zeroth", Answer: "a", CreatedAt: at.Add(-time.Hour)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := s.History(ctx, "u")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := append([]string{"zeroth"}, questions...)
	if len(turns) != len(want) {
		t.Fatalf("want %d turns, got %d", len(want), len(turns))
	}
	for i, w := range want {
		if turns[i].Question != w {
			t.Errorf("turn[%d]: want %q, got %q", i, w, turns[i].Question)
		}
	}
}

func TestStore_UserIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Turn{UserID: "x", SessionID: "sx", Question: "from x", Answer: "a"}); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, Turn{UserID: "y", SessionID: "sy", Question: "from y", Answer: "a"}); err != nil {
		t.Fatalf("append y: %v", err)
	}

	tx, err := s.History(ctx, "x")
	if err != nil {
		t.Fatalf("history x: %v", err)
	}
	if len(tx) != 1 || tx[0].Question != "from x" {
		t.Errorf("user x isolation failed: got %v", tx)
	}
}

func TestStore_EmptyHistory(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	turns, err := s.History(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", turns)
	}
}

func TestStore_ClearOnlyAffectsUser(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"a", "a", "b"} {
		if err := s.Append(ctx, Turn{UserID: u, SessionID: "s", Question: "q", Answer: "r"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Clear(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if turns, _ := s.History(ctx, "a"); len(turns) != 0 {
		t.Errorf("user a: want 0 turns after clear, got %d", len(turns))
	}
	if turns, _ := s.History(ctx, "b"); len(turns) != 1 {
		t.Errorf("user b: want 1 turn, got %d", len(turns))
	}
}

func TestStore_ClosedStoreReportsPersistenceError(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()

	err = s.Append(context.Background(), Turn{UserID: "u", Question: "q", Answer: "a"})
	if !errors.Is(err, rag.ErrPersistence) {
		t.Errorf("want ErrPersistence, got %v", err)
	}
}
