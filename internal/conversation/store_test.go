package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreateSessionUnique(t *testing.T) {
	s := NewStore()
	a := s.CreateSession("")
	b := s.CreateSession("")
	if a == b {
		t.Fatalf("session IDs collide: %s", a)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestCreateSessionWithIDReplacesExisting(t *testing.T) {
	s := NewStore()
	id := s.CreateSession("review-session")
	if id != "review-session" {
		t.Fatalf("id = %q, want the supplied one", id)
	}
	s.AddMessage(id, "user", "first question")

	// Re-creating under the same id starts the conversation over.
	if again := s.CreateSession("review-session"); again != id {
		t.Fatalf("re-create returned %q", again)
	}
	if got := s.Messages(id); len(got) != 0 {
		t.Errorf("messages survived re-creation: %+v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestAddMessageAutoCreates(t *testing.T) {
	s := NewStore()
	s.AddMessage("ghost", "user", "hello")
	got := s.History("ghost", 0)
	if len(got) != 1 {
		t.Fatalf("History = %v, want 1 entry", got)
	}
	if got[0].Role != "user" || got[0].Content != "hello" {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestTrimKeepsSystemAndRecent(t *testing.T) {
	s := NewStore(WithMaxTurns(2))
	id := s.CreateSession("")
	s.AddMessage(id, "system", "persona")
	for i := 0; i < 10; i++ {
		s.AddMessage(id, "user", fmt.Sprintf("q%d", i))
		s.AddMessage(id, "assistant", fmt.Sprintf("a%d", i))
	}
	msgs := s.Messages(id)
	// 1 system + maxTurns*2 non-system.
	if len(msgs) != 5 {
		t.Fatalf("retained %d messages, want 5: %v", len(msgs), msgs)
	}
	if msgs[0].Role != "system" {
		t.Errorf("system message not preserved at front: %+v", msgs[0])
	}
	if msgs[1].Content != "q8" || msgs[4].Content != "a9" {
		t.Errorf("wrong window retained: %v", msgs)
	}
}

func TestHistoryWindow(t *testing.T) {
	s := NewStore()
	id := s.CreateSession("")
	for i := 0; i < 6; i++ {
		s.AddMessage(id, "user", fmt.Sprintf("q%d", i))
		s.AddMessage(id, "assistant", fmt.Sprintf("a%d", i))
	}
	got := s.History(id, 3)
	if len(got) != 6 {
		t.Fatalf("History(3) returned %d entries, want 6", len(got))
	}
	if got[0].Content != "q3" || got[5].Content != "a5" {
		t.Errorf("wrong window: %v", got)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	s := NewStore()
	if got := s.History("missing", 0); len(got) != 0 {
		t.Fatalf("History(unknown) = %v, want empty", got)
	}
}

func TestClearSessionOnce(t *testing.T) {
	s := NewStore()
	id := s.CreateSession("")
	if !s.ClearSession(id) {
		t.Fatal("first clear should report true")
	}
	if s.ClearSession(id) {
		t.Fatal("second clear should report false")
	}
}

func TestCleanupExpired(t *testing.T) {
	now := time.Now()
	clock := now
	s := NewStore(WithTTL(time.Hour), WithClock(func() time.Time { return clock }))
	old := s.CreateSession("")
	s.AddMessage(old, "user", "stale")

	clock = now.Add(2 * time.Hour)
	fresh := s.CreateSession("")
	s.AddMessage(fresh, "user", "recent")

	removed := s.CleanupExpired()
	if removed != 1 {
		t.Fatalf("removed %d sessions, want 1", removed)
	}
	if len(s.History(old, 0)) != 0 {
		t.Error("stale session survived cleanup")
	}
	if len(s.History(fresh, 0)) != 1 {
		t.Error("fresh session was removed")
	}
}

func TestCleanupZeroTTL(t *testing.T) {
	s := NewStore(WithTTL(0))
	s.CreateSession("")
	s.CreateSession("")
	if removed := s.CleanupExpired(); removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after zero-TTL cleanup", s.Len())
	}
}

func TestListSessions(t *testing.T) {
	s := NewStore()
	id := s.CreateSession("")
	s.AddMessage(id, "user", "one")
	s.AddMessage(id, "assistant", "two")
	infos := s.ListSessions()
	if len(infos) != 1 {
		t.Fatalf("ListSessions = %v", infos)
	}
	if infos[0].ID != id || infos[0].MessageCount != 2 {
		t.Errorf("info = %+v", infos[0])
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(WithMaxTurns(3))
	id := s.CreateSession("")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.AddMessage(id, "user", fmt.Sprintf("w%d-%d", n, j))
				s.History(id, 2)
				s.ListSessions()
				if j%10 == 0 {
					s.CleanupExpired()
				}
			}
		}(i)
	}
	wg.Wait()
	if got := len(s.History(id, 0)); got > 6 {
		t.Errorf("history exceeded retention bound: %d entries", got)
	}
}
