package session

import (
	"testing"

	"github.com/sentrastack/sentra-diag/internal/models"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Create(models.Session{ID: "s1", Status: models.StatusQueued}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(models.Session{ID: "s1"}); err == nil {
		t.Fatalf("expected duplicate id rejected")
	}

	session, ok := store.Get("s1")
	if !ok || session.Status != models.StatusQueued {
		t.Fatalf("unexpected session %+v", session)
	}
	if _, ok := store.Get("nope"); ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestMemoryStoreGetReturnsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	store.Create(models.Session{ID: "s1", Percent: 10})

	snapshot, _ := store.Get("s1")
	snapshot.Percent = 99

	current, _ := store.Get("s1")
	if current.Percent != 10 {
		t.Fatalf("snapshot mutation leaked into the store")
	}
}

func TestMemoryStoreUpdatePercentMonotonic(t *testing.T) {
	store := NewMemoryStore()
	store.Create(models.Session{ID: "s1"})

	store.Update("s1", func(s *models.Session) { s.Percent = 50 })
	store.Update("s1", func(s *models.Session) { s.Percent = 30 })

	session, _ := store.Get("s1")
	if session.Percent != 50 {
		t.Fatalf("expected percent never to decrease, got %d", session.Percent)
	}

	store.Update("s1", func(s *models.Session) { s.Percent = 80 })
	session, _ = store.Get("s1")
	if session.Percent != 80 {
		t.Fatalf("expected forward progress allowed, got %d", session.Percent)
	}
}

func TestMemoryStoreDeleteAndList(t *testing.T) {
	store := NewMemoryStore()
	store.Create(models.Session{ID: "s1"})
	store.Create(models.Session{ID: "s2"})

	store.Delete("s1")
	store.Delete("missing")

	sessions := store.List()
	if len(sessions) != 1 || sessions[0].ID != "s2" {
		t.Fatalf("unexpected sessions after delete: %+v", sessions)
	}
}
