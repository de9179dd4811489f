package core

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestAuditAppendOrdering(t *testing.T) {
	log := NewAuditLog(zerolog.Nop())

	for i := 0; i < 100; i++ {
		log.Append("analyst-1", "alert_acknowledged", "alert", "a-1", "")
	}

	entries := log.Query(AuditQuery{})
	if len(entries) != 100 {
		t.Fatalf("len = %d, want 100", len(entries))
	}
	for i, e := range entries {
		if e.ID != int64(i+1) {
			t.Fatalf("entry %d has id %d, want %d", i, e.ID, i+1)
		}
		if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("entry %d timestamp precedes entry %d", i, i-1)
		}
	}
}

func TestAuditConcurrentAppends(t *testing.T) {
	log := NewAuditLog(zerolog.Nop())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				log.Append(ActorSystem, "alert_created", "alert", "a", "")
			}
		}()
	}
	wg.Wait()

	if log.Len() != 400 {
		t.Fatalf("len = %d, want 400", log.Len())
	}
	seen := make(map[int64]bool)
	for _, e := range log.Query(AuditQuery{}) {
		if seen[e.ID] {
			t.Fatalf("duplicate audit id %d", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestAuditQueryFilters(t *testing.T) {
	log := NewAuditLog(zerolog.Nop())
	log.Append("alice", "alert_acknowledged", "alert", "a-1", "")
	log.Append("bob", "alert_escalated", "alert", "a-2", "")
	log.Append("alice", "case_closed", "case", "c-1", "")

	if got := log.Query(AuditQuery{Actor: "alice"}); len(got) != 2 {
		t.Errorf("actor filter returned %d, want 2", len(got))
	}
	if got := log.Query(AuditQuery{TargetID: "a-2"}); len(got) != 1 || got[0].Actor != "bob" {
		t.Errorf("target filter returned %v", got)
	}
	if got := log.Query(AuditQuery{Limit: 1}); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("limit filter returned %v", got)
	}
}

func TestAuditSinkMirrors(t *testing.T) {
	log := NewAuditLog(zerolog.Nop())

	var got []AuditEntry
	log.AddSink(func(e AuditEntry) { got = append(got, e) })
	log.Append(ActorSystem, "alert_created", "alert", "a-1", "")
	log.Append(ActorSystem, "alert_closed", "alert", "a-1", "")

	if len(got) != 2 {
		t.Fatalf("sink saw %d entries, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("sink entries out of order: %+v", got)
	}
}

func TestAuditTail(t *testing.T) {
	log := NewAuditLog(zerolog.Nop())
	for i := 0; i < 10; i++ {
		log.Append(ActorSystem, "event_rejected", "event", "", "")
	}
	tail := log.Tail(3)
	if len(tail) != 3 {
		t.Fatalf("tail len = %d, want 3", len(tail))
	}
	if tail[0].ID != 8 || tail[2].ID != 10 {
		t.Errorf("tail ids = %d..%d, want 8..10", tail[0].ID, tail[2].ID)
	}
}
