package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestSimulator(seed int64) *Simulator {
	cfg := SimulatorConfig{
		Enabled:  true,
		Seed:     seed,
		Interval: time.Second,
		Users:    []string{"alice", "bob", "carol"},
	}
	return NewSimulator(cfg, nil, zerolog.Nop())
}

func TestSimulatorDeterministicUnderSeed(t *testing.T) {
	a := newTestSimulator(7)
	b := newTestSimulator(7)

	for i := 0; i < 50; i++ {
		ea, eb := a.Next(), b.Next()
		if ea.Type != eb.Type || ea.UserID != eb.UserID {
			t.Fatalf("event %d diverged: %v/%s vs %v/%s", i, ea.Type, ea.UserID, eb.Type, eb.UserID)
		}
		if (ea.Message == nil) != (eb.Message == nil) {
			t.Fatalf("event %d message block diverged", i)
		}
		if ea.Message != nil && ea.Message.Text != eb.Message.Text {
			t.Fatalf("event %d text diverged: %q vs %q", i, ea.Message.Text, eb.Message.Text)
		}
	}
}

func TestSimulatorEventsValidate(t *testing.T) {
	s := newTestSimulator(1)
	for _, e := range s.Batch(200) {
		if err := e.Validate(); err != nil {
			t.Fatalf("generated event %s invalid: %v", e.ID, err)
		}
		if e.Source != "simulator" {
			t.Errorf("source = %q", e.Source)
		}
	}
	if s.Generated() != 200 {
		t.Errorf("generated = %d, want 200", s.Generated())
	}
}

func TestSimulatorMixCoversAllTypes(t *testing.T) {
	s := newTestSimulator(3)
	seen := map[EventType]bool{}
	compound := false
	for _, e := range s.Batch(500) {
		seen[e.Type] = true
		if e.Download != nil && e.Media != nil && e.OffHours != nil {
			compound = true
		}
	}
	for _, typ := range []EventType{EventMessage, EventOffHours, EventRemovableMedia, EventProcessAnomaly, EventBulkDownload} {
		if !seen[typ] {
			t.Errorf("type %v never generated in 500 events", typ)
		}
	}
	if !compound {
		t.Error("no compound event in 500 events")
	}
}

func TestSimulatorBatchSize(t *testing.T) {
	s := newTestSimulator(5)
	if got := len(s.Batch(5)); got != 5 {
		t.Errorf("batch = %d, want 5", got)
	}
}
