package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []Notification
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeIsolator struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (f *fakeIsolator) Isolate(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	return f.err
}

func newTestResponse(notifier Notifier, isolator Isolator) (*ResponseEngine, *CaseManager, *AlertStore, *AuditLog) {
	audit := NewAuditLog(zerolog.Nop())
	alerts := NewAlertStore(zerolog.Nop(), audit)
	cases := NewCaseManager(DefaultCaseConfig(), alerts, audit, zerolog.Nop())
	cfg := DefaultResponseConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.AttemptTimeout = time.Second
	engine := NewResponseEngine(cfg, alerts, cases, notifier, isolator, audit, zerolog.Nop())
	return engine, cases, alerts, audit
}

func criticalAlert(t *testing.T, alerts *AlertStore) Alert {
	t.Helper()
	event := NewEvent("mallory", EventBulkDownload, "test")
	event.Download = &BulkDownloadAttrs{Bytes: 600 << 20, FileCount: 2000}
	return alerts.Create(event, assessment(BandCritical))
}

func TestEvaluateCriticalFiresAllActions(t *testing.T) {
	notifier := &fakeNotifier{}
	isolator := &fakeIsolator{}
	engine, cases, alerts, _ := newTestResponse(notifier, isolator)

	alert := criticalAlert(t, alerts)
	fired := engine.Evaluate(context.Background(), alert)

	want := map[ActionKind]bool{ActionCreateCase: true, ActionNotify: true, ActionIsolateUser: true}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want all three actions", fired)
	}
	for _, a := range fired {
		if !want[a] {
			t.Errorf("unexpected action %v", a)
		}
	}
	if notifier.count() != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.count())
	}
	if len(isolator.users) != 1 || isolator.users[0] != "mallory" {
		t.Errorf("isolated = %v, want [mallory]", isolator.users)
	}
	if len(cases.List()) != 1 {
		t.Errorf("cases = %d, want 1", len(cases.List()))
	}
	got, _ := alerts.Get(alert.ID)
	if got.CaseID == "" {
		t.Error("alert not linked to its case")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	notifier := &fakeNotifier{}
	isolator := &fakeIsolator{}
	engine, cases, alerts, _ := newTestResponse(notifier, isolator)

	alert := criticalAlert(t, alerts)
	first := engine.Evaluate(context.Background(), alert)
	second := engine.Evaluate(context.Background(), alert)

	if len(first) != 3 {
		t.Fatalf("first evaluate fired %v", first)
	}
	if len(second) != 0 {
		t.Fatalf("second evaluate fired %v, want nothing", second)
	}
	if notifier.count() != 1 || len(isolator.users) != 1 || len(cases.List()) != 1 {
		t.Error("re-evaluation must not duplicate actions")
	}
}

func TestEvaluateConcurrentSplitsActions(t *testing.T) {
	notifier := &fakeNotifier{}
	isolator := &fakeIsolator{}
	engine, _, alerts, _ := newTestResponse(notifier, isolator)

	alert := criticalAlert(t, alerts)

	var wg sync.WaitGroup
	total := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			total <- len(engine.Evaluate(context.Background(), alert))
		}()
	}
	wg.Wait()
	close(total)

	sum := 0
	for n := range total {
		sum += n
	}
	if sum != 3 {
		t.Errorf("total fired across racers = %d, want 3", sum)
	}
	if notifier.count() != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.count())
	}
}

func TestEvaluateNonCriticalSkipsIsolation(t *testing.T) {
	notifier := &fakeNotifier{}
	isolator := &fakeIsolator{}
	engine, _, alerts, _ := newTestResponse(notifier, isolator)

	event := NewEvent("bob", EventOffHours, "test")
	event.OffHours = &OffHoursAttrs{LocalHour: 2, Intensity: 0.5}
	alert := alerts.Create(event, assessment(BandMedium))

	fired := engine.Evaluate(context.Background(), alert)
	for _, a := range fired {
		if a == ActionIsolateUser {
			t.Fatal("medium alert must not isolate")
		}
	}
	if len(isolator.users) != 0 {
		t.Errorf("isolated = %v, want none", isolator.users)
	}
}

func TestEvaluateDisabledDoesNothing(t *testing.T) {
	notifier := &fakeNotifier{}
	audit := NewAuditLog(zerolog.Nop())
	alerts := NewAlertStore(zerolog.Nop(), audit)
	cases := NewCaseManager(DefaultCaseConfig(), alerts, audit, zerolog.Nop())
	cfg := DefaultResponseConfig()
	cfg.Enabled = false
	engine := NewResponseEngine(cfg, alerts, cases, notifier, &fakeIsolator{}, audit, zerolog.Nop())

	alert := criticalAlert(t, alerts)
	if fired := engine.Evaluate(context.Background(), alert); fired != nil {
		t.Errorf("disabled engine fired %v", fired)
	}
	if notifier.count() != 0 {
		t.Error("disabled engine must not notify")
	}
}

func TestActuatorRetriesThenFailsPermanently(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("receiver down")}
	engine, _, alerts, audit := newTestResponse(notifier, &fakeIsolator{})

	alert := criticalAlert(t, alerts)
	engine.Evaluate(context.Background(), alert)

	if notifier.count() != DefaultResponseConfig().MaxAttempts {
		t.Errorf("notifier attempts = %d, want %d", notifier.count(), DefaultResponseConfig().MaxAttempts)
	}

	failed := false
	for _, e := range audit.Query(AuditQuery{TargetID: alert.ID}) {
		if e.Action == "response_notify_failed" {
			failed = true
		}
	}
	if !failed {
		t.Error("permanent actuator failure not audited")
	}

	// The failure is terminal: re-evaluation does not blindly re-fire.
	notifier.err = nil
	if fired := engine.Evaluate(context.Background(), alert); len(fired) != 0 {
		t.Errorf("re-evaluation after failure fired %v", fired)
	}
}
