package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestCaseManager() (*CaseManager, *AlertStore, *AuditLog) {
	audit := NewAuditLog(zerolog.Nop())
	alerts := NewAlertStore(zerolog.Nop(), audit)
	return NewCaseManager(DefaultCaseConfig(), alerts, audit, zerolog.Nop()), alerts, audit
}

func syntheticAlert(id, user string, at time.Time) Alert {
	return Alert{ID: id, UserID: user, CreatedAt: at, Status: AlertNew}
}

func TestCaseMergeWithinWindow(t *testing.T) {
	m, _, _ := newTestCaseManager()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c1, merged := m.OpenOrMerge(syntheticAlert("a-1", "mallory", t0))
	if merged {
		t.Fatal("first alert must open a case")
	}
	c2, merged := m.OpenOrMerge(syntheticAlert("a-2", "mallory", t0.Add(5*time.Minute)))
	if !merged || c2.ID != c1.ID {
		t.Fatalf("five minutes apart should merge: merged=%v case=%s want %s", merged, c2.ID, c1.ID)
	}
	if len(c2.AlertIDs) != 2 {
		t.Errorf("alert count = %d, want 2", len(c2.AlertIDs))
	}
	if !c2.LastAlertAt.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("window did not slide: %v", c2.LastAlertAt)
	}
}

func TestCaseWindowSlides(t *testing.T) {
	m, _, _ := newTestCaseManager()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c1, _ := m.OpenOrMerge(syntheticAlert("a-1", "mallory", t0))
	// 25 minutes after the first, then 25 minutes after the second: each hop
	// is inside the window even though the last is 50 minutes from the start.
	c2, merged := m.OpenOrMerge(syntheticAlert("a-2", "mallory", t0.Add(25*time.Minute)))
	if !merged || c2.ID != c1.ID {
		t.Fatal("second alert should merge")
	}
	c3, merged := m.OpenOrMerge(syntheticAlert("a-3", "mallory", t0.Add(50*time.Minute)))
	if !merged || c3.ID != c1.ID {
		t.Fatal("sliding window should still merge the third alert")
	}

	// 31 minutes of quiet breaks the chain.
	c4, merged := m.OpenOrMerge(syntheticAlert("a-4", "mallory", t0.Add(81*time.Minute)))
	if merged || c4.ID == c1.ID {
		t.Fatal("alert past the window must open a new case")
	}
}

func TestCaseSeparateUsers(t *testing.T) {
	m, _, _ := newTestCaseManager()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c1, _ := m.OpenOrMerge(syntheticAlert("a-1", "mallory", t0))
	c2, merged := m.OpenOrMerge(syntheticAlert("a-2", "trent", t0))
	if merged || c1.ID == c2.ID {
		t.Fatal("different users must get different cases")
	}
}

func TestCaseAssign(t *testing.T) {
	m, _, _ := newTestCaseManager()
	c, _ := m.OpenOrMerge(syntheticAlert("a-1", "mallory", time.Now().UTC()))

	if err := m.Assign(c.ID, "alice", "alice"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, _ := m.Get(c.ID)
	if got.Status != CaseInProgress || got.AssignedAnalyst != "alice" {
		t.Errorf("after assign: %+v", got)
	}

	var vErr *ValidationError
	if err := m.Assign(c.ID, "", "alice"); !errors.As(err, &vErr) {
		t.Errorf("empty analyst = %v, want ValidationError", err)
	}
}

func TestCaseCloseGating(t *testing.T) {
	m, alerts, _ := newTestCaseManager()

	event := NewEvent("mallory", EventOffHours, "test")
	event.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
	alert := alerts.Create(event, assessment(BandHigh))
	c, _ := m.OpenOrMerge(alert)

	var vErr *ValidationError
	if err := m.Close(c.ID, "alice", ""); !errors.As(err, &vErr) {
		t.Fatalf("close without note = %v, want ValidationError", err)
	}

	var conflict *StateConflict
	if err := m.Close(c.ID, "alice", "resolved"); !errors.As(err, &conflict) {
		t.Fatalf("close with open alert = %v, want StateConflict", err)
	}

	// The alert cannot close alone either: its case is open.
	if err := alerts.Close(alert.ID, "alice", "done"); !errors.As(err, &conflict) {
		t.Fatalf("alert close with open case = %v, want StateConflict", err)
	}

	// Joint close resolves both sides.
	if err := m.CloseWithAlerts(c.ID, "alice", "resolved benign"); err != nil {
		t.Fatalf("joint close: %v", err)
	}
	gotCase, _ := m.Get(c.ID)
	if gotCase.Status != CaseClosed || gotCase.ClosedAt == nil || gotCase.ResolutionNote != "resolved benign" {
		t.Errorf("after joint close: %+v", gotCase)
	}
	gotAlert, _ := alerts.Get(alert.ID)
	if gotAlert.Status != AlertClosed {
		t.Errorf("alert status = %v, want CLOSED", gotAlert.Status)
	}

	// Closing again is a no-op.
	if err := m.CloseWithAlerts(c.ID, "alice", "again"); err != nil {
		t.Errorf("double joint close = %v, want nil", err)
	}
}

func TestCaseCloseHookCreditsAssignedAnalyst(t *testing.T) {
	m, alerts, _ := newTestCaseManager()

	var credited []string
	m.SetCloseHook(func(analyst string) { credited = append(credited, analyst) })

	event := NewEvent("mallory", EventOffHours, "test")
	event.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
	alert := alerts.Create(event, assessment(BandMedium))
	c, _ := m.OpenOrMerge(alert)

	if err := m.Assign(c.ID, "alice", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseWithAlerts(c.ID, "bob", "handled"); err != nil {
		t.Fatal(err)
	}
	if len(credited) != 1 || credited[0] != "alice" {
		t.Errorf("credited = %v, want [alice]", credited)
	}
}

func TestCaseClosedUserGetsFreshCase(t *testing.T) {
	m, alerts, _ := newTestCaseManager()

	event := NewEvent("mallory", EventOffHours, "test")
	event.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
	alert := alerts.Create(event, assessment(BandMedium))
	c1, _ := m.OpenOrMerge(alert)
	if err := m.CloseWithAlerts(c1.ID, "alice", "done"); err != nil {
		t.Fatal(err)
	}

	c2, merged := m.OpenOrMerge(syntheticAlert("a-next", "mallory", time.Now().UTC()))
	if merged || c2.ID == c1.ID {
		t.Error("alerts after a close must open a new case")
	}
}

func TestCaseExportCSV(t *testing.T) {
	m, _, _ := newTestCaseManager()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.OpenOrMerge(syntheticAlert("a-1", "mallory", t0))
	m.OpenOrMerge(syntheticAlert("a-2", "trent", t0))

	var buf bytes.Buffer
	if err := m.ExportCSV(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	wantHeader := []string{"case_id", "user_id", "status", "assigned_analyst",
		"opened_at", "closed_at", "alert_count", "resolution_note"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Errorf("header[%d] = %s, want %s", i, records[0][i], col)
		}
	}
	// Oldest first: mallory's case was opened before trent's.
	if records[1][1] != "mallory" || records[2][1] != "trent" {
		t.Errorf("rows out of order: %v / %v", records[1], records[2])
	}
	if records[1][5] != "" {
		t.Errorf("open case should have empty closed_at, got %q", records[1][5])
	}
}
