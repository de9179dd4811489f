package core

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestGamifier() *Gamifier {
	return NewGamifier(NewAuditLog(zerolog.Nop()), zerolog.Nop())
}

func TestAwardIsMonotonic(t *testing.T) {
	g := newTestGamifier()

	g.Award("alice", 10, "test")
	g.Award("alice", 5, "test")
	g.Award("alice", -100, "test") // ignored
	g.Award("", 10, "test")        // ignored

	p, ok := g.Profile("alice")
	if !ok || p.Points != 15 {
		t.Errorf("points = %d, want 15", p.Points)
	}
	if _, ok := g.Profile(""); ok {
		t.Error("empty analyst must not get a profile")
	}
}

func TestCaseClosedBadges(t *testing.T) {
	g := newTestGamifier()

	g.RecordCaseClosed("alice")
	p, _ := g.Profile("alice")
	if p.CasesClosed != 1 || p.Points != PointsPerCaseClosed {
		t.Errorf("after first close: %+v", p)
	}
	if !hasBadge(p, BadgeFirstCase) {
		t.Error("first close should grant the First Responder badge")
	}

	for i := 0; i < 9; i++ {
		g.RecordCaseClosed("alice")
	}
	p, _ = g.Profile("alice")
	if !hasBadge(p, BadgeCaseCloser) {
		t.Error("tenth close should grant the Case Closer badge")
	}
	// Badges are granted once.
	count := 0
	for _, b := range p.Badges {
		if b == BadgeFirstCase {
			count++
		}
	}
	if count != 1 {
		t.Errorf("First Responder granted %d times", count)
	}
}

func hasBadge(p AnalystProfile, badge string) bool {
	for _, b := range p.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

func drillQuestions(bands ...RiskBand) []DrillQuestion {
	qs := make([]DrillQuestion, len(bands))
	for i, b := range bands {
		event := NewEvent("sandbox", EventOffHours, "drill")
		event.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
		qs[i] = DrillQuestion{Event: event, Assessment: assessment(b)}
	}
	return qs
}

func TestDrillPerfectRound(t *testing.T) {
	g := newTestGamifier()
	bands := []RiskBand{BandLow, BandMedium, BandHigh, BandCritical, BandMedium}

	id, qs, err := g.StartDrill("alice", drillQuestions(bands...))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(qs) != 5 {
		t.Fatalf("questions = %d, want 5", len(qs))
	}

	result, err := g.SubmitDrill(id, bands)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Correct != 5 || !result.Perfect {
		t.Errorf("result = %+v, want perfect", result)
	}
	if result.PointsAwarded != 5*PointsPerCorrectTriage {
		t.Errorf("points = %d, want %d", result.PointsAwarded, 5*PointsPerCorrectTriage)
	}

	p, _ := g.Profile("alice")
	if !hasBadge(p, BadgeSandboxMaster) {
		t.Error("perfect round should grant Sandbox Master")
	}
	if p.Points != 5*PointsPerCorrectTriage || p.Drills != 1 {
		t.Errorf("profile = %+v", p)
	}
}

func TestDrillPartialRound(t *testing.T) {
	g := newTestGamifier()
	truth := []RiskBand{BandLow, BandMedium, BandHigh, BandCritical, BandMedium}
	answers := []RiskBand{BandLow, BandMedium, BandLow, BandLow, BandMedium} // 3 correct

	id, _, err := g.StartDrill("bob", drillQuestions(truth...))
	if err != nil {
		t.Fatal(err)
	}
	result, err := g.SubmitDrill(id, answers)
	if err != nil {
		t.Fatal(err)
	}
	if result.Correct != 3 || result.Perfect {
		t.Errorf("result = %+v, want 3 correct, not perfect", result)
	}
	p, _ := g.Profile("bob")
	if hasBadge(p, BadgeSandboxMaster) {
		t.Error("imperfect round must not grant Sandbox Master")
	}
}

func TestDrillSubmitOnce(t *testing.T) {
	g := newTestGamifier()
	bands := []RiskBand{BandLow, BandLow, BandLow, BandLow, BandLow}

	id, _, err := g.StartDrill("alice", drillQuestions(bands...))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.SubmitDrill(id, bands); err != nil {
		t.Fatal(err)
	}

	var conflict *StateConflict
	if _, err := g.SubmitDrill(id, bands); !errors.As(err, &conflict) {
		t.Errorf("resubmit = %v, want StateConflict", err)
	}
}

func TestDrillValidation(t *testing.T) {
	g := newTestGamifier()
	var vErr *ValidationError

	if _, _, err := g.StartDrill("", drillQuestions(BandLow, BandLow, BandLow, BandLow, BandLow)); !errors.As(err, &vErr) {
		t.Errorf("empty analyst = %v, want ValidationError", err)
	}
	if _, _, err := g.StartDrill("alice", drillQuestions(BandLow, BandLow)); !errors.As(err, &vErr) {
		t.Errorf("short question set = %v, want ValidationError", err)
	}

	id, _, err := g.StartDrill("alice", drillQuestions(BandLow, BandLow, BandLow, BandLow, BandLow))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.SubmitDrill(id, []RiskBand{BandLow}); !errors.As(err, &vErr) {
		t.Errorf("wrong answer count = %v, want ValidationError", err)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	g := newTestGamifier()
	g.Award("carol", 30, "test")
	g.Award("alice", 50, "test")
	g.Award("bob", 30, "test")

	board := g.Leaderboard()
	if len(board) != 3 {
		t.Fatalf("len = %d, want 3", len(board))
	}
	want := []string{"alice", "bob", "carol"} // points desc, ties by name
	for i, name := range want {
		if board[i].Analyst != name {
			t.Errorf("board[%d] = %s, want %s", i, board[i].Analyst, name)
		}
	}
}
