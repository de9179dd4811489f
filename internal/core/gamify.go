package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// gamify.go — analyst scoring: points for closed cases and sandbox triage
// drills, badges for milestones, and the leaderboard. Points only ever go up;
// there is no way to take them away.
// ---------------------------------------------------------------------------

const (
	PointsPerCorrectTriage = 10
	PointsPerCaseClosed    = 25

	BadgeSandboxMaster = "Sandbox Master"
	BadgeFirstCase     = "First Responder"
	BadgeCaseCloser    = "Case Closer" // ten closed cases

	drillSize = 5
)

// AnalystProfile is one analyst's standing.
type AnalystProfile struct {
	Analyst     string    `json:"analyst"`
	Points      int       `json:"points"`
	CasesClosed int       `json:"cases_closed"`
	Drills      int       `json:"drills"`
	Badges      []string  `json:"badges,omitempty"`
	LastActive  time.Time `json:"last_active"`
}

// DrillQuestion is one sandbox event the analyst must band correctly. The
// expected band comes from scoring the event with the live config, so the
// drill teaches the scorer the analysts actually work with.
type DrillQuestion struct {
	Event      *Event         `json:"event"`
	Assessment RiskAssessment `json:"-"` // hidden from the analyst
}

// DrillResult is the outcome of one submitted drill round.
type DrillResult struct {
	DrillID       string   `json:"drill_id"`
	Analyst       string   `json:"analyst"`
	Correct       int      `json:"correct"`
	Total         int      `json:"total"`
	PointsAwarded int      `json:"points_awarded"`
	Expected      []string `json:"expected_bands"`
	Perfect       bool     `json:"perfect"`
}

type pendingDrill struct {
	analyst   string
	questions []DrillQuestion
	startedAt time.Time
}

// Gamifier tracks analyst points, badges, and sandbox drills.
type Gamifier struct {
	mu       sync.Mutex
	profiles map[string]*AnalystProfile
	drills   map[string]*pendingDrill
	audit    *AuditLog
	logger   zerolog.Logger
}

// NewGamifier creates an empty gamifier.
func NewGamifier(audit *AuditLog, logger zerolog.Logger) *Gamifier {
	return &Gamifier{
		profiles: make(map[string]*AnalystProfile),
		drills:   make(map[string]*pendingDrill),
		audit:    audit,
		logger:   logger.With().Str("component", "gamifier").Logger(),
	}
}

// profileLocked returns (creating if needed) the live profile. Caller holds mu.
func (g *Gamifier) profileLocked(analyst string) *AnalystProfile {
	p, ok := g.profiles[analyst]
	if !ok {
		p = &AnalystProfile{Analyst: analyst}
		g.profiles[analyst] = p
	}
	return p
}

// Award grants points to an analyst. Negative amounts are ignored; the
// ledger is strictly additive.
func (g *Gamifier) Award(analyst string, points int, reason string) {
	if analyst == "" || points <= 0 {
		return
	}
	g.mu.Lock()
	p := g.profileLocked(analyst)
	p.Points += points
	p.LastActive = time.Now().UTC()
	total := p.Points
	g.mu.Unlock()

	g.audit.Append(ActorSystem, "points_awarded", "analyst", analyst,
		fmt.Sprintf("points=%d total=%d reason=%s", points, total, reason))
}

// RecordCaseClosed credits an analyst for closing a case and checks the
// milestone badges. Wired as the CaseManager close hook.
func (g *Gamifier) RecordCaseClosed(analyst string) {
	if analyst == "" {
		return
	}
	g.mu.Lock()
	p := g.profileLocked(analyst)
	p.CasesClosed++
	closed := p.CasesClosed
	g.mu.Unlock()

	g.Award(analyst, PointsPerCaseClosed, "case_closed")
	if closed == 1 {
		g.grantBadge(analyst, BadgeFirstCase)
	}
	if closed == 10 {
		g.grantBadge(analyst, BadgeCaseCloser)
	}
}

// grantBadge adds a badge once; re-earning is a no-op.
func (g *Gamifier) grantBadge(analyst, badge string) {
	g.mu.Lock()
	p := g.profileLocked(analyst)
	for _, b := range p.Badges {
		if b == badge {
			g.mu.Unlock()
			return
		}
	}
	p.Badges = append(p.Badges, badge)
	g.mu.Unlock()

	g.audit.Append(ActorSystem, "badge_granted", "analyst", analyst, badge)
	g.logger.Info().Str("analyst", analyst).Str("badge", badge).Msg("badge granted")
}

// Profile returns a snapshot of one analyst's standing.
func (g *Gamifier) Profile(analyst string) (AnalystProfile, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[analyst]
	if !ok {
		return AnalystProfile{}, false
	}
	return copyProfile(p), true
}

// Leaderboard returns all profiles, highest points first, ties by name.
func (g *Gamifier) Leaderboard() []AnalystProfile {
	g.mu.Lock()
	out := make([]AnalystProfile, 0, len(g.profiles))
	for _, p := range g.profiles {
		out = append(out, copyProfile(p))
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Analyst < out[j].Analyst
	})
	return out
}

func copyProfile(p *AnalystProfile) AnalystProfile {
	snap := *p
	snap.Badges = append([]string(nil), p.Badges...)
	return snap
}

// StartDrill opens a sandbox round for an analyst and returns the drill id
// plus the questions to present. questions should come from the simulator;
// only the first drillSize are used.
func (g *Gamifier) StartDrill(analyst string, questions []DrillQuestion) (string, []DrillQuestion, error) {
	if analyst == "" {
		return "", nil, &ValidationError{Field: "analyst", Reason: "is required"}
	}
	if len(questions) < drillSize {
		return "", nil, &ValidationError{Field: "questions",
			Reason: fmt.Sprintf("need at least %d questions", drillSize)}
	}
	questions = questions[:drillSize]

	id := uuid.New().String()
	g.mu.Lock()
	g.drills[id] = &pendingDrill{
		analyst:   analyst,
		questions: questions,
		startedAt: time.Now().UTC(),
	}
	g.mu.Unlock()

	g.audit.Append(analyst, "drill_started", "drill", id, fmt.Sprintf("questions=%d", drillSize))
	return id, questions, nil
}

// SubmitDrill grades a round: ten points per correctly banded event, and the
// Sandbox Master badge for a perfect score. A drill can be submitted once.
func (g *Gamifier) SubmitDrill(drillID string, answers []RiskBand) (DrillResult, error) {
	g.mu.Lock()
	d, ok := g.drills[drillID]
	if ok {
		delete(g.drills, drillID)
	}
	g.mu.Unlock()
	if !ok {
		return DrillResult{}, &StateConflict{Entity: "drill", ID: drillID, Reason: "not found or already submitted"}
	}
	if len(answers) != len(d.questions) {
		return DrillResult{}, &ValidationError{Field: "answers",
			Reason: fmt.Sprintf("expected %d answers, got %d", len(d.questions), len(answers))}
	}

	result := DrillResult{
		DrillID: drillID,
		Analyst: d.analyst,
		Total:   len(d.questions),
	}
	for i, q := range d.questions {
		result.Expected = append(result.Expected, q.Assessment.Band.String())
		if answers[i] == q.Assessment.Band {
			result.Correct++
		}
	}
	result.PointsAwarded = result.Correct * PointsPerCorrectTriage
	result.Perfect = result.Correct == result.Total

	g.mu.Lock()
	p := g.profileLocked(d.analyst)
	p.Drills++
	g.mu.Unlock()

	g.Award(d.analyst, result.PointsAwarded, "drill")
	if result.Perfect {
		g.grantBadge(d.analyst, BadgeSandboxMaster)
	}
	g.audit.Append(d.analyst, "drill_submitted", "drill", drillID,
		fmt.Sprintf("correct=%d/%d points=%d", result.Correct, result.Total, result.PointsAwarded))
	return result, nil
}
