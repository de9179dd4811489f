package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlertStatus tracks the lifecycle of an alert.
type AlertStatus int

const (
	AlertNew AlertStatus = iota
	AlertAcknowledged
	AlertEscalated
	AlertClosed
)

func (s AlertStatus) String() string {
	switch s {
	case AlertNew:
		return "NEW"
	case AlertAcknowledged:
		return "ACKNOWLEDGED"
	case AlertEscalated:
		return "ESCALATED"
	case AlertClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s AlertStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AlertStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := ParseAlertStatus(str)
	if !ok {
		parsed = AlertNew
	}
	*s = parsed
	return nil
}

// ParseAlertStatus converts a string to an AlertStatus. Case-insensitive.
func ParseAlertStatus(s string) (AlertStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NEW":
		return AlertNew, true
	case "ACKNOWLEDGED", "ACK":
		return AlertAcknowledged, true
	case "ESCALATED":
		return AlertEscalated, true
	case "CLOSED":
		return AlertClosed, true
	default:
		return AlertNew, false
	}
}

// Alert ties exactly one event and one risk assessment to an analyst
// workflow. Status mutations happen only inside AlertStore, under the
// alert's own lock.
type Alert struct {
	ID              string         `json:"id"`
	EventID         string         `json:"event_id"`
	UserID          string         `json:"user_id"`
	Assessment      RiskAssessment `json:"assessment"`
	Status          AlertStatus    `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	AssignedAnalyst string         `json:"assigned_analyst,omitempty"`
	CaseID          string         `json:"case_id,omitempty"`
	CloseReason     string         `json:"close_reason,omitempty"`
}

// AlertHandler is notified with a snapshot of each newly created alert.
type AlertHandler func(alert Alert)

// AlertStore owns all alerts and serializes mutations per alert. A simulator
// tick and a concurrent analyst click on the same alert cannot interleave.
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
	locks  map[string]*sync.Mutex
	order  []string // creation order, for listing

	logger   zerolog.Logger
	audit    *AuditLog
	caseOpen func(caseID string) bool // set by the engine once cases are wired
	handlers []AlertHandler
}

// NewAlertStore creates an empty store.
func NewAlertStore(logger zerolog.Logger, audit *AuditLog) *AlertStore {
	return &AlertStore{
		alerts: make(map[string]*Alert),
		locks:  make(map[string]*sync.Mutex),
		logger: logger.With().Str("component", "alert_store").Logger(),
		audit:  audit,
	}
}

// SetCaseGuard wires the "is this case still open" check used to block
// closing a case-linked alert.
func (st *AlertStore) SetCaseGuard(fn func(caseID string) bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.caseOpen = fn
}

// AddHandler registers a callback for newly created alerts.
func (st *AlertStore) AddHandler(h AlertHandler) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.handlers = append(st.handlers, h)
}

// Create opens a new alert for an assessment. Critical-band alerts are
// escalated immediately by the system actor.
func (st *AlertStore) Create(event *Event, assessment RiskAssessment) Alert {
	alert := &Alert{
		ID:         uuid.New().String(),
		EventID:    event.ID,
		UserID:     event.UserID,
		Assessment: assessment,
		Status:     AlertNew,
		CreatedAt:  time.Now().UTC(),
	}

	st.mu.Lock()
	st.alerts[alert.ID] = alert
	st.locks[alert.ID] = &sync.Mutex{}
	st.order = append(st.order, alert.ID)
	handlers := st.handlers
	st.mu.Unlock()

	st.audit.Append(ActorSystem, "alert_created", "alert", alert.ID,
		fmt.Sprintf("band=%s score=%.3f event=%s user=%s",
			assessment.Band, assessment.Score, event.ID, event.UserID))

	if assessment.Band == BandCritical {
		// Automatic escalation; analyst acknowledgement is not waited for.
		_ = st.Escalate(alert.ID, ActorSystem)
	}

	snap := st.snapshot(alert.ID)
	for _, h := range handlers {
		h(snap)
	}

	st.logger.Info().
		Str("alert_id", alert.ID).
		Str("user_id", alert.UserID).
		Str("band", assessment.Band.String()).
		Float64("score", assessment.Score).
		Msg("alert created")

	return snap
}

// Get returns a snapshot of an alert.
func (st *AlertStore) Get(id string) (Alert, bool) {
	st.mu.RLock()
	a, ok := st.alerts[id]
	if !ok {
		st.mu.RUnlock()
		return Alert{}, false
	}
	lock := st.locks[id]
	st.mu.RUnlock()

	lock.Lock()
	snap := *a
	lock.Unlock()
	return snap, true
}

// List returns snapshots of all alerts, newest first.
func (st *AlertStore) List() []Alert {
	st.mu.RLock()
	ids := make([]string, len(st.order))
	copy(ids, st.order)
	st.mu.RUnlock()

	out := make([]Alert, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if a, ok := st.Get(ids[i]); ok {
			out = append(out, a)
		}
	}
	return out
}

// Acknowledge moves New → Acknowledged. Acknowledging an already
// acknowledged alert is a no-op that is still audited.
func (st *AlertStore) Acknowledge(id, actor string) error {
	return st.transition(id, actor, "alert_acknowledged", func(a *Alert) (bool, error) {
		switch a.Status {
		case AlertAcknowledged:
			return false, nil
		case AlertNew:
			a.Status = AlertAcknowledged
			a.AssignedAnalyst = actor
			return true, nil
		default:
			return false, &StateConflict{Entity: "alert", ID: id,
				Reason: "cannot acknowledge from " + a.Status.String()}
		}
	})
}

// Escalate moves New/Acknowledged → Escalated. Analysts escalate manually;
// the system escalates Critical-band alerts on creation.
func (st *AlertStore) Escalate(id, actor string) error {
	return st.transition(id, actor, "alert_escalated", func(a *Alert) (bool, error) {
		switch a.Status {
		case AlertEscalated:
			return false, nil
		case AlertNew, AlertAcknowledged:
			a.Status = AlertEscalated
			return true, nil
		default:
			return false, &StateConflict{Entity: "alert", ID: id,
				Reason: "cannot escalate from " + a.Status.String()}
		}
	})
}

// Assign sets the assigned analyst without changing status.
func (st *AlertStore) Assign(id, analyst, actor string) error {
	return st.transition(id, actor, "alert_assigned", func(a *Alert) (bool, error) {
		if a.Status == AlertClosed {
			return false, &StateConflict{Entity: "alert", ID: id, Reason: "alert is closed"}
		}
		if a.AssignedAnalyst == analyst {
			return false, nil
		}
		a.AssignedAnalyst = analyst
		return true, nil
	})
}

// Close moves any non-Closed state → Closed. Closing twice is a no-op beyond
// the audit entry. An alert linked to an open case cannot be closed on its
// own — close the case first, or use CaseManager.CloseWithAlerts.
//
// The case guard runs before the alert lock is taken: the guard acquires the
// case lock, and CaseManager.CloseWithAlerts takes case then alert locks, so
// holding the alert lock here would invert that order. The mutate re-checks
// CaseID under the alert's lock: a merge can link this alert to a case
// between the guard check and the transition, and a just-linked case is
// always open.
func (st *AlertStore) Close(id, actor, reason string) error {
	snap, ok := st.Get(id)
	if !ok {
		return &StateConflict{Entity: "alert", ID: id, Reason: "not found"}
	}
	st.mu.RLock()
	guard := st.caseOpen
	st.mu.RUnlock()
	if snap.Status != AlertClosed && snap.CaseID != "" && guard != nil && guard(snap.CaseID) {
		err := &StateConflict{Entity: "alert", ID: id,
			Reason: "linked case " + snap.CaseID + " is still open"}
		st.audit.Append(actor, "alert_closed_rejected", "alert", id, err.Error())
		return err
	}
	return st.transition(id, actor, "alert_closed", func(a *Alert) (bool, error) {
		if a.Status == AlertClosed {
			return false, nil
		}
		if a.CaseID != snap.CaseID {
			return false, &StateConflict{Entity: "alert", ID: id,
				Reason: "linked case " + a.CaseID + " is still open"}
		}
		a.Status = AlertClosed
		a.CloseReason = reason
		return true, nil
	})
}

// transition runs a mutation under the alert's lock and audits the outcome.
// mutate returns (changed, err); a (false, nil) result is the idempotent
// no-op path, observable in the audit trail.
func (st *AlertStore) transition(id, actor, action string, mutate func(a *Alert) (bool, error)) error {
	st.mu.RLock()
	a, ok := st.alerts[id]
	lock := st.locks[id]
	st.mu.RUnlock()
	if !ok {
		return &StateConflict{Entity: "alert", ID: id, Reason: "not found"}
	}

	lock.Lock()
	changed, err := mutate(a)
	status := a.Status
	lock.Unlock()

	switch {
	case err != nil:
		st.audit.Append(actor, action+"_rejected", "alert", id, err.Error())
		return err
	case changed:
		st.audit.Append(actor, action, "alert", id, "status="+status.String())
	default:
		st.audit.Append(actor, action, "alert", id, "no-op, already "+status.String())
	}
	return nil
}

// linkCase records the owning case on an alert. Called by CaseManager.
func (st *AlertStore) linkCase(alertID, caseID string) {
	st.mu.RLock()
	a, ok := st.alerts[alertID]
	lock := st.locks[alertID]
	st.mu.RUnlock()
	if !ok {
		return
	}
	lock.Lock()
	a.CaseID = caseID
	lock.Unlock()
}

// lockFor exposes the per-alert mutex to in-package collaborators that need
// check-and-set atomicity with alert state (response idempotency, joint
// case close).
func (st *AlertStore) lockFor(id string) *sync.Mutex {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.locks[id]
}

// get returns the live alert pointer for in-package collaborators holding
// the alert's lock.
func (st *AlertStore) get(id string) *Alert {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.alerts[id]
}

// snapshot returns a copy under the alert's lock.
func (st *AlertStore) snapshot(id string) Alert {
	a, _ := st.Get(id)
	return a
}

// CountByStatus returns alert counts keyed by status name.
func (st *AlertStore) CountByStatus() map[string]int {
	counts := make(map[string]int)
	for _, a := range st.List() {
		counts[a.Status.String()]++
	}
	return counts
}
