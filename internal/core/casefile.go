package core

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// casefile.go — case management: grouping alerts for the same user into one
// investigation, analyst assignment, and close gating. A case cannot close
// while any of its alerts is open, and an alert cannot close alone while its
// case is open; CloseWithAlerts resolves both sides in one step.
// ---------------------------------------------------------------------------

// CaseStatus tracks the lifecycle of a case.
type CaseStatus int

const (
	CaseOpen CaseStatus = iota
	CaseInProgress
	CaseClosed
)

func (s CaseStatus) String() string {
	switch s {
	case CaseOpen:
		return "OPEN"
	case CaseInProgress:
		return "IN_PROGRESS"
	case CaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s CaseStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *CaseStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := ParseCaseStatus(str)
	if !ok {
		parsed = CaseOpen
	}
	*s = parsed
	return nil
}

// ParseCaseStatus converts a string to a CaseStatus. Case-insensitive.
func ParseCaseStatus(s string) (CaseStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPEN":
		return CaseOpen, true
	case "IN_PROGRESS", "INPROGRESS":
		return CaseInProgress, true
	case "CLOSED":
		return CaseClosed, true
	default:
		return CaseOpen, false
	}
}

// Case is one investigation grouping correlated alerts for a single user.
type Case struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          CaseStatus `json:"status"`
	AssignedAnalyst string     `json:"assigned_analyst,omitempty"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	AlertIDs        []string   `json:"alert_ids"`
	LastAlertAt     time.Time  `json:"last_alert_at"`
	ResolutionNote  string     `json:"resolution_note,omitempty"`
}

// CaseConfig holds the tunables of case correlation.
type CaseConfig struct {
	// CorrelationWindow is how close a new alert must land to the case's most
	// recent alert to merge into it. The window slides with each merge.
	CorrelationWindow time.Duration `yaml:"correlation_window"`
}

// DefaultCaseConfig returns the case-management defaults.
func DefaultCaseConfig() CaseConfig {
	return CaseConfig{CorrelationWindow: 30 * time.Minute}
}

// Validate fails fast on out-of-domain case settings.
func (c *CaseConfig) Validate() error {
	if c.CorrelationWindow <= 0 {
		return &ConfigurationError{Setting: "cases.correlation_window", Reason: "must be positive"}
	}
	return nil
}

// CaseManager owns all cases and the per-user correlation index.
type CaseManager struct {
	mu     sync.RWMutex
	cases  map[string]*Case
	locks  map[string]*sync.Mutex
	byUser map[string]string // user id → active (non-closed) case id
	order  []string

	window  time.Duration
	alerts  *AlertStore
	audit   *AuditLog
	logger  zerolog.Logger
	onClose func(analyst string) // gamification hook, set during wiring
}

// NewCaseManager creates an empty manager bound to an alert store.
func NewCaseManager(cfg CaseConfig, alerts *AlertStore, audit *AuditLog, logger zerolog.Logger) *CaseManager {
	m := &CaseManager{
		cases:  make(map[string]*Case),
		locks:  make(map[string]*sync.Mutex),
		byUser: make(map[string]string),
		window: cfg.CorrelationWindow,
		alerts: alerts,
		audit:  audit,
		logger: logger.With().Str("component", "case_manager").Logger(),
	}
	alerts.SetCaseGuard(m.IsOpen)
	return m
}

// SetCloseHook registers a callback invoked with the closing analyst whenever
// a case is closed.
func (m *CaseManager) SetCloseHook(fn func(analyst string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// OpenOrMerge routes an alert into its user's active case when it falls
// within the correlation window of that case's most recent alert, otherwise
// opens a new case. Returns the case snapshot and whether a merge happened.
func (m *CaseManager) OpenOrMerge(alert Alert) (Case, bool) {
	m.mu.Lock()

	if caseID, ok := m.byUser[alert.UserID]; ok {
		c := m.cases[caseID]
		lock := m.locks[caseID]
		lock.Lock()
		if c.Status != CaseClosed && !alert.CreatedAt.After(c.LastAlertAt.Add(m.window)) {
			c.AlertIDs = append(c.AlertIDs, alert.ID)
			if alert.CreatedAt.After(c.LastAlertAt) {
				c.LastAlertAt = alert.CreatedAt
			}
			snap := m.copyLocked(c)
			lock.Unlock()
			m.mu.Unlock()

			m.alerts.linkCase(alert.ID, snap.ID)
			m.audit.Append(ActorSystem, "case_alert_merged", "case", snap.ID,
				fmt.Sprintf("alert=%s user=%s alerts=%d", alert.ID, alert.UserID, len(snap.AlertIDs)))
			return snap, true
		}
		lock.Unlock()
	}

	c := &Case{
		ID:          uuid.New().String(),
		UserID:      alert.UserID,
		Status:      CaseOpen,
		OpenedAt:    time.Now().UTC(),
		AlertIDs:    []string{alert.ID},
		LastAlertAt: alert.CreatedAt,
	}
	m.cases[c.ID] = c
	m.locks[c.ID] = &sync.Mutex{}
	m.byUser[alert.UserID] = c.ID
	m.order = append(m.order, c.ID)
	snap := m.copyLocked(c)
	m.mu.Unlock()

	m.alerts.linkCase(alert.ID, c.ID)
	m.audit.Append(ActorSystem, "case_opened", "case", c.ID,
		fmt.Sprintf("alert=%s user=%s", alert.ID, alert.UserID))
	m.logger.Info().
		Str("case_id", c.ID).
		Str("user_id", alert.UserID).
		Str("alert_id", alert.ID).
		Msg("case opened")
	return snap, false
}

// Get returns a snapshot of a case.
func (m *CaseManager) Get(id string) (Case, bool) {
	m.mu.RLock()
	c, ok := m.cases[id]
	if !ok {
		m.mu.RUnlock()
		return Case{}, false
	}
	lock := m.locks[id]
	m.mu.RUnlock()

	lock.Lock()
	snap := m.copyLocked(c)
	lock.Unlock()
	return snap, true
}

// List returns snapshots of all cases, newest first.
func (m *CaseManager) List() []Case {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	out := make([]Case, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if c, ok := m.Get(ids[i]); ok {
			out = append(out, c)
		}
	}
	return out
}

// IsOpen reports whether a case exists and is not closed. Used as the alert
// store's close guard.
func (m *CaseManager) IsOpen(id string) bool {
	c, ok := m.Get(id)
	return ok && c.Status != CaseClosed
}

// Assign moves Open → InProgress and sets the analyst. Reassigning an
// in-progress case to a new analyst is allowed; a closed case is not.
func (m *CaseManager) Assign(id, analyst, actor string) error {
	if strings.TrimSpace(analyst) == "" {
		return &ValidationError{Field: "analyst", Reason: "is required"}
	}
	return m.transition(id, actor, "case_assigned", func(c *Case) (bool, error) {
		if c.Status == CaseClosed {
			return false, &StateConflict{Entity: "case", ID: id, Reason: "case is closed"}
		}
		if c.AssignedAnalyst == analyst && c.Status == CaseInProgress {
			return false, nil
		}
		c.AssignedAnalyst = analyst
		c.Status = CaseInProgress
		return true, nil
	})
}

// Close finishes a case. Requires a non-empty resolution note, and every
// linked alert must already be closed. Closing twice is a no-op beyond the
// audit entry.
func (m *CaseManager) Close(id, actor, note string) error {
	if strings.TrimSpace(note) == "" {
		return &ValidationError{Field: "resolution_note", Reason: "is required to close a case"}
	}
	return m.transition(id, actor, "case_closed", func(c *Case) (bool, error) {
		if c.Status == CaseClosed {
			return false, nil
		}
		for _, alertID := range c.AlertIDs {
			if a, ok := m.alerts.Get(alertID); ok && a.Status != AlertClosed {
				return false, &StateConflict{Entity: "case", ID: id,
					Reason: "alert " + alertID + " is still open"}
			}
		}
		m.closeLocked(c, note)
		return true, nil
	})
}

// CloseWithAlerts closes the case and every linked alert in one step, for
// the common "resolved, shut it all down" flow. Alert locks are taken in
// sorted order while the case lock is held.
func (m *CaseManager) CloseWithAlerts(id, actor, note string) error {
	if strings.TrimSpace(note) == "" {
		return &ValidationError{Field: "resolution_note", Reason: "is required to close a case"}
	}

	m.mu.RLock()
	c, ok := m.cases[id]
	lock := m.locks[id]
	m.mu.RUnlock()
	if !ok {
		return &StateConflict{Entity: "case", ID: id, Reason: "not found"}
	}

	lock.Lock()
	if c.Status == CaseClosed {
		lock.Unlock()
		m.audit.Append(actor, "case_closed", "case", id, "no-op, already CLOSED")
		return nil
	}

	alertIDs := make([]string, len(c.AlertIDs))
	copy(alertIDs, c.AlertIDs)
	sort.Strings(alertIDs)

	var closedAlerts []string
	for _, alertID := range alertIDs {
		alock := m.alerts.lockFor(alertID)
		if alock == nil {
			continue
		}
		alock.Lock()
		a := m.alerts.get(alertID)
		if a != nil && a.Status != AlertClosed {
			a.Status = AlertClosed
			a.CloseReason = note
			closedAlerts = append(closedAlerts, alertID)
		}
		alock.Unlock()
	}

	m.closeLocked(c, note)
	analyst := m.closingAnalyst(c, actor)
	userID := c.UserID
	lock.Unlock()
	m.removeActive(userID, id)

	for _, alertID := range closedAlerts {
		m.audit.Append(actor, "alert_closed", "alert", alertID, "closed with case "+id)
	}
	m.audit.Append(actor, "case_closed", "case", id,
		fmt.Sprintf("alerts_closed=%d note=%q", len(closedAlerts), note))
	m.afterClose(analyst, id)
	return nil
}

// closeLocked applies the terminal state. Caller holds the case lock and must
// call removeActive afterwards, once the lock is released.
func (m *CaseManager) closeLocked(c *Case, note string) {
	now := time.Now().UTC()
	c.Status = CaseClosed
	c.ResolutionNote = note
	c.ClosedAt = &now
}

// removeActive drops the user's active-case index entry after a close. Taken
// without any case lock held; OpenOrMerge acquires mu before case locks, so
// the order must never reverse.
func (m *CaseManager) removeActive(userID, caseID string) {
	m.mu.Lock()
	if m.byUser[userID] == caseID {
		delete(m.byUser, userID)
	}
	m.mu.Unlock()
}

// closingAnalyst resolves who gets credit for the close.
func (m *CaseManager) closingAnalyst(c *Case, actor string) string {
	if c.AssignedAnalyst != "" {
		return c.AssignedAnalyst
	}
	return actor
}

// afterClose fires the gamification hook and logs.
func (m *CaseManager) afterClose(analyst, caseID string) {
	m.mu.RLock()
	hook := m.onClose
	m.mu.RUnlock()
	if hook != nil && analyst != "" && analyst != ActorSystem {
		hook(analyst)
	}
	m.logger.Info().Str("case_id", caseID).Str("analyst", analyst).Msg("case closed")
}

// transition runs a mutation under the case's lock and audits the outcome.
func (m *CaseManager) transition(id, actor, action string, mutate func(c *Case) (bool, error)) error {
	m.mu.RLock()
	c, ok := m.cases[id]
	lock := m.locks[id]
	m.mu.RUnlock()
	if !ok {
		return &StateConflict{Entity: "case", ID: id, Reason: "not found"}
	}

	lock.Lock()
	changed, err := mutate(c)
	status := c.Status
	analyst := m.closingAnalyst(c, actor)
	userID := c.UserID
	lock.Unlock()

	switch {
	case err != nil:
		m.audit.Append(actor, action+"_rejected", "case", id, err.Error())
		return err
	case changed:
		m.audit.Append(actor, action, "case", id, "status="+status.String())
		if action == "case_closed" && status == CaseClosed {
			m.removeActive(userID, id)
			m.afterClose(analyst, id)
		}
	default:
		m.audit.Append(actor, action, "case", id, "no-op, already "+status.String())
	}
	return nil
}

// copyLocked snapshots a case whose lock is held.
func (m *CaseManager) copyLocked(c *Case) Case {
	snap := *c
	snap.AlertIDs = make([]string, len(c.AlertIDs))
	copy(snap.AlertIDs, c.AlertIDs)
	return snap
}

// Stats summarizes the case book.
func (m *CaseManager) Stats() map[string]interface{} {
	byStatus := make(map[string]int)
	total := 0
	for _, c := range m.List() {
		byStatus[c.Status.String()]++
		total++
	}
	return map[string]interface{}{
		"total":     total,
		"by_status": byStatus,
	}
}

// caseExportColumns is the fixed CSV header, in order.
var caseExportColumns = []string{
	"case_id", "user_id", "status", "assigned_analyst",
	"opened_at", "closed_at", "alert_count", "resolution_note",
}

// ExportCSV writes all cases as CSV, oldest first, with a fixed column set.
func (m *CaseManager) ExportCSV(w io.Writer) error {
	cases := m.List()
	// List is newest first; exports read better chronologically.
	for i, j := 0, len(cases)-1; i < j; i, j = i+1, j-1 {
		cases[i], cases[j] = cases[j], cases[i]
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(caseExportColumns); err != nil {
		return err
	}
	for _, c := range cases {
		closedAt := ""
		if c.ClosedAt != nil {
			closedAt = c.ClosedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			c.ID,
			c.UserID,
			c.Status.String(),
			c.AssignedAnalyst,
			c.OpenedAt.UTC().Format(time.RFC3339),
			closedAt,
			strconv.Itoa(len(c.AlertIDs)),
			c.ResolutionNote,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
