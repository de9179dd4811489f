package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// response.go — automated response: for each qualifying alert, open or merge
// a case and send a notification; for Critical alerts, also isolate the user.
// Every action fires at most once per alert no matter how many times the
// alert is evaluated, and every attempt and outcome is audited.
// ---------------------------------------------------------------------------

// ActionKind identifies one automated response action.
type ActionKind int

const (
	ActionNotify ActionKind = iota
	ActionCreateCase
	ActionIsolateUser
)

func (k ActionKind) String() string {
	switch k {
	case ActionNotify:
		return "NOTIFY"
	case ActionCreateCase:
		return "CREATE_CASE"
	case ActionIsolateUser:
		return "ISOLATE_USER"
	default:
		return "UNKNOWN"
	}
}

func (k ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ParseActionKind converts a string to an ActionKind. Case-insensitive.
func ParseActionKind(s string) (ActionKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NOTIFY":
		return ActionNotify, true
	case "CREATE_CASE":
		return ActionCreateCase, true
	case "ISOLATE_USER":
		return ActionIsolateUser, true
	default:
		return ActionNotify, false
	}
}

// ResponseConfig holds the tunables of the response engine.
type ResponseConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxAttempts    int           `yaml:"max_attempts"`    // per actuator call
	AttemptTimeout time.Duration `yaml:"attempt_timeout"` // per attempt
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// DefaultResponseConfig returns the response defaults.
func DefaultResponseConfig() ResponseConfig {
	return ResponseConfig{
		Enabled:        true,
		MaxAttempts:    3,
		AttemptTimeout: 5 * time.Second,
		RetryDelay:     500 * time.Millisecond,
	}
}

// Validate fails fast on out-of-domain response settings.
func (c *ResponseConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return &ConfigurationError{Setting: "response.max_attempts", Reason: "must be at least 1"}
	}
	if c.AttemptTimeout <= 0 {
		return &ConfigurationError{Setting: "response.attempt_timeout", Reason: "must be positive"}
	}
	if c.RetryDelay < 0 {
		return &ConfigurationError{Setting: "response.retry_delay", Reason: "must be non-negative"}
	}
	return nil
}

// ResponseEngine decides and executes automated actions for alerts.
type ResponseEngine struct {
	cfg      ResponseConfig
	alerts   *AlertStore
	cases    *CaseManager
	notifier Notifier
	isolator Isolator
	audit    *AuditLog
	logger   zerolog.Logger

	mu    sync.Mutex
	fired map[string]map[ActionKind]bool // alert id → actions already fired
}

// NewResponseEngine wires the response engine.
func NewResponseEngine(cfg ResponseConfig, alerts *AlertStore, cases *CaseManager,
	notifier Notifier, isolator Isolator, audit *AuditLog, logger zerolog.Logger) *ResponseEngine {
	return &ResponseEngine{
		cfg:      cfg,
		alerts:   alerts,
		cases:    cases,
		notifier: notifier,
		isolator: isolator,
		audit:    audit,
		logger:   logger.With().Str("component", "response_engine").Logger(),
		fired:    make(map[string]map[ActionKind]bool),
	}
}

// Evaluate runs the response rules against an alert and returns the actions
// newly fired by this call. Re-evaluating the same alert fires nothing: the
// per-alert fired set is claimed atomically, so two concurrent evaluations
// split the actions rather than duplicate them.
func (e *ResponseEngine) Evaluate(ctx context.Context, alert Alert) []ActionKind {
	if !e.cfg.Enabled {
		return nil
	}

	desired := []ActionKind{ActionCreateCase, ActionNotify}
	if alert.Assessment.Band == BandCritical {
		desired = append(desired, ActionIsolateUser)
	}

	claimed := e.claim(alert.ID, desired)
	if len(claimed) == 0 {
		return nil
	}

	for _, action := range claimed {
		e.execute(ctx, alert, action)
	}
	return claimed
}

// claim marks the not-yet-fired subset of desired as fired and returns it.
func (e *ResponseEngine) claim(alertID string, desired []ActionKind) []ActionKind {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.fired[alertID]
	if set == nil {
		set = make(map[ActionKind]bool)
		e.fired[alertID] = set
	}
	var claimed []ActionKind
	for _, a := range desired {
		if !set[a] {
			set[a] = true
			claimed = append(claimed, a)
		}
	}
	return claimed
}

// Fired returns a snapshot of the actions already fired for an alert.
func (e *ResponseEngine) Fired(alertID string) []ActionKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ActionKind, 0, len(e.fired[alertID]))
	for a := range e.fired[alertID] {
		out = append(out, a)
	}
	return out
}

func (e *ResponseEngine) execute(ctx context.Context, alert Alert, action ActionKind) {
	switch action {
	case ActionCreateCase:
		c, merged := e.cases.OpenOrMerge(alert)
		verb := "opened"
		if merged {
			verb = "merged into"
		}
		e.audit.Append(ActorSystem, "response_create_case", "alert", alert.ID,
			fmt.Sprintf("case %s %s", verb, c.ID))

	case ActionNotify:
		n := alertNotification(alert)
		err := e.withRetry(ctx, "notifier", func(attemptCtx context.Context) error {
			return e.notifier.Notify(attemptCtx, n)
		})
		e.auditActuator(alert, action, err)

	case ActionIsolateUser:
		reason := fmt.Sprintf("critical risk score %.3f on alert %s", alert.Assessment.Score, alert.ID)
		err := e.withRetry(ctx, "isolator", func(attemptCtx context.Context) error {
			return e.isolator.Isolate(attemptCtx, alert.UserID, reason)
		})
		e.auditActuator(alert, action, err)
	}
}

// auditActuator records the terminal outcome of an actuator-backed action.
// A permanently failed action stays in the fired set: the decision was made
// and recorded, and blind re-fires are worse than a visible failure.
func (e *ResponseEngine) auditActuator(alert Alert, action ActionKind, err error) {
	if err == nil {
		e.audit.Append(ActorSystem, "response_"+strings.ToLower(action.String()), "alert", alert.ID,
			"user="+alert.UserID)
		return
	}
	e.audit.Append(ActorSystem, "response_"+strings.ToLower(action.String())+"_failed", "alert", alert.ID,
		err.Error())
	e.logger.Error().Err(err).
		Str("alert_id", alert.ID).
		Str("action", action.String()).
		Msg("response action failed permanently")
}

// withRetry calls fn up to MaxAttempts times, each under its own timeout,
// and wraps the final failure in an ActuatorFailure.
func (e *ResponseEngine) withRetry(ctx context.Context, actuator string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		e.logger.Warn().Err(lastErr).
			Str("actuator", actuator).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).
			Msg("actuator attempt failed")
		if attempt < e.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return &ActuatorFailure{Actuator: actuator, Attempts: attempt, Permanent: true, Err: ctx.Err()}
			case <-time.After(e.cfg.RetryDelay):
			}
		}
	}
	return &ActuatorFailure{Actuator: actuator, Attempts: e.cfg.MaxAttempts, Permanent: true, Err: lastErr}
}

// Stats summarizes fired actions across all alerts.
func (e *ResponseEngine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	byAction := make(map[string]int)
	for _, set := range e.fired {
		for a := range set {
			byAction[a.String()]++
		}
	}
	return map[string]interface{}{
		"enabled":        e.cfg.Enabled,
		"alerts_handled": len(e.fired),
		"by_action":      byAction,
	}
}
