package core

import "fmt"

// ---------------------------------------------------------------------------
// errors.go — typed errors for the decision pipeline. Callers branch on the
// type with errors.As; the messages are for humans and the audit trail.
// ---------------------------------------------------------------------------

// ValidationError rejects malformed input at a boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// ConfigurationError marks an out-of-domain setting. Raised at load time;
// the engine never starts with one of these.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Setting, e.Reason)
}

// StateConflict rejects a transition the entity's current state does not
// allow, or an operation on an entity that does not exist.
type StateConflict struct {
	Entity string
	ID     string
	Reason string
}

func (e *StateConflict) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

// ActuatorFailure reports a response action that exhausted its retries.
type ActuatorFailure struct {
	Actuator  string
	Attempts  int
	Permanent bool
	Err       error
}

func (e *ActuatorFailure) Error() string {
	state := "transient"
	if e.Permanent {
		state = "permanent"
	}
	return fmt.Sprintf("%s failed after %d attempts (%s): %v", e.Actuator, e.Attempts, state, e.Err)
}

func (e *ActuatorFailure) Unwrap() error { return e.Err }
