package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a user-activity event.
type EventType int

const (
	EventOffHours EventType = iota
	EventRemovableMedia
	EventProcessAnomaly
	EventBulkDownload
	EventMessage
)

func (t EventType) String() string {
	switch t {
	case EventOffHours:
		return "OFF_HOURS"
	case EventRemovableMedia:
		return "REMOVABLE_MEDIA"
	case EventProcessAnomaly:
		return "PROCESS_ANOMALY"
	case EventBulkDownload:
		return "BULK_DOWNLOAD"
	case EventMessage:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *EventType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := ParseEventType(str)
	if !ok {
		return &ValidationError{Field: "type", Reason: "unknown event type " + str}
	}
	*t = parsed
	return nil
}

// ParseEventType converts a string to an EventType. Case-insensitive.
func ParseEventType(s string) (EventType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF_HOURS":
		return EventOffHours, true
	case "REMOVABLE_MEDIA":
		return EventRemovableMedia, true
	case "PROCESS_ANOMALY":
		return EventProcessAnomaly, true
	case "BULK_DOWNLOAD":
		return EventBulkDownload, true
	case "MESSAGE":
		return EventMessage, true
	default:
		return EventOffHours, false
	}
}

// Per-variant attribute blocks. An event carries the block matching its Type,
// and may additionally carry other blocks when anomalies co-occur (a bulk
// download over a USB drive at 3am is one event with three blocks). The risk
// scorer derives its binary flags from block presence.

// OffHoursAttrs describes activity outside the user's working window.
type OffHoursAttrs struct {
	LocalHour int     `json:"local_hour"`
	Intensity float64 `json:"intensity"` // 0..1, share of session outside hours
}

// RemovableMediaAttrs describes removable-media usage.
type RemovableMediaAttrs struct {
	DeviceName  string `json:"device_name,omitempty"`
	BytesCopied int64  `json:"bytes_copied"`
}

// ProcessAnomalyAttrs describes execution of unexpected processes.
type ProcessAnomalyAttrs struct {
	ProcessName string `json:"process_name"`
	Count       int    `json:"count"`
}

// BulkDownloadAttrs describes a burst of file downloads.
type BulkDownloadAttrs struct {
	Bytes     int64 `json:"bytes"`
	FileCount int   `json:"file_count"`
}

// MessageAttrs carries free text subject to sentiment analysis.
type MessageAttrs struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Event is one discrete user-activity record entering the pipeline.
// Immutable once created; everything downstream treats it as read-only.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source,omitempty"`

	OffHours *OffHoursAttrs       `json:"off_hours,omitempty"`
	Media    *RemovableMediaAttrs `json:"removable_media,omitempty"`
	Process  *ProcessAnomalyAttrs `json:"process_anomaly,omitempty"`
	Download *BulkDownloadAttrs   `json:"bulk_download,omitempty"`
	Message  *MessageAttrs        `json:"message,omitempty"`
}

// NewEvent creates an Event with a generated ID and UTC timestamp. The caller
// attaches attribute blocks before handing it to the pipeline.
func NewEvent(userID string, eventType EventType, source string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Type:      eventType,
		Source:    source,
	}
}

// Validate rejects malformed events at the ingress boundary. A valid event has
// a user, a timestamp, and the attribute block its declared type requires.
func (e *Event) Validate() error {
	if e == nil {
		return &ValidationError{Reason: "nil event"}
	}
	if strings.TrimSpace(e.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	switch e.Type {
	case EventOffHours:
		if e.OffHours == nil {
			return &ValidationError{Field: "off_hours", Reason: "block required for OFF_HOURS event"}
		}
	case EventRemovableMedia:
		if e.Media == nil {
			return &ValidationError{Field: "removable_media", Reason: "block required for REMOVABLE_MEDIA event"}
		}
	case EventProcessAnomaly:
		if e.Process == nil {
			return &ValidationError{Field: "process_anomaly", Reason: "block required for PROCESS_ANOMALY event"}
		}
	case EventBulkDownload:
		if e.Download == nil {
			return &ValidationError{Field: "bulk_download", Reason: "block required for BULK_DOWNLOAD event"}
		}
	case EventMessage:
		if e.Message == nil || strings.TrimSpace(e.Message.Text) == "" {
			return &ValidationError{Field: "message", Reason: "non-empty text required for MESSAGE event"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "unknown event type"}
	}
	return nil
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an Event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
