package core

import (
	"errors"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	valid := func() *Event {
		e := NewEvent("u-1", EventMessage, "test")
		e.Message = &MessageAttrs{Text: "hello"}
		return e
	}

	tests := []struct {
		name   string
		mutate func(e *Event)
		wantOK bool
	}{
		{"valid message", func(e *Event) {}, true},
		{"missing user", func(e *Event) { e.UserID = "  " }, false},
		{"missing timestamp", func(e *Event) { e.Timestamp = time.Time{} }, false},
		{"empty message text", func(e *Event) { e.Message.Text = "   " }, false},
		{"missing declared block", func(e *Event) {
			e.Type = EventBulkDownload
			e.Download = nil
		}, false},
		{"extra blocks allowed", func(e *Event) {
			e.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
			e.Media = &RemovableMediaAttrs{BytesCopied: 1024}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(e)
			err := e.Validate()
			if (err == nil) != tt.wantOK {
				t.Errorf("Validate() = %v, wantOK %v", err, tt.wantOK)
			}
			if err != nil {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("error type = %T, want ValidationError", err)
				}
			}
		})
	}

	var vErr *ValidationError
	var nilEvent *Event
	if err := nilEvent.Validate(); !errors.As(err, &vErr) {
		t.Errorf("nil event = %v, want ValidationError", err)
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := NewEvent("u-1", EventBulkDownload, "test")
	e.Download = &BulkDownloadAttrs{Bytes: 42 << 20, FileCount: 7}
	e.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 0.9}

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != EventBulkDownload || got.UserID != "u-1" {
		t.Errorf("got %+v", got)
	}
	if got.Download == nil || got.Download.Bytes != 42<<20 {
		t.Errorf("download block lost: %+v", got.Download)
	}
	if got.OffHours == nil || got.OffHours.LocalHour != 3 {
		t.Errorf("off-hours block lost: %+v", got.OffHours)
	}
	if got.Message != nil {
		t.Error("absent block must stay nil")
	}
}

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in     string
		want   EventType
		wantOK bool
	}{
		{"MESSAGE", EventMessage, true},
		{"bulk_download", EventBulkDownload, true},
		{" off_hours ", EventOffHours, true},
		{"nope", EventOffHours, false},
	}
	for _, tt := range tests {
		got, ok := ParseEventType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseEventType(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
