package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload, _ := json.Marshal(BookingPayload{
		BookingID:         "b-1",
		RoomID:            7,
		RequesterID:       "u-9",
		RequesterType:     "STAFF",
		Purpose:           "standup",
		ExpectedAttendees: 12,
		StartTime:         time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:           time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	env := &Envelope{
		ID:            "ev-1",
		Type:          TypeBookingCreated,
		SchemaVersion: SchemaVersion,
		Producer:      "booking-service",
		OccurredAt:    time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC),
		Payload:       payload,
	}

	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != env.ID || got.Type != env.Type || got.SchemaVersion != env.SchemaVersion {
		t.Errorf("envelope mismatch: got %+v", got)
	}

	p, err := BookingPayloadOf(got)
	if err != nil {
		t.Fatalf("BookingPayloadOf: %v", err)
	}
	if p.BookingID != "b-1" || p.RoomID != 7 || p.ExpectedAttendees != 12 {
		t.Errorf("payload mismatch: got %+v", p)
	}
}

func TestDecodeToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{
		"id": "ev-2",
		"type": "BookingCreated",
		"schema_version": 1,
		"producer": "booking-service",
		"occurred_at": "2026-03-01T09:00:00Z",
		"trace_id": "not-in-our-schema",
		"payload": {"booking_id": "b-2", "room_id": 1, "extra_field": 42}
	}`)

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode with unknown fields: %v", err)
	}
	p, err := BookingPayloadOf(env)
	if err != nil {
		t.Fatalf("BookingPayloadOf with unknown fields: %v", err)
	}
	if p.BookingID != "b-2" {
		t.Errorf("booking id = %q, want b-2", p.BookingID)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"malformed json", []byte(`{"id": "ev-3"`)},
		{"missing id", []byte(`{"type": "BookingCreated", "schema_version": 1}`)},
		{"missing type", []byte(`{"id": "ev-4", "schema_version": 1}`)},
		{"future schema version", []byte(`{"id": "ev-5", "type": "BookingCreated", "schema_version": 99}`)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Decode(c.data)
			if err == nil {
				t.Fatal("expected error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestDecodeOlderSchemaVersionAccepted(t *testing.T) {
	raw := []byte(`{"id": "ev-6", "type": "BookingCancelled", "schema_version": 0, "payload": {"booking_id": "b-6"}}`)
	if _, err := Decode(raw); err != nil {
		t.Fatalf("older schema version should decode: %v", err)
	}
}
