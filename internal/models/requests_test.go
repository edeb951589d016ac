package models

import (
	"errors"
	"strings"
	"testing"
)

func validRequest() BulkSendRequest {
	return BulkSendRequest{
		PatientIDs:    []string{"p1"},
		CustomMessage: "hello",
		Type:          ChannelSMS,
	}
}

func TestBulkSendRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*BulkSendRequest)
		wantErr bool
	}{
		{name: "valid patient list", mutate: func(r *BulkSendRequest) {}},
		{name: "valid group", mutate: func(r *BulkSendRequest) {
			r.PatientIDs = nil
			r.GroupID = "g1"
		}},
		{name: "valid template", mutate: func(r *BulkSendRequest) {
			r.CustomMessage = ""
			r.TemplateID = "t1"
		}},
		{name: "no recipients", mutate: func(r *BulkSendRequest) {
			r.PatientIDs = nil
		}, wantErr: true},
		{name: "both recipient selectors", mutate: func(r *BulkSendRequest) {
			r.GroupID = "g1"
		}, wantErr: true},
		{name: "no body source", mutate: func(r *BulkSendRequest) {
			r.CustomMessage = ""
		}, wantErr: true},
		{name: "both body sources", mutate: func(r *BulkSendRequest) {
			r.TemplateID = "t1"
		}, wantErr: true},
		{name: "missing type", mutate: func(r *BulkSendRequest) {
			r.Type = ""
		}, wantErr: true},
		{name: "unknown type", mutate: func(r *BulkSendRequest) {
			r.Type = "FAX"
		}, wantErr: true},
		{name: "voice type", mutate: func(r *BulkSendRequest) {
			r.Type = ChannelVoice
		}},
		{name: "message too long", mutate: func(r *BulkSendRequest) {
			r.CustomMessage = strings.Repeat("a", MaxMessageBodyLength+1)
		}, wantErr: true},
		{name: "invalid recurrence unit", mutate: func(r *BulkSendRequest) {
			r.Recurrence = &RecurrenceRule{Unit: "year", Interval: 1}
		}, wantErr: true},
		{name: "zero recurrence interval", mutate: func(r *BulkSendRequest) {
			r.Recurrence = &RecurrenceRule{Unit: "day"}
		}, wantErr: true},
		{name: "valid recurrence", mutate: func(r *BulkSendRequest) {
			r.Recurrence = &RecurrenceRule{Unit: "week", Interval: 2}
		}},
		{name: "valid days of week", mutate: func(r *BulkSendRequest) {
			r.Recurrence = &RecurrenceRule{Unit: "week", Interval: 1, DaysOfWeek: []string{"monday", "thursday"}}
		}},
		{name: "unknown day of week", mutate: func(r *BulkSendRequest) {
			r.Recurrence = &RecurrenceRule{Unit: "week", Interval: 1, DaysOfWeek: []string{"funday"}}
		}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPatientChannelEnabled(t *testing.T) {
	p := Patient{SMSEnabled: true, VoiceEnabled: false}
	if !p.ChannelEnabled(ChannelSMS) {
		t.Error("SMS should be enabled")
	}
	if p.ChannelEnabled(ChannelVoice) {
		t.Error("voice should be disabled")
	}
	if p.ChannelEnabled("FAX") {
		t.Error("unknown channel should never be enabled")
	}
}

func TestPatientFullName(t *testing.T) {
	p := Patient{FirstName: "Maria", LastName: "Santos"}
	if got := p.FullName(); got != "Maria Santos" {
		t.Errorf("FullName = %q", got)
	}
}

func TestIsValidChannelType(t *testing.T) {
	if !IsValidChannelType(ChannelSMS) || !IsValidChannelType(ChannelVoice) {
		t.Error("SMS and VOICE are valid channels")
	}
	if IsValidChannelType("EMAIL") {
		t.Error("EMAIL is not a valid channel")
	}
}
