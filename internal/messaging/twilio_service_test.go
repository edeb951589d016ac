package messaging

import (
	"context"
	"testing"

	"github.com/carepulse/carepulse/internal/twilioclient"
)

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twilioclient.NewMockClient())

	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "clean e164", in: "+15551234567", want: "+15551234567"},
		{name: "formatted number", in: "+1 (555) 123-4567", want: "+15551234567"},
		{name: "dots and spaces", in: "555.123.4567", want: "5551234567"},
		{name: "interior plus stripped", in: "+1555+1234567", want: "+15551234567"},
		{name: "empty", in: "", wantErr: true},
		{name: "no digits", in: "---", wantErr: true},
		{name: "too short", in: "12345", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ValidateAndCanonicalizeRecipient(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %q", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("canonical(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSendSMSCanonicalizesBeforeTransport(t *testing.T) {
	mock := twilioclient.NewMockClient()
	svc := NewTwilioService(mock)

	res, err := svc.SendSMS(context.Background(), "+1 (555) 123-4567", "hello")
	if err != nil {
		t.Fatalf("SendSMS failed: %v", err)
	}
	if !res.Success {
		t.Errorf("SendSMS result = %+v", res)
	}
	if len(mock.SentSMS) != 1 || mock.SentSMS[0].To != "+15551234567" {
		t.Errorf("transport saw %+v, want canonical recipient", mock.SentSMS)
	}
}

func TestSendSMSInvalidRecipientNeverReachesTransport(t *testing.T) {
	mock := twilioclient.NewMockClient()
	svc := NewTwilioService(mock)

	res, err := svc.SendSMS(context.Background(), "12", "hello")
	if err == nil {
		t.Error("expected validation error")
	}
	if res.Success {
		t.Error("invalid recipient reported success")
	}
	if len(mock.SentSMS) != 0 {
		t.Errorf("invalid recipient reached transport: %+v", mock.SentSMS)
	}
}

func TestMakeVoiceCallUsesVoiceTransport(t *testing.T) {
	mock := twilioclient.NewMockClient()
	svc := NewTwilioService(mock)

	if _, err := svc.MakeVoiceCall(context.Background(), "+15551234567", "hello"); err != nil {
		t.Fatalf("MakeVoiceCall failed: %v", err)
	}
	if len(mock.VoiceCalls) != 1 || len(mock.SentSMS) != 0 {
		t.Errorf("voice=%d sms=%d, want 1/0", len(mock.VoiceCalls), len(mock.SentSMS))
	}
}
