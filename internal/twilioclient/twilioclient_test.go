package twilioclient

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550000000")); err != nil {
		t.Errorf("unexpected error with full config: %v", err)
	}
}

func TestFormatMessageForVoice(t *testing.T) {
	got := FormatMessageForVoice("Hi Maria")
	want := `<Response><Say voice="alice">Hi Maria</Say></Response>`
	if got != want {
		t.Errorf("FormatMessageForVoice = %q, want %q", got, want)
	}
}

func TestFormatMessageForVoiceEscapesXML(t *testing.T) {
	got := FormatMessageForVoice(`Dose < 5mg & call if > 3 days`)
	want := `<Response><Say voice="alice">Dose &lt; 5mg &amp; call if &gt; 3 days</Say></Response>`
	if got != want {
		t.Errorf("FormatMessageForVoice = %q", got)
	}
}

func TestMockClientFailFor(t *testing.T) {
	m := NewMockClient()
	m.FailFor("+15550000001", "blocked")

	res, err := m.SendSMS(context.Background(), "+15550000001", "hi")
	if err != nil {
		t.Fatalf("mock should fold failure into result, got error %v", err)
	}
	if res.Success || res.Error != "blocked" {
		t.Errorf("result = %+v", res)
	}

	res, err = m.SendSMS(context.Background(), "+15550000002", "hi")
	if err != nil || !res.Success || res.SID == "" {
		t.Errorf("expected success with SID, got %+v err=%v", res, err)
	}
}
