package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/twilioclient"
)

// MinPhoneNumberDigits is the minimum digit count accepted for a recipient.
const MinPhoneNumberDigits = 6

// TwilioService implements Service on top of the Twilio transport.
// The sender can be the real client or a MockClient in tests.
type TwilioService struct {
	client twilioclient.Sender
}

// NewTwilioService creates a Service backed by the given Twilio sender.
func NewTwilioService(client twilioclient.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient strips formatting characters and validates
// the result has at least MinPhoneNumberDigits digits. A leading "+" is kept.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	// A "+" is only meaningful as the leading character.
	if len(canonical) > 1 {
		canonical = canonical[:1] + strings.ReplaceAll(canonical[1:], "+", "")
	}
	digits := strings.TrimPrefix(canonical, "+")

	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < MinPhoneNumberDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneNumberDigits)
	}

	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendSMS validates the recipient and sends a text message.
func (s *TwilioService) SendSMS(ctx context.Context, to string, body string) (models.SendResult, error) {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendSMS validation error", "error", err, "to", to)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}
	return s.client.SendSMS(ctx, canonicalTo, body)
}

// MakeVoiceCall validates the recipient and places a voice call.
func (s *TwilioService) MakeVoiceCall(ctx context.Context, to string, body string) (models.SendResult, error) {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService MakeVoiceCall validation error", "error", err, "to", to)
		return models.SendResult{Success: false, Error: err.Error()}, err
	}
	return s.client.MakeVoiceCall(ctx, canonicalTo, body)
}
