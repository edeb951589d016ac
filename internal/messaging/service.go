// Package messaging provides the message delivery abstraction for CarePulse.
//
// It wraps the Twilio transport with recipient validation so the dispatch
// engine never hands a malformed phone number to the provider.
package messaging

import (
	"context"
	"regexp"

	"github.com/carepulse/carepulse/internal/models"
)

// phoneNumberRegex matches every character that is not a digit; used to
// canonicalize phone numbers before handing them to the transport.
var phoneNumberRegex = regexp.MustCompile(`[^0-9+]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// phone number. Returns the canonicalized number and an error if validation
	// fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendSMS sends a text message to a recipient.
	SendSMS(ctx context.Context, to string, body string) (models.SendResult, error)

	// MakeVoiceCall places an automated voice call that reads the message.
	MakeVoiceCall(ctx context.Context, to string, body string) (models.SendResult, error)
}
