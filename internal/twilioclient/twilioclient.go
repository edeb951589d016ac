// Package twilioclient wraps the Twilio REST API for SMS and voice delivery in CarePulse.
package twilioclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/carepulse/carepulse/internal/models"
)

// Sender is the transport boundary: one SMS send or one voice call placement
// per invocation. Implementations report the outcome in the SendResult; a
// non-nil error is also a failed attempt, never a reason to abort a batch.
type Sender interface {
	SendSMS(ctx context.Context, to string, body string) (models.SendResult, error)
	MakeVoiceCall(ctx context.Context, to string, body string) (models.SendResult, error)
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the originating phone number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client wraps the Twilio REST API.
type Client struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewClient builds a Twilio client from options, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER environment
// variables for anything unset.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:     client,
		fromNumber: cfg.FromNumber,
	}, nil
}

// SendSMS sends a text message via the Twilio Messages API.
func (c *Client) SendSMS(ctx context.Context, to string, body string) (models.SendResult, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendSMS failed", "to", to, "error", err)
		return models.SendResult{Success: false, Error: err.Error()}, fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}

	result := models.SendResult{Success: true}
	if resp.Sid != nil {
		result.SID = *resp.Sid
	}
	if resp.Status != nil && *resp.Status == "delivered" {
		result.Delivered = true
	}
	slog.Debug("Twilio SMS sent", "to", to, "sid", result.SID)
	return result, nil
}

// MakeVoiceCall places an automated call that reads the message via TwiML.
func (c *Client) MakeVoiceCall(ctx context.Context, to string, body string) (models.SendResult, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetTwiml(FormatMessageForVoice(body))

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("Twilio MakeVoiceCall failed", "to", to, "error", err)
		return models.SendResult{Success: false, Error: err.Error()}, fmt.Errorf("failed to place voice call to %s: %w", to, err)
	}

	result := models.SendResult{Success: true}
	if resp.Sid != nil {
		result.SID = *resp.Sid
	}
	slog.Debug("Twilio voice call placed", "to", to, "sid", result.SID)
	return result, nil
}

var twimlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// FormatMessageForVoice wraps plain text in a TwiML <Say> document so the
// call reads the message aloud.
func FormatMessageForVoice(body string) string {
	return `<Response><Say voice="alice">` + twimlEscaper.Replace(body) + `</Say></Response>`
}
