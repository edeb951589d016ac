package twilioclient

import (
	"context"
	"fmt"

	"github.com/carepulse/carepulse/internal/models"
)

// SentMessage records one mock transport invocation.
type SentMessage struct {
	To   string
	Body string
}

// MockClient is a Sender for tests. FailNumbers lists recipients whose sends
// report a provider failure; DeliverAll makes successful sends report
// synchronous delivery confirmation.
type MockClient struct {
	SentSMS     []SentMessage
	VoiceCalls  []SentMessage
	FailNumbers map[string]string // phone number -> error text
	DeliverAll  bool
	sidCounter  int
}

// NewMockClient creates an empty mock transport.
func NewMockClient() *MockClient {
	return &MockClient{FailNumbers: make(map[string]string)}
}

// FailFor makes sends to the given number report the given error.
func (m *MockClient) FailFor(number, errText string) {
	m.FailNumbers[number] = errText
}

func (m *MockClient) send(to, body string, log *[]SentMessage) (models.SendResult, error) {
	*log = append(*log, SentMessage{To: to, Body: body})
	if errText, ok := m.FailNumbers[to]; ok {
		return models.SendResult{Success: false, Error: errText}, nil
	}
	m.sidCounter++
	return models.SendResult{
		Success:   true,
		SID:       fmt.Sprintf("SM%08d", m.sidCounter),
		Delivered: m.DeliverAll,
	}, nil
}

func (m *MockClient) SendSMS(ctx context.Context, to string, body string) (models.SendResult, error) {
	return m.send(to, body, &m.SentSMS)
}

func (m *MockClient) MakeVoiceCall(ctx context.Context, to string, body string) (models.SendResult, error) {
	return m.send(to, body, &m.VoiceCalls)
}
