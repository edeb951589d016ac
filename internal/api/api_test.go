package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carepulse/carepulse/internal/analytics"
	"github.com/carepulse/carepulse/internal/dispatch"
	"github.com/carepulse/carepulse/internal/messaging"
	"github.com/carepulse/carepulse/internal/models"
	"github.com/carepulse/carepulse/internal/scheduler"
	"github.com/carepulse/carepulse/internal/store"
	"github.com/carepulse/carepulse/internal/template"
	"github.com/carepulse/carepulse/internal/twilioclient"
)

type testEnv struct {
	server *Server
	st     *store.InMemoryStore
	mock   *twilioclient.MockClient
}

func newTestEnv() *testEnv {
	st := store.NewInMemoryStore()
	mock := twilioclient.NewMockClient()
	svc := messaging.NewTwilioService(mock)
	renderer := template.NewRenderer(template.ClinicInfo{Name: "Riverside Clinic"})
	engine := dispatch.NewEngine(st, svc, renderer)
	server := NewServer(st, svc,
		dispatch.NewResolver(st),
		engine,
		scheduler.NewScheduler(st),
		analytics.NewAggregator(st),
	)
	return &testEnv{server: server, st: st, mock: mock}
}

func (e *testEnv) addPatient(t *testing.T, phone string, sms bool) models.Patient {
	t.Helper()
	p := models.Patient{FirstName: "Maria", LastName: "Santos", PhoneNumber: phone, SMSEnabled: sms, VoiceEnabled: true}
	if err := e.st.CreatePatient(&p); err != nil {
		t.Fatalf("failed to create patient: %v", err)
	}
	return p
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return resp
}

func TestSendHandlerInvalidJSON(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, "POST", "/communications/send", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if resp := decodeResponse(t, rr); resp.Status != "error" {
		t.Errorf("status field = %q", resp.Status)
	}
}

func TestSendHandlerValidationFailure(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, "POST", "/communications/send", `{"custom_message":"hi","type":"SMS"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSendHandlerMethodNotAllowed(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, "GET", "/communications/send", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestSendHandlerTemplateNotFound(t *testing.T) {
	env := newTestEnv()
	p := env.addPatient(t, "+15551230001", true)
	body := fmt.Sprintf(`{"patient_ids":[%q],"template_id":"missing","type":"SMS"}`, p.ID)
	rr := env.do(t, "POST", "/communications/send", body)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSendHandlerGroupNotFound(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, "POST", "/communications/send", `{"group_id":"missing","custom_message":"hi","type":"SMS"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSendHandlerEmptyGroupUnprocessable(t *testing.T) {
	env := newTestEnv()
	g := models.PatientGroup{Name: "Empty"}
	if err := env.st.CreateGroup(&g); err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	body := fmt.Sprintf(`{"group_id":%q,"custom_message":"hi","type":"SMS"}`, g.ID)
	rr := env.do(t, "POST", "/communications/send", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
}

func TestSendHandlerImmediateSend(t *testing.T) {
	env := newTestEnv()
	ok := env.addPatient(t, "+15551230001", true)
	optedOut := env.addPatient(t, "+15551230002", false)

	body := fmt.Sprintf(`{"patient_ids":[%q,%q],"custom_message":"Hi {firstName}","type":"SMS"}`, ok.ID, optedOut.ID)
	rr := env.do(t, "POST", "/communications/send", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp.Status != "ok" {
		t.Errorf("status field = %q", resp.Status)
	}
	result := resp.Result.(map[string]interface{})
	if result["total_patients"].(float64) != 2 {
		t.Errorf("total_patients = %v", result["total_patients"])
	}
	if result["success_count"].(float64) != 1 || result["failure_count"].(float64) != 1 {
		t.Errorf("counts = %v/%v", result["success_count"], result["failure_count"])
	}
	results := result["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("results length = %d", len(results))
	}
	if len(env.mock.SentSMS) != 1 || env.mock.SentSMS[0].Body != "Hi Maria" {
		t.Errorf("transport saw %+v", env.mock.SentSMS)
	}
}

func TestSendHandlerTemplateSend(t *testing.T) {
	env := newTestEnv()
	p := env.addPatient(t, "+15551230001", true)
	tpl := models.Template{Name: "Reminder", Type: models.ChannelSMS, Body: "Hello {firstName} from {clinicName}"}
	if err := env.st.CreateTemplate(&tpl); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}

	body := fmt.Sprintf(`{"patient_ids":[%q],"template_id":%q,"type":"SMS"}`, p.ID, tpl.ID)
	rr := env.do(t, "POST", "/communications/send", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if env.mock.SentSMS[0].Body != "Hello Maria from Riverside Clinic" {
		t.Errorf("rendered body = %q", env.mock.SentSMS[0].Body)
	}
}

func TestSendHandlerScheduledCreated(t *testing.T) {
	env := newTestEnv()
	p := env.addPatient(t, "+15551230001", true)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	body := fmt.Sprintf(`{"patient_ids":[%q],"custom_message":"hi","type":"SMS","schedule_for":%q}`, p.ID, future)
	rr := env.do(t, "POST", "/communications/send", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rr.Code, rr.Body.String())
	}
	if len(env.mock.SentSMS) != 0 {
		t.Error("scheduled send dispatched immediately")
	}
	scheduled, _ := env.st.ListScheduledCommunications()
	if len(scheduled) != 1 {
		t.Errorf("scheduled rows = %d, want 1", len(scheduled))
	}
}

func TestSendHandlerPastScheduleRejected(t *testing.T) {
	env := newTestEnv()
	p := env.addPatient(t, "+15551230001", true)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	body := fmt.Sprintf(`{"patient_ids":[%q],"custom_message":"hi","type":"SMS","schedule_for":%q}`, p.ID, past)
	rr := env.do(t, "POST", "/communications/send", body)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	scheduled, _ := env.st.ListScheduledCommunications()
	if len(scheduled) != 0 {
		t.Errorf("rejected schedule created rows: %+v", scheduled)
	}
}

func TestAnalyticsHandlerInvalidDays(t *testing.T) {
	env := newTestEnv()
	for _, q := range []string{"days=0", "days=366", "days=abc"} {
		rr := env.do(t, "GET", "/analytics?"+q, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rr.Code)
		}
	}
}

func TestAnalyticsHandlerDefaults(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, "GET", "/analytics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	if result["window_days"].(float64) != DefaultAnalyticsWindowDays {
		t.Errorf("window_days = %v, want %d", result["window_days"], DefaultAnalyticsWindowDays)
	}
	if result["success_rate"].(float64) != 0 {
		t.Errorf("empty window success_rate = %v, want 0", result["success_rate"])
	}
}

func TestScheduledListAndCancel(t *testing.T) {
	env := newTestEnv()
	p := env.addPatient(t, "+15551230001", true)
	sc := models.ScheduledCommunication{PatientID: p.ID, Type: models.ChannelSMS, Content: "hi", ScheduledFor: time.Now().Add(time.Hour)}
	if err := env.st.CreateScheduledCommunication(&sc); err != nil {
		t.Fatalf("failed to create scheduled communication: %v", err)
	}

	rr := env.do(t, "GET", "/scheduled", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	if result["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", result["count"])
	}

	rr = env.do(t, "GET", "/scheduled/"+sc.ID, "")
	if rr.Code != http.StatusOK {
		t.Errorf("get status = %d", rr.Code)
	}

	rr = env.do(t, "DELETE", "/scheduled/"+sc.ID, "")
	if rr.Code != http.StatusOK {
		t.Errorf("cancel status = %d", rr.Code)
	}

	rr = env.do(t, "DELETE", "/scheduled/"+sc.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", rr.Code)
	}

	scheduled, _ := env.st.ListScheduledCommunications()
	if len(scheduled) != 0 {
		t.Errorf("row not removed: %+v", scheduled)
	}
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv()
	rr := env.do(t, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var health map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health status = %v", health["status"])
	}
}
