package template

import (
	"testing"
	"time"

	"github.com/carepulse/carepulse/internal/models"
)

func testPatient() *models.Patient {
	return &models.Patient{
		ID:          "p1",
		FirstName:   "Maria",
		LastName:    "Santos",
		PhoneNumber: "+15551234567",
		Email:       "maria@example.com",
	}
}

func testAppointment() *models.Appointment {
	start, _ := time.Parse(time.RFC3339, "2025-06-23T14:30:00Z")
	return &models.Appointment{
		ID:          "a1",
		PatientID:   "p1",
		Title:       "Annual Checkup",
		Description: "Routine physical",
		StartTime:   start.UTC(),
	}
}

func TestRenderPatientAndAppointmentTokens(t *testing.T) {
	r := NewRenderer(ClinicInfo{Name: "Riverside Clinic", Provider: "Dr. Lee", Phone: "+15550000000"})

	got := r.Render("Hi {firstName}, your {appointmentTitle} is at {appointmentTime}.", Data{
		Patient:     testPatient(),
		Appointment: testAppointment(),
	})
	want := "Hi Maria, your Annual Checkup is at 2:30 PM."
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderDateFormats(t *testing.T) {
	r := NewRenderer(ClinicInfo{})
	data := Data{Appointment: testAppointment()}

	got := r.Render("{appointmentDate} / {appointmentDateTime}", data)
	want := "Monday, June 23, 2025 / Monday, June 23, 2025 at 2:30 PM"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderCaseInsensitiveTokens(t *testing.T) {
	r := NewRenderer(ClinicInfo{Name: "Riverside Clinic"})

	got := r.Render("{FIRSTNAME} {FirstName} {clinicname} {ClinicName}", Data{Patient: testPatient()})
	want := "Maria Maria Riverside Clinic Riverside Clinic"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderUnknownTokenPassesThrough(t *testing.T) {
	r := NewRenderer(ClinicInfo{})

	got := r.Render("Hello {firstName}, code {nonexistent}.", Data{Patient: testPatient()})
	want := "Hello Maria, code {nonexistent}."
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderPrecedencePatientWinsOverCustom(t *testing.T) {
	r := NewRenderer(ClinicInfo{})

	got := r.Render("{firstName}", Data{
		Patient: testPatient(),
		Custom:  map[string]string{"firstName": "Override"},
	})
	if got != "Maria" {
		t.Errorf("patient field should win over custom variable, got %q", got)
	}
}

func TestRenderSubstitutedTextNotRescanned(t *testing.T) {
	r := NewRenderer(ClinicInfo{Name: "Should Not Appear"})
	p := testPatient()
	p.FirstName = "{clinicName}"

	got := r.Render("{firstName}", Data{Patient: p})
	if got != "{clinicName}" {
		t.Errorf("substituted text must not be re-scanned, got %q", got)
	}
}

func TestRenderIdempotent(t *testing.T) {
	r := NewRenderer(ClinicInfo{Name: "Riverside Clinic"})
	data := Data{Patient: testPatient(), Appointment: testAppointment()}
	body := "Hi {firstName}, see you {appointmentDate} at {clinicName}. {unknown}"

	once := r.Render(body, data)
	twice := r.Render(once, data)
	if once != twice {
		t.Errorf("rendering is not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestRenderNilSourcesLeaveTokens(t *testing.T) {
	r := NewRenderer(ClinicInfo{})

	got := r.Render("{firstName} {appointmentDate}", Data{})
	want := "{firstName} {appointmentDate}"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderCustomVariables(t *testing.T) {
	r := NewRenderer(ClinicInfo{})

	got := r.Render("Your copay is {copayAmount}.", Data{
		Custom: map[string]string{"CopayAmount": "$25"},
	})
	if got != "Your copay is $25." {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderEmptyEmailSubstitutesEmpty(t *testing.T) {
	r := NewRenderer(ClinicInfo{})
	p := testPatient()
	p.Email = ""

	got := r.Render("[{email}]", Data{Patient: p})
	if got != "[]" {
		t.Errorf("missing email should render as empty string, got %q", got)
	}
}
