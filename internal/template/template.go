// Package template renders message bodies by substituting {placeholder}
// tokens from ranked data sources.
//
// Sources are applied in precedence order: patient fields, appointment
// fields, clinic defaults, then caller-supplied custom variables. Each pass
// only fills tokens still present as literal {name} text; substituted text is
// frozen and never re-scanned, so rendering is idempotent and a later source
// can never override an earlier one. Matching is case-insensitive on the
// variable name. Tokens with no matching source pass through untouched.
package template

import (
	"regexp"
	"strings"
	"time"

	"github.com/carepulse/carepulse/internal/models"
)

// Appointment display formats: long weekday/month/day/year date and
// 12-hour time with AM/PM.
const (
	appointmentDateLayout = "Monday, January 2, 2006"
	appointmentTimeLayout = "3:04 PM"
)

var tokenRegex = regexp.MustCompile(`\{[a-zA-Z][a-zA-Z0-9_]*\}`)

// ClinicInfo holds the environment-configured clinic defaults, always
// available to every render.
type ClinicInfo struct {
	Name     string
	Provider string
	Phone    string
}

// Data carries the per-render data sources. Nil sources simply leave their
// tokens untouched.
type Data struct {
	Patient     *models.Patient
	Appointment *models.Appointment
	Custom      map[string]string
}

// Renderer substitutes tokens in template bodies.
type Renderer struct {
	clinic ClinicInfo
}

// NewRenderer creates a Renderer with the given clinic defaults.
func NewRenderer(clinic ClinicInfo) *Renderer {
	return &Renderer{clinic: clinic}
}

// segment is either raw text (token == "") or an unresolved token. Once a
// token is filled its segment becomes raw text and is never re-scanned.
type segment struct {
	text  string
	token string // lowercased variable name; empty for resolved text
}

// Render substitutes tokens in body from the ranked data sources and returns
// plain text. There is no nested or recursive expansion.
func (r *Renderer) Render(body string, data Data) string {
	segments := tokenize(body)

	passes := []map[string]string{
		patientVars(data.Patient),
		appointmentVars(data.Appointment),
		clinicVars(r.clinic),
		customVars(data.Custom),
	}
	for _, vars := range passes {
		if len(vars) == 0 {
			continue
		}
		for i := range segments {
			if segments[i].token == "" {
				continue
			}
			if val, ok := vars[segments[i].token]; ok {
				segments[i] = segment{text: val}
			}
		}
	}

	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.text)
	}
	return b.String()
}

// tokenize splits body into literal text and token segments. Token segments
// keep their original {Name} text so unmatched tokens pass through verbatim.
func tokenize(body string) []segment {
	var segments []segment
	last := 0
	for _, loc := range tokenRegex.FindAllStringIndex(body, -1) {
		if loc[0] > last {
			segments = append(segments, segment{text: body[last:loc[0]]})
		}
		raw := body[loc[0]:loc[1]]
		name := strings.ToLower(raw[1 : len(raw)-1])
		segments = append(segments, segment{text: raw, token: name})
		last = loc[1]
	}
	if last < len(body) {
		segments = append(segments, segment{text: body[last:]})
	}
	return segments
}

func patientVars(p *models.Patient) map[string]string {
	if p == nil {
		return nil
	}
	return map[string]string{
		"firstname":   p.FirstName,
		"lastname":    p.LastName,
		"fullname":    p.FullName(),
		"phonenumber": p.PhoneNumber,
		"email":       p.Email, // empty string when absent, never "null"
	}
}

func appointmentVars(a *models.Appointment) map[string]string {
	if a == nil {
		return nil
	}
	date := formatAppointmentDate(a.StartTime)
	clock := formatAppointmentTime(a.StartTime)
	return map[string]string{
		"appointmenttitle":       a.Title,
		"appointmentdescription": a.Description,
		"appointmentdate":        date,
		"appointmenttime":        clock,
		"appointmentdatetime":    date + " at " + clock,
	}
}

func clinicVars(c ClinicInfo) map[string]string {
	return map[string]string{
		"clinicname":   c.Name,
		"providername": c.Provider,
		"clinicphone":  c.Phone,
	}
}

func customVars(custom map[string]string) map[string]string {
	if len(custom) == 0 {
		return nil
	}
	vars := make(map[string]string, len(custom))
	for k, v := range custom {
		vars[strings.ToLower(k)] = v
	}
	return vars
}

func formatAppointmentDate(t time.Time) string {
	return t.Format(appointmentDateLayout)
}

func formatAppointmentTime(t time.Time) string {
	return t.Format(appointmentTimeLayout)
}
