package job

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 1440

	DefaultIntervalMinutes = 15
	DefaultTimezone        = "UTC"
)

// scheduleLayouts are the accepted spellings of a local schedule time.
// The value is sent as typed; the backend resolves it in the timezone.
var scheduleLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Draft is a job being composed and not yet submitted.
// Recipient fields hold the raw comma separated input.
type Draft struct {
	Type            Type
	To              string
	CC              string
	BCC             string
	Subject         string
	BodyText        string
	BodyHTML        string
	ScheduleTime    string
	Timezone        string
	Recurrence      Recurrence
	IntervalMinutes int
}

// CreateRequest is the body of POST /jobs. Schedule fields are omitted,
// not null, for job types that do not use them.
type CreateRequest struct {
	JobType         Type       `json:"job_type"`
	Recipients      Recipients `json:"recipients"`
	Subject         string     `json:"subject"`
	BodyText        string     `json:"body_text,omitempty"`
	BodyHTML        string     `json:"body_html,omitempty"`
	ScheduleTime    string     `json:"schedule_time,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
	Recurrence      Recurrence `json:"recurrence,omitempty"`
	IntervalMinutes int        `json:"interval_minutes,omitempty"`
}

// Validate turns a draft into a create request. Rules are checked in a
// fixed order and the first failing rule is returned as *ValidationError.
func Validate(d Draft) (*CreateRequest, error) {
	to := ParseAddresses(d.To)
	if len(to) == 0 {
		return nil, newValidationError(CodeMissingRecipient, "at least one recipient is required")
	}

	subject := strings.TrimSpace(d.Subject)
	if subject == "" {
		return nil, newValidationError(CodeMissingSubject, "subject is required")
	}

	req := &CreateRequest{
		JobType: d.Type,
		Recipients: Recipients{
			To:  to,
			CC:  ParseAddresses(d.CC),
			BCC: ParseAddresses(d.BCC),
		},
		Subject:  subject,
		BodyText: d.BodyText,
		BodyHTML: d.BodyHTML,
	}

	switch d.Type {
	case TypeSendNow:
		// nothing to schedule
	case TypeSendAt:
		if err := applySchedule(req, d); err != nil {
			return nil, err
		}
	case TypeInterval:
		if d.IntervalMinutes < MinIntervalMinutes || d.IntervalMinutes > MaxIntervalMinutes {
			return nil, newValidationError(CodeIntervalOutOfRange,
				fmt.Sprintf("interval must be between %d and %d minutes", MinIntervalMinutes, MaxIntervalMinutes))
		}
		req.IntervalMinutes = d.IntervalMinutes
	default:
		return nil, newValidationError(CodeInvalidJobType, fmt.Sprintf("unknown job type %q", d.Type))
	}

	return req, nil
}

func applySchedule(req *CreateRequest, d Draft) error {
	when := strings.TrimSpace(d.ScheduleTime)
	if when == "" {
		return newValidationError(CodeMissingScheduleTime, "schedule time is required")
	}
	if _, ok := ParseScheduleTime(when); !ok {
		return newValidationError(CodeInvalidScheduleTime, fmt.Sprintf("cannot parse schedule time %q", when))
	}

	recurrence := d.Recurrence
	if recurrence == "" {
		recurrence = RecurrenceOnce
	}
	if !recurrence.Valid() {
		return newValidationError(CodeInvalidRecurrence,
			fmt.Sprintf("recurrence must be ONCE, DAILY or WEEKLY, got %q", d.Recurrence))
	}

	tz := strings.TrimSpace(d.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return newValidationError(CodeInvalidTimezone, fmt.Sprintf("unknown timezone %q", tz))
	}

	req.ScheduleTime = when
	req.Timezone = tz
	req.Recurrence = recurrence
	return nil
}

// ParseScheduleTime parses a schedule time in any accepted layout
func ParseScheduleTime(s string) (time.Time, bool) {
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAddresses splits a comma separated field, trims each entry, drops
// empty ones and removes case-insensitive duplicates keeping the first
// spelling and the input order.
func ParseAddresses(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

// ClampInterval forces v into the accepted interval range. Edit
// boundaries use it; Validate rejects instead of clamping.
func ClampInterval(v int) int {
	if v < MinIntervalMinutes {
		return MinIntervalMinutes
	}
	if v > MaxIntervalMinutes {
		return MaxIntervalMinutes
	}
	return v
}

// ConfirmationMessage describes what happens after a successful submit
func ConfirmationMessage(t Type, r Recurrence) string {
	switch t {
	case TypeSendNow:
		return "Your email is being sent..."
	case TypeSendAt:
		if r == "" || r == RecurrenceOnce {
			return "Your email has been scheduled."
		}
		return fmt.Sprintf("Your %s schedule is active.", strings.ToLower(string(r)))
	default:
		return "Your recurring job is active."
	}
}
