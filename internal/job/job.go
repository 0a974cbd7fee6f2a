package job

// Type is the job kind chosen in the compose wizard
type Type string

const (
	TypeSendNow  Type = "SEND_NOW"
	TypeSendAt   Type = "SEND_AT"
	TypeInterval Type = "INTERVAL"
)

// Valid reports whether t is one of the known job types
func (t Type) Valid() bool {
	switch t {
	case TypeSendNow, TypeSendAt, TypeInterval:
		return true
	}
	return false
}

// Recurrence controls how a SEND_AT job repeats. The backend computes
// the next occurrence; the client only records the choice.
type Recurrence string

const (
	RecurrenceOnce   Recurrence = "ONCE"
	RecurrenceDaily  Recurrence = "DAILY"
	RecurrenceWeekly Recurrence = "WEEKLY"
)

// Valid reports whether r is one of the known recurrences
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly:
		return true
	}
	return false
}

// Status is the server-owned lifecycle state of a job
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are accepted
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Recipients holds the address lists of a job
type Recipients struct {
	To  []string `json:"to"`
	CC  []string `json:"cc,omitempty"`
	BCC []string `json:"bcc,omitempty"`
}

// Job is the client-side copy of a job record returned by the backend
type Job struct {
	ID               string     `json:"job_id"`
	Type             Type       `json:"job_type"`
	Subject          string     `json:"subject"`
	Recipients       Recipients `json:"recipients"`
	Status           Status     `json:"status"`
	ScheduleTimeUTC  *Timestamp `json:"schedule_time_utc,omitempty"`
	ScheduleTimezone *string    `json:"schedule_timezone,omitempty"`
	Recurrence       *string    `json:"recurrence,omitempty"`
	IntervalMinutes  *int       `json:"interval_minutes,omitempty"`
	TotalRuns        int        `json:"total_runs"`
	SuccessfulRuns   int        `json:"successful_runs"`
	FailedRuns       int        `json:"failed_runs"`
	LastRunAt        *Timestamp `json:"last_run_at,omitempty"`
	CreatedAt        Timestamp  `json:"created_at"`
	UpdatedAt        Timestamp  `json:"updated_at"`
}

// InFlightRuns returns runs that are neither successful nor failed yet
func (j *Job) InFlightRuns() int {
	n := j.TotalRuns - j.SuccessfulRuns - j.FailedRuns
	if n < 0 {
		return 0
	}
	return n
}

// RunStatus is the state of a single execution attempt
type RunStatus string

const (
	RunQueued     RunStatus = "QUEUED"
	RunProcessing RunStatus = "PROCESSING"
	RunSuccess    RunStatus = "SUCCESS"
	RunFailed     RunStatus = "FAILED"
	RunRetrying   RunStatus = "RETRYING"
)

// Run is one attempted execution of a job. Runs are read-only to the client.
type Run struct {
	ID                string     `json:"run_id"`
	ScheduledForUTC   Timestamp  `json:"scheduled_for_utc"`
	StartedAt         *Timestamp `json:"started_at,omitempty"`
	FinishedAt        *Timestamp `json:"finished_at,omitempty"`
	Status            RunStatus  `json:"status"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
	ErrorCode         *string    `json:"error_code,omitempty"`
	ErrorDetail       *string    `json:"error_detail,omitempty"`
	AttemptCount      int        `json:"attempt_count"`
	CreatedAt         Timestamp  `json:"created_at"`
}

// Filter selects jobs by status in list views
type Filter string

const (
	FilterAll       Filter = "ALL"
	FilterActive    Filter = Filter(StatusActive)
	FilterPaused    Filter = Filter(StatusPaused)
	FilterCompleted Filter = Filter(StatusCompleted)
	FilterCancelled Filter = Filter(StatusCancelled)
)

// Filters lists the filters in display order
var Filters = []Filter{FilterAll, FilterActive, FilterPaused, FilterCompleted, FilterCancelled}

// ParseFilter converts user input into a Filter. Empty input means ALL.
func ParseFilter(s string) (Filter, bool) {
	if s == "" {
		return FilterAll, true
	}
	for _, f := range Filters {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// StatusParam returns the value for the status query parameter.
// ALL yields an empty string so the parameter is omitted entirely.
func (f Filter) StatusParam() string {
	if f == FilterAll || f == "" {
		return ""
	}
	return string(f)
}
