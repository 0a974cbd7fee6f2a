package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/ui"
)

const timeLayout = "2006-01-02 15:04"

func formatTime(ts *job.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format(timeLayout)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// recipientSummary shows the first address and how many more follow
func recipientSummary(r job.Recipients) string {
	switch len(r.To) {
	case 0:
		return "-"
	case 1:
		return r.To[0]
	}
	return fmt.Sprintf("%s +%d", r.To[0], len(r.To)-1)
}

// scheduleSummary describes when a job sends
func scheduleSummary(j job.Job) string {
	switch j.Type {
	case job.TypeInterval:
		if j.IntervalMinutes != nil {
			return "every " + formatInterval(*j.IntervalMinutes)
		}
		return "interval"
	case job.TypeSendAt:
		s := formatTime(j.ScheduleTimeUTC)
		if j.Recurrence != nil && *j.Recurrence != "" && *j.Recurrence != string(job.RecurrenceOnce) {
			s += " " + strings.ToLower(*j.Recurrence)
		}
		return s
	}
	return "now"
}

func formatInterval(minutes int) string {
	switch {
	case minutes%1440 == 0:
		return pluralize(minutes/1440, "day")
	case minutes%60 == 0:
		return pluralize(minutes/60, "hour")
	}
	return pluralize(minutes, "minute")
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func jobRows(jobs []job.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			ui.Badge(string(j.Status)),
			string(j.Type),
			truncate(j.Subject, 40),
			truncate(recipientSummary(j.Recipients), 32),
			scheduleSummary(j),
			fmt.Sprintf("%d/%d", j.SuccessfulRuns, j.TotalRuns),
		})
	}
	return rows
}

var jobHeaders = []string{"ID", "STATUS", "TYPE", "SUBJECT", "TO", "SCHEDULE", "SENT"}

func runRows(runs []job.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		detail := "-"
		if r.ErrorCode != nil || r.ErrorDetail != nil {
			detail = truncate(strings.TrimSpace(deref(r.ErrorCode)+" "+deref(r.ErrorDetail)), 60)
		} else if r.ProviderMessageID != nil {
			detail = *r.ProviderMessageID
		}
		rows = append(rows, []string{
			r.ID,
			ui.Badge(string(r.Status)),
			formatTime(&r.ScheduledForUTC),
			formatTime(r.FinishedAt),
			strconv.Itoa(r.AttemptCount),
			detail,
		})
	}
	return rows
}

var runHeaders = []string{"RUN", "STATUS", "SCHEDULED", "FINISHED", "ATTEMPTS", "DETAIL"}

// emptyListMessage is shown when a page has no jobs
func emptyListMessage(f job.Filter) string {
	if f == job.FilterAll || f == "" {
		return "No jobs yet. Create one with `mailjob compose`."
	}
	return fmt.Sprintf("No %s jobs.", strings.ToLower(string(f)))
}

func actionList(actions []job.Action) string {
	if len(actions) == 0 {
		return "none"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}
