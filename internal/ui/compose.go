package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/foxzi/mailjob/internal/job"
)

// ErrAborted is returned when the user quits the wizard
var ErrAborted = errors.New("compose aborted")

// Timezones offered by the wizard
var Timezones = []string{
	"Asia/Kolkata", "America/New_York", "America/Chicago", "America/Denver",
	"America/Los_Angeles", "Europe/London", "Europe/Berlin", "Europe/Paris",
	"Asia/Tokyo", "Asia/Shanghai", "Australia/Sydney", "Pacific/Auckland",
	"UTC",
}

// ComposeDefaults pre-fills the schedule step
type ComposeDefaults struct {
	Timezone        string
	IntervalMinutes int
}

// timezoneOptions returns Timezones with def first when it is not listed
func timezoneOptions(def string) []string {
	for _, tz := range Timezones {
		if tz == def {
			return Timezones
		}
	}
	if def == "" {
		return Timezones
	}
	return append([]string{def}, Timezones...)
}

// parseInterval reads the interval field and clamps it into range
func parseInterval(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("enter a whole number of minutes")
	}
	return job.ClampInterval(n), nil
}

func validateRecipients(s string) error {
	if len(job.ParseAddresses(s)) == 0 {
		return errors.New("at least one recipient is required")
	}
	return nil
}

func validateSubject(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("subject is required")
	}
	return nil
}

func validateScheduleTime(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("schedule time is required")
	}
	if _, ok := job.ParseScheduleTime(s); !ok {
		return errors.New("use YYYY-MM-DD HH:MM")
	}
	return nil
}

// RunComposeWizard walks the user through type, email and schedule steps
// and fills d. The schedule step is skipped for SEND_NOW. Fields already
// set on d are used as initial values.
func RunComposeWizard(ctx context.Context, d *job.Draft, defaults ComposeDefaults) error {
	jobType := string(d.Type)
	if jobType == "" {
		jobType = string(job.TypeSendNow)
	}
	recurrence := string(d.Recurrence)
	if recurrence == "" {
		recurrence = string(job.RecurrenceOnce)
	}
	timezone := d.Timezone
	if timezone == "" {
		timezone = defaults.Timezone
	}
	interval := d.IntervalMinutes
	if interval == 0 {
		interval = defaults.IntervalMinutes
	}
	intervalText := strconv.Itoa(interval)

	tzOptions := make([]huh.Option[string], 0, len(Timezones)+1)
	for _, tz := range timezoneOptions(timezone) {
		tzOptions = append(tzOptions, huh.NewOption(tz, tz))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What kind of email?").
				Options(
					huh.NewOption("Send Now - send immediately", string(job.TypeSendNow)),
					huh.NewOption("Schedule - send at exact time", string(job.TypeSendAt)),
					huh.NewOption("Recurring - send on repeat", string(job.TypeInterval)),
				).
				Value(&jobType),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Description("Comma separated addresses").
				Value(&d.To).
				Validate(validateRecipients),
			huh.NewInput().Title("Cc").Value(&d.CC),
			huh.NewInput().Title("Bcc").Value(&d.BCC),
			huh.NewInput().
				Title("Subject").
				Value(&d.Subject).
				Validate(validateSubject),
			huh.NewText().Title("Body (text)").Value(&d.BodyText),
			huh.NewText().Title("Body (HTML, optional)").Value(&d.BodyHTML),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Repeat").
				Options(
					huh.NewOption("Once", string(job.RecurrenceOnce)),
					huh.NewOption("Daily", string(job.RecurrenceDaily)),
					huh.NewOption("Weekly", string(job.RecurrenceWeekly)),
				).
				Value(&recurrence),
			huh.NewInput().
				Title("Date & time").
				Placeholder("2026-05-04 09:30").
				Value(&d.ScheduleTime).
				Validate(validateScheduleTime),
			huh.NewSelect[string]().
				Title("Timezone").
				Options(tzOptions...).
				Value(&timezone),
		).WithHideFunc(func() bool { return jobType != string(job.TypeSendAt) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Interval (minutes)").
				Description(fmt.Sprintf("Min %d min, max %d min (24h)", job.MinIntervalMinutes, job.MaxIntervalMinutes)).
				Value(&intervalText).
				Validate(func(s string) error {
					_, err := parseInterval(s)
					return err
				}),
		).WithHideFunc(func() bool { return jobType != string(job.TypeInterval) }),
	)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("compose wizard: %w", err)
	}

	d.Type = job.Type(jobType)
	switch d.Type {
	case job.TypeSendAt:
		d.Recurrence = job.Recurrence(recurrence)
		d.Timezone = timezone
	case job.TypeInterval:
		n, err := parseInterval(intervalText)
		if err != nil {
			return err
		}
		d.IntervalMinutes = n
	}
	return nil
}

// Confirm asks a yes/no question
func Confirm(ctx context.Context, question string, def bool) (bool, error) {
	ok := def
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(question).Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrAborted
		}
		return false, err
	}
	return ok, nil
}
