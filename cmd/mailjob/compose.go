package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/metrics"
	"github.com/foxzi/mailjob/internal/ui"
)

type composeFlags struct {
	jobType     string
	to          string
	cc          string
	bcc         string
	subject     string
	text        string
	textFile    string
	html        string
	htmlFile    string
	at          string
	timezone    string
	recurrence  string
	interval    int
	interactive bool
}

var composeOpts composeFlags

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Create an email job",
	Long: `Create an email job that sends now, at a given time or on an interval.

Examples:
  mailjob compose --to a@example.com --subject Hi --text "Hello"
  mailjob compose --type send_at --at "2026-01-05 09:00" --timezone Europe/Berlin --recurrence weekly ...
  mailjob compose --type interval --interval 60 ...
  mailjob compose -i`,
	RunE: runCompose,
}

func init() {
	f := composeCmd.Flags()
	f.StringVar(&composeOpts.jobType, "type", "send_now", "job type: send_now, send_at or interval")
	f.StringVar(&composeOpts.to, "to", "", "recipients, comma separated")
	f.StringVar(&composeOpts.cc, "cc", "", "CC recipients, comma separated")
	f.StringVar(&composeOpts.bcc, "bcc", "", "BCC recipients, comma separated")
	f.StringVar(&composeOpts.subject, "subject", "", "subject line")
	f.StringVar(&composeOpts.text, "text", "", "plain text body")
	f.StringVar(&composeOpts.textFile, "text-file", "", "read the plain text body from a file")
	f.StringVar(&composeOpts.html, "html", "", "HTML body")
	f.StringVar(&composeOpts.htmlFile, "html-file", "", "read the HTML body from a file")
	f.StringVar(&composeOpts.at, "at", "", "local send time for send_at, e.g. 2026-01-05 09:00")
	f.StringVar(&composeOpts.timezone, "timezone", "", "IANA timezone of --at (default from config)")
	f.StringVar(&composeOpts.recurrence, "recurrence", "once", "send_at recurrence: once, daily or weekly")
	f.IntVar(&composeOpts.interval, "interval", 0, "minutes between sends for interval jobs (5-1440)")
	f.BoolVarP(&composeOpts.interactive, "interactive", "i", false, "fill in the job with a wizard")

	rootCmd.AddCommand(composeCmd)
}

// normalizeEnum accepts "send-at", "send_at" and "SEND_AT" alike
func normalizeEnum(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}

// draft builds a job draft from flags. Defaults fill the timezone and
// interval when they were not given.
func (f composeFlags) draft(defaultTZ string, defaultInterval int) (job.Draft, error) {
	d := job.Draft{
		Type:            job.Type(normalizeEnum(f.jobType)),
		To:              f.to,
		CC:              f.cc,
		BCC:             f.bcc,
		Subject:         f.subject,
		BodyText:        f.text,
		BodyHTML:        f.html,
		ScheduleTime:    f.at,
		Timezone:        f.timezone,
		Recurrence:      job.Recurrence(normalizeEnum(f.recurrence)),
		IntervalMinutes: f.interval,
	}
	if d.Timezone == "" {
		d.Timezone = defaultTZ
	}
	if d.IntervalMinutes == 0 {
		d.IntervalMinutes = defaultInterval
	}

	if f.textFile != "" {
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return d, fmt.Errorf("failed to read text body: %w", err)
		}
		d.BodyText = string(data)
	}
	if f.htmlFile != "" {
		data, err := os.ReadFile(f.htmlFile)
		if err != nil {
			return d, fmt.Errorf("failed to read HTML body: %w", err)
		}
		d.BodyHTML = string(data)
	}
	return d, nil
}

func runCompose(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	cfg := a.Config.Compose

	d, err := composeOpts.draft(cfg.DefaultTimezone, cfg.DefaultIntervalMinutes)
	if err != nil {
		return err
	}

	if composeOpts.interactive {
		err := ui.RunComposeWizard(ctx, &d, ui.ComposeDefaults{
			Timezone:        cfg.DefaultTimezone,
			IntervalMinutes: cfg.DefaultIntervalMinutes,
		})
		if err != nil {
			return err
		}
	}

	req, err := job.Validate(d)
	if err != nil {
		metrics.IncValidationFailure(string(job.ValidationCodeOf(err)))
		return err
	}

	created, err := a.API.CreateJob(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render(job.ConfirmationMessage(req.JobType, req.Recurrence)))
	fmt.Println(ui.Field("Job", created.ID))
	fmt.Println(ui.Field("Status", ui.Badge(string(created.Status))))
	fmt.Println(ui.Field("Schedule", scheduleSummary(*created)))
	return nil
}
