package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/app"
	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/ui"
	"github.com/foxzi/mailjob/internal/watch"
)

var (
	jobsStatus   string
	jobsType     string
	jobsPage     int
	jobsPerPage  int
	jobsRunsPage int
	jobsYes      bool
	jobsInterval time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job_id>",
	Short: "Show job details and recent runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job_id>",
	Short: "Pause an active job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAction,
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job_id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAction,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a job permanently",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAction,
}

var jobsRunsCmd = &cobra.Command{
	Use:   "runs <job_id>",
	Short: "Show the run history of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRuns,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the job list until interrupted",
	RunE:  runJobsWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{jobsListCmd, jobsWatchCmd} {
		cmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (active, paused, completed, cancelled)")
		cmd.Flags().StringVar(&jobsType, "type", "", "filter by job type (send_now, send_at, interval)")
		cmd.Flags().IntVar(&jobsPage, "page", 1, "page number")
		cmd.Flags().IntVar(&jobsPerPage, "per-page", 0, "jobs per page (default from config)")
	}
	jobsRunsCmd.Flags().IntVar(&jobsRunsPage, "page", 1, "page number")
	jobsCancelCmd.Flags().BoolVarP(&jobsYes, "yes", "y", false, "do not ask for confirmation")
	jobsWatchCmd.Flags().DurationVar(&jobsInterval, "interval", 0, "refresh interval (default from config)")

	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsPauseCmd, jobsResumeCmd, jobsCancelCmd, jobsRunsCmd, jobsWatchCmd)
	rootCmd.AddCommand(jobsCmd)
}

// listParams builds list parameters from the filter flags
func listParams(status, jobType string, page, perPage int) (api.ListParams, error) {
	filter, ok := job.ParseFilter(normalizeEnum(status))
	if !ok {
		return api.ListParams{}, fmt.Errorf("unknown status filter %q", status)
	}
	params := api.ListParams{Filter: filter, Page: page, PerPage: perPage}
	if jobType != "" {
		t := job.Type(normalizeEnum(jobType))
		if !t.Valid() {
			return api.ListParams{}, fmt.Errorf("unknown job type %q", jobType)
		}
		params.JobType = t
	}
	return params, nil
}

func jobsListParams(a *app.App) (api.ListParams, error) {
	perPage := jobsPerPage
	if perPage == 0 {
		perPage = a.Config.Jobs.PerPage
	}
	return listParams(jobsStatus, jobsType, jobsPage, perPage)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	params, err := jobsListParams(a)
	if err != nil {
		return err
	}

	jobs, totalPages := a.Jobs.List(cmd.Context(), params)
	if err := a.RequireSession(); err != nil {
		return err
	}
	printJobPage(a, params, jobs, totalPages)
	return nil
}

func printJobPage(a *app.App, params api.ListParams, jobs []job.Job, totalPages int) {
	if a.Jobs.Stale() {
		fmt.Println(ui.WarnStyle.Render("Service unreachable, showing cached jobs."))
	}
	if len(jobs) == 0 {
		fmt.Println(emptyListMessage(params.Filter))
		return
	}
	fmt.Println(ui.Table(jobHeaders, jobRows(jobs)))
	if totalPages > 1 {
		fmt.Printf("\nPage %d of %d\n", params.Page, totalPages)
	}
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	j, stale, err := a.Jobs.Show(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if stale {
		fmt.Println(ui.WarnStyle.Render("Service unreachable, showing cached job."))
	}

	fmt.Println(ui.Field("ID", j.ID))
	fmt.Println(ui.Field("Status", ui.Badge(string(j.Status))))
	fmt.Println(ui.Field("Type", string(j.Type)))
	fmt.Println(ui.Field("Subject", j.Subject))
	fmt.Println(ui.Field("To", strings.Join(j.Recipients.To, ", ")))
	if len(j.Recipients.CC) > 0 {
		fmt.Println(ui.Field("CC", strings.Join(j.Recipients.CC, ", ")))
	}
	if len(j.Recipients.BCC) > 0 {
		fmt.Println(ui.Field("BCC", strings.Join(j.Recipients.BCC, ", ")))
	}
	fmt.Println(ui.Field("Schedule", scheduleSummary(*j)))
	if j.ScheduleTimezone != nil {
		fmt.Println(ui.Field("Timezone", *j.ScheduleTimezone))
	}
	fmt.Println(ui.Field("Runs", fmt.Sprintf("%d total, %d sent, %d failed", j.TotalRuns, j.SuccessfulRuns, j.FailedRuns)))
	fmt.Println(ui.Field("Last run", formatTime(j.LastRunAt)))
	fmt.Println(ui.Field("Created", formatTime(&j.CreatedAt)))
	fmt.Println(ui.Field("Actions", actionList(a.Jobs.Available(*j))))

	runs, _ := a.Jobs.Select(ctx, *j)
	fmt.Println()
	fmt.Println(ui.TitleStyle.Render("Recent runs"))
	if a.Jobs.RunsStale() {
		fmt.Println(ui.WarnStyle.Render("Service unreachable, showing cached runs."))
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}
	fmt.Println(ui.Table(runHeaders, runRows(runs)))
	return nil
}

var actionDone = map[job.Action]string{
	job.ActionPause:  "paused",
	job.ActionResume: "resumed",
	job.ActionCancel: "cancelled",
}

func runJobsAction(cmd *cobra.Command, args []string) error {
	action, err := job.ParseAction(cmd.Name())
	if err != nil {
		return err
	}

	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	id := args[0]

	if action == job.ActionCancel && !jobsYes {
		ok, err := ui.Confirm(ctx, "Cancel job "+id+"? This cannot be undone.", false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := a.Jobs.Act(ctx, id, action); err != nil {
		return fmt.Errorf("failed to %s job: %w", action, err)
	}
	fmt.Println(ui.SuccessStyle.Render("Job " + id + " " + actionDone[action]))
	return nil
}

func runJobsRuns(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	h := a.Runs.Load(cmd.Context(), args[0], jobsRunsPage)
	if err := a.RequireSession(); err != nil {
		return err
	}
	if h.Stale {
		fmt.Printf("%s\n", ui.WarnStyle.Render("Service unreachable, showing runs cached at "+h.FetchedAt.Local().Format(timeLayout)+"."))
	}
	if len(h.Runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}
	fmt.Println(ui.Table(runHeaders, runRows(h.Runs)))
	return nil
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	params, err := jobsListParams(a)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if srv, err := a.MetricsServer(); err != nil {
		return err
	} else if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	interval := jobsInterval
	if interval == 0 {
		interval = a.Config.Watch.Interval
	}

	poller := watch.New(watch.Config{
		Interval:   interval,
		MaxRetries: a.Config.Watch.MaxRetries,
		IsFatal: func(err error) bool {
			return errors.Is(err, api.ErrUnauthorized)
		},
		OnTick: func(err error) {
			jobs, totalPages := a.Jobs.Jobs()
			fmt.Print("\033[H\033[2J")
			fmt.Println(ui.TitleStyle.Render("Jobs") + "  " + ui.LabelStyle.Render("updated "+time.Now().Format("15:04:05")+", Ctrl+C to stop"))
			if err != nil {
				fmt.Println(ui.WarnStyle.Render("Refresh failed, retrying at the next interval."))
			}
			fmt.Println()
			printJobPage(a, params, jobs, totalPages)
		},
	}, func(ctx context.Context) error {
		return a.Jobs.Fetch(ctx, params)
	}, a.Logger)

	err = poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
