package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/job"
)

// DashboardSize is the number of recent jobs shown on the dashboard
const DashboardSize = 5

// Stats summarizes a set of jobs
type Stats struct {
	Active     int
	Paused     int
	Completed  int
	TotalSent  int
	TotalFails int
}

// Summarize counts jobs by status and adds up their sends
func Summarize(jobs []job.Job) Stats {
	var s Stats
	for _, j := range jobs {
		switch j.Status {
		case job.StatusActive:
			s.Active++
		case job.StatusPaused:
			s.Paused++
		case job.StatusCompleted:
			s.Completed++
		}
		s.TotalSent += j.SuccessfulRuns
		s.TotalFails += j.FailedRuns
	}
	return s
}

// DashboardSource is the part of the API the dashboard reads
type DashboardSource interface {
	ListJobs(ctx context.Context, params api.ListParams) (*api.JobPage, error)
	GoogleStatus(ctx context.Context) (*api.GoogleStatus, error)
}

// Dashboard is an overview of recent jobs and the Gmail connection.
// Either half may be missing when its request failed.
type Dashboard struct {
	Jobs   []job.Job
	Stats  Stats
	Google *api.GoogleStatus
}

// LoadDashboard fetches recent jobs and the connection status in
// parallel. Failures are logged and leave that part empty.
func LoadDashboard(ctx context.Context, src DashboardSource, logger *slog.Logger) Dashboard {
	var (
		d  Dashboard
		wg sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		page, err := src.ListJobs(ctx, api.ListParams{Filter: job.FilterAll, PerPage: DashboardSize})
		if err != nil {
			logger.Warn("failed to load recent jobs", "error", err)
			return
		}
		d.Jobs = page.Jobs
	}()
	go func() {
		defer wg.Done()
		status, err := src.GoogleStatus(ctx)
		if err != nil {
			logger.Warn("failed to load connection status", "error", err)
			return
		}
		d.Google = status
	}()
	wg.Wait()

	d.Stats = Summarize(d.Jobs)
	return d
}
