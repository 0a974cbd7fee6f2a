package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/job"
)

func TestSummarize(t *testing.T) {
	jobs := []job.Job{
		{Status: job.StatusActive, SuccessfulRuns: 3, FailedRuns: 1},
		{Status: job.StatusActive, SuccessfulRuns: 1},
		{Status: job.StatusPaused},
		{Status: job.StatusCompleted, SuccessfulRuns: 1},
		{Status: job.StatusCancelled, FailedRuns: 2},
	}

	got := Summarize(jobs)
	want := Stats{Active: 2, Paused: 1, Completed: 1, TotalSent: 5, TotalFails: 3}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
}

type fakeDashboardSource struct {
	page      *api.JobPage
	listErr   error
	status    *api.GoogleStatus
	statusErr error
	perPage   int
}

func (f *fakeDashboardSource) ListJobs(ctx context.Context, params api.ListParams) (*api.JobPage, error) {
	f.perPage = params.PerPage
	return f.page, f.listErr
}

func (f *fakeDashboardSource) GoogleStatus(ctx context.Context) (*api.GoogleStatus, error) {
	return f.status, f.statusErr
}

func TestLoadDashboard(t *testing.T) {
	src := &fakeDashboardSource{
		page: &api.JobPage{Jobs: []job.Job{
			{ID: "a", Status: job.StatusActive, SuccessfulRuns: 2},
			{ID: "b", Status: job.StatusPaused},
		}},
		status: &api.GoogleStatus{Connected: true},
	}

	d := LoadDashboard(context.Background(), src, testLogger())
	if src.perPage != DashboardSize {
		t.Errorf("per_page = %d, want %d", src.perPage, DashboardSize)
	}
	if len(d.Jobs) != 2 || d.Stats.Active != 1 || d.Stats.Paused != 1 || d.Stats.TotalSent != 2 {
		t.Errorf("dashboard = %+v", d)
	}
	if d.Google == nil || !d.Google.Connected {
		t.Errorf("Google = %+v", d.Google)
	}
}

func TestLoadDashboardPartialFailure(t *testing.T) {
	src := &fakeDashboardSource{
		listErr: errors.New("connection refused"),
		status:  &api.GoogleStatus{Connected: false},
	}

	d := LoadDashboard(context.Background(), src, testLogger())
	if len(d.Jobs) != 0 || d.Stats != (Stats{}) {
		t.Errorf("jobs should be empty on failure: %+v", d)
	}
	if d.Google == nil || d.Google.Connected {
		t.Errorf("Google = %+v", d.Google)
	}
}
