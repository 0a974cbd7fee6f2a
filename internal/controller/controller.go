package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/cache"
	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/metrics"
	"github.com/foxzi/mailjob/internal/runs"
)

var (
	// ErrActionNotAllowed is returned when the cached status forbids an action
	ErrActionNotAllowed = errors.New("action not allowed for job status")

	// ErrActionInFlight is returned while another action on the same job runs
	ErrActionInFlight = errors.New("another action on this job is in progress")
)

// Gateway is the subset of the backend API the controller needs
type Gateway interface {
	ListJobs(ctx context.Context, params api.ListParams) (*api.JobPage, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	Act(ctx context.Context, id string, action job.Action) (*api.ActionResponse, error)
}

// RunSource loads run history for the selected job
type RunSource interface {
	Load(ctx context.Context, jobID string, page int) runs.History
}

// Controller holds the paged job list, the selected job and its runs.
// All state is guarded by mu; network calls happen without the lock.
type Controller struct {
	gw     Gateway
	runs   RunSource
	cache  *cache.Store
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	params     api.ListParams
	listed     bool
	listGen    uint64
	jobs       []job.Job
	totalPages int
	stale      bool

	selectGen uint64
	selected  *job.Job
	selRuns   []job.Run
	selStale  bool

	inFlight map[string]job.Action
}

// New creates a controller. store may be nil.
func New(gw Gateway, rs RunSource, store *cache.Store, logger *slog.Logger) *Controller {
	return &Controller{
		gw:         gw,
		runs:       rs,
		cache:      store,
		logger:     logger.With("component", "controller"),
		now:        time.Now,
		totalPages: 1,
		inFlight:   make(map[string]job.Action),
	}
}

// Jobs returns the current page and total page count
func (c *Controller) Jobs() ([]job.Job, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]job.Job(nil), c.jobs...), c.totalPages
}

// Stale reports whether the current page was served from the cache
func (c *Controller) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// List fetches one page of jobs under params and makes it current. On
// failure the error is logged and the previous page is kept, or the last
// cached copy of the same page is shown. A response that arrives after a
// newer List call started is discarded.
func (c *Controller) List(ctx context.Context, params api.ListParams) ([]job.Job, int) {
	jobs, total, _ := c.load(ctx, params)
	return jobs, total
}

// Fetch behaves like List but also returns the fetch error so a poller
// can back off
func (c *Controller) Fetch(ctx context.Context, params api.ListParams) error {
	_, _, err := c.load(ctx, params)
	return err
}

func (c *Controller) load(ctx context.Context, params api.ListParams) ([]job.Job, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Filter == "" {
		params.Filter = job.FilterAll
	}

	c.mu.Lock()
	c.listGen++
	gen := c.listGen
	c.params = params
	c.listed = true
	c.mu.Unlock()

	page, err := c.gw.ListJobs(ctx, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.listGen {
		metrics.IncStaleResponse("jobs")
		return append([]job.Job(nil), c.jobs...), c.totalPages, err
	}

	if err != nil {
		metrics.IncRefresh("jobs", "error")
		c.logger.Warn("failed to list jobs", "filter", params.Filter, "page", params.Page, "error", err)
		if !errors.Is(err, api.ErrUnauthorized) {
			c.fallbackLocked(ctx, params)
		}
		return append([]job.Job(nil), c.jobs...), c.totalPages, err
	}

	metrics.IncRefresh("jobs", "ok")
	c.jobs = page.Jobs
	c.totalPages = page.Pagination.TotalPages
	c.stale = false
	c.syncSelectedLocked()
	c.storePage(ctx, params, page)
	return append([]job.Job(nil), c.jobs...), c.totalPages, nil
}

// syncSelectedLocked replaces the selected job with its record from a
// freshly fetched page so both views show the same status
func (c *Controller) syncSelectedLocked() {
	if c.selected == nil {
		return
	}
	for _, j := range c.jobs {
		if j.ID == c.selected.ID {
			sel := j
			c.selected = &sel
			return
		}
	}
}

// fallbackLocked replaces the current page with the cached copy of params
func (c *Controller) fallbackLocked(ctx context.Context, params api.ListParams) {
	if c.cache == nil {
		return
	}
	cached, err := c.cache.GetPage(ctx, pageKey(params))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn("failed to read cached jobs", "error", err)
		}
		return
	}
	metrics.IncCacheFallback("jobs")
	c.jobs = cached.Jobs
	c.totalPages = cached.TotalPages
	c.stale = true
}

func (c *Controller) storePage(ctx context.Context, params api.ListParams, page *api.JobPage) {
	if c.cache == nil {
		return
	}
	err := c.cache.PutPage(ctx, pageKey(params), cache.Page{
		Jobs:       page.Jobs,
		TotalPages: page.Pagination.TotalPages,
		FetchedAt:  c.now(),
	})
	if err != nil {
		c.logger.Warn("failed to cache jobs", "error", err)
	}
}

func pageKey(p api.ListParams) cache.PageKey {
	return cache.PageKey{Filter: p.Filter, JobType: p.JobType, Page: p.Page, PerPage: p.PerPage}
}

// Select focuses j and loads its runs, replacing any previous run list.
// It reports false when a newer selection superseded this one while the
// runs were loading; the late runs are then dropped.
func (c *Controller) Select(ctx context.Context, j job.Job) ([]job.Run, bool) {
	c.mu.Lock()
	c.selectGen++
	gen := c.selectGen
	sel := j
	c.selected = &sel
	c.selRuns = nil
	c.selStale = false
	c.mu.Unlock()

	h := c.runs.Load(ctx, j.ID, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.selectGen {
		metrics.IncStaleResponse("runs")
		c.logger.Debug("discarding runs for superseded selection", "job_id", j.ID)
		return nil, false
	}
	c.selRuns = h.Runs
	c.selStale = h.Stale
	return append([]job.Run(nil), c.selRuns...), true
}

// Deselect clears the selection and its runs
func (c *Controller) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectGen++
	c.selected = nil
	c.selRuns = nil
	c.selStale = false
}

// Selected returns a copy of the selected job, or nil
func (c *Controller) Selected() *job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return nil
	}
	j := *c.selected
	return &j
}

// Runs returns the runs of the selected job
func (c *Controller) Runs() []job.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]job.Run(nil), c.selRuns...)
}

// RunsStale reports whether the selected job's runs came from the cache
func (c *Controller) RunsStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selStale
}

// Available lists the actions that may be offered for j. Nothing is
// offered while an action on j is still running.
func (c *Controller) Available(j job.Job) []job.Action {
	if c.Pending(j.ID) {
		return nil
	}
	return job.AvailableActions(j.Status)
}

// Pending reports whether an action on jobID is in flight
func (c *Controller) Pending(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[jobID]
	return ok
}

// Show returns the detail record of a job, from the cache when the
// backend cannot be reached. stale reports the latter.
func (c *Controller) Show(ctx context.Context, id string) (j *job.Job, stale bool, err error) {
	j, err = c.gw.GetJob(ctx, id)
	if err == nil {
		c.storeJob(ctx, *j)
		return j, false, nil
	}
	if c.cache == nil || errors.Is(err, api.ErrUnauthorized) || api.StatusCode(err) == 404 {
		return nil, false, err
	}
	cached, _, cerr := c.cache.GetJob(ctx, id)
	if cerr != nil {
		return nil, false, err
	}
	metrics.IncCacheFallback("job")
	return cached, true, nil
}

func (c *Controller) storeJob(ctx context.Context, j job.Job) {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutJob(ctx, j, c.now()); err != nil {
		c.logger.Warn("failed to cache job", "job_id", j.ID, "error", err)
	}
}

// Act applies action to the job with jobID. The job's cached status must
// allow the action, otherwise ErrActionNotAllowed is returned and the
// backend is not called. A job that is not cached is fetched first.
// After success the current page and the selected job are re-fetched;
// failures of that refresh are logged only. The action's own error is
// returned unchanged.
func (c *Controller) Act(ctx context.Context, jobID string, action job.Action) error {
	status, err := c.statusOf(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Allowed(status, action) {
		metrics.IncJobAction(string(action), "rejected")
		return fmt.Errorf("%w: cannot %s a %s job", ErrActionNotAllowed, action, status)
	}

	c.mu.Lock()
	if _, busy := c.inFlight[jobID]; busy {
		c.mu.Unlock()
		return ErrActionInFlight
	}
	c.inFlight[jobID] = action
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, jobID)
		c.mu.Unlock()
	}()

	resp, err := c.gw.Act(ctx, jobID, action)
	if err != nil {
		metrics.IncJobAction(string(action), "error")
		c.logger.Warn("job action failed", "job_id", jobID, "action", action, "error", err)
		return err
	}

	metrics.IncJobAction(string(action), "ok")
	c.logger.Info("job action applied", "job_id", jobID, "action", action, "status", resp.Status)

	c.refresh(ctx, jobID)
	return nil
}

// statusOf returns the status the guard checks against
func (c *Controller) statusOf(ctx context.Context, jobID string) (job.Status, error) {
	c.mu.Lock()
	if c.selected != nil && c.selected.ID == jobID {
		s := c.selected.Status
		c.mu.Unlock()
		return s, nil
	}
	for _, j := range c.jobs {
		if j.ID == jobID {
			c.mu.Unlock()
			return j.Status, nil
		}
	}
	c.mu.Unlock()

	j, err := c.gw.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return j.Status, nil
}

// refresh re-fetches server state after a successful action
func (c *Controller) refresh(ctx context.Context, jobID string) {
	c.mu.Lock()
	params, listed := c.params, c.listed
	selected := c.selected != nil && c.selected.ID == jobID
	gen := c.selectGen
	c.mu.Unlock()

	if listed {
		c.List(ctx, params)
	}
	if !selected {
		return
	}

	j, err := c.gw.GetJob(ctx, jobID)
	if err != nil {
		metrics.IncRefresh("job", "error")
		c.logger.Warn("failed to refresh job", "job_id", jobID, "error", err)
		return
	}
	metrics.IncRefresh("job", "ok")
	c.storeJob(ctx, *j)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.selectGen {
		metrics.IncStaleResponse("job")
		return
	}
	c.selected = j
}
