package runs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/cache"
	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/metrics"
)

// Fetcher loads a page of run history from the backend
type Fetcher interface {
	JobRuns(ctx context.Context, id string, page int) (*api.RunPage, error)
}

// History is the result of loading run history. Stale is set when the
// runs come from the local cache because the backend call failed.
type History struct {
	Runs      []job.Run
	Stale     bool
	FetchedAt time.Time
}

// Viewer shows the run history of one job, most recent first. It never
// returns an error: a failed load degrades to cached or empty history.
type Viewer struct {
	client Fetcher
	cache  *cache.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewViewer creates a run history viewer. store may be nil.
func NewViewer(client Fetcher, store *cache.Store, logger *slog.Logger) *Viewer {
	return &Viewer{
		client: client,
		cache:  store,
		logger: logger.With("component", "runs"),
		now:    time.Now,
	}
}

// RunsFor returns the runs of jobID on page, or an empty slice on failure
func (v *Viewer) RunsFor(ctx context.Context, jobID string, page int) []job.Run {
	return v.Load(ctx, jobID, page).Runs
}

// Load fetches a page of run history, falling back to the cache
func (v *Viewer) Load(ctx context.Context, jobID string, page int) History {
	if page < 1 {
		page = 1
	}

	resp, err := v.client.JobRuns(ctx, jobID, page)
	if err == nil {
		metrics.IncRefresh("runs", "ok")
		h := History{Runs: resp.Runs, FetchedAt: v.now()}
		v.store(ctx, jobID, page, h)
		return h
	}

	metrics.IncRefresh("runs", "error")
	v.logger.Warn("failed to load run history", "job_id", jobID, "page", page, "error", err)

	// a rejected session must not keep showing the previous user's data
	if errors.Is(err, api.ErrUnauthorized) || v.cache == nil {
		return History{Runs: []job.Run{}}
	}

	cached, cerr := v.cache.GetRuns(ctx, jobID, page)
	if cerr != nil {
		if !errors.Is(cerr, cache.ErrNotFound) {
			v.logger.Warn("failed to read cached runs", "job_id", jobID, "error", cerr)
		}
		return History{Runs: []job.Run{}}
	}

	metrics.IncCacheFallback("runs")
	return History{Runs: cached.Runs, Stale: true, FetchedAt: cached.FetchedAt}
}

func (v *Viewer) store(ctx context.Context, jobID string, page int, h History) {
	if v.cache == nil {
		return
	}
	if err := v.cache.PutRuns(ctx, jobID, page, cache.Runs{Runs: h.Runs, FetchedAt: h.FetchedAt}); err != nil {
		v.logger.Warn("failed to cache runs", "job_id", jobID, "error", err)
	}
}
