package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/mailjob/internal/job"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "mailjob.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPageRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	key := PageKey{Filter: job.FilterActive, Page: 2, PerPage: 15}
	if _, err := s.GetPage(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPage on empty cache err = %v, want ErrNotFound", err)
	}

	page := Page{
		Jobs:       []job.Job{{ID: "j1", Status: job.StatusActive}, {ID: "j2", Status: job.StatusActive}},
		TotalPages: 3,
		FetchedAt:  now,
	}
	if err := s.PutPage(ctx, key, page); err != nil {
		t.Fatalf("PutPage: %v", err)
	}

	got, err := s.GetPage(ctx, key)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if len(got.Jobs) != 2 || got.Jobs[1].ID != "j2" || got.TotalPages != 3 || !got.FetchedAt.Equal(now) {
		t.Errorf("GetPage = %+v", got)
	}

	other := PageKey{Filter: job.FilterPaused, Page: 2, PerPage: 15}
	if _, err := s.GetPage(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("different filter should miss, err = %v", err)
	}
}

func TestJobAndRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.PutJob(ctx, job.Job{ID: "j1", Subject: "Weekly report"}, now); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	j, at, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Subject != "Weekly report" || !at.Equal(now) {
		t.Errorf("GetJob = %+v at %v", j, at)
	}

	runs := Runs{Runs: []job.Run{{ID: "r2"}, {ID: "r1"}}, FetchedAt: now}
	if err := s.PutRuns(ctx, "j1", 1, runs); err != nil {
		t.Fatalf("PutRuns: %v", err)
	}
	got, err := s.GetRuns(ctx, "j1", 1)
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if len(got.Runs) != 2 || got.Runs[0].ID != "r2" {
		t.Errorf("GetRuns = %+v", got.Runs)
	}
	if _, err := s.GetRuns(ctx, "j1", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("page 2 err = %v, want ErrNotFound", err)
	}
}

func TestPurge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.PutJob(ctx, job.Job{ID: "j1"}, now)
	s.PutPage(ctx, PageKey{Filter: job.FilterAll, Page: 1}, Page{FetchedAt: now})
	s.PutRuns(ctx, "j1", 1, Runs{FetchedAt: now})

	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	if _, _, err := s.GetJob(ctx, "j1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("job survived purge: %v", err)
	}
	if _, err := s.GetPage(ctx, PageKey{Filter: job.FilterAll, Page: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("page survived purge: %v", err)
	}

	// store stays usable
	if err := s.PutJob(ctx, job.Job{ID: "j2"}, now); err != nil {
		t.Errorf("PutJob after purge: %v", err)
	}
}

func TestPrune(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.PutJob(ctx, job.Job{ID: "old"}, now.Add(-48*time.Hour))
	s.PutJob(ctx, job.Job{ID: "new"}, now)
	s.PutRuns(ctx, "old", 1, Runs{FetchedAt: now.Add(-48 * time.Hour)})

	deleted, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, _, err := s.GetJob(ctx, "new"); err != nil {
		t.Errorf("fresh job pruned: %v", err)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailjob.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.PutJob(ctx, job.Job{ID: "j1"}, time.Now())
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, _, err := s.GetJob(ctx, "j1"); err != nil {
		t.Errorf("GetJob after reopen: %v", err)
	}
}
