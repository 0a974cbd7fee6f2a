package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/mailjob/internal/job"
)

var (
	bucketPages = []byte("pages")
	bucketJobs  = []byte("jobs")
	bucketRuns  = []byte("runs")

	allBuckets = [][]byte{bucketPages, bucketJobs, bucketRuns}
)

// ErrNotFound is returned when nothing is cached under a key
var ErrNotFound = errors.New("not cached")

// PageKey identifies one cached list page
type PageKey struct {
	Filter  job.Filter
	JobType job.Type
	Page    int
	PerPage int
}

func (k PageKey) bytes() []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%d", k.Filter, k.JobType, k.Page, k.PerPage))
}

// Page is a cached list page
type Page struct {
	Jobs       []job.Job `json:"jobs"`
	TotalPages int       `json:"total_pages"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Runs is a cached page of run history
type Runs struct {
	Runs      []job.Run `json:"runs"`
	FetchedAt time.Time `json:"fetched_at"`
}

type cachedJob struct {
	Job       job.Job   `json:"job"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store keeps the last good responses so views can still be shown when
// the backend is unreachable. Everything in it belongs to the signed-in
// user and is purged on logout.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the cache database at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// PutPage stores a list page
func (s *Store) PutPage(ctx context.Context, key PageKey, page Page) error {
	return s.put(bucketPages, key.bytes(), page)
}

// GetPage returns a cached list page
func (s *Store) GetPage(ctx context.Context, key PageKey) (*Page, error) {
	var page Page
	if err := s.get(bucketPages, key.bytes(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PutJob stores a single job record
func (s *Store) PutJob(ctx context.Context, j job.Job, fetchedAt time.Time) error {
	return s.put(bucketJobs, []byte(j.ID), cachedJob{Job: j, FetchedAt: fetchedAt})
}

// GetJob returns a cached job record and when it was fetched
func (s *Store) GetJob(ctx context.Context, id string) (*job.Job, time.Time, error) {
	var c cachedJob
	if err := s.get(bucketJobs, []byte(id), &c); err != nil {
		return nil, time.Time{}, err
	}
	return &c.Job, c.FetchedAt, nil
}

func runsKey(jobID string, page int) []byte {
	return []byte(jobID + "|" + strconv.Itoa(page))
}

// PutRuns stores one page of a job's run history
func (s *Store) PutRuns(ctx context.Context, jobID string, page int, runs Runs) error {
	return s.put(bucketRuns, runsKey(jobID, page), runs)
}

// GetRuns returns a cached page of run history
func (s *Store) GetRuns(ctx context.Context, jobID string, page int) (*Runs, error) {
	var runs Runs
	if err := s.get(bucketRuns, runsKey(jobID, page), &runs); err != nil {
		return nil, err
	}
	return &runs, nil
}

// Purge removes every cached entry
func (s *Store) Purge(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to delete bucket %s: %w", bucket, err)
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// Prune deletes entries fetched before cutoff and returns how many
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var deleted int

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			b := tx.Bucket(name)
			var expired [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var stamp struct {
					FetchedAt time.Time `json:"fetched_at"`
				}
				if err := json.Unmarshal(v, &stamp); err != nil || stamp.FetchedAt.Before(cutoff) {
					expired = append(expired, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})

	return deleted, err
}

func (s *Store) put(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *Store) get(bucket, key []byte, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to unmarshal cache entry: %w", err)
		}
		return nil
	})
}
