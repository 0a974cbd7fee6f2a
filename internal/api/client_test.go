package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// staticTokens is a TokenSource that counts invalidations
type staticTokens struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (s *staticTokens) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *staticTokens) Invalidate(ctx context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		return false
	}
	s.token = ""
	s.invalidated++
	return true
}

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/v1/", Timeout: 5 * time.Second, UserAgent: "mailjob-test"}, tokens, testLogger())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, http.StatusOK, map[string]any{"connected": false})
	}, &staticTokens{token: "tok-1"})

	if _, err := c.GoogleStatus(context.Background()); err != nil {
		t.Fatalf("GoogleStatus: %v", err)
	}

	if got.Get("Authorization") != "Bearer tok-1" {
		t.Errorf("Authorization = %q", got.Get("Authorization"))
	}
	if got.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
	if got.Get("User-Agent") != "mailjob-test" {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
}

func TestRequestWithoutToken(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, AuthResponse{AccessToken: "new-token"})
	}, nil)

	token, err := c.Login(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "new-token" {
		t.Errorf("token = %q", token)
	}
	if auth != "" {
		t.Errorf("Authorization sent without a session: %q", auth)
	}
}

func TestLoginRequestBody(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/auth/register" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, AuthResponse{AccessToken: "t"})
	}, nil)

	if _, err := c.Register(context.Background(), "a@example.com", "pw", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := body["name"]; ok {
		t.Errorf("empty name should be omitted: %v", body)
	}
	if body["email"] != "a@example.com" || body["password"] != "pw" {
		t.Errorf("body = %v", body)
	}
}

func TestLoginMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"user_id": "u1"})
	}, nil)

	_, err := c.Login(context.Background(), "a@example.com", "pw")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"detail string", 400, `{"detail":"Gmail not connected"}`, "Gmail not connected"},
		{"detail list", 422, `{"detail":[{"loc":["body","subject"],"msg":"field required"},{"msg":"bad email"}]}`, "field required; bad email"},
		{"no detail", 500, `{"error":"boom"}`, "Request failed: 500"},
		{"empty detail", 409, `{"detail":""}`, "Request failed: 409"},
		{"not json", 502, `<html>bad gateway</html>`, "Request failed: 502"},
		{"empty body", 404, ``, "Request failed: 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, &staticTokens{token: "tok"})

			_, err := c.GetJob(context.Background(), "j1")
			var re *RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want RemoteError", err)
			}
			if re.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", re.StatusCode, tt.status)
			}
			if re.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", re.Message, tt.wantMsg)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode(err) = %d", StatusCode(err))
			}
		})
	}
}

func TestProtocolError(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(c *Client) error
	}{
		{"malformed json", `{"jobs": [`, func(c *Client) error {
			_, err := c.ListJobs(context.Background(), ListParams{})
			return err
		}},
		{"wrong shape", `{"jobs": "nope"}`, func(c *Client) error {
			_, err := c.ListJobs(context.Background(), ListParams{})
			return err
		}},
		{"missing jobs", `{"items": []}`, func(c *Client) error {
			_, err := c.ListJobs(context.Background(), ListParams{})
			return err
		}},
		{"missing runs", `{}`, func(c *Client) error {
			_, err := c.JobRuns(context.Background(), "j1", 1)
			return err
		}},
		{"job without id", `{"subject":"x"}`, func(c *Client) error {
			_, err := c.GetJob(context.Background(), "j1")
			return err
		}},
		{"no redirect url", `{}`, func(c *Client) error {
			_, err := c.GoogleStart(context.Background())
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				io.WriteString(w, tt.body)
			}, &staticTokens{token: "tok"})

			var pe *ProtocolError
			if err := tt.call(c); !errors.As(err, &pe) {
				t.Errorf("err = %v, want ProtocolError", err)
			}
		})
	}
}

func TestListJobsQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"jobs":[{"job_id":"j1","job_type":"SEND_NOW","subject":"hi","recipients":{"to":["a@x.io"]},"status":"ACTIVE","total_runs":1,"successful_runs":1,"failed_runs":0,"created_at":"2026-05-01T10:00:00","updated_at":"2026-05-01T10:00:00"}],"pagination":{"page":2,"per_page":15,"total":16}}`)
	}, &staticTokens{token: "tok"})

	page, err := c.ListJobs(context.Background(), ListParams{Filter: job.FilterActive, Page: 2, PerPage: 15})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}

	if gotQuery != "page=2&per_page=15&status=ACTIVE" {
		t.Errorf("query = %q", gotQuery)
	}
	if page.Pagination.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1 when absent", page.Pagination.TotalPages)
	}
	if len(page.Jobs) != 1 || page.Jobs[0].ID != "j1" || page.Jobs[0].Status != job.StatusActive {
		t.Errorf("jobs = %+v", page.Jobs)
	}
}

func TestListJobsAllOmitsStatus(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"jobs":[],"pagination":{"page":1,"per_page":20,"total":0,"total_pages":3}}`)
	}, &staticTokens{token: "tok"})

	page, err := c.ListJobs(context.Background(), ListParams{Filter: job.FilterAll, JobType: job.TypeInterval})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if gotQuery != "job_type=INTERVAL" {
		t.Errorf("query = %q", gotQuery)
	}
	if page.Pagination.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.Pagination.TotalPages)
	}
}

func TestJobActions(t *testing.T) {
	tests := []struct {
		name string
		call func(c *Client) (*ActionResponse, error)
		path string
	}{
		{"pause", func(c *Client) (*ActionResponse, error) { return c.PauseJob(context.Background(), "a/b") }, "/v1/jobs/a%2Fb/pause"},
		{"resume", func(c *Client) (*ActionResponse, error) { return c.ResumeJob(context.Background(), "a/b") }, "/v1/jobs/a%2Fb/resume"},
		{"cancel", func(c *Client) (*ActionResponse, error) { return c.CancelJob(context.Background(), "a/b") }, "/v1/jobs/a%2Fb/cancel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.EscapedPath()
				writeJSON(w, http.StatusOK, ActionResponse{JobID: "a/b", Status: job.StatusPaused})
			}, &staticTokens{token: "tok"})

			resp, err := tt.call(c)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if method != http.MethodPost || path != tt.path {
				t.Errorf("got %s %s, want POST %s", method, path, tt.path)
			}
			if resp.JobID != "a/b" {
				t.Errorf("JobID = %q", resp.JobID)
			}
		})
	}
}

func TestJobRuns(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"runs":[{"run_id":"r2","scheduled_for_utc":"2026-05-02T10:00:00Z","status":"FAILED","error_code":"SMTP_550","attempt_count":3,"created_at":"2026-05-02T10:00:00Z"},{"run_id":"r1","scheduled_for_utc":"2026-05-01T10:00:00Z","status":"SUCCESS","attempt_count":1,"created_at":"2026-05-01T10:00:00Z"}],"pagination":{"page":1,"per_page":20,"total":2}}`)
	}, &staticTokens{token: "tok"})

	page, err := c.JobRuns(context.Background(), "j1", 0)
	if err != nil {
		t.Fatalf("JobRuns: %v", err)
	}
	if gotQuery != "page=1" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(page.Runs) != 2 || page.Runs[0].ID != "r2" {
		t.Fatalf("runs = %+v", page.Runs)
	}
	if page.Runs[0].ErrorCode == nil || *page.Runs[0].ErrorCode != "SMTP_550" {
		t.Errorf("ErrorCode = %v", page.Runs[0].ErrorCode)
	}
}

func TestCreateJobOmitsScheduleFields(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		io.WriteString(w, `{"job_id":"j9","job_type":"SEND_NOW","subject":"Hi","recipients":{"to":["a@x.io"]},"status":"ACTIVE","total_runs":0,"successful_runs":0,"failed_runs":0,"created_at":"2026-05-01T10:00:00Z","updated_at":"2026-05-01T10:00:00Z"}`)
	}, &staticTokens{token: "tok"})

	req, err := job.Validate(job.Draft{Type: job.TypeSendNow, To: "a@x.io", Subject: "Hi", BodyText: "body"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	created, err := c.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if created.ID != "j9" {
		t.Errorf("ID = %q", created.ID)
	}
	for _, k := range []string{"schedule_time", "timezone", "recurrence", "interval_minutes"} {
		if _, ok := raw[k]; ok {
			t.Errorf("SEND_NOW request carried %s", k)
		}
	}
}

func TestGoogleEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /v1/auth/google/status":
			io.WriteString(w, `{"connected":true,"gmail_address":"me@gmail.com","token_status":"DISCONNECTED","connected_at":"2026-04-01T09:00:00","last_successful_send_at":null,"last_error":"invalid_grant"}`)
		case "GET /v1/auth/google/start":
			writeJSON(w, http.StatusOK, RedirectResponse{RedirectURL: "https://accounts.google.com/o/oauth2/auth?x=1"})
		case "POST /v1/auth/google/reconnect":
			writeJSON(w, http.StatusOK, RedirectResponse{RedirectURL: "https://accounts.google.com/o/oauth2/auth?x=2"})
		case "POST /v1/auth/google/disconnect":
			writeJSON(w, http.StatusOK, DisconnectResponse{Status: "disconnected", JobsPaused: 3})
		default:
			http.NotFound(w, r)
		}
	}, &staticTokens{token: "tok"})
	ctx := context.Background()

	status, err := c.GoogleStatus(ctx)
	if err != nil {
		t.Fatalf("GoogleStatus: %v", err)
	}
	if !status.Connected || !status.Disconnected() || *status.GmailAddress != "me@gmail.com" {
		t.Errorf("status = %+v", status)
	}
	if status.LastSuccessfulSendAt != nil {
		t.Errorf("LastSuccessfulSendAt = %v, want nil", status.LastSuccessfulSendAt)
	}

	if u, err := c.GoogleStart(ctx); err != nil || u != "https://accounts.google.com/o/oauth2/auth?x=1" {
		t.Errorf("GoogleStart = %q, %v", u, err)
	}
	if u, err := c.GoogleReconnect(ctx); err != nil || u != "https://accounts.google.com/o/oauth2/auth?x=2" {
		t.Errorf("GoogleReconnect = %q, %v", u, err)
	}
	d, err := c.GoogleDisconnect(ctx)
	if err != nil || d.JobsPaused != 3 {
		t.Errorf("GoogleDisconnect = %+v, %v", d, err)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	tokens := &staticTokens{token: "tok"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	}, tokens)

	_, err := c.GetJob(context.Background(), "j1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if tokens.Token() != "" || tokens.invalidated != 1 {
		t.Errorf("token = %q, invalidated = %d", tokens.Token(), tokens.invalidated)
	}
	if StatusCode(err) != 401 {
		t.Errorf("StatusCode(err) = %d", StatusCode(err))
	}
}

func TestConcurrentUnauthorizedClearsOnce(t *testing.T) {
	store := session.NewStore(session.NewMemoryStore(""), testLogger())
	token := signedToken(t, "u1")
	if _, err := store.Adopt(context.Background(), token); err != nil {
		t.Fatalf("Adopt: %v", err)
	}

	var cleared atomic.Int32
	store.OnInvalidate(func() { cleared.Add(1) })

	// hold every request until all of them carry the token
	const n = 2
	var arrived sync.WaitGroup
	arrived.Add(n)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		arrived.Done()
		arrived.Wait()
		w.WriteHeader(http.StatusUnauthorized)
	}, store)

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.ListJobs(context.Background(), ListParams{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("request %d err = %v, want ErrUnauthorized", i, err)
		}
	}
	if got := cleared.Load(); got != 1 {
		t.Errorf("session cleared %d times, want 1", got)
	}
	if store.IsAuthenticated() {
		t.Error("store still authenticated after 401")
	}
}

func TestFailedLoginKeepsExistingSession(t *testing.T) {
	tests := []struct {
		name string
		call func(store *session.Store, c *Client) error
	}{
		{"login", func(store *session.Store, c *Client) error {
			_, err := store.Login(context.Background(), c, "a@example.com", "wrong")
			return err
		}},
		{"register", func(store *session.Store, c *Client) error {
			_, err := store.Register(context.Background(), c, "a@example.com", "pw", "")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := session.NewStore(session.NewMemoryStore(""), testLogger())
			token := signedToken(t, "u1")
			if _, err := store.Adopt(context.Background(), token); err != nil {
				t.Fatalf("Adopt: %v", err)
			}

			var auth string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				auth = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"detail":"Incorrect email or password"}`)
			}, store)

			err := tt.call(store, c)
			if errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want a credential error, not a forced logout", err)
			}
			var re *RemoteError
			if !errors.As(err, &re) || re.StatusCode != 401 || re.Message != "Incorrect email or password" {
				t.Errorf("err = %v, want RemoteError 401 with the server message", err)
			}
			if auth != "" {
				t.Errorf("credential exchange sent Authorization %q", auth)
			}
			if !store.IsAuthenticated() || store.Token() != token {
				t.Error("failed credential exchange cleared the existing session")
			}
		})
	}
}
