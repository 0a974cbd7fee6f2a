package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/mailjob/internal/job"
	"github.com/foxzi/mailjob/internal/metrics"
)

// TokenSource supplies the bearer token and is told when the backend
// rejected it. *session.Store satisfies it.
type TokenSource interface {
	Token() string
	Invalidate(ctx context.Context, token string) bool
}

// Config holds gateway settings
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client is the single gateway to the scheduling backend
type Client struct {
	baseURL    string
	userAgent  string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway. tokens may be nil for unauthenticated use.
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		tokens:    tokens,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: metrics.NewTransport(nil),
		},
		logger: logger.With("component", "api"),
	}
}

// Credential exchanges are sent without a bearer token. Their 401 means
// wrong credentials, not an expired session.
var credentialPaths = map[string]bool{
	"/auth/login":    true,
	"/auth/register": true,
}

// request performs an HTTP request to the backend. A 401 clears the
// session that carried the token before ErrUnauthorized is returned.
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	var token string
	if c.tokens != nil && !credentialPaths[path] {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
	)

	if resp.StatusCode == http.StatusUnauthorized && credentialPaths[path] {
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if token != "" && c.tokens.Invalidate(ctx, token) {
			metrics.IncForcedLogout()
		}
		return &UnauthorizedError{Path: path}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &ProtocolError{Path: path, Err: err}
		}
	}

	return nil
}

// errorMessage extracts detail from an error body, falling back to the status
func errorMessage(resp *http.Response) string {
	fallback := fmt.Sprintf("Request failed: %d", resp.StatusCode)

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fallback
	}

	switch d := body.Detail.(type) {
	case string:
		if d != "" {
			return d
		}
	case []any:
		var msgs []string
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if s, ok := m["msg"].(string); ok && s != "" {
					msgs = append(msgs, s)
				}
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return fallback
}

func jobPath(id string, suffix ...string) string {
	p := "/jobs/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// Register creates an account and returns its access token
func (c *Client) Register(ctx context.Context, email, password, name string) (string, error) {
	var resp AuthResponse
	req := registerRequest{Email: email, Password: password, Name: name}
	if err := c.request(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &ProtocolError{Path: "/auth/register", Err: errors.New("missing access_token")}
	}
	return resp.AccessToken, nil
}

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp AuthResponse
	req := loginRequest{Email: email, Password: password}
	if err := c.request(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &ProtocolError{Path: "/auth/login", Err: errors.New("missing access_token")}
	}
	return resp.AccessToken, nil
}

// GoogleStatus returns the Gmail connection state
func (c *Client) GoogleStatus(ctx context.Context) (*GoogleStatus, error) {
	var resp GoogleStatus
	if err := c.request(ctx, http.MethodGet, "/auth/google/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoogleStart returns the consent URL to connect a Gmail account
func (c *Client) GoogleStart(ctx context.Context) (string, error) {
	return c.redirect(ctx, http.MethodGet, "/auth/google/start")
}

// GoogleReconnect returns the consent URL to restore a revoked connection
func (c *Client) GoogleReconnect(ctx context.Context) (string, error) {
	return c.redirect(ctx, http.MethodPost, "/auth/google/reconnect")
}

func (c *Client) redirect(ctx context.Context, method, path string) (string, error) {
	var resp RedirectResponse
	if err := c.request(ctx, method, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.RedirectURL == "" {
		return "", &ProtocolError{Path: path, Err: errors.New("missing redirect_url")}
	}
	return resp.RedirectURL, nil
}

// GoogleDisconnect removes the Gmail connection. The backend pauses
// active jobs that depended on it.
func (c *Client) GoogleDisconnect(ctx context.Context) (*DisconnectResponse, error) {
	var resp DisconnectResponse
	if err := c.request(ctx, http.MethodPost, "/auth/google/disconnect", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateJob submits a validated draft
func (c *Client) CreateJob(ctx context.Context, req *job.CreateRequest) (*job.Job, error) {
	var resp job.Job
	if err := c.request(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &ProtocolError{Path: "/jobs", Err: errors.New("missing job_id")}
	}
	return &resp, nil
}

// ListJobs returns one page of jobs. FilterAll omits the status parameter.
// A missing total_pages is reported as 1.
func (c *Client) ListJobs(ctx context.Context, params ListParams) (*JobPage, error) {
	query := url.Values{}
	if s := params.Filter.StatusParam(); s != "" {
		query.Set("status", s)
	}
	if params.JobType != "" {
		query.Set("job_type", string(params.JobType))
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(params.PerPage))
	}

	path := "/jobs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp JobPage
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Jobs == nil {
		return nil, &ProtocolError{Path: "/jobs", Err: errors.New("missing jobs")}
	}
	if resp.Pagination.TotalPages < 1 {
		resp.Pagination.TotalPages = 1
	}
	return &resp, nil
}

// GetJob returns one job record
func (c *Client) GetJob(ctx context.Context, id string) (*job.Job, error) {
	path := jobPath(id)
	var resp job.Job
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &ProtocolError{Path: path, Err: errors.New("missing job_id")}
	}
	return &resp, nil
}

// Act asks the backend to apply a lifecycle action. It does not check
// whether the action is allowed for the job's cached status.
func (c *Client) Act(ctx context.Context, id string, action job.Action) (*ActionResponse, error) {
	path := jobPath(id, string(action))
	var resp ActionResponse
	if err := c.request(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelJob cancels a job
func (c *Client) CancelJob(ctx context.Context, id string) (*ActionResponse, error) {
	return c.Act(ctx, id, job.ActionCancel)
}

// PauseJob pauses a job
func (c *Client) PauseJob(ctx context.Context, id string) (*ActionResponse, error) {
	return c.Act(ctx, id, job.ActionPause)
}

// ResumeJob resumes a paused job
func (c *Client) ResumeJob(ctx context.Context, id string) (*ActionResponse, error) {
	return c.Act(ctx, id, job.ActionResume)
}

// JobRuns returns one page of a job's run history
func (c *Client) JobRuns(ctx context.Context, id string, page int) (*RunPage, error) {
	if page < 1 {
		page = 1
	}
	path := jobPath(id, "runs") + "?page=" + strconv.Itoa(page)

	var resp RunPage
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Runs == nil {
		return nil, &ProtocolError{Path: jobPath(id, "runs"), Err: errors.New("missing runs")}
	}
	if resp.Pagination.TotalPages < 1 {
		resp.Pagination.TotalPages = 1
	}
	return &resp, nil
}
