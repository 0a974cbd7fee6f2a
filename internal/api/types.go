package api

import "github.com/foxzi/mailjob/internal/job"

// errorBody is the backend's error envelope. detail is a string for
// handled errors and a list of field errors for request validation.
type errorBody struct {
	Detail any `json:"detail"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
}

// GoogleStatus describes the user's Gmail connection
type GoogleStatus struct {
	Connected            bool           `json:"connected"`
	GmailAddress         *string        `json:"gmail_address"`
	TokenStatus          *string        `json:"token_status"`
	ConnectedAt          *job.Timestamp `json:"connected_at"`
	LastSuccessfulSendAt *job.Timestamp `json:"last_successful_send_at"`
	LastError            *string        `json:"last_error"`
}

// Token status values reported for a Gmail connection
const (
	TokenStatusConnected    = "CONNECTED"
	TokenStatusDisconnected = "DISCONNECTED"
)

// Disconnected reports whether a previously connected account lost access
func (g *GoogleStatus) Disconnected() bool {
	return g.TokenStatus != nil && *g.TokenStatus == TokenStatusDisconnected
}

// RedirectResponse carries the provider consent URL
type RedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// DisconnectResponse reports how many jobs were paused by a disconnect
type DisconnectResponse struct {
	Status     string `json:"status"`
	JobsPaused int    `json:"jobs_paused"`
}

// Pagination is the page envelope of list endpoints
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages,omitempty"`
}

// ListParams filters a job listing. Zero values are omitted from the query.
type ListParams struct {
	Filter  job.Filter
	JobType job.Type
	Page    int
	PerPage int
}

// JobPage is one page of jobs
type JobPage struct {
	Jobs       []job.Job  `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// RunPage is one page of runs, most recent first
type RunPage struct {
	Runs       []job.Run  `json:"runs"`
	Pagination Pagination `json:"pagination"`
}

// ActionResponse is returned by pause, resume and cancel
type ActionResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}
