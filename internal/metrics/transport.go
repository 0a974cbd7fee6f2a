package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Transport is an http.RoundTripper that records backend request metrics
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// RoundTrip performs the request and records its outcome
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	m := Global()
	if m == nil {
		return t.Base.RoundTrip(req)
	}

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	duration := time.Since(start).Seconds()

	route := NormalizeRoute(req.URL.Path)
	m.APIRequestDurationSeconds.WithLabelValues(req.Method, route).Observe(duration)

	if err != nil {
		m.APIRequestsTotal.WithLabelValues(req.Method, route, "error").Inc()
		m.APIErrorsTotal.WithLabelValues("transport").Inc()
		return nil, err
	}

	m.APIRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		m.APIErrorsTotal.WithLabelValues(categorizeStatus(resp.StatusCode)).Inc()
	}
	return resp, nil
}

// NormalizeRoute replaces job identifiers in a backend path with {id}
// so per-job calls share one label value.
func NormalizeRoute(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i-1] == "jobs" && parts[i] != "" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// categorizeStatus categorizes HTTP status codes into error types
func categorizeStatus(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status == 429:
		return "rate_limited"
	case status == 401:
		return "unauthorized"
	case status == 403:
		return "forbidden"
	case status == 404:
		return "not_found"
	case status == 400 || status == 422:
		return "bad_request"
	case status >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
