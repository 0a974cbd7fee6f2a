package callback

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// query strings carry tokens, so only the path is logged
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		writePage(w, http.StatusBadRequest, "Sign-in failed: no token was returned.")
		return
	}

	if !s.deliver(Result{Token: token, Email: q.Get("email")}) {
		writePage(w, http.StatusConflict, "A sign-in was already received.")
		return
	}
	writePage(w, http.StatusOK, "You're in! Return to the terminal.")
}

func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := Result{OAuth: q.Get("oauth"), Reason: q.Get("reason")}

	switch res.OAuth {
	case OAuthSuccess:
	case OAuthError:
		if res.Reason == "" {
			res.Reason = "unknown"
		}
	default:
		writePage(w, http.StatusBadRequest, "Unrecognized callback.")
		return
	}

	if !s.deliver(res) {
		writePage(w, http.StatusConflict, "A result was already received.")
		return
	}
	if res.Failed() {
		writePage(w, http.StatusOK, fmt.Sprintf("Connection failed: %s", res.Reason))
		return
	}
	writePage(w, http.StatusOK, "Gmail connected successfully!")
}

func writePage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg)
}
