package httpserver

import (
	"net/http"
	"time"
)

// New builds the permission API server. Checks and mutations are small
// request/response exchanges, so the timeouts are tight; slow clients get
// cut rather than holding worker goroutines.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
