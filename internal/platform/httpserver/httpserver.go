// Package httpserver builds the process's HTTP server from configuration.
package httpserver

import (
	"net/http"
	"time"

	"skillpass/internal/platform/config"
)

// New builds the server. Read and write timeouts come from configuration;
// the header timeout is fixed because slow-header clients are never
// legitimate on this surface.
func New(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       90 * time.Second,
	}
}
