package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartServer serves /metrics for service on its own port, outside the API
// middleware chain, so scrapes are neither rate limited nor counted as API
// traffic. The returned func stops the server.
func StartServer(service string, port int) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.Handle("GET /{$}", http.RedirectHandler("/metrics", http.StatusFound))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	log := slog.Default().With("component", "metrics-server", "service", service)

	go func() {
		log.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
