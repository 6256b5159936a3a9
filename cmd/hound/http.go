package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// handleHTTPServer starts the HTTP server on addr. It shuts the server down
// when ctx is cancelled.
func handleHTTPServer(ctx context.Context, addr string, handler http.Handler, wg *sync.WaitGroup, errc chan error) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: time.Second * 60}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			log.Infof("HTTP server listening on %q", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		<-ctx.Done()
		log.Infof("Shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("Failed to shutdown: %v", err)
		}
	}()
}
