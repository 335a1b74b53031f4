package couchwatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Watch runs a Watcher until ctx is done, logging remote changes only.
func Watch(ctx context.Context, cfg *Config, log zerolog.Logger) error {
	w, err := NewWatcher(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Run(ctx)
}

// Serve runs a Watcher and serves its Hub at /changes on ln until ctx is
// done or either of them fails.
func Serve(ctx context.Context, cfg *Config, log zerolog.Logger, ln net.Listener) error {
	hub := NewHub(log)
	w, err := NewWatcher(ctx, cfg, log, hub.Broadcast)
	if err != nil {
		return err
	}
	defer w.Close()
	hub.Attach(w.Session())

	mux := http.NewServeMux()
	mux.Handle("/changes", hub)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("listen", ln.Addr().String()).Msg("serving /changes")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
