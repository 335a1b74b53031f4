package couchwatch

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	couch "github.com/json420/couch.go"
	"github.com/json420/couch.go/pkg/connection"
	"github.com/json420/couch.go/pkg/models"
)

// Watcher owns the transport and session for one database.
type Watcher struct {
	conn    *connection.HTTPConnection
	session *couch.Session
	logger  zerolog.Logger
}

// NewWatcher connects to cfg.Database and opens a session on it. Every
// accepted remote change is logged and passed to forward, which may be nil.
func NewWatcher(ctx context.Context, cfg *Config, log zerolog.Logger, forward couch.ChangeCallback) (*Watcher, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	connCfg := connection.NewConfig(u)
	connCfg.Timeout = cfg.Timeout
	connCfg.Logger = log
	conn := connection.New(connCfg)

	w := &Watcher{conn: conn, logger: log}
	db := couch.NewServer(conn, connCfg.BaseURL).Database(cfg.Database)
	session, err := couch.NewSession(ctx, db, func(doc models.Document) {
		w.logger.Info().
			Str("doc_id", doc.ID()).
			Str("rev", doc.Rev()).
			Bool("deleted", doc.Deleted()).
			Msg("remote change")
		if forward != nil {
			forward(doc)
		}
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	session.Logger = log
	session.PollTimeout = cfg.PollTimeout
	session.Retryer = cfg.Retryer()
	session.OnCommit = func(rows []models.Row, err error) {
		if err != nil {
			w.logger.Error().Err(err).Msg("commit failed")
			return
		}
		w.logger.Info().Int("count", len(rows)).Msg("commit saved")
	}
	w.session = session
	return w, nil
}

func (w *Watcher) Session() *couch.Session {
	return w.session
}

// Run starts the session and blocks until ctx is done or the change feed
// stops on its own, returning the feed's error in the latter case.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.session.Start(ctx); err != nil {
		return err
	}
	monitor := w.session.Monitor()
	w.logger.Info().
		Str("db", w.session.Database().Name()).
		Int("count", w.session.Len()).
		Str("session_id", w.session.ID()).
		Msg("watching")

	select {
	case <-ctx.Done():
		w.session.Stop()
		<-monitor.Done()
		return nil
	case <-monitor.Done():
		return monitor.Err()
	}
}

// Close releases idle connections.
func (w *Watcher) Close() error {
	return w.conn.Close()
}
