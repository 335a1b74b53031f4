package couch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/models"
)

type MonitorState int

const (
	MonitorIdle MonitorState = iota
	MonitorPolling
	MonitorStopped
)

func (s MonitorState) String() string {
	switch s {
	case MonitorIdle:
		return "Idle"
	case MonitorPolling:
		return "Polling"
	case MonitorStopped:
		return "Stopped"
	default:
		return "InvalidState"
	}
}

func (s MonitorState) validateTransitionTo(newState MonitorState) error {
	switch s {
	case MonitorIdle:
		if newState == MonitorPolling || newState == MonitorStopped {
			return nil
		}
	case MonitorPolling:
		if newState == MonitorStopped {
			return nil
		}
	}
	return fmt.Errorf("%w from %v to %v", constants.ErrInvalidTransition, s, newState)
}

// ChangesCallback receives every change-feed result that advanced the cursor.
type ChangesCallback func(*models.ChangesResult)

// ChangesMonitor follows a database's change feed with one long-poll
// request outstanding at a time. Whenever a response's last_seq differs
// from the cursor, the cursor moves to it and the callback runs; the next
// poll is issued once the callback returns.
//
// Set the exported fields before calling Start.
type ChangesMonitor struct {
	// Retryer, if set, retries polls that failed in a Retryable way. Otherwise
	// the first failure stops the monitor and is reported by Err.
	Retryer Retryer
	// PollTimeout bounds a single poll. It should exceed the server's
	// long-poll timeout.
	PollTimeout time.Duration
	Logger      zerolog.Logger

	db       *Database
	callback ChangesCallback

	mu     sync.Mutex
	state  MonitorState
	since  models.Sequence
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

func NewChangesMonitor(db *Database, since models.Sequence, callback ChangesCallback) *ChangesMonitor {
	return &ChangesMonitor{
		PollTimeout: constants.DefaultPollTimeout,
		Logger:      zerolog.Nop(),
		db:          db,
		callback:    callback,
		since:       since,
		done:        make(chan struct{}),
	}
}

func (m *ChangesMonitor) transitionTo(newState MonitorState) error {
	if err := m.state.validateTransitionTo(newState); err != nil {
		return err
	}
	m.state = newState
	m.Logger.Debug().Stringer("state", newState).Str("db", m.db.Name()).Msg("changes monitor state transitioned")
	return nil
}

// Start begins polling. The loop runs until Stop is called, ctx is done, or
// a poll fails for good.
func (m *ChangesMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == MonitorStopped {
		return constants.ErrMonitorStopped
	}
	if err := m.transitionTo(MonitorPolling); err != nil {
		return err
	}

	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
	return nil
}

// Stop cancels the in-flight poll and prevents any further one. It does not
// wait for the loop to exit; use Done for that.
func (m *ChangesMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(nil)
}

func (m *ChangesMonitor) stopLocked(err error) {
	if m.state == MonitorStopped {
		return
	}
	wasIdle := m.state == MonitorIdle
	_ = m.transitionTo(MonitorStopped)
	m.err = err
	if m.cancel != nil {
		m.cancel()
	}
	if wasIdle {
		close(m.done)
	}
}

// Done is closed once the monitor has stopped and its loop has exited.
func (m *ChangesMonitor) Done() <-chan struct{} {
	return m.done
}

// Err returns the failure that stopped the monitor, if any.
func (m *ChangesMonitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *ChangesMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Since returns the cursor.
func (m *ChangesMonitor) Since() models.Sequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

func (m *ChangesMonitor) run(ctx context.Context) {
	defer close(m.done)

	attempt := 0
	for ctx.Err() == nil {
		result, err := m.poll(ctx)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			delay, retry := m.nextDelay(attempt, err)
			if !retry {
				m.Logger.Error().Err(err).Str("db", m.db.Name()).Stringer("since", m.Since()).Msg("changes monitor stopped")
				m.mu.Lock()
				m.stopLocked(err)
				m.mu.Unlock()
				return
			}
			m.Logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("changes poll failed, retrying")
			attempt++
			if !sleep(ctx, delay) {
				break
			}
			continue
		}

		if attempt > 0 {
			m.Retryer.Reset()
			attempt = 0
		}
		m.handle(result)
	}

	m.mu.Lock()
	m.stopLocked(nil)
	m.mu.Unlock()
}

func (m *ChangesMonitor) nextDelay(attempt int, err error) (time.Duration, bool) {
	if m.Retryer == nil || !Retryable(err) {
		return 0, false
	}
	return m.Retryer.NextDelay(attempt, err)
}

func (m *ChangesMonitor) poll(ctx context.Context) (*models.ChangesResult, error) {
	since := m.Since()
	if m.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.PollTimeout)
		defer cancel()
	}

	result, err := m.db.Changes(ctx, ChangesOptions(since))
	if err != nil {
		return nil, err
	}
	if result.LastSeq.IsZero() {
		return nil, fmt.Errorf("%w: _changes response without last_seq", constants.ErrProtocol)
	}
	return result, nil
}

func (m *ChangesMonitor) handle(result *models.ChangesResult) {
	m.mu.Lock()
	if m.state == MonitorStopped || result.LastSeq.Equal(m.since) {
		m.mu.Unlock()
		return
	}
	m.since = result.LastSeq
	m.mu.Unlock()

	m.Logger.Debug().
		Str("db", m.db.Name()).
		Stringer("since", result.LastSeq).
		Int("count", len(result.Results)).
		Msg("change feed advanced")

	if m.callback != nil {
		m.callback(result)
	}
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
