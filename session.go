package couch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/models"
	"github.com/json420/couch.go/pkg/urlpath"
)

// CommitState describes the commit pipeline of a Session.
type CommitState int

const (
	CommitIdle CommitState = iota
	CommitInFlight
	// CommitInFlightPending means another commit was requested while one
	// was in flight. It is issued as soon as the in-flight one completes.
	CommitInFlightPending
)

func (s CommitState) String() string {
	switch s {
	case CommitIdle:
		return "Idle"
	case CommitInFlight:
		return "InFlight"
	case CommitInFlightPending:
		return "InFlight+Pending"
	default:
		return "InvalidState"
	}
}

// ChangeCallback receives a document changed by another writer.
type ChangeCallback func(models.Document)

// CommitCallback receives the outcome of every commit request. On failure
// the documents that were not saved are back in the dirty set.
type CommitCallback func([]models.Row, error)

// lineage holds the revisions of a document that this session's own commits
// replaced, and the newest one they produced.
type lineage struct {
	latest     string
	superseded map[string]bool
}

// Session keeps an in-memory copy of a database in sync with the server.
//
// Documents passed to Mark are copied; the session never hands out its own
// maps, so Doc returns a copy as well. Callbacks run without the session's
// lock held and may call back into the session.
type Session struct {
	OnCommit    CommitCallback
	Logger      zerolog.Logger
	Retryer     Retryer
	PollTimeout time.Duration

	db       *Database
	onChange ChangeCallback
	id       string
	ctx      context.Context

	mu       sync.Mutex
	started  bool
	docs     map[string]models.Document
	dirty    map[string]models.Document
	order    []string
	revs     map[string]*lineage
	inFlight bool
	pending  bool
	monitor  *ChangesMonitor
}

// NewSession asks the server for a session id. Commits issued later run
// under a context carrying ctx's values but not its cancellation.
func NewSession(ctx context.Context, db *Database, onChange ChangeCallback) (*Session, error) {
	uuids, err := db.Server().UUIDs(ctx, 1)
	if err != nil {
		return nil, err
	}
	return &Session{
		Logger:      zerolog.Nop(),
		PollTimeout: constants.DefaultPollTimeout,
		db:          db,
		onChange:    onChange,
		id:          uuids[0],
		ctx:         context.WithoutCancel(ctx),
		docs:        make(map[string]models.Document),
		dirty:       make(map[string]models.Document),
		revs:        make(map[string]*lineage),
	}, nil
}

// ID is stamped into the session_id field of every document the session
// saves.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Database() *Database {
	return s.db
}

// Start loads every document and starts following the change feed from
// the sequence the snapshot was taken at.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return constants.ErrSessionStarted
	}
	s.started = true
	s.mu.Unlock()

	monitor, err := s.load(ctx)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}
	return monitor.Start(s.ctx)
}

func (s *Session) load(ctx context.Context) (*ChangesMonitor, error) {
	result, err := s.db.AllDocs(ctx, urlpath.Options{"include_docs": true, "update_seq": true})
	if err != nil {
		return nil, err
	}
	since := result.UpdateSeq
	if since.IsZero() {
		info, err := s.db.Info(ctx)
		if err != nil {
			return nil, err
		}
		since = info.UpdateSeq
	}

	monitor := NewChangesMonitor(s.db, since, s.onChanges)
	monitor.Retryer = s.Retryer
	monitor.PollTimeout = s.PollTimeout
	monitor.Logger = s.Logger

	s.mu.Lock()
	for _, row := range result.Rows {
		if row.Doc != nil {
			s.docs[row.Doc.ID()] = row.Doc
		}
	}
	s.monitor = monitor
	s.mu.Unlock()

	s.Logger.Info().
		Str("session_id", s.id).
		Str("db", s.db.Name()).
		Int("count", len(result.Rows)).
		Stringer("since", since).
		Msg("session started")
	return monitor, nil
}

// Stop stops following the change feed. A commit in flight still completes.
func (s *Session) Stop() {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()
	if monitor != nil {
		monitor.Stop()
	}
}

// Monitor returns the change-feed monitor, or nil before Start.
func (s *Session) Monitor() *ChangesMonitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

// Doc returns a copy of the cached document.
func (s *Session) Doc(id string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	return doc.Clone(), ok
}

// Len is the number of cached documents.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Dirty is the number of documents waiting to be committed.
func (s *Session) Dirty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

func (s *Session) CommitState() CommitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.inFlight && s.pending:
		return CommitInFlightPending
	case s.inFlight:
		return CommitInFlight
	default:
		return CommitIdle
	}
}

// Mark stamps doc with the session id and records a copy of it for the next
// commit. A document without _id is given one. Marking the same id again
// before the commit replaces the earlier copy but keeps its place in the
// batch.
//
// The session keeps its own copy, so doc itself is not updated when the
// commit lands: its _rev goes stale. Code that saves doc directly, outside
// the session, should fetch the current revision with Doc first. If doc
// carries a revision that this session's own commits have since replaced,
// Mark moves it to the newest revision they produced.
func (s *Session) Mark(doc models.Document) {
	if doc == nil {
		return
	}
	if doc.ID() == "" {
		doc.SetID(models.NewID())
	}
	doc.SetSessionID(s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := doc.ID()
	if l, ok := s.revs[id]; ok && l.superseded[doc.Rev()] {
		doc.SetRev(l.latest)
	}
	if _, ok := s.dirty[id]; !ok {
		s.order = append(s.order, id)
	}
	s.dirty[id] = doc.Clone()
}

// Commit sends every dirty document in one bulk save. It does nothing when
// no document is dirty. While a commit is in flight it only records that
// another one is wanted; that commit is sent, with whatever is dirty at the
// time, as soon as the in-flight one completes.
func (s *Session) Commit() {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}

	batch := make([]models.Document, 0, len(s.order))
	prev := make([]string, 0, len(s.order))
	for _, id := range s.order {
		doc := s.dirty[id]
		batch = append(batch, doc)
		prev = append(prev, doc.Rev())
	}
	s.dirty = make(map[string]models.Document)
	s.order = nil
	s.inFlight = true
	s.mu.Unlock()

	s.Logger.Debug().Str("session_id", s.id).Int("count", len(batch)).Msg("commit sent")
	s.db.BulkSaveAsync(s.ctx, batch, func(rows []models.Row, err error) {
		s.complete(batch, prev, rows, err)
	})
}

func (s *Session) complete(batch []models.Document, prev []string, rows []models.Row, err error) {
	var failed []models.Document
	var bulkErr *BulkError

	s.mu.Lock()
	if err == nil || errors.As(err, &bulkErr) {
		for i, row := range rows {
			doc := batch[i]
			if row.Error != "" {
				failed = append(failed, doc)
				continue
			}
			s.docs[row.ID] = doc
			l := s.revs[row.ID]
			if l == nil {
				l = &lineage{superseded: make(map[string]bool)}
				s.revs[row.ID] = l
			}
			l.superseded[prev[i]] = true
			l.latest = row.Rev
			if marked, ok := s.dirty[row.ID]; ok && l.superseded[marked.Rev()] {
				marked.SetRev(row.Rev)
			}
		}
	} else {
		failed = batch
	}
	s.restore(failed)

	s.inFlight = false
	again := s.pending
	s.pending = false
	onCommit := s.OnCommit
	s.mu.Unlock()

	if err != nil {
		s.Logger.Error().Err(err).Str("session_id", s.id).Int("count", len(failed)).Msg("commit failed")
	} else {
		s.Logger.Debug().Str("session_id", s.id).Int("count", len(rows)).Msg("commit completed")
	}

	if onCommit != nil {
		onCommit(rows, err)
	}
	if again {
		s.Commit()
	}
}

// restore puts failed documents back in front of the dirty set, unless the
// same id was marked again in the meantime.
func (s *Session) restore(failed []models.Document) {
	if len(failed) == 0 {
		return
	}
	order := make([]string, 0, len(failed)+len(s.order))
	for _, doc := range failed {
		id := doc.ID()
		if _, ok := s.dirty[id]; ok {
			continue
		}
		s.dirty[id] = doc
		order = append(order, id)
	}
	s.order = append(order, s.order...)
}

func (s *Session) onChanges(result *models.ChangesResult) {
	accepted := make([]models.Document, 0, len(result.Results))

	s.mu.Lock()
	for _, change := range result.Results {
		doc := change.Doc
		if doc == nil || doc.SessionID() == s.id {
			continue
		}
		if doc.ID() == "" {
			doc.SetID(change.ID)
		}
		s.docs[doc.ID()] = doc
		delete(s.revs, doc.ID())
		accepted = append(accepted, doc.Clone())
	}
	s.mu.Unlock()

	for _, doc := range accepted {
		s.Logger.Debug().Str("session_id", s.id).Str("doc_id", doc.ID()).Msg("remote change applied")
		if s.onChange != nil {
			s.onChange(doc)
		}
	}
}
