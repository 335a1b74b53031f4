// Package fakecouch provides a fake CouchDB HTTP server for testing purposes.
// It keeps databases in memory and implements the subset of the HTTP API the
// client uses: _uuids, database info and creation, single document reads
// and writes, _bulk_docs, _all_docs and long-poll _changes.
//
// To flexibly inject failures, you can configure stub responses that match
// specific methods and paths, hold matching requests in flight until the
// test releases them, and inspect every request the server received.
package fakecouch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/json420/couch.go/pkg/models"
)

// DefaultLongPollTimeout is how long a long-poll _changes request waits for
// a change before answering with no results.
const DefaultLongPollTimeout = 10 * time.Second

// FailureType represents the type of failure to inject for a stubbed request
type FailureType string

const (
	// FailureNone writes the stub's status and body
	FailureNone FailureType = "none"
	// FailureResponseDelay waits Delay before writing the stub's response
	FailureResponseDelay FailureType = "response_delay"
	// FailureDropConnection closes the connection without answering
	FailureDropConnection FailureType = "drop_connection"
)

// RequestMatcher selects requests by method and path suffix.
// An empty Method matches any method.
type RequestMatcher struct {
	Method string
	Path   string
}

func (m RequestMatcher) match(r *http.Request) bool {
	if m.Method != "" && m.Method != r.Method {
		return false
	}
	return strings.HasSuffix(r.URL.Path, m.Path)
}

// StubResponse is a pre-configured answer for matching requests.
type StubResponse struct {
	Matcher RequestMatcher
	Status  int
	Body    string
	// ContentType defaults to application/json.
	ContentType string
	Failure     FailureType
	Delay       time.Duration
	// Times limits how many requests the stub answers. Zero means forever.
	Times int
}

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Gate holds matching requests in flight until Release is called.
type Gate struct {
	matcher  RequestMatcher
	arrived  chan struct{}
	released chan struct{}
	once     sync.Once
	arrive   sync.Once
}

// Arrived is closed once the first matching request is being held.
func (g *Gate) Arrived() <-chan struct{} {
	return g.arrived
}

// Release lets every held request, and any later matching request, proceed.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.released) })
}

type database struct {
	seq    int64
	docs   map[string]models.Document
	docSeq map[string]int64
	notify chan struct{}
}

func newDatabase() *database {
	return &database{
		docs:   make(map[string]models.Document),
		docSeq: make(map[string]int64),
		notify: make(chan struct{}),
	}
}

// Server is an in-memory CouchDB.
type Server struct {
	mu          sync.Mutex
	srv         *httptest.Server
	dbs         map[string]*database
	stubs       []*StubResponse
	gates       []*Gate
	requests    []Request
	inFlight    map[string]int
	maxInFlight map[string]int
	uuids       int
	pollTimeout time.Duration
	closed      chan struct{}
	closeOnce   sync.Once
}

type Option func(*Server)

// WithLongPollTimeout sets how long a long-poll waits for a change.
func WithLongPollTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.pollTimeout = d
	}
}

// WithDatabase creates an empty database before the server starts.
func WithDatabase(name string) Option {
	return func(s *Server) {
		s.dbs[name] = newDatabase()
	}
}

// New starts a server. Close it when done.
func New(opts ...Option) *Server {
	s := &Server{
		dbs:         make(map[string]*database),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
		pollTimeout: DefaultLongPollTimeout,
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// URL is the server root, ending in "/".
func (s *Server) URL() string {
	return s.srv.URL + "/"
}

// Close stops the server, answering pending long-polls and releasing
// every gate.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		gates := s.gates
		s.mu.Unlock()
		for _, g := range gates {
			g.Release()
		}
		s.srv.CloseClientConnections()
		s.srv.Close()
	})
}

// Stub registers a stub. Later stubs take precedence over earlier ones.
func (s *Server) Stub(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append([]*StubResponse{&stub}, s.stubs...)
}

// Hold keeps requests matching method and path in flight until the
// returned gate is released.
func (s *Server) Hold(method, path string) *Gate {
	g := &Gate{
		matcher:  RequestMatcher{Method: method, Path: path},
		arrived:  make(chan struct{}),
		released: make(chan struct{}),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates = append(s.gates, g)
	return g
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts received requests matching method and path suffix.
func (s *Server) CountRequests(method, path string) int {
	m := RequestMatcher{Method: method, Path: path}
	n := 0
	for _, r := range s.Requests() {
		if (m.Method == "" || m.Method == r.Method) && strings.HasSuffix(r.Path, m.Path) {
			n++
		}
	}
	return n
}

// MaxInFlight is the highest number of concurrent requests observed for
// method and path suffix.
func (s *Server) MaxInFlight(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for key, n := range s.maxInFlight {
		m, p, _ := strings.Cut(key, " ")
		if (method == "" || method == m) && strings.HasSuffix(p, path) && n > highest {
			highest = n
		}
	}
	return highest
}

// CreateDatabase creates an empty database, replacing any existing one.
func (s *Server) CreateDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbs[name] = newDatabase()
}

// PutDocument writes doc as another client would, returning the stored
// document with its new revision.
func (s *Server) PutDocument(dbName string, doc models.Document) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[dbName]
	if !ok {
		return nil, fmt.Errorf("database %q does not exist", dbName)
	}
	row := db.write(doc)
	if row.Error != "" {
		return nil, fmt.Errorf("%s: %s", row.Error, row.Reason)
	}
	return db.docs[row.ID].Clone(), nil
}

// Document returns the stored document with the given id.
func (s *Server) Document(dbName, id string) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[dbName]
	if !ok {
		return nil, false
	}
	doc, ok := db.docs[id]
	return doc.Clone(), ok
}

// UpdateSeq returns the database's current sequence number.
func (s *Server) UpdateSeq(dbName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[dbName]; ok {
		return db.seq
	}
	return 0
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
	})
	s.inFlight[key]++
	if s.inFlight[key] > s.maxInFlight[key] {
		s.maxInFlight[key] = s.inFlight[key]
	}
	var held []*Gate
	for _, g := range s.gates {
		if g.matcher.match(r) {
			held = append(held, g)
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[key]--
		s.mu.Unlock()
	}()

	for _, g := range held {
		g.arrive.Do(func() { close(g.arrived) })
		select {
		case <-g.released:
		case <-r.Context().Done():
			return
		}
	}

	if stub := s.takeStub(r); stub != nil {
		s.writeStub(w, r, stub)
		return
	}
	s.route(w, r, body)
}

func (s *Server) takeStub(r *http.Request) *StubResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, stub := range s.stubs {
		if !stub.Matcher.match(r) {
			continue
		}
		if stub.Times > 0 {
			stub.Times--
			if stub.Times == 0 {
				s.stubs = append(s.stubs[:i], s.stubs[i+1:]...)
			}
		}
		return stub
	}
	return nil
}

func (s *Server) writeStub(w http.ResponseWriter, r *http.Request, stub *StubResponse) {
	switch stub.Failure {
	case FailureDropConnection:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	case FailureResponseDelay:
		select {
		case <-time.After(stub.Delay):
		case <-r.Context().Done():
			return
		}
	}
	contentType := stub.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	status := stub.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, stub.Body)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, body []byte) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case parts[0] == "":
		writeJSON(w, http.StatusOK, map[string]any{"couchdb": "Welcome", "version": "fake"})
		return
	case parts[0] == "_uuids":
		s.handleUUIDs(w, r)
		return
	}

	name := parts[0]
	if len(parts) == 1 {
		s.handleDatabase(w, r, name, body)
		return
	}

	s.mu.Lock()
	_, exists := s.dbs[name]
	s.mu.Unlock()
	if !exists {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	switch parts[1] {
	case "_bulk_docs":
		s.handleBulkDocs(w, r, name, body)
	case "_all_docs":
		s.handleAllDocs(w, r, name)
	case "_changes":
		s.handleChanges(w, r, name)
	case "_design":
		if len(parts) == 3 {
			s.handleDocument(w, r, name, "_design/"+parts[2], body)
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "missing")
	default:
		if len(parts) == 2 {
			s.handleDocument(w, r, name, parts[1], body)
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "missing")
	}
}

func (s *Server) handleUUIDs(w http.ResponseWriter, r *http.Request) {
	count := 1
	if c, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && c > 0 {
		count = c
	}
	uuids := make([]string, count)
	for i := range uuids {
		uuids[i] = models.NewID()
	}
	writeJSON(w, http.StatusOK, models.UUIDs{UUIDs: uuids})
}

func (s *Server) handleDatabase(w http.ResponseWriter, r *http.Request, name string, body []byte) {
	s.mu.Lock()
	db, exists := s.dbs[name]
	s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		if exists {
			writeError(w, http.StatusPreconditionFailed, "file_exists", "The database could not be created, the file already exists.")
			return
		}
		s.CreateDatabase(name)
		writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
		return
	}

	if !exists {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		info := map[string]any{
			"db_name":       name,
			"doc_count":     db.count(false),
			"doc_del_count": db.count(true),
			"update_seq":    db.seq,
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, info)
	case http.MethodPost:
		var doc models.Document
		if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Document must be a JSON object")
			return
		}
		s.mu.Lock()
		row := db.write(doc)
		s.mu.Unlock()
		writeRow(w, http.StatusCreated, row)
	case http.MethodDelete:
		s.mu.Lock()
		delete(s.dbs, name)
		close(db.notify)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET,PUT,POST,DELETE allowed")
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, name, id string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, ok := db.docs[id]
		switch {
		case !ok:
			writeError(w, http.StatusNotFound, "not_found", "missing")
		case doc.Deleted():
			writeError(w, http.StatusNotFound, "not_found", "deleted")
		default:
			writeJSON(w, http.StatusOK, doc)
		}
	case http.MethodPut:
		var doc models.Document
		if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Document must be a JSON object")
			return
		}
		doc.SetID(id)
		writeRow(w, http.StatusCreated, db.write(doc))
	case http.MethodDelete:
		doc := models.Document{
			models.FieldID:      id,
			models.FieldRev:     r.URL.Query().Get("rev"),
			models.FieldDeleted: true,
		}
		writeRow(w, http.StatusOK, db.write(doc))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET,PUT,DELETE allowed")
	}
}

type bulkRequest struct {
	Docs         []models.Document `json:"docs"`
	AllOrNothing bool              `json:"all_or_nothing"`
}

func (s *Server) handleBulkDocs(w http.ResponseWriter, r *http.Request, name string, body []byte) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST allowed")
		return
	}
	var req bulkRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Docs == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "POST body must include `docs` parameter.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.dbs[name]

	if req.AllOrNothing {
		for _, doc := range req.Docs {
			if row := db.check(doc); row.Error != "" {
				writeError(w, http.StatusExpectationFailed, "expectation_failed", row.ID+": "+row.Reason)
				return
			}
		}
	}

	rows := make([]models.Row, 0, len(req.Docs))
	for _, doc := range req.Docs {
		rows = append(rows, db.write(doc))
	}
	writeJSON(w, http.StatusCreated, rows)
}

func (s *Server) handleAllDocs(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	includeDocs := q.Get("include_docs") == "true"

	s.mu.Lock()
	db := s.dbs[name]
	ids := make([]string, 0, len(db.docs))
	for id, doc := range db.docs {
		if !doc.Deleted() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	rows := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		doc := db.docs[id]
		row := map[string]any{
			"id":    id,
			"key":   id,
			"value": map[string]string{"rev": doc.Rev()},
		}
		if includeDocs {
			row["doc"] = doc.Clone()
		}
		rows = append(rows, row)
	}
	result := map[string]any{
		"total_rows": len(rows),
		"offset":     0,
		"rows":       rows,
	}
	if q.Get("update_seq") == "true" {
		result["update_seq"] = db.seq
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	includeDocs := q.Get("include_docs") == "true"
	longpoll := q.Get("feed") == "longpoll"

	var since int64
	switch v := q.Get("since"); v {
	case "", "0":
	case "now":
		since = s.UpdateSeq(name)
	default:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Malformed sequence supplied in 'since' parameter.")
			return
		}
		since = n
	}

	timer := time.NewTimer(s.pollTimeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		db, ok := s.dbs[name]
		if !ok {
			s.mu.Unlock()
			writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
			return
		}
		results := db.changesSince(since, includeDocs)
		last := db.seq
		wait := db.notify
		s.mu.Unlock()

		if len(results) > 0 || !longpoll {
			writeJSON(w, http.StatusOK, map[string]any{"results": results, "last_seq": last, "pending": 0})
			return
		}

		select {
		case <-wait:
		case <-timer.C:
			writeJSON(w, http.StatusOK, map[string]any{"results": []any{}, "last_seq": since, "pending": 0})
			return
		case <-s.closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (db *database) count(deleted bool) int {
	n := 0
	for _, doc := range db.docs {
		if doc.Deleted() == deleted {
			n++
		}
	}
	return n
}

// check reports the row write would produce if it failed.
func (db *database) check(doc models.Document) models.Row {
	id := doc.ID()
	cur, exists := db.docs[id]
	switch {
	case id == "":
		return models.Row{}
	case exists && doc.Rev() != cur.Rev() && !(cur.Deleted() && doc.Rev() == ""):
		return models.Row{ID: id, Error: "conflict", Reason: "Document update conflict."}
	case !exists && doc.Rev() != "":
		return models.Row{ID: id, Error: "conflict", Reason: "Document update conflict."}
	}
	return models.Row{}
}

func (db *database) write(doc models.Document) models.Row {
	if row := db.check(doc); row.Error != "" {
		return row
	}
	id := doc.ID()
	if id == "" {
		id = models.NewID()
	}
	generation := 0
	if cur, ok := db.docs[id]; ok {
		generation, _ = strconv.Atoi(strings.SplitN(cur.Rev(), "-", 2)[0])
	}

	stored := doc.Clone()
	stored.SetID(id)
	stored.SetRev(fmt.Sprintf("%d-%s", generation+1, models.NewID()))

	db.seq++
	db.docs[id] = stored
	db.docSeq[id] = db.seq
	close(db.notify)
	db.notify = make(chan struct{})

	return models.Row{OK: true, ID: id, Rev: stored.Rev()}
}

func (db *database) changesSince(since int64, includeDocs bool) []map[string]any {
	ids := make([]string, 0)
	for id, seq := range db.docSeq {
		if seq > since {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return db.docSeq[ids[i]] < db.docSeq[ids[j]] })

	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		doc := db.docs[id]
		change := map[string]any{
			"seq":     db.docSeq[id],
			"id":      id,
			"changes": []models.Revision{{Rev: doc.Rev()}},
		}
		if doc.Deleted() {
			change["deleted"] = true
		}
		if includeDocs {
			change["doc"] = doc.Clone()
		}
		results = append(results, change)
	}
	return results
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		fmt.Fprintf(&buf, `{"error":"unknown_error","reason":%q}`, err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, name, reason string) {
	writeJSON(w, status, map[string]string{"error": name, "reason": reason})
}

func writeRow(w http.ResponseWriter, status int, row models.Row) {
	if row.Error == "conflict" {
		writeError(w, http.StatusConflict, row.Error, row.Reason)
		return
	}
	writeJSON(w, status, row)
}
