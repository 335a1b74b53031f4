package couch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/json420/couch.go/pkg/connection"
	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/models"
	"github.com/json420/couch.go/pkg/urlpath"
)

// Database makes requests relative to a database.
//
//	db := couch.NewDatabase(t, "/", "dmedia")
//	db.URL()      // "/"
//	db.BasePath() // "/dmedia/"
//	db.Name()     // "dmedia"
type Database struct {
	Client
	name string
}

func NewDatabase(t connection.Transport, url, name string) *Database {
	c := newClient(t, url)
	c.basePath = c.url + name + "/"
	return &Database{Client: c, name: name}
}

func (db *Database) Name() string {
	return db.name
}

// Server returns a Server for the database's server root.
func (db *Database) Server() *Server {
	return NewServer(db.transport, db.url)
}

func (db *Database) Info(ctx context.Context) (*models.DatabaseInfo, error) {
	var info models.DatabaseInfo
	if err := db.Get(ctx, nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Document fetches the current revision of a document.
func (db *Database) Document(ctx context.Context, id string) (models.Document, error) {
	if id == "" {
		return nil, constants.ErrNoDocumentID
	}
	var doc models.Document
	if err := db.Get(ctx, []string{id}, nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save creates or updates doc and sets its _id and _rev from the response.
func (db *Database) Save(ctx context.Context, doc models.Document) (*models.Row, error) {
	var row models.Row
	if err := db.Post(ctx, doc, nil, nil, &row); err != nil {
		return nil, err
	}
	doc.SetID(row.ID)
	doc.SetRev(row.Rev)
	return &row, nil
}

type bulkRequest struct {
	Docs         []models.Document `json:"docs"`
	AllOrNothing bool              `json:"all_or_nothing"`
}

// BulkSave saves docs in one all-or-nothing _bulk_docs request. Each
// document's _id and _rev are set from the row at the same index. Rows that
// report an error leave their document untouched and are returned as a
// *BulkError alongside the full row list.
func (db *Database) BulkSave(ctx context.Context, docs []models.Document) ([]models.Row, error) {
	res := db.Request(ctx, http.MethodPost, bulkRequest{Docs: docs, AllOrNothing: true}, []string{"_bulk_docs"}, nil)
	return applyRows(res, docs)
}

// BulkSaveAsync is BulkSave in the background. docs must not be touched
// until done is called.
func (db *Database) BulkSaveAsync(ctx context.Context, docs []models.Document, done func([]models.Row, error)) {
	db.RequestAsync(ctx, http.MethodPost, bulkRequest{Docs: docs, AllOrNothing: true}, []string{"_bulk_docs"}, nil,
		func(res *connection.Response) {
			rows, err := applyRows(res, docs)
			if done != nil {
				done(rows, err)
			}
		})
}

func applyRows(res *connection.Response, docs []models.Document) ([]models.Row, error) {
	var rows []models.Row
	if err := res.Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) != len(docs) {
		return nil, fmt.Errorf("%w: %s %s: sent %d documents, got %d rows",
			constants.ErrProtocol, res.Method, res.URL, len(docs), len(rows))
	}

	var failed []models.Row
	for i, row := range rows {
		if row.Error != "" {
			failed = append(failed, row)
			continue
		}
		docs[i].SetID(row.ID)
		docs[i].SetRev(row.Rev)
	}
	if len(failed) > 0 {
		return rows, &BulkError{Failed: failed}
	}
	return rows, nil
}

// AllDocs reads _all_docs. Pass {"include_docs": true} for document bodies.
func (db *Database) AllDocs(ctx context.Context, options urlpath.Options) (*models.ViewResult, error) {
	var result models.ViewResult
	if err := db.Get(ctx, []string{"_all_docs"}, options, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func viewParts(design, view string) []string {
	return []string{"_design", design, "_view", view}
}

// View queries _design/<design>/_view/<view>.
func (db *Database) View(ctx context.Context, design, view string, options urlpath.Options) (*models.ViewResult, error) {
	var result models.ViewResult
	if err := db.Get(ctx, viewParts(design, view), options, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (db *Database) ViewAsync(ctx context.Context, design, view string, options urlpath.Options, done func(*models.ViewResult, error)) {
	db.GetAsync(ctx, viewParts(design, view), options, func(res *connection.Response) {
		var result models.ViewResult
		if err := res.Decode(&result); err != nil {
			done(nil, err)
			return
		}
		done(&result, nil)
	})
}

// AttachmentURL returns the URL of an attachment. docOrID is a document or
// its id.
//
//	db.AttachmentURL(models.Document{"_id": "foo"}, "thumbnail") // "/dmedia/foo/thumbnail"
//	db.AttachmentURL("foo", "thumbnail")                         // "/dmedia/foo/thumbnail"
func (db *Database) AttachmentURL(docOrID any, name string) string {
	var id string
	switch v := docOrID.(type) {
	case models.Document:
		id = v.ID()
	case map[string]any:
		id = models.Document(v).ID()
	case string:
		id = v
	default:
		id = fmt.Sprint(v)
	}
	return db.Path([]string{id, name}, nil)
}

// ChangesOptions are the query options of a long-poll that includes
// document bodies. A zero since is left out.
func ChangesOptions(since models.Sequence) urlpath.Options {
	options := urlpath.Options{
		"feed":         "longpoll",
		"include_docs": true,
	}
	if !since.IsZero() {
		options["since"] = since.String()
	}
	return options
}

// Changes reads the change feed once. With feed=longpoll the server holds
// the request until a change arrives or its own timeout elapses.
func (db *Database) Changes(ctx context.Context, options urlpath.Options) (*models.ChangesResult, error) {
	var result models.ChangesResult
	if err := db.Get(ctx, []string{"_changes"}, options, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MonitorChanges starts a ChangesMonitor from since.
func (db *Database) MonitorChanges(ctx context.Context, callback ChangesCallback, since models.Sequence) (*ChangesMonitor, error) {
	m := NewChangesMonitor(db, since, callback)
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
