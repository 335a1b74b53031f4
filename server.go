package couch

import (
	"context"
	"fmt"

	"github.com/json420/couch.go/pkg/connection"
	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/models"
	"github.com/json420/couch.go/pkg/urlpath"
)

// Server makes requests relative to the server root.
type Server struct {
	Client
}

func NewServer(t connection.Transport, url string) *Server {
	return &Server{Client: newClient(t, url)}
}

// Database returns a Database sharing the server's transport.
func (s *Server) Database(name string) *Database {
	return NewDatabase(s.transport, s.url, name)
}

// UUIDs asks the server for count fresh identifiers.
func (s *Server) UUIDs(ctx context.Context, count int) ([]string, error) {
	var result models.UUIDs
	if err := s.Get(ctx, []string{"_uuids"}, urlpath.Options{"count": count}, &result); err != nil {
		return nil, err
	}
	if len(result.UUIDs) < count {
		return nil, fmt.Errorf("%w: asked for %d uuids, got %d", constants.ErrProtocol, count, len(result.UUIDs))
	}
	return result.UUIDs, nil
}

func (s *Server) CreateDatabase(ctx context.Context, name string) (*Database, error) {
	if err := s.Put(ctx, nil, []string{name}, nil, nil); err != nil {
		return nil, err
	}
	return s.Database(name), nil
}

func (s *Server) DeleteDatabase(ctx context.Context, name string) error {
	return s.Delete(ctx, []string{name}, nil, nil)
}
