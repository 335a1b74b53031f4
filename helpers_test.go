package couch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/json420/couch.go/internal/fakecouch"
	"github.com/json420/couch.go/pkg/connection"
)

const testDB = "db"

const waitTimeout = 5 * time.Second

func newTestDatabase(t *testing.T, opts ...fakecouch.Option) (*fakecouch.Server, *Database) {
	t.Helper()

	opts = append([]fakecouch.Option{fakecouch.WithDatabase(testDB)}, opts...)
	fake := fakecouch.New(opts...)
	t.Cleanup(fake.Close)

	cfg, err := connection.ParseConfig(fake.URL())
	require.NoError(t, err)
	conn := connection.New(cfg)
	t.Cleanup(func() { _ = conn.Close() })

	return fake, NewServer(conn, fake.URL()).Database(testDB)
}

// receive waits for a value on ch.
func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for callback")
	}
	var zero T
	return zero
}

// nothing asserts ch stays empty for a short while.
func nothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected callback: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}
