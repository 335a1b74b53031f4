package fakecouch

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/json420/couch.go/pkg/models"
)

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestDocumentLifecycle(t *testing.T) {
	s := New()
	defer s.Close()

	assert.Equal(t, http.StatusCreated, do(t, "PUT", s.URL()+"db", nil, nil))
	assert.Equal(t, http.StatusPreconditionFailed, do(t, "PUT", s.URL()+"db", nil, nil))

	var row models.Row
	assert.Equal(t, http.StatusCreated, do(t, "POST", s.URL()+"db/", map[string]any{"v": 1}, &row))
	assert.True(t, row.OK)
	assert.Len(t, row.ID, 32)
	assert.Regexp(t, `^1-`, row.Rev)

	var conflict map[string]string
	assert.Equal(t, http.StatusConflict, do(t, "PUT", s.URL()+"db/"+row.ID, map[string]any{"v": 2}, &conflict))
	assert.Equal(t, "conflict", conflict["error"])

	var updated models.Row
	assert.Equal(t, http.StatusCreated, do(t, "PUT", s.URL()+"db/"+row.ID, map[string]any{"_rev": row.Rev, "v": 2}, &updated))
	assert.Regexp(t, `^2-`, updated.Rev)

	var doc models.Document
	assert.Equal(t, http.StatusOK, do(t, "GET", s.URL()+"db/"+row.ID, nil, &doc))
	assert.Equal(t, updated.Rev, doc.Rev())
	assert.EqualValues(t, 2, doc["v"])

	assert.Equal(t, http.StatusOK, do(t, "DELETE", s.URL()+"db/"+row.ID+"?rev="+updated.Rev, nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, "GET", s.URL()+"db/"+row.ID, nil, nil))

	var info models.DatabaseInfo
	assert.Equal(t, http.StatusOK, do(t, "GET", s.URL()+"db", nil, &info))
	assert.Equal(t, "db", info.DBName)
	assert.Equal(t, int64(1), info.DocDelCount)
	assert.Equal(t, "3", info.UpdateSeq.String())
}

func TestBulkDocsAllOrNothing(t *testing.T) {
	s := New(WithDatabase("db"))
	defer s.Close()

	existing, err := s.PutDocument("db", models.Document{"_id": "a"})
	require.NoError(t, err)

	var failed map[string]string
	status := do(t, "POST", s.URL()+"db/_bulk_docs", map[string]any{
		"all_or_nothing": true,
		"docs":           []models.Document{{"_id": "b"}, {"_id": "a", "_rev": "1-wrong"}},
	}, &failed)
	assert.Equal(t, http.StatusExpectationFailed, status)
	_, ok := s.Document("db", "b")
	assert.False(t, ok)

	var rows []models.Row
	status = do(t, "POST", s.URL()+"db/_bulk_docs", map[string]any{
		"all_or_nothing": true,
		"docs":           []models.Document{{"_id": "b"}, {"_id": "a", "_rev": existing.Rev()}},
	}, &rows)
	assert.Equal(t, http.StatusCreated, status)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, "a", rows[1].ID)
	assert.Regexp(t, `^2-`, rows[1].Rev)
}

func TestAllDocsUpdateSeq(t *testing.T) {
	s := New(WithDatabase("db"))
	defer s.Close()

	for _, id := range []string{"b", "a"} {
		_, err := s.PutDocument("db", models.Document{"_id": id})
		require.NoError(t, err)
	}

	var result models.ViewResult
	do(t, "GET", s.URL()+"db/_all_docs?include_docs=true&update_seq=true", nil, &result)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "a", result.Rows[0].ID)
	assert.Equal(t, "a", result.Rows[0].Doc.ID())
	assert.Equal(t, "2", result.UpdateSeq.String())
}

func TestLongPollWakesOnWrite(t *testing.T) {
	s := New(WithDatabase("db"), WithLongPollTimeout(5*time.Second))
	defer s.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = s.PutDocument("db", models.Document{"_id": "x", "session_id": "other"})
	}()

	var result models.ChangesResult
	start := time.Now()
	do(t, "GET", s.URL()+"db/_changes?feed=longpoll&include_docs=true&since=0", nil, &result)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "x", result.Results[0].Doc.ID())
	assert.Equal(t, "1", result.LastSeq.String())
}

func TestLongPollTimeout(t *testing.T) {
	s := New(WithDatabase("db"), WithLongPollTimeout(20*time.Millisecond))
	defer s.Close()

	var result models.ChangesResult
	do(t, "GET", s.URL()+"db/_changes?feed=longpoll&since=0", nil, &result)
	assert.Empty(t, result.Results)
	assert.Equal(t, "0", result.LastSeq.String())
}

func TestStubAndHold(t *testing.T) {
	s := New(WithDatabase("db"))
	defer s.Close()

	s.Stub(StubResponse{
		Matcher: RequestMatcher{Method: "GET", Path: "/_view/by_name"},
		Status:  http.StatusOK,
		Body:    `{"total_rows":1,"offset":0,"rows":[{"id":"a","key":"x","value":1}]}`,
		Times:   1,
	})
	var view models.ViewResult
	assert.Equal(t, http.StatusOK, do(t, "GET", s.URL()+"db/_design/d/_view/by_name", nil, &view))
	assert.Len(t, view.Rows, 1)
	assert.Equal(t, http.StatusNotFound, do(t, "GET", s.URL()+"db/_design/d/_view/by_name", nil, nil))

	gate := s.Hold("GET", "/db")
	done := make(chan int)
	go func() {
		done <- do(t, "GET", s.URL()+"db", nil, nil)
	}()
	<-gate.Arrived()
	assert.Equal(t, 1, s.MaxInFlight("GET", "/db"))
	select {
	case <-done:
		t.Fatal("held request completed")
	case <-time.After(20 * time.Millisecond):
	}
	gate.Release()
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 3, s.CountRequests("GET", ""))
}
