package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/json420/couch.go/internal/rand"
	"github.com/json420/couch.go/pkg/constants"
)

// HTTPConnection is the Transport backed by net/http.
type HTTPConnection struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
}

var _ Transport = (*HTTPConnection)(nil)

func New(p *Config) *HTTPConnection {
	con := HTTPConnection{
		httpClient: p.HTTPClient,
		timeout:    p.Timeout,
		logger:     p.Logger,
	}

	if con.httpClient == nil {
		// No client-wide timeout: long-polls legitimately outlive it.
		// Per-request deadlines are applied in Do.
		con.httpClient = &http.Client{}
	}

	return &con
}

// SetTimeout changes the deadline applied to requests without one.
func (h *HTTPConnection) SetTimeout(timeout time.Duration) *HTTPConnection {
	h.timeout = timeout
	return h
}

func (h *HTTPConnection) SetHTTPClient(client *http.Client) *HTTPConnection {
	h.httpClient = client
	return h
}

// Close releases idle keep-alive connections.
func (h *HTTPConnection) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HTTPConnection) Do(ctx context.Context, method, url string, body any) *Response {
	res := &Response{
		RequestID: rand.NewRequestID(constants.RequestIDLength),
		Method:    method,
		URL:       url,
	}
	if url == "" {
		res.Err = constants.ErrNoBaseURL
		return res
	}

	reader := io.Reader(http.NoBody)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			res.Err = err
			return res
		}
		reader = bytes.NewReader(b)
	}

	if _, ok := ctx.Deadline(); !ok && h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if method == http.MethodPost || method == http.MethodPut {
		req.Header.Set("Content-Type", constants.ContentTypeJSON)
	}

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		res.Err = err
		h.log(res, start)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Header = resp.Header
	res.Body, res.Err = io.ReadAll(resp.Body)
	h.log(res, start)

	return res
}

func (h *HTTPConnection) Go(ctx context.Context, method, url string, body any, done Callback) {
	go func() {
		res := h.Do(ctx, method, url, body)
		if done != nil {
			done(res)
		}
	}()
}

func (h *HTTPConnection) log(res *Response, start time.Time) {
	event := h.logger.Debug()
	if res.Err != nil {
		event = h.logger.Debug().Err(res.Err)
	}
	event.
		Str("request_id", res.RequestID).
		Str("method", res.Method).
		Str("url", redact(res.URL)).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("couch request")
}
