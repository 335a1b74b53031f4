package couch

import (
	"context"
	"net/http"

	"github.com/json420/couch.go/pkg/connection"
	"github.com/json420/couch.go/pkg/urlpath"
)

// Client issues requests relative to a base path.
// Server and Database embed it.
type Client struct {
	transport connection.Transport
	url       string
	basePath  string
}

func newClient(t connection.Transport, url string) Client {
	url = urlpath.Normalize(url)
	return Client{
		transport: t,
		url:       url,
		basePath:  url,
	}
}

// URL is the server root, always ending in "/".
func (c *Client) URL() string {
	return c.url
}

// BasePath is the prefix every request path is built on.
func (c *Client) BasePath() string {
	return c.basePath
}

func (c *Client) Transport() connection.Transport {
	return c.transport
}

// Path builds a URL from the base path, parts and options.
//
//	c.Path(nil, nil)                                               // "/foo/"
//	c.Path([]string{"bar", "baz"}, nil)                            // "/foo/bar/baz"
//	c.Path([]string{"bar"}, urlpath.Options{"attachments": true}) // "/foo/bar?attachments=true"
func (c *Client) Path(parts []string, options urlpath.Options) string {
	return urlpath.Build(c.basePath, parts, options)
}

// Request performs a request and waits for it to complete.
func (c *Client) Request(ctx context.Context, method string, body any, parts []string, options urlpath.Options) *connection.Response {
	return c.transport.Do(ctx, method, c.Path(parts, options), body)
}

// RequestAsync performs a request in the background and passes the completed
// response to done.
func (c *Client) RequestAsync(ctx context.Context, method string, body any, parts []string, options urlpath.Options, done connection.Callback) {
	c.transport.Go(ctx, method, c.Path(parts, options), body, done)
}

// Get decodes the JSON response into out. A nil out only checks the status.
func (c *Client) Get(ctx context.Context, parts []string, options urlpath.Options, out any) error {
	return c.Request(ctx, http.MethodGet, nil, parts, options).Decode(out)
}

func (c *Client) Put(ctx context.Context, body any, parts []string, options urlpath.Options, out any) error {
	return c.Request(ctx, http.MethodPut, body, parts, options).Decode(out)
}

func (c *Client) Post(ctx context.Context, body any, parts []string, options urlpath.Options, out any) error {
	return c.Request(ctx, http.MethodPost, body, parts, options).Decode(out)
}

func (c *Client) Delete(ctx context.Context, parts []string, options urlpath.Options, out any) error {
	return c.Request(ctx, http.MethodDelete, nil, parts, options).Decode(out)
}

func (c *Client) GetAsync(ctx context.Context, parts []string, options urlpath.Options, done connection.Callback) {
	c.RequestAsync(ctx, http.MethodGet, nil, parts, options, done)
}

func (c *Client) PutAsync(ctx context.Context, body any, parts []string, options urlpath.Options, done connection.Callback) {
	c.RequestAsync(ctx, http.MethodPut, body, parts, options, done)
}

func (c *Client) PostAsync(ctx context.Context, body any, parts []string, options urlpath.Options, done connection.Callback) {
	c.RequestAsync(ctx, http.MethodPost, body, parts, options, done)
}

func (c *Client) DeleteAsync(ctx context.Context, parts []string, options urlpath.Options, done connection.Callback) {
	c.RequestAsync(ctx, http.MethodDelete, nil, parts, options, done)
}
