package connection

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/urlpath"
)

// Config describes how to reach a server.
type Config struct {
	URL url.URL
	// BaseURL is the server root, always ending in "/".
	BaseURL string
	// Timeout bounds requests whose context carries no deadline of its own.
	Timeout    time.Duration
	Logger     zerolog.Logger
	HTTPClient *http.Client
}

// NewConfig creates a new Config for the server at u.
// It is not absolutely necessary to create a Config using this function,
// but it fills in the defaults every other constructor expects.
func NewConfig(u *url.URL) *Config {
	return &Config{
		URL:     *u,
		BaseURL: urlpath.Normalize(u.String()),
		Timeout: constants.DefaultHTTPTimeout,
		Logger:  zerolog.Nop(),
	}
}

// ParseConfig is NewConfig for a textual URL.
func ParseConfig(raw string) (*Config, error) {
	if raw == "" {
		return nil, constants.ErrNoBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return NewConfig(u), nil
}
