package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/json420/couch.go/pkg/logger"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	// Get Stats Before
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Str("doc_id", "a").Msg("Test")
	// Get Stats After
	require.Contains(t, buff.String(), "Test")
	require.Contains(t, buff.String(), `"doc_id":"a"`)
	require.NoError(t, templogger.Close())
}

func TestLogLevel(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).WithLevel(zerolog.WarnLevel).Make()
	require.NoError(t, err)

	templogger.Logger.Info().Msg("hidden")
	require.Equal(t, 0, buff.Len())
	templogger.Logger.Warn().Msg("shown")
	require.Contains(t, buff.String(), "shown")
}

func TestLogLevelString(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).WithLevelString("debug").Make()
	require.NoError(t, err)
	templogger.Logger.Debug().Msg("debug line")
	require.Contains(t, buff.String(), "debug line")

	buff.Reset()
	templogger, err = logger.New().FromBuffer(buff).WithLevelString("nonsense").Make()
	require.NoError(t, err)
	templogger.Logger.Debug().Msg("debug line")
	require.Equal(t, 0, buff.Len())
}

func TestLogFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "couch.log")
	templogger, err := logger.New().FromPath(path).Make()
	require.NoError(t, err)
	templogger.Logger.Info().Msg("to file")
	require.NoError(t, templogger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
}
