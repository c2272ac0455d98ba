package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerTagsServiceAndHonoursLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(buf, &Config{AppEnv: "staging", LogFormat: "json", LogLevel: "WARN"})

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("rate cache disabled")
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "rate cache disabled", record["msg"])
	require.Equal(t, "odyssey-ledger", record["service"])
	require.Equal(t, "staging", record["env"])
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel(" debug ").String())
	require.Equal(t, "INFO", parseLevel("verbose").String())
	require.Equal(t, "ERROR", parseLevel("error").String())
}
