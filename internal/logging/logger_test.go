package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "json", &buf)

	logger.WithField("patient_id", "P1").Debug("scored")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scored", entry["msg"])
	assert.Equal(t, "P1", entry["patient_id"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "TEXT", &buf)

	logger.Info("ready")

	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Contains(t, buf.String(), "msg=ready")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("chatty", "json", &buf)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestFromConfig(t *testing.T) {
	logger := FromConfig(domain.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
