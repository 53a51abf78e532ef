package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewHonoursLevel(t *testing.T) {
	log, err := New("warn", false)
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
}

func TestNewDevelopmentDefaultsToDebug(t *testing.T) {
	log, err := New("", true)
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zap.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", false)
	assert.Error(t, err)
}
