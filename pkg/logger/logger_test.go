package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHelpersSafeBeforeInit(t *testing.T) {
	// Other tests may have initialized the globals; restore the pre-Init state
	Log = zap.NewNop()
	Sugar = Log.Sugar()

	assert.NotPanics(t, func() {
		Debug("debug before init")
		Info("info before init", zap.String("key", "value"))
		Warn("warn before init")
		Error("error before init", zap.Error(assert.AnError))
		Sync()
	})
}

func TestInitReplacesNopLogger(t *testing.T) {
	err := Init(&Config{Level: "debug", Format: "json"})
	require.NoError(t, err)

	assert.NotNil(t, Log)
	assert.NotNil(t, Sugar)
	assert.True(t, Log.Core().Enabled(zap.DebugLevel))
}

func TestInitLevelParsing(t *testing.T) {
	err := Init(&Config{Level: "warn", Format: "json"})
	require.NoError(t, err)

	assert.False(t, Log.Core().Enabled(zap.InfoLevel))
	assert.True(t, Log.Core().Enabled(zap.WarnLevel))
}
