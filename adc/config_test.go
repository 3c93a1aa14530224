package adc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestLoadConfigDefaultsOnMissingFile(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"), nopLogger())
	assert.Equal(t, uint32(DefaultBusIndex), cfg.SelectedBusIndex)
}

func TestLoadConfigDefaultsOnInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cfg := LoadConfig(path, nopLogger())
	assert.Equal(t, uint32(DefaultBusIndex), cfg.SelectedBusIndex)
}

func TestLoadConfigHonorsExplicitZeroIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"selected_bus_index": 0}`), 0o644))

	cfg := LoadConfig(path, nopLogger())
	assert.Equal(t, uint32(0), cfg.SelectedBusIndex, "an explicit 0 must not be overridden by the default")
}

func TestLoadConfigHonorsNonDefaultValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"selected_bus_index": 3}`), 0o644))

	cfg := LoadConfig(path, nopLogger())
	assert.Equal(t, uint32(3), cfg.SelectedBusIndex)
}
