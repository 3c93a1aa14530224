package adc

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"
)

// DefaultBusIndex is used whenever the config file is missing or cannot
// be parsed (spec §6/§7: ConfigMissing/ConfigInvalid are non-fatal).
const DefaultBusIndex = 1

// Config is the entire consumed surface of the JSON config file: one
// non-negative integer. Everything else is a Non-goal (spec §1).
type Config struct {
	SelectedBusIndex uint32 `json:"selected_bus_index"`
}

// LoadConfig reads path and decodes SelectedBusIndex, falling back to
// DefaultBusIndex (with a logged warning, not an error) when the file is
// missing or its contents don't parse.
func LoadConfig(path string, logger *zap.SugaredLogger) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnw("config file missing, using default bus index",
			"path", path, "default", DefaultBusIndex, "error", err)
		return Config{SelectedBusIndex: DefaultBusIndex}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		logger.Warnw("config file invalid, using default bus index",
			"path", path, "default", DefaultBusIndex, "error", err)
		return Config{SelectedBusIndex: DefaultBusIndex}
	}

	return cfg
}
