// Package settings holds session-wide configuration, in the shape of a
// flat struct plus a Default constructor the caller can override field
// by field — the same pattern this project's CLI uses for everything
// else it exposes as a flag.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings controls how a session logs diagnostics and how batch
// extraction is tuned.
type Settings struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// DumpAnomalies includes the full hex dump of rejected slots in the
	// report and CLI output, not just the reason string.
	DumpAnomalies bool `yaml:"dump_anomalies"`
	// RecoverIncompleteChains toggles Pass B; disabling it reports only
	// chains whose main descriptor survived.
	RecoverIncompleteChains bool `yaml:"recover_incomplete_chains"`
	// OutputDir is the default directory ExportAll writes chain files
	// into.
	OutputDir string `yaml:"output_dir"`
	// Workers overrides the batch-export worker count; 0 means
	// auto-tune from CPU count, mirrored by the WFSINFO_WORKERS env var.
	Workers int `yaml:"workers"`
}

// Default returns the settings a bare CLI invocation uses.
func Default() Settings {
	return Settings{
		LogLevel:                "info",
		DumpAnomalies:           false,
		RecoverIncompleteChains: true,
		OutputDir:               ".",
		Workers:                 0,
	}
}

// Load reads YAML configuration from path and overlays it onto
// Default(). A missing file is not an error; callers that want to
// require one should os.Stat first.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}
