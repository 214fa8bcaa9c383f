package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the host process's tuning knobs for the ingest/analysis
// pipeline: where to read from, where definitions and per-encounter output
// live, and the timer/effect tick rate. PostCombatGraceMs and
// CombatTimeoutSecs are loaded but not read by internal/processor, whose
// combat state machine uses its own fixed timeout and grace constants.
type Config struct {
	LogPath        string `yaml:"log_path"`
	DefinitionsDir string `yaml:"definitions_dir"`
	EncountersDir  string `yaml:"encounters_dir"`

	TickHz int `yaml:"tick_hz"`

	PostCombatGraceMs int `yaml:"post_combat_grace_ms"`
	CombatTimeoutSecs int `yaml:"combat_timeout_secs"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the host defaults used when no config file is
// present, or as the base a loaded file is unmarshalled on top of.
func DefaultConfig() Config {
	return Config{
		LogPath:           "combat.log",
		DefinitionsDir:    "definitions",
		EncountersDir:     "encounters",
		TickHz:            30,
		PostCombatGraceMs: 5000,
		CombatTimeoutSecs: 60,
		LogLevel:          "info",
	}
}

// Load reads Config from a YAML file at path, starting from DefaultConfig
// and overlaying whatever fields the file sets. A missing file is not an
// error: it yields the defaults silently, mirroring the teacher's
// LoadLoginServer convention. Any other read or parse failure is wrapped.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
