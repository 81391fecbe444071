// Package config holds the persisted user preferences. The engine never
// reads these directly; the CLI loads them and passes the relevant
// subset into each task.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/grixate/zipex/internal/archive"
	"github.com/grixate/zipex/internal/extract"
)

type Settings struct {
	DefaultDestination  string         `json:"defaultDestination"`
	ConflictPolicy      extract.Policy `json:"conflictPolicy"`
	CreateRootFolder    bool           `json:"createRootFolder"`
	PreservePermissions bool           `json:"preservePermissions"`
	PreserveTimestamps  bool           `json:"preserveTimestamps"`
	MaxConcurrent       int            `json:"maxConcurrent"`
	MaxCompressionRatio float64        `json:"maxCompressionRatio"`
	MaxPathDepth        int            `json:"maxPathDepth"`
	HistoryLimit        int            `json:"historyLimit"`
	HistoryPath         string         `json:"historyPath,omitempty"`
}

func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		DefaultDestination:  filepath.Join(home, "Downloads"),
		ConflictPolicy:      extract.PolicyAsk,
		CreateRootFolder:    true,
		PreservePermissions: true,
		PreserveTimestamps:  true,
		MaxConcurrent:       4,
		MaxCompressionRatio: 100,
		MaxPathDepth:        50,
		HistoryLimit:        50,
	}
}

// DefaultPath is the settings file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "zipex", "settings.json"), nil
}

// DefaultHistoryPath is the history database location under the user
// data dir.
func DefaultHistoryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "zipex", "history.db"), nil
}

// Load reads settings from path. A missing or unparsable file yields the
// defaults; the returned error is advisory and the Settings are always
// usable.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), err
	}
	settings := Default()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Default(), err
	}
	return settings.Normalized(), nil
}

// Save writes settings to path, creating the directory if needed.
func Save(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(settings.Normalized(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Normalized clamps out-of-range values back to defaults.
func (s Settings) Normalized() Settings {
	defaults := Default()
	if _, err := extract.ParsePolicy(string(s.ConflictPolicy)); err != nil {
		s.ConflictPolicy = defaults.ConflictPolicy
	}
	if s.DefaultDestination == "" {
		s.DefaultDestination = defaults.DefaultDestination
	}
	if s.MaxConcurrent < 1 {
		s.MaxConcurrent = defaults.MaxConcurrent
	}
	if s.MaxCompressionRatio < 0 {
		s.MaxCompressionRatio = defaults.MaxCompressionRatio
	}
	if s.MaxPathDepth < 0 {
		s.MaxPathDepth = defaults.MaxPathDepth
	}
	if s.HistoryLimit < 1 {
		s.HistoryLimit = defaults.HistoryLimit
	}
	return s
}

// Limits converts the settings thresholds to the bomb-screen limit type.
func (s Settings) Limits() archive.Limits {
	return archive.Limits{
		MaxRatio: s.MaxCompressionRatio,
		MaxDepth: s.MaxPathDepth,
	}
}
