package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds application configuration.
type Config struct {
	// JournalSize bounds the undo journal's transaction count.
	// 0 means unbounded; a negative value disables undo persistence.
	JournalSize int `json:"journal_size"`

	// Verbose enables informational notices such as "new tag" messages.
	Verbose bool `json:"verbose,omitempty"`

	// set records which keys the source file actually provided. Merge needs
	// it to tell an explicit journal_size of 0 (unbounded) apart from an
	// absent key, since every journal_size value is meaningful.
	set map[string]bool
}

// DefaultJournalSize keeps undo history deep enough for interactive use
// without letting the log grow without bound.
const DefaultJournalSize = 10000

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		JournalSize: DefaultJournalSize,
		Verbose:     true,
	}
}

func (c *Config) wasSet(key string) bool {
	return c.set[key]
}

// BaseDir resolves the tally database directory: $TALLYDB if set, else
// ~/.tally.
func BaseDir() (string, error) {
	if dir := os.Getenv("TALLYDB"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tally"), nil
}

// DataDir returns the interval data directory under the base directory.
func DataDir(baseDir string) string {
	return filepath.Join(baseDir, "data")
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tally.
func Load(baseDir string) (*Config, error) {
	overlay, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), overlay), nil
}

// LoadWithRepo loads configuration from both the global base directory and a
// repo-local .tally directory found by walking upward from startDir. Repo
// values take precedence over global ones; either or both may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest
// .tally/config.json. Returns the path if found, or empty string if not.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".tally", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads one configuration layer from a specific file path.
// A missing file yields an empty layer that sets nothing.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	cfg := &Config{set: make(map[string]bool)}
	if v, ok := raw["journal_size"]; ok {
		if err := json.Unmarshal(v, &cfg.JournalSize); err != nil {
			return nil, err
		}
		cfg.set["journal_size"] = true
	}
	if v, ok := raw["verbose"]; ok {
		if err := json.Unmarshal(v, &cfg.Verbose); err != nil {
			return nil, err
		}
		cfg.set["verbose"] = true
	}
	return cfg, nil
}

// Merge combines base and overlay configs. The overlay wins for every key
// it actually set; the base supplies the rest. Presence, not zero-ness,
// decides: journal_size 0 and negative values are meaningful overrides.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		JournalSize: base.JournalSize,
		Verbose:     base.Verbose,
		set:         make(map[string]bool, len(base.set)+len(overlay.set)),
	}
	for key := range base.set {
		result.set[key] = true
	}
	for key := range overlay.set {
		result.set[key] = true
	}

	if overlay.wasSet("journal_size") {
		result.JournalSize = overlay.JournalSize
	}
	if overlay.wasSet("verbose") {
		result.Verbose = overlay.Verbose
	}
	return result
}
