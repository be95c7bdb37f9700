package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JournalSize != DefaultJournalSize {
		t.Fatalf("JournalSize = %d, want %d", cfg.JournalSize, DefaultJournalSize)
	}
	if !cfg.Verbose {
		t.Fatal("Verbose should default to true")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"journal_size": 500, "verbose": false}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JournalSize != 500 {
		t.Fatalf("JournalSize = %d, want %d", cfg.JournalSize, 500)
	}
	if cfg.Verbose {
		t.Fatal("Verbose = true, want false")
	}
}

func TestLoad_ZeroJournalSizeIsRespected(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	// 0 means unbounded, which must not be replaced by the default.
	if err := os.WriteFile(configPath, []byte(`{"journal_size": 0}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JournalSize != 0 {
		t.Fatalf("JournalSize = %d, want 0", cfg.JournalSize)
	}
}

func TestLoad_NegativeJournalSizeDisablesPersistence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"journal_size": -1}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JournalSize != -1 {
		t.Fatalf("JournalSize = %d, want -1", cfg.JournalSize)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatal("Load() should fail on invalid JSON")
	}
}

func TestMerge_OverlayWinsForSetKeys(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		JournalSize: 250,
		Verbose:     false,
		set:         map[string]bool{"journal_size": true, "verbose": true},
	}

	merged := Merge(base, overlay)
	if merged.JournalSize != 250 {
		t.Fatalf("JournalSize = %d, want 250", merged.JournalSize)
	}
	if merged.Verbose {
		t.Fatal("Verbose = true, want false")
	}
}

func TestMerge_AbsentKeysKeepBase(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{} // sets nothing

	merged := Merge(base, overlay)
	if merged.JournalSize != DefaultJournalSize {
		t.Fatalf("JournalSize = %d, want %d", merged.JournalSize, DefaultJournalSize)
	}
	if !merged.Verbose {
		t.Fatal("Verbose should keep the base value")
	}
}

func TestMerge_ExplicitZeroOverridesBase(t *testing.T) {
	// journal_size 0 means unbounded; an overlay that says so must win
	// even though 0 is the int zero value.
	base := DefaultConfig()
	overlay := &Config{
		JournalSize: 0,
		set:         map[string]bool{"journal_size": true},
	}

	merged := Merge(base, overlay)
	if merged.JournalSize != 0 {
		t.Fatalf("JournalSize = %d, want 0", merged.JournalSize)
	}
	if !merged.Verbose {
		t.Fatal("Verbose should keep the base value")
	}
}

func TestLoadWithRepo_RepoOverridesGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalPath := filepath.Join(globalDir, "config.json")
	if err := os.WriteFile(globalPath, []byte(`{"journal_size": 500, "verbose": false}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	repoConfigDir := filepath.Join(repoRoot, ".tally")
	if err := os.MkdirAll(repoConfigDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoConfigDir, "config.json"), []byte(`{"journal_size": 25}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	// Start below the repo root so the walk-up has to find .tally.
	nested := filepath.Join(repoRoot, "src", "deep")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.JournalSize != 25 {
		t.Fatalf("JournalSize = %d, want 25 (repo wins)", cfg.JournalSize)
	}
	if cfg.Verbose {
		t.Fatal("Verbose = true, want false (global layer, untouched by repo)")
	}
}

func TestLoadWithRepo_BothMissingYieldsDefaults(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.JournalSize != DefaultJournalSize {
		t.Fatalf("JournalSize = %d, want %d", cfg.JournalSize, DefaultJournalSize)
	}
	if !cfg.Verbose {
		t.Fatal("Verbose should default to true")
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Fatalf("FindRepoConfig() = %q, want empty", got)
	}
}

func TestBaseDir_EnvOverride(t *testing.T) {
	t.Setenv("TALLYDB", "/custom/location")

	dir, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir() error = %v", err)
	}
	if dir != "/custom/location" {
		t.Fatalf("BaseDir() = %q, want %q", dir, "/custom/location")
	}
}

func TestBaseDir_DefaultsToHome(t *testing.T) {
	t.Setenv("TALLYDB", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	dir, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir() error = %v", err)
	}
	if dir != filepath.Join(home, ".tally") {
		t.Fatalf("BaseDir() = %q", dir)
	}
}

func TestDataDir(t *testing.T) {
	if got := DataDir("/base"); got != filepath.Join("/base", "data") {
		t.Fatalf("DataDir() = %q", got)
	}
}
