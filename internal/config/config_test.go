package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "METRICS_DB_PATH", "METRICS_DATA_DIR", "METRICS_SETTINGS_FILE",
		"ACCESS_KEY", "LOG_FILE", "WINDOW_QUOTA_BYTES", "METRICS_EPHEMERAL",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadEnvConfig()
	if cfg.Port != "8790" {
		t.Errorf("Port = %s, want 8790", cfg.Port)
	}
	if cfg.DBPath != ".config/metrics.db" {
		t.Errorf("DBPath = %s, want .config/metrics.db", cfg.DBPath)
	}
	if cfg.AccessKey != "" || cfg.LogFile != "" {
		t.Errorf("AccessKey/LogFile should default to empty, got %q/%q", cfg.AccessKey, cfg.LogFile)
	}
	if cfg.WindowQuota != 0 {
		t.Errorf("WindowQuota = %d, want 0", cfg.WindowQuota)
	}
	if cfg.Ephemeral {
		t.Error("Ephemeral = true, want false")
	}
}

func TestLoadEnvConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("METRICS_DB_PATH", "/tmp/m.db")
	t.Setenv("WINDOW_QUOTA_BYTES", "1048576")
	t.Setenv("METRICS_EPHEMERAL", "true")

	cfg := LoadEnvConfig()
	if cfg.Port != "9000" {
		t.Errorf("Port = %s, want 9000", cfg.Port)
	}
	if cfg.DBPath != "/tmp/m.db" {
		t.Errorf("DBPath = %s, want /tmp/m.db", cfg.DBPath)
	}
	if cfg.WindowQuota != 1048576 {
		t.Errorf("WindowQuota = %d, want 1048576", cfg.WindowQuota)
	}
	if !cfg.Ephemeral {
		t.Error("Ephemeral = false, want true")
	}
}

func TestLoadEnvConfigInvalidQuota(t *testing.T) {
	t.Setenv("WINDOW_QUOTA_BYTES", "not-a-number")
	if cfg := LoadEnvConfig(); cfg.WindowQuota != 0 {
		t.Errorf("WindowQuota = %d, want 0 for invalid value", cfg.WindowQuota)
	}

	t.Setenv("WINDOW_QUOTA_BYTES", "-5")
	if cfg := LoadEnvConfig(); cfg.WindowQuota != 0 {
		t.Errorf("WindowQuota = %d, want 0 for negative value", cfg.WindowQuota)
	}
}

func TestClampSettings(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"below minimum", 1, 7},
		{"at minimum", 7, 7},
		{"normal", 90, 90},
		{"at maximum", 365, 365},
		{"above maximum", 1000, 365},
		{"zero", 0, 7},
		{"negative", -10, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampSettings(Settings{RetentionDays: tt.in})
			if got.RetentionDays != tt.want {
				t.Errorf("clampSettings(%d) = %d, want %d", tt.in, got.RetentionDays, tt.want)
			}
		})
	}
}

func TestSettingsManagerCreatesDefaultFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm.Close()

	if got := sm.GetSettings().RetentionDays; got != 90 {
		t.Errorf("RetentionDays = %d, want default 90", got)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("settings file not created: %v", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("settings file is not valid JSON: %v", err)
	}
	if s.RetentionDays != 90 {
		t.Errorf("persisted RetentionDays = %d, want 90", s.RetentionDays)
	}
}

func TestSettingsManagerLoadsExistingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(file, []byte(`{"retentionDays": 30}`), 0644); err != nil {
		t.Fatal(err)
	}

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm.Close()

	if got := sm.GetSettings().RetentionDays; got != 30 {
		t.Errorf("RetentionDays = %d, want 30", got)
	}
}

func TestSettingsManagerClampsOnLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(file, []byte(`{"retentionDays": 9999}`), 0644); err != nil {
		t.Fatal(err)
	}

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm.Close()

	if got := sm.GetSettings().RetentionDays; got != 365 {
		t.Errorf("RetentionDays = %d, want clamped 365", got)
	}
}

func TestSettingsManagerMalformedFileFallsBack(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(file, []byte("{garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v, want fallback to defaults", err)
	}
	defer sm.Close()

	if got := sm.GetSettings().RetentionDays; got != 90 {
		t.Errorf("RetentionDays = %d, want default 90", got)
	}
}

func TestSettingsManagerUpdatePersists(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm.Close()

	if err := sm.UpdateSettings(Settings{RetentionDays: 14}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got := sm.GetSettings().RetentionDays; got != 14 {
		t.Errorf("RetentionDays = %d, want 14", got)
	}

	// a fresh manager sees the update
	sm2, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm2.Close()
	if got := sm2.GetSettings().RetentionDays; got != 14 {
		t.Errorf("reloaded RetentionDays = %d, want 14", got)
	}
}

func TestSettingsManagerOnChange(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm.Close()

	applied := make(chan Settings, 1)
	sm.OnChange(func(s Settings) { applied <- s })

	if err := sm.UpdateSettings(Settings{RetentionDays: 1}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	select {
	case s := <-applied:
		if s.RetentionDays != 7 {
			t.Errorf("callback got RetentionDays = %d, want clamped 7", s.RetentionDays)
		}
	case <-time.After(time.Second):
		t.Fatal("OnChange callback not invoked")
	}
}

func TestSettingsManagerHotReload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")

	sm, err := NewSettingsManager(file)
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}
	defer sm.Close()

	if err := os.WriteFile(file, []byte(`{"retentionDays": 21}`), 0644); err != nil {
		t.Fatal(err)
	}

	// reload is debounced; poll until the watcher picks it up
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sm.GetSettings().RetentionDays == 21 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("RetentionDays = %d, want hot-reloaded 21", sm.GetSettings().RetentionDays)
}

func TestSettingsManagerCloseIdempotent(t *testing.T) {
	sm, err := NewSettingsManager(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("NewSettingsManager() error = %v", err)
	}

	if err := sm.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := sm.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
