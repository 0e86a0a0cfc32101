package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DetectorConfig.MinAlertScore != 70 {
		t.Errorf("default min_alert_score = %.1f, want 70", cfg.DetectorConfig.MinAlertScore)
	}
	if cfg.DetectorConfig.AutoTrade {
		t.Error("auto trade must default off")
	}
	if cfg.SweeperConfig.MaxAgeHours != 72 {
		t.Errorf("default max_age_hours = %d, want 72", cfg.SweeperConfig.MaxAgeHours)
	}
	if cfg.SelectorConfig.WatchCount != 30 {
		t.Errorf("default watch_count = %d, want 30", cfg.SelectorConfig.WatchCount)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DetectorConfig.IntervalMinutes != 10 {
		t.Errorf("interval_minutes = %d, want default 10", cfg.DetectorConfig.IntervalMinutes)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"detector": {"min_alert_score": 65, "target_percent": 8, "stop_loss_percent": 4},
		"selector": {"watch_count": 15}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DetectorConfig.MinAlertScore != 65 {
		t.Errorf("min_alert_score = %.1f, want 65", cfg.DetectorConfig.MinAlertScore)
	}
	if cfg.DetectorConfig.TargetPercent != 8 {
		t.Errorf("target_percent = %.1f, want 8", cfg.DetectorConfig.TargetPercent)
	}
	if cfg.SelectorConfig.WatchCount != 15 {
		t.Errorf("watch_count = %d, want 15", cfg.SelectorConfig.WatchCount)
	}
	// Untouched sections keep their defaults
	if cfg.MonitorConfig.IntervalSeconds != 30 {
		t.Errorf("interval_seconds = %d, want default 30", cfg.MonitorConfig.IntervalSeconds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"detector": {"min_alert_score": 65}}`)
	t.Setenv("DETECTOR_MIN_ALERT_SCORE", "90")
	t.Setenv("DETECTOR_AUTO_TRADE", "true")
	t.Setenv("DETECTOR_CANDLE_COUNT", "90")
	t.Setenv("SWEEPER_MAX_AGE_HOURS", "48")
	t.Setenv("SWEEPER_PEAK_DROP_PERCENT", "4.5")
	t.Setenv("DB_PORT", "5433")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DetectorConfig.MinAlertScore != 90 {
		t.Errorf("min_alert_score = %.1f, want env override 90", cfg.DetectorConfig.MinAlertScore)
	}
	if !cfg.DetectorConfig.AutoTrade {
		t.Error("auto_trade env override ignored")
	}
	if cfg.DatabaseConfig.Port != 5433 {
		t.Errorf("db port = %d, want 5433", cfg.DatabaseConfig.Port)
	}
	if cfg.DetectorConfig.CandleCount != 90 {
		t.Errorf("candle_count = %d, want env override 90", cfg.DetectorConfig.CandleCount)
	}
	if cfg.SweeperConfig.MaxAgeHours != 48 {
		t.Errorf("max_age_hours = %d, want env override 48", cfg.SweeperConfig.MaxAgeHours)
	}
	if cfg.SweeperConfig.PeakDropPercent != 4.5 {
		t.Errorf("peak_drop_percent = %.1f, want env override 4.5", cfg.SweeperConfig.PeakDropPercent)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"alert score above 100", `{"detector": {"min_alert_score": 140}}`},
		{"negative alert score", `{"detector": {"min_alert_score": -5}}`},
		{"zero target", `{"detector": {"target_percent": 0}}`},
		{"negative stop", `{"detector": {"stop_loss_percent": -1}}`},
		{"zero watch count", `{"selector": {"watch_count": 0}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	if _, err := Load(writeConfig(t, `{not json`)); err == nil {
		t.Error("expected a parse error")
	}
}

func TestLoaderReloadPicksUpChanges(t *testing.T) {
	path := writeConfig(t, `{"detector": {"min_alert_score": 70}}`)
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(path, initial)

	if err := os.WriteFile(path, []byte(`{"detector": {"min_alert_score": 85}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := loader.Reload()
	if cfg.DetectorConfig.MinAlertScore != 85 {
		t.Errorf("reload served %.1f, want 85", cfg.DetectorConfig.MinAlertScore)
	}
	if loader.Current().DetectorConfig.MinAlertScore != 85 {
		t.Error("Current not updated after reload")
	}
}

func TestLoaderKeepsLastGoodOnBadReload(t *testing.T) {
	path := writeConfig(t, `{"detector": {"min_alert_score": 70}}`)
	initial, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(path, initial)

	if err := os.WriteFile(path, []byte(`{broken`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := loader.Reload()
	if cfg.DetectorConfig.MinAlertScore != 70 {
		t.Errorf("a failed reload must keep serving the last good config, got %.1f", cfg.DetectorConfig.MinAlertScore)
	}
}

func TestIntervalHelpers(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DetectionInterval() != 10*time.Minute {
		t.Errorf("detection interval = %v", cfg.DetectionInterval())
	}
	if cfg.MonitorInterval() != 30*time.Second {
		t.Errorf("monitor interval = %v", cfg.MonitorInterval())
	}
	if cfg.SweepInterval() != 30*time.Minute {
		t.Errorf("sweep interval = %v", cfg.SweepInterval())
	}
}

func TestGenerateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.json")
	if err := GenerateSampleConfig(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated sample must load cleanly: %v", err)
	}
	if cfg.UpbitConfig.BaseURL == "" {
		t.Error("sample missing exchange base URL")
	}
}
