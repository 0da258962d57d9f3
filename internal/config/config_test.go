package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultSession = "office"
	cfg.Dispatch.DailyLimit = 150
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "office" {
		t.Errorf("DefaultSession = %q, want office", loaded.DefaultSession)
	}
	if loaded.Dispatch.DailyLimit != 150 {
		t.Errorf("DailyLimit = %d, want 150", loaded.Dispatch.DailyLimit)
	}
	if loaded.Dispatch.SendTimeout.Duration != 30*time.Second {
		t.Errorf("SendTimeout = %v, want 30s", loaded.Dispatch.SendTimeout)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[dispatch]
send_timeout = "5s"

[window]
end_hour = 19

[gateway]
kind = "greenapi"

[greenapi]
instance_id = "1101000001"
token = "abc"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dispatch.SendTimeout.Duration != 5*time.Second {
		t.Errorf("SendTimeout = %v, want 5s", cfg.Dispatch.SendTimeout)
	}
	if cfg.Window.EndHour != 19 || cfg.Window.StartHour != 8 {
		t.Errorf("window = %+v, want start 8 end 19", cfg.Window)
	}
	if cfg.Dispatch.DailyLimit != 200 {
		t.Errorf("DailyLimit = %d, want default 200", cfg.Dispatch.DailyLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Gateway.Kind != GatewayWhatsmeow {
		t.Errorf("gateway = %q, want default", cfg.Gateway.Kind)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "WPPQ_GATEWAY=greenapi\nWPPQ_GREENAPI_INSTANCE_ID=from-file\nWPPQ_GREENAPI_TOKEN=tok\nWPPQ_DAILY_LIMIT=50\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WPPQ_GREENAPI_INSTANCE_ID", "from-env")
	t.Setenv("WPPQ_SEND_TIMEOUT", "12s")

	cfg := Default()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Kind != GatewayGreenAPI {
		t.Errorf("gateway = %q, want greenapi from .env", cfg.Gateway.Kind)
	}
	if cfg.GreenAPI.InstanceID != "from-env" {
		t.Errorf("instance = %q, process env must win over .env", cfg.GreenAPI.InstanceID)
	}
	if cfg.Dispatch.DailyLimit != 50 {
		t.Errorf("DailyLimit = %d, want 50", cfg.Dispatch.DailyLimit)
	}
	if cfg.Dispatch.SendTimeout.Duration != 12*time.Second {
		t.Errorf("SendTimeout = %v, want 12s", cfg.Dispatch.SendTimeout)
	}
}

func TestApplyEnvMissingFileAndBadInt(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}

	t.Setenv("WPPQ_DAILY_LIMIT", "lots")
	err := cfg.ApplyEnv("")
	if err == nil || !strings.Contains(err.Error(), "WPPQ_DAILY_LIMIT") {
		t.Errorf("ApplyEnv() = %v, want WPPQ_DAILY_LIMIT error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timezone", func(c *Config) { c.Window.Timezone = "Mars/Olympus" }},
		{"inverted hours", func(c *Config) { c.Window.StartHour, c.Window.EndHour = 20, 8 }},
		{"unknown gateway", func(c *Config) { c.Gateway.Kind = "telegram" }},
		{"greenapi without token", func(c *Config) { c.Gateway.Kind = GatewayGreenAPI; c.GreenAPI.InstanceID = "1" }},
		{"negative timeout", func(c *Config) { c.Dispatch.SendTimeout.Duration = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
