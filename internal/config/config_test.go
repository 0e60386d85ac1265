package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFlagsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.RelayListen != defaultRelayListen {
		t.Fatalf("got relay listen %q, want %q", cfg.RelayListen, defaultRelayListen)
	}
	if cfg.StartMode != defaultStartMode {
		t.Fatalf("got start mode %q, want %q", cfg.StartMode, defaultStartMode)
	}
	if cfg.ConfigListen != "" {
		t.Fatalf("got config listen %q, want empty (ephemeral port) by default", cfg.ConfigListen)
	}
}

func TestParseFlagsConfigListenOverride(t *testing.T) {
	t.Parallel()

	cfg, err := ParseFlags([]string{"-config-listen=127.0.0.1:8443"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.ConfigListen != "127.0.0.1:8443" {
		t.Fatalf("got config listen %q, want explicit override to win", cfg.ConfigListen)
	}
}

func TestParseFlagsOverridesMode(t *testing.T) {
	t.Parallel()

	cfg, err := ParseFlags([]string{"-mode=Online"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.StartMode != "Online" {
		t.Fatalf("got mode %q, want Online", cfg.StartMode)
	}
}

func TestParseFlagsRejectsInvalidMode(t *testing.T) {
	t.Parallel()

	if _, err := ParseFlags([]string{"-mode=AFK"}); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestParseFlagsAppliesYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teemoproxy.yml")
	if err := os.WriteFile(path, []byte("mode: Online\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatalf("write yaml file: %v", err)
	}
	t.Setenv("TEEMO_CONFIG_FILE", path)

	cfg, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.StartMode != "Online" {
		t.Fatalf("got mode %q, want Online from YAML override", cfg.StartMode)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("got log level %q, want debug from YAML override", cfg.LogLevel)
	}
}

func TestParseFlagsEnvWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teemoproxy.yml")
	if err := os.WriteFile(path, []byte("mode: Online\n"), 0o644); err != nil {
		t.Fatalf("write yaml file: %v", err)
	}
	t.Setenv("TEEMO_CONFIG_FILE", path)
	t.Setenv("TEEMO_START_MODE", "Invisible")

	cfg, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.StartMode != "Invisible" {
		t.Fatalf("got mode %q, want env override Invisible to win over YAML", cfg.StartMode)
	}
}
