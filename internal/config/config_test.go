package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "ws://localhost:8080/ws" || cfg.TableID != "main" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server_url: ws://game.example:9000/ws\nnickname: ava\nrisk_lambda: 0.8\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BJ_NICKNAME", "kit")
	t.Setenv("BJ_RISK_LAMBDA", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "ws://game.example:9000/ws" {
		t.Fatalf("file value ignored: %q", cfg.ServerURL)
	}
	if cfg.Nickname != "kit" {
		t.Fatalf("env override ignored: %q", cfg.Nickname)
	}
	if cfg.RiskLambda != 0.8 {
		t.Fatalf("malformed env should keep file value, got %v", cfg.RiskLambda)
	}
	if cfg.TableID != "main" {
		t.Fatalf("unset fields should keep defaults, got %q", cfg.TableID)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
