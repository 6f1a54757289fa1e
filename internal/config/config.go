// Package config loads client configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is everything the client process needs to run.
type Config struct {
	ServerURL    string  `yaml:"server_url"`
	StrategyURL  string  `yaml:"strategy_url"`
	TableID      string  `yaml:"table_id"`
	Nickname     string  `yaml:"nickname"`
	ListenAddr   string  `yaml:"listen_addr"`
	IdentityPath string  `yaml:"identity_path"`
	RiskLambda   float64 `yaml:"risk_lambda"`
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ServerURL:    "ws://localhost:8080/ws",
		StrategyURL:  "http://localhost:8001",
		TableID:      "main",
		ListenAddr:   ":8090",
		IdentityPath: home + "/.blackjack/identity.json",
	}
}

// Load reads path (optional) and applies BJ_* environment overrides on top.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ServerURL = getEnv("BJ_SERVER_URL", cfg.ServerURL)
	cfg.StrategyURL = getEnv("BJ_STRATEGY_URL", cfg.StrategyURL)
	cfg.TableID = getEnv("BJ_TABLE_ID", cfg.TableID)
	cfg.Nickname = getEnv("BJ_NICKNAME", cfg.Nickname)
	cfg.ListenAddr = getEnv("BJ_LISTEN_ADDR", cfg.ListenAddr)
	cfg.IdentityPath = getEnv("BJ_IDENTITY_PATH", cfg.IdentityPath)
	cfg.RiskLambda = getEnvAsFloat("BJ_RISK_LAMBDA", cfg.RiskLambda)
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
