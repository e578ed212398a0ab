// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads the KriSYS configuration from defaults, krisys.yaml,
// KRISYS_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the full configuration of a central ledger or relay station.
type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`
	Keys struct {
		Dir string `mapstructure:"dir" yaml:"dir"`
	} `mapstructure:"keys" yaml:"keys"`
	Admin struct {
		TokenFile string `mapstructure:"token_file" yaml:"token_file"`
	} `mapstructure:"admin" yaml:"admin"`
	HTTP struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"http" yaml:"http"`
	Policy struct {
		File   string `mapstructure:"file" yaml:"file"`
		Active string `mapstructure:"active" yaml:"active"`
	} `mapstructure:"policy" yaml:"policy"`
	Station struct {
		ID             string        `mapstructure:"id" yaml:"id"`
		CentralURL     string        `mapstructure:"central_url" yaml:"central_url"`
		AdminToken     string        `mapstructure:"admin_token" yaml:"admin_token"`
		ForwardTimeout time.Duration `mapstructure:"forward_timeout" yaml:"forward_timeout"`
		Listen         string        `mapstructure:"listen" yaml:"listen"`
	} `mapstructure:"station" yaml:"station"`
	Kafka struct {
		Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
		Brokers []string `mapstructure:"brokers" yaml:"brokers"`
		Topic   string   `mapstructure:"topic" yaml:"topic"`
	} `mapstructure:"kafka" yaml:"kafka"`
	Log struct {
		Level string `mapstructure:"level" yaml:"level"`
	} `mapstructure:"log" yaml:"log"`
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":           "sqlite",
		"database.dsn":            "./krisys.db",
		"keys.dir":                "./keys",
		"admin.token_file":        "./keys/admin_token.txt",
		"http.addr":               ":5000",
		"policy.file":             "",
		"policy.active":           "",
		"station.id":              "",
		"station.central_url":     "http://localhost:5000",
		"station.admin_token":     "",
		"station.forward_timeout": "5s",
		"station.listen":          ":5001",
		"kafka.enabled":           false,
		"kafka.brokers":           []string{"localhost:9092"},
		"kafka.topic":             "krisys.blocks",
		"log.level":               "info",
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "KriSYS")
		default:
			configDir = "/etc/krisys"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "krisys")
	}

	return filepath.Join(configDir, "krisys.yaml"), nil
}

// LoadConfig reads configuration into T. A missing config file is reported
// as viper.ConfigFileNotFoundError together with a config built from the
// remaining sources.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	// 1. Defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. File search paths
	v.SetConfigName("krisys")
	v.SetConfigType("yaml")
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
		notFound = err
	}

	// 3. Environment
	v.SetEnvPrefix("krisys")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flags
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, notFound
}

// WriteConfigFile writes c to the user or system config path.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}
	return WriteConfigTo(c, path)
}

// WriteConfigTo writes c as YAML to path, creating the directory.
func WriteConfigTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// 0600: the file may carry a station admin token.
	return os.WriteFile(path, data, 0o600)
}
