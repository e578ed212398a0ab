package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/paxdriver/KriSYS/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	wd, _ := os.Getwd()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmp
}

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	isolate(t)
	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		t.Fatalf("expected ConfigFileNotFoundError, got %v", err)
	}
	if got.Database.Type != "sqlite" || got.HTTP.Addr != ":5000" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.Station.ForwardTimeout != 5*time.Second {
		t.Fatalf("forward timeout = %v", got.Station.ForwardTimeout)
	}
	if len(got.Kafka.Brokers) != 1 {
		t.Fatalf("brokers = %v", got.Kafka.Brokers)
	}
}

func TestLoadConfig_ReadsExplicitFile(t *testing.T) {
	tmp := isolate(t)
	yaml := "database:\n  type: postgres\n  dsn: postgresql://user@/db\npolicy:\n  active: Hurricane_Bobo\nstation:\n  forward_timeout: 2s\n"
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Database.Type != "postgres" || got.Policy.Active != "Hurricane_Bobo" {
		t.Fatalf("file not applied: %+v", got)
	}
	if got.Station.ForwardTimeout != 2*time.Second {
		t.Fatalf("forward timeout = %v", got.Station.ForwardTimeout)
	}
	if got.Keys.Dir != "./keys" {
		t.Fatalf("default lost: %q", got.Keys.Dir)
	}
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	isolate(t)
	t.Setenv("KRISYS_DATABASE_DSN", "file:env.db")
	t.Setenv("KRISYS_LOG_LEVEL", "debug")

	cmd := &cobra.Command{}
	cmd.Flags().String("log.level", "info", "")
	got, _ := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), nil)
	if got.Database.Dsn != "file:env.db" || got.Log.Level != "debug" {
		t.Fatalf("env not applied: %+v", got)
	}

	if err := cmd.Flags().Set("log.level", "warn"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	got, _ = cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), nil)
	if got.Log.Level != "warn" {
		t.Fatalf("flag did not win over env: %q", got.Log.Level)
	}
}

func TestWriteConfigFile_RoundTrip(t *testing.T) {
	isolate(t)
	c, _ := cfg.LoadConfig[cfg.Config](nil, cfg.Defaults(), nil)
	c.Station.ID = "station_7"
	if err := cfg.WriteConfigFile(&c, false); err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	path, err := cfg.GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}
	got, err := cfg.LoadConfig[cfg.Config](nil, cfg.Defaults(), &path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Station.ID != "station_7" {
		t.Fatalf("station id = %q", got.Station.ID)
	}
}
