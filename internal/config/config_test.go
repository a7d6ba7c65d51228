package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resman.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleConfig = `
env = ["MODE=prod"]

[server]
listen = "127.0.0.1:9000"
base_path = "/api"

[metrics]
enabled = true
listen = "127.0.0.1:9100"

[store]
dsn = "sqlite:///var/lib/resman/resman.db"

[history]
clickhouse_addr = "localhost:9009"

[explorer]
disable_delete = true
poll_interval = "5s"

[log]
dir = "/var/log/resman"

[[resources]]
name = "web"
path = "mods/web"
command = "./run.sh"
enabled = true
restart_on_change = true

  [[resources.watch]]
  id = "assets"
  command = "./watch-assets.sh"

[[resources]]
name = "db"
command = "./db.sh"

  [resources.log]
  dir = "/var/log/db"
`

func TestLoad(t *testing.T) {
	fc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen != "127.0.0.1:9000" || fc.Server.BasePath != "/api" {
		t.Fatalf("server config: %+v", fc.Server)
	}
	if !fc.Metrics.Enabled || fc.Metrics.Path != "/metrics" {
		t.Fatalf("metrics config: %+v", fc.Metrics)
	}
	if fc.Store.DSN != "sqlite:///var/lib/resman/resman.db" {
		t.Fatalf("store config: %+v", fc.Store)
	}
	if fc.History.ClickHouseTable != "resource_history" {
		t.Fatalf("history table default missing: %+v", fc.History)
	}
	if !fc.Explorer.DisableDelete || fc.Explorer.DisableRename {
		t.Fatalf("explorer config: %+v", fc.Explorer)
	}
	if fc.Explorer.PollInterval != 5*time.Second {
		t.Fatalf("poll interval: %v", fc.Explorer.PollInterval)
	}
}

func TestSpecs(t *testing.T) {
	fc, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	specs := fc.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}

	web := specs[0]
	if web.Name != "web" || web.Path != "mods/web" {
		t.Fatalf("web spec: %+v", web)
	}
	if !web.Config.Enabled || !web.Config.RestartOnChange {
		t.Fatalf("web config flags: %+v", web.Config)
	}
	if len(web.Watch) != 1 || web.Watch[0].ID != "assets" {
		t.Fatalf("web watch: %+v", web.Watch)
	}
	if web.Log.Dir != "/var/log/resman" {
		t.Fatalf("web must inherit top-level log dir, got %q", web.Log.Dir)
	}

	db := specs[1]
	if db.Path != "db" {
		t.Fatalf("path must default to name, got %q", db.Path)
	}
	if db.Config.Enabled {
		t.Fatal("db must default to disabled")
	}
	if db.Log.Dir != "/var/log/db" {
		t.Fatalf("per-resource log dir must win, got %q", db.Log.Dir)
	}
}

func TestDefaults(t *testing.T) {
	fc, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Server.Listen == "" {
		t.Fatal("listen default missing")
	}
	if fc.Explorer.PollInterval != 2*time.Second {
		t.Fatalf("poll interval default: %v", fc.Explorer.PollInterval)
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	body := `
[[resources]]
name = "web"
command = "a"

[[resources]]
name = "web"
command = "b"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for duplicate resource name")
	}
}

func TestValidateRejectsMissingCommand(t *testing.T) {
	body := `
[[resources]]
name = "web"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for resource without command")
	}
}

func TestValidateRejectsDuplicateWatchIDs(t *testing.T) {
	body := `
[[resources]]
name = "web"
command = "a"

  [[resources.watch]]
  id = "w"
  command = "x"

  [[resources.watch]]
  id = "w"
  command = "y"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for duplicate watch ids")
	}
}

func TestGlobalEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "app.env")
	if err := os.WriteFile(envFile, []byte("# comment\nFROM_FILE=1\nMODE=file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	body := `
env = ["MODE=toml"]
env_files = ["` + envFile + `"]
`
	fc, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	kvs, err := fc.GlobalEnv()
	if err != nil {
		t.Fatalf("global env: %v", err)
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	if m["FROM_FILE"] != "1" {
		t.Fatalf("env file entry missing: %v", m)
	}
	if m["MODE"] != "toml" {
		t.Fatalf("top-level env must override file: %v", m)
	}
}
