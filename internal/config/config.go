package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quayside/resman/internal/logger"
	"github.com/quayside/resman/internal/resource"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Env       []string         `toml:"env" mapstructure:"env"`
	EnvFiles  []string         `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv  bool             `toml:"use_os_env" mapstructure:"use_os_env"`
	Server    ServerConfig     `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig    `toml:"metrics" mapstructure:"metrics"`
	Store     StoreConfig      `toml:"store" mapstructure:"store"`
	History   HistoryConfig    `toml:"history" mapstructure:"history"`
	Explorer  ExplorerConfig   `toml:"explorer" mapstructure:"explorer"`
	Log       *LogConfig       `toml:"log" mapstructure:"log"`
	Resources []ResourceConfig `toml:"resources" mapstructure:"resources"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
	Path    string `toml:"path" mapstructure:"path"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	ClickHouseAddr  string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	ClickHouseTable string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
	HTTPURL         string `toml:"http_url" mapstructure:"http_url"`
}

// ExplorerConfig tunes the tree-item explorer surface.
type ExplorerConfig struct {
	DisableDelete bool          `toml:"disable_delete" mapstructure:"disable_delete"`
	DisableRename bool          `toml:"disable_rename" mapstructure:"disable_rename"`
	PollInterval  time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ResourceConfig struct {
	Name            string        `toml:"name" mapstructure:"name"`
	Path            string        `toml:"path" mapstructure:"path"`
	Command         string        `toml:"command" mapstructure:"command"`
	WorkDir         string        `toml:"workdir" mapstructure:"workdir"`
	Env             []string      `toml:"env" mapstructure:"env"`
	Enabled         bool          `toml:"enabled" mapstructure:"enabled"`
	RestartOnChange bool          `toml:"restart_on_change" mapstructure:"restart_on_change"`
	Watch           []WatchConfig `toml:"watch" mapstructure:"watch"`
	Log             *LogConfig    `toml:"log" mapstructure:"log"`
}

type WatchConfig struct {
	ID      string `toml:"id" mapstructure:"id"`
	Command string `toml:"command" mapstructure:"command"`
}

// Load parses the TOML config file and applies defaults.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	fc.applyDefaults()
	return &fc, nil
}

func (fc *FileConfig) applyDefaults() {
	if fc.Server.Listen == "" {
		fc.Server.Listen = "127.0.0.1:8420"
	}
	if fc.Metrics.Path == "" {
		fc.Metrics.Path = "/metrics"
	}
	if fc.History.ClickHouseTable == "" {
		fc.History.ClickHouseTable = "resource_history"
	}
	if fc.Explorer.PollInterval <= 0 {
		fc.Explorer.PollInterval = 2 * time.Second
	}
}

func (fc *FileConfig) validate() error {
	seen := make(map[string]struct{}, len(fc.Resources))
	paths := make(map[string]struct{}, len(fc.Resources))
	for _, rc := range fc.Resources {
		if strings.TrimSpace(rc.Name) == "" {
			return fmt.Errorf("resource requires name")
		}
		if strings.TrimSpace(rc.Command) == "" {
			return fmt.Errorf("resource %s requires command", rc.Name)
		}
		if _, dup := seen[rc.Name]; dup {
			return fmt.Errorf("duplicate resource name %s", rc.Name)
		}
		seen[rc.Name] = struct{}{}
		if rc.Path != "" {
			if _, dup := paths[rc.Path]; dup {
				return fmt.Errorf("duplicate resource path %s", rc.Path)
			}
			paths[rc.Path] = struct{}{}
		}
		watchIDs := make(map[string]struct{}, len(rc.Watch))
		for _, w := range rc.Watch {
			if strings.TrimSpace(w.ID) == "" || strings.TrimSpace(w.Command) == "" {
				return fmt.Errorf("resource %s: watch entries require id and command", rc.Name)
			}
			if _, dup := watchIDs[w.ID]; dup {
				return fmt.Errorf("resource %s: duplicate watch id %s", rc.Name, w.ID)
			}
			watchIDs[w.ID] = struct{}{}
		}
	}
	return nil
}

// Specs converts the parsed resource entries to supervisor specs. Per-resource
// log settings override the top-level [log] defaults field by field.
func (fc *FileConfig) Specs() []resource.Spec {
	specs := make([]resource.Spec, 0, len(fc.Resources))
	for _, rc := range fc.Resources {
		logCfg := mergeLog(fc.Log, rc.Log)
		watch := make([]resource.WatchSpec, 0, len(rc.Watch))
		for _, w := range rc.Watch {
			watch = append(watch, resource.WatchSpec{ID: w.ID, Command: w.Command})
		}
		path := rc.Path
		if path == "" {
			path = rc.Name
		}
		specs = append(specs, resource.Spec{
			Name:    rc.Name,
			Path:    path,
			Command: rc.Command,
			WorkDir: rc.WorkDir,
			Env:     rc.Env,
			Watch:   watch,
			Config: resource.Config{
				Enabled:         rc.Enabled,
				RestartOnChange: rc.RestartOnChange,
			},
			Log: logCfg,
		})
	}
	return specs
}

func mergeLog(top, rc *LogConfig) logger.Config {
	var out logger.Config
	if top != nil {
		out = logger.Config{
			Dir:        top.Dir,
			StdoutPath: top.Stdout,
			StderrPath: top.Stderr,
			MaxSizeMB:  top.MaxSizeMB,
			MaxBackups: top.MaxBackups,
			MaxAgeDays: top.MaxAgeDays,
			Compress:   top.Compress,
		}
	}
	if rc == nil {
		return out
	}
	if rc.Dir != "" {
		out.Dir = rc.Dir
	}
	if rc.Stdout != "" {
		out.StdoutPath = rc.Stdout
	}
	if rc.Stderr != "" {
		out.StderrPath = rc.Stderr
	}
	if rc.MaxSizeMB != 0 {
		out.MaxSizeMB = rc.MaxSizeMB
	}
	if rc.MaxBackups != 0 {
		out.MaxBackups = rc.MaxBackups
	}
	if rc.MaxAgeDays != 0 {
		out.MaxAgeDays = rc.MaxAgeDays
	}
	if rc.Compress {
		out.Compress = true
	}
	return out
}

// GlobalEnv merges env sources. Precedence: OS env (when enabled) provides the
// base; env_files contents apply next; the top-level env list overrides last.
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
