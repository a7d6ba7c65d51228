// Package resman supervises game-server resources (mods, services, watch
// commands) and backs the explorer tree-item views that expose them. The
// daemon side runs the supervisor and HTTP API; the explorer side keeps an
// eventually consistent mirror of daemon state and dispatches fire-and-forget
// commands at it.
package resman

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/quayside/resman/internal/config"
	"github.com/quayside/resman/internal/dispatch"
	"github.com/quayside/resman/internal/history"
	"github.com/quayside/resman/internal/manager"
	"github.com/quayside/resman/internal/metrics"
	"github.com/quayside/resman/internal/resource"
	iapi "github.com/quayside/resman/internal/server"
	"github.com/quayside/resman/internal/serverstate"
	"github.com/quayside/resman/internal/status"
	"github.com/quayside/resman/internal/store"
	"github.com/quayside/resman/internal/store/factory"
	"github.com/quayside/resman/internal/view"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = resource.Spec

type Status = resource.Status

type Config = resource.Config

type ConfigPatch = resource.ConfigPatch

type WatchSpec = resource.WatchSpec

type Record = store.Record

type HistorySink = history.Sink

type HistoryEvent = history.Event

type MenuEntry = view.MenuEntry

type ViewOptions = view.Options

// Manager is a thin facade over the internal supervisor.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

func New(logger *slog.Logger) *Manager { return &Manager{inner: manager.New(logger)} }

func (m *Manager) SetGlobalEnv(kvs []string)            { m.inner.SetGlobalEnv(kvs) }
func (m *Manager) SetStore(s store.Store) error         { return m.inner.SetStore(s) }
func (m *Manager) SetHistorySinks(sinks ...HistorySink) { m.inner.SetHistorySinks(sinks...) }
func (m *Manager) Register(s Spec) error                { return m.inner.Register(s) }
func (m *Manager) Start(name string) error              { return m.inner.Start(name) }
func (m *Manager) Stop(name string, wait time.Duration) error {
	return m.inner.Stop(name, wait)
}
func (m *Manager) Restart(name string, wait time.Duration) error {
	return m.inner.Restart(name, wait)
}
func (m *Manager) SetConfig(name string, p ConfigPatch) error { return m.inner.SetConfig(name, p) }
func (m *Manager) Config(name string) (Config, bool)          { return m.inner.Config(name) }
func (m *Manager) Rename(from, to string) error               { return m.inner.Rename(from, to) }
func (m *Manager) Delete(name string, wait time.Duration) error {
	return m.inner.Delete(name, wait)
}
func (m *Manager) Status(name string) (Status, error) { return m.inner.Status(name) }
func (m *Manager) Statuses() []Status                 { return m.inner.Statuses() }
func (m *Manager) StartEnabled() error                { return m.inner.StartEnabled() }
func (m *Manager) Shutdown()                          { m.inner.Shutdown() }

// LoadConfig parses a TOML config file.
func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// NewStore opens a config store from a DSN (postgres://, sqlite:// or a
// bare sqlite path).
func NewStore(dsn string) (store.Store, error) { return factory.NewFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the daemon API using the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Explorer is the client-side bundle behind resource tree items: a
// connectivity store and status cache kept fresh by polling a daemon, plus an
// asynchronous command queue. Views created from it share all three.
type Explorer struct {
	state  *serverstate.State
	cache  *status.Cache[resource.Status]
	queue  *dispatch.Queue
	poller *serverstate.Poller

	configs view.ConfigSource
	paths   map[string]string
	opts    ViewOptions

	cancel context.CancelFunc
}

// ExplorerSource is what an Explorer observes and commands. *client.Client
// satisfies it.
type ExplorerSource interface {
	serverstate.Source
	dispatch.Transport
}

// ExplorerOptions configures NewExplorer.
type ExplorerOptions struct {
	// Paths maps resource names to their project paths, used as status cache
	// keys. Resources absent from the map are keyed by name.
	Paths map[string]string
	// Configs yields persisted per-resource config for the views. When nil,
	// views see every config as absent (all flags default false).
	Configs view.ConfigSource
	// PollInterval defaults to one second.
	PollInterval time.Duration
	View         ViewOptions
	Logger       *slog.Logger
}

// NewExplorer builds the shared stores and starts the poll loop.
func NewExplorer(src ExplorerSource, opts ExplorerOptions) *Explorer {
	paths := opts.Paths
	if paths == nil {
		paths = map[string]string{}
	}
	configs := opts.Configs
	if configs == nil {
		configs = view.ConfigSourceFunc(func(string) (resource.Config, bool) {
			return resource.Config{}, false
		})
	}
	e := &Explorer{
		state:   serverstate.New(),
		cache:   status.NewCache[resource.Status](),
		queue:   dispatch.NewQueue(src, opts.Logger),
		configs: configs,
		paths:   paths,
		opts:    opts.View,
	}
	e.poller = serverstate.NewPoller(src, e.state, e.cache, paths, opts.PollInterval, opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.poller.Run(ctx)
	return e
}

// View creates the tree-item view-model for one resource.
func (e *Explorer) View(name string) *view.Model {
	path, ok := e.paths[name]
	if !ok {
		path = name
	}
	return view.NewModel(name, path, e.configs, e.cache, e.state, e.queue, e.opts)
}

// Refresh forces one poll cycle outside the regular interval.
func (e *Explorer) Refresh(ctx context.Context) { e.poller.PollOnce(ctx) }

// Close stops polling and drains the command queue.
func (e *Explorer) Close() {
	e.cancel()
	e.queue.Close()
}
