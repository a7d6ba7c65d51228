package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/quayside/resman/internal/config"
	"github.com/quayside/resman/internal/history"
	ch "github.com/quayside/resman/internal/history/clickhouse"
	"github.com/quayside/resman/internal/logger"
	"github.com/quayside/resman/internal/manager"
	"github.com/quayside/resman/internal/metrics"
	"github.com/quayside/resman/internal/resource"
	"github.com/quayside/resman/internal/server"
	"github.com/quayside/resman/internal/store/factory"
	"github.com/quayside/resman/internal/watcher"
)

func newServeCmd() *cobra.Command {
	f := ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resman daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "resman.toml", "path to TOML config file")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "enable debug logging")
	return cmd
}

func runServe(f ServeFlags) error {
	log := logger.NewDaemonLogger(f.Debug)

	fc, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", f.ConfigPath, err)
	}

	mgr := manager.New(log)
	defer mgr.Shutdown()

	if fc.Store.DSN != "" {
		st, err := factory.NewFromDSN(fc.Store.DSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = st.Close() }()
		if err := mgr.SetStore(st); err != nil {
			return fmt.Errorf("init store: %w", err)
		}
	}

	sinks, closeSinks, err := buildHistorySinks(fc.History)
	if err != nil {
		return err
	}
	defer closeSinks()
	if len(sinks) > 0 {
		mgr.SetHistorySinks(sinks...)
	}

	env, err := fc.GlobalEnv()
	if err != nil {
		return fmt.Errorf("load global env: %w", err)
	}
	mgr.SetGlobalEnv(env)

	for _, spec := range fc.Specs() {
		if err := mgr.Register(spec); err != nil {
			return fmt.Errorf("register resource %s: %w", spec.Name, err)
		}
	}
	if err := mgr.StartEnabled(); err != nil {
		log.Warn("some enabled resources failed to start", "error", err)
	}

	w, err := watcher.New(mgr, log)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	for _, spec := range fc.Specs() {
		dir := watchDirFor(spec)
		if dir == "" {
			continue
		}
		if err := w.Watch(spec.Name, dir); err != nil {
			log.Warn("cannot watch resource directory", "resource", spec.Name, "dir", dir, "error", err)
		}
	}
	go w.Run()

	var metricsSrv *http.Server
	if fc.Metrics.Enabled && fc.Metrics.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle(fc.Metrics.Path, metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              fc.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() { _ = metricsSrv.ListenAndServe() }()
		log.Info("metrics listening", "addr", fc.Metrics.Listen, "path", fc.Metrics.Path)
	}

	apiSrv, err := server.NewServer(fc.Server.Listen, fc.Server.BasePath, mgr)
	if err != nil {
		return fmt.Errorf("start API server: %w", err)
	}
	log.Info("resman daemon listening", "addr", fc.Server.Listen, "resources", len(fc.Resources))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(ctx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	return nil
}

// watchDirFor picks the directory watched for restart-on-change: the
// resource's workdir when set, else its project path. Without the fallback a
// resource with restart_on_change but no workdir would silently go unwatched.
func watchDirFor(spec resource.Spec) string {
	if spec.WorkDir != "" {
		return spec.WorkDir
	}
	return spec.Path
}

func buildHistorySinks(hc config.HistoryConfig) ([]history.Sink, func(), error) {
	var sinks []history.Sink
	var closers []func()
	if hc.ClickHouseAddr != "" {
		sink, err := ch.New(hc.ClickHouseAddr, hc.ClickHouseTable)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect history sink: %w", err)
		}
		if err := sink.EnsureTable(context.Background()); err != nil {
			_ = sink.Close()
			return nil, func() {}, fmt.Errorf("ensure history table: %w", err)
		}
		sinks = append(sinks, sink)
		closers = append(closers, func() { _ = sink.Close() })
	}
	if hc.HTTPURL != "" {
		sinks = append(sinks, history.NewHTTPClickHouseSink(hc.HTTPURL, hc.ClickHouseTable))
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return sinks, closeAll, nil
}
