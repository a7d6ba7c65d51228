package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quayside/resman/internal/history"
	"github.com/quayside/resman/internal/metrics"
	"github.com/quayside/resman/internal/resource"
	"github.com/quayside/resman/internal/store"
)

// Manager supervises registered resources: it starts and stops their
// processes, persists configuration changes, and emits lifecycle history.
type Manager struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	pending   map[string]struct{} // names mid-registration, reserved before the store round trip
	st        store.Store
	histSinks []history.Sink
	globalEnv []string
	logger    *slog.Logger
}

type entry struct {
	h      *handler
	cancel context.CancelFunc
}

func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		entries: make(map[string]*entry),
		pending: make(map[string]struct{}),
		logger:  logger,
	}
}

// SetStore configures the persistence store for resource configuration.
// It ensures the schema and stores the instance for subsequent writes.
func (m *Manager) SetStore(s store.Store) error {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.EnsureSchema(context.Background())
}

// SetHistorySinks configures external history sinks (ClickHouse, etc.).
// Passing nil or no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.histSinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

// SetGlobalEnv sets environment variables injected into every supervised
// process. kvs must be in the form "KEY=VALUE".
func (m *Manager) SetGlobalEnv(kvs []string) {
	m.mu.Lock()
	m.globalEnv = append([]string(nil), kvs...)
	m.mu.Unlock()
}

func (m *Manager) mergedEnvFor(spec resource.Spec) []string {
	m.mu.RLock()
	global := m.globalEnv
	m.mu.RUnlock()
	if len(global) == 0 {
		return spec.Env
	}
	merged := make([]string, 0, len(global)+len(spec.Env))
	merged = append(merged, global...)
	merged = append(merged, spec.Env...)
	return merged
}

// Register adds a resource spec under supervision without starting it.
// If the store holds a configuration record for the resource, the persisted
// enabled/restart-on-change flags win over the spec defaults; otherwise the
// spec defaults are persisted.
func (m *Manager) Register(spec resource.Spec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("resource name is required")
	}
	m.mu.Lock()
	st := m.st
	_, exists := m.entries[spec.Name]
	_, inFlight := m.pending[spec.Name]
	if exists || inFlight {
		m.mu.Unlock()
		return fmt.Errorf("resource already registered: %s", spec.Name)
	}
	// Reserve the name before the store round trip so a concurrent Register
	// for the same name fails instead of overwriting this entry.
	m.pending[spec.Name] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, spec.Name)
		m.mu.Unlock()
	}()

	if st != nil {
		rec, err := st.GetByName(context.Background(), spec.Name)
		switch {
		case err == nil:
			spec.Config.Enabled = rec.Enabled
			spec.Config.RestartOnChange = rec.RestartOnChange
		case errors.Is(err, store.ErrNotFound):
			if uerr := st.Upsert(context.Background(), recordFor(spec)); uerr != nil {
				return fmt.Errorf("persist resource config: %w", uerr)
			}
		default:
			return fmt.Errorf("load resource config: %w", err)
		}
	}

	h := newHandler(spec, m.mergedEnvFor, m.recordStart, m.recordStop)
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.entries[spec.Name] = &entry{h: h, cancel: cancel}
	m.mu.Unlock()
	go h.run(ctx)
	return nil
}

func recordFor(spec resource.Spec) store.Record {
	return store.Record{
		Name:            spec.Name,
		Path:            spec.Path,
		Enabled:         spec.Config.Enabled,
		RestartOnChange: spec.Config.RestartOnChange,
		UpdatedAt:       time.Now().UTC(),
	}
}

func (m *Manager) getHandler(name string) *handler {
	m.mu.RLock()
	e := m.entries[name]
	m.mu.RUnlock()
	if e != nil {
		return e.h
	}
	return nil
}

func (m *Manager) send(name string, msg CtrlMsg) error {
	h := m.getHandler(name)
	if h == nil {
		return fmt.Errorf("unknown resource: %s", name)
	}
	if err := h.request(msg); err != nil {
		if errors.Is(err, ErrHandlerClosed) {
			return fmt.Errorf("unknown resource: %s", name)
		}
		return err
	}
	return nil
}

// Start launches the resource's process and watch commands.
func (m *Manager) Start(name string) error {
	if err := m.send(name, CtrlMsg{Type: CtrlStart}); err != nil {
		return err
	}
	metrics.ResourceStarted(name)
	m.updateGauges()
	return nil
}

// Stop terminates the resource's process and watch commands. Stopping a
// resource that is not running is a no-op.
func (m *Manager) Stop(name string, wait time.Duration) error {
	if err := m.send(name, CtrlMsg{Type: CtrlStop, Wait: wait}); err != nil {
		return err
	}
	metrics.ResourceStopped(name)
	m.updateGauges()
	return nil
}

// Restart stops then starts the resource.
func (m *Manager) Restart(name string, wait time.Duration) error {
	if err := m.send(name, CtrlMsg{Type: CtrlRestart, Wait: wait}); err != nil {
		return err
	}
	metrics.ResourceRestarted(name)
	m.updateGauges()
	return nil
}

// SetConfig merges a partial configuration update, persists it, and emits a
// history event. It never starts or stops the resource: enablement is a
// configuration fact, not a lifecycle command.
func (m *Manager) SetConfig(name string, patch resource.ConfigPatch) error {
	h := m.getHandler(name)
	if h == nil {
		return fmt.Errorf("unknown resource: %s", name)
	}
	if err := h.request(CtrlMsg{Type: CtrlSetConfig, Patch: patch}); err != nil {
		if errors.Is(err, ErrHandlerClosed) {
			return fmt.Errorf("unknown resource: %s", name)
		}
		return err
	}
	spec := h.Spec()
	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	if st != nil {
		if err := st.Upsert(context.Background(), recordFor(spec)); err != nil {
			return fmt.Errorf("persist resource config: %w", err)
		}
	}
	m.emit(history.EventConfigChange, spec, h.Status(), "")
	return nil
}

// Config returns the current configuration for a resource.
func (m *Manager) Config(name string) (resource.Config, bool) {
	h := m.getHandler(name)
	if h == nil {
		return resource.Config{}, false
	}
	return h.Spec().Config, true
}

// ConfigByPath returns the configuration for the resource at a project path.
func (m *Manager) ConfigByPath(path string) (resource.Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if spec := e.h.Spec(); spec.Path == path {
			return spec.Config, true
		}
	}
	return resource.Config{}, false
}

// Rename changes a resource's name, re-keying supervision state and the
// persisted record. The resource keeps running through the rename.
func (m *Manager) Rename(from, to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("new resource name is required")
	}
	m.mu.Lock()
	e := m.entries[from]
	if e == nil {
		m.mu.Unlock()
		return fmt.Errorf("unknown resource: %s", from)
	}
	_, taken := m.entries[to]
	_, reserved := m.pending[to]
	if taken || reserved {
		m.mu.Unlock()
		return fmt.Errorf("resource already exists: %s", to)
	}
	delete(m.entries, from)
	m.entries[to] = e
	st := m.st
	m.mu.Unlock()

	spec := e.h.Spec()
	spec.Name = to
	_ = m.send(to, CtrlMsg{Type: CtrlUpdateSpec, Spec: spec})

	if st != nil {
		if err := st.Rename(context.Background(), from, to); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("rename resource record: %w", err)
		}
	}
	m.emit(history.EventRename, spec, e.h.Status(), "renamed from "+from)
	return nil
}

// Delete stops the resource, removes it from supervision, and deletes its
// persisted record.
func (m *Manager) Delete(name string, wait time.Duration) error {
	m.mu.Lock()
	e := m.entries[name]
	if e == nil {
		m.mu.Unlock()
		return fmt.Errorf("unknown resource: %s", name)
	}
	delete(m.entries, name)
	st := m.st
	m.mu.Unlock()

	spec := e.h.Spec()
	reply := make(chan error, 1)
	e.h.ctrl <- CtrlMsg{Type: CtrlShutdown, Reply: reply}
	select {
	case <-reply:
	case <-time.After(wait + 5*time.Second):
	}
	e.cancel()

	if st != nil {
		if err := st.Delete(context.Background(), name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete resource record: %w", err)
		}
	}
	m.emit(history.EventDelete, spec, resource.EmptyStatus(name), "")
	m.updateGauges()
	return nil
}

// Status returns the current runtime status of one resource.
func (m *Manager) Status(name string) (resource.Status, error) {
	h := m.getHandler(name)
	if h == nil {
		return resource.Status{}, fmt.Errorf("unknown resource: %s", name)
	}
	return h.Status(), nil
}

// Statuses returns statuses for every registered resource, sorted by name.
func (m *Manager) Statuses() []resource.Status {
	m.mu.RLock()
	hs := make([]*handler, 0, len(m.entries))
	for _, e := range m.entries {
		hs = append(hs, e.h)
	}
	m.mu.RUnlock()
	res := make([]resource.Status, 0, len(hs))
	for _, h := range hs {
		res = append(res, h.Status())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Specs returns a copy of every registered spec, sorted by name.
func (m *Manager) Specs() []resource.Spec {
	m.mu.RLock()
	specs := make([]resource.Spec, 0, len(m.entries))
	for _, e := range m.entries {
		specs = append(specs, e.h.Spec())
	}
	m.mu.RUnlock()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// StartEnabled starts every resource whose configuration marks it enabled.
// Returns the first error encountered, if any.
func (m *Manager) StartEnabled() error {
	var firstErr error
	for _, spec := range m.Specs() {
		if !spec.Config.Enabled {
			continue
		}
		if err := m.Start(spec.Name); err != nil {
			m.logger.Error("failed to start enabled resource", "resource", spec.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Shutdown gracefully stops all resources and their handler goroutines.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make(map[string]*entry, len(m.entries))
	for name, e := range m.entries {
		entries[name] = e
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		reply := make(chan error, 1)
		select {
		case e.h.ctrl <- CtrlMsg{Type: CtrlShutdown, Reply: reply}:
		default:
			// channel full; context cancel below unblocks run
		}
		e.cancel()
		wg.Add(1)
		go func(r <-chan error) {
			defer wg.Done()
			select {
			case <-r:
			case <-time.After(5 * time.Second):
			}
		}(reply)
	}
	wg.Wait()
	m.updateGauges()
}

func (m *Manager) recordStart(spec resource.Spec, st resource.Status) {
	m.emit(history.EventStart, spec, st, "")
}

func (m *Manager) recordStop(spec resource.Spec, st resource.Status) {
	m.emit(history.EventStop, spec, st, "")
}

func (m *Manager) emit(t history.EventType, spec resource.Spec, st resource.Status, detail string) {
	m.mu.RLock()
	sinks := append([]history.Sink(nil), m.histSinks...)
	m.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:            t,
		OccurredAt:      time.Now().UTC(),
		Name:            spec.Name,
		Path:            spec.Path,
		Enabled:         spec.Config.Enabled,
		RestartOnChange: spec.Config.RestartOnChange,
		Running:         st.Running,
		PID:             st.PID,
		Detail:          detail,
	}
	for _, s := range sinks {
		if err := s.Send(context.Background(), evt); err != nil {
			m.logger.Warn("history sink send failed", "type", string(t), "resource", spec.Name, "error", err)
		}
	}
}

func (m *Manager) updateGauges() {
	running := 0
	for _, st := range m.Statuses() {
		if st.Running {
			running++
		}
		n := 0
		for _, w := range st.WatchCommands {
			if w.Running {
				n++
			}
		}
		metrics.SetRunningWatchCommands(st.Name, n)
	}
	metrics.SetRunningResources(running)
}
