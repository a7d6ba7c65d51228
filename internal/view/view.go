// Package view derives what an explorer tree item shows for a resource and
// turns user intent into dispatched commands. It renders nothing itself; it
// produces flags, a summary string and an ordered menu for a UI layer to
// consume.
package view

import (
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/quayside/resman/internal/dispatch"
	"github.com/quayside/resman/internal/resource"
	"github.com/quayside/resman/internal/serverstate"
	"github.com/quayside/resman/internal/status"
)

// Options carries permission flags threaded down from the explorer root.
// They are passed explicitly, never looked up ambiently.
type Options struct {
	DisableDelete bool
	DisableRename bool
}

// ConfigSource yields the persisted config for a resource, reporting absence
// explicitly so the view can apply its defaults.
type ConfigSource interface {
	ResourceConfig(name string) (resource.Config, bool)
}

// ConfigSourceFunc adapts a function to ConfigSource.
type ConfigSourceFunc func(name string) (resource.Config, bool)

func (f ConfigSourceFunc) ResourceConfig(name string) (resource.Config, bool) { return f(name) }

// MenuEntry is one user-invocable action. Entries are data: the UI decides
// how to draw them and calls OnClick on activation.
type MenuEntry struct {
	ID       string
	Icon     string
	Text     string
	Disabled bool
	OnClick  func()
}

// Model is the view-model for a single resource tree item. Displayed enabled
// and running states are independently sourced: enabled comes from the
// persisted config, running from the live connectivity store. They are never
// conflated; a resource can be enabled-but-stopped or disabled-but-running.
type Model struct {
	name     string
	path     string
	configs  ConfigSource
	statuses *status.Cache[resource.Status]
	conn     *serverstate.State
	sender   dispatch.Sender
	opts     Options

	mu          sync.Mutex
	deleterOpen bool
	renamerOpen bool
	outputOpen  bool

	memoMu   sync.Mutex
	memoOK   bool
	memoKey  menuKey
	memoMenu []MenuEntry
}

func NewModel(name, path string, configs ConfigSource, statuses *status.Cache[resource.Status], conn *serverstate.State, sender dispatch.Sender, opts Options) *Model {
	return &Model{
		name:     name,
		path:     path,
		configs:  configs,
		statuses: statuses,
		conn:     conn,
		sender:   sender,
		opts:     opts,
	}
}

func (m *Model) Name() string { return m.name }

// Enabled defaults to false when the config is absent.
func (m *Model) Enabled() bool {
	cfg, ok := m.configs.ResourceConfig(m.name)
	return ok && cfg.Enabled
}

// AutorestartEnabled defaults to false when the config is absent.
func (m *Model) AutorestartEnabled() bool {
	cfg, ok := m.configs.ResourceConfig(m.name)
	return ok && cfg.RestartOnChange
}

// Running queries the connectivity store live on every call; it is never
// cached here and never influenced by the enabled flag.
func (m *Model) Running() bool { return m.conn.IsResourceRunning(m.name) }

// CanControl reports whether lifecycle commands may be triggered. When false
// they still render, disabled, so the user sees what exists without firing
// network calls at a disconnected daemon.
func (m *Model) CanControl() bool { return m.conn.IsUp() }

func (m *Model) watchCommands() map[string]resource.WatchStatus {
	st := m.statuses.Get(resource.StatusKey(m.path), resource.EmptyStatus(m.name))
	return st.WatchCommands
}

// WatchSummary renders "running/total" over the watch commands, or "" for an
// empty map (absence, not 0/0).
func (m *Model) WatchSummary() string {
	wc := m.watchCommands()
	if len(wc) == 0 {
		return ""
	}
	running := lo.CountBy(lo.Values(wc), func(w resource.WatchStatus) bool { return w.Running })
	return fmt.Sprintf("%d/%d", running, len(wc))
}

// --- commands ---

// Start, Stop, Restart forward the bare resource name, fire-and-forget.

func (m *Model) Start()   { m.sender.Send(dispatch.EndpointStartResource, m.name) }
func (m *Model) Stop()    { m.sender.Send(dispatch.EndpointStopResource, m.name) }
func (m *Model) Restart() { m.sender.Send(dispatch.EndpointRestartResource, m.name) }

// ToggleEnabled posts a config patch inverting the current enabled flag. The
// value is read at invocation time, so a stale menu closure still posts the
// right inversion.
func (m *Model) ToggleEnabled() {
	next := !m.Enabled()
	m.sender.Send(dispatch.EndpointSetResourceConfig, dispatch.ConfigPayload{
		ResourceName: m.name,
		Config:       resource.ConfigPatch{Enabled: &next},
	})
}

// ToggleAutorestart posts a config patch inverting restart-on-change.
func (m *Model) ToggleAutorestart() {
	next := !m.AutorestartEnabled()
	m.sender.Send(dispatch.EndpointSetResourceConfig, dispatch.ConfigPayload{
		ResourceName: m.name,
		Config:       resource.ConfigPatch{RestartOnChange: &next},
	})
}

// RequestDelete and RequestRename are what the confirm modals call once the
// user commits; opening the modals themselves dispatches nothing.

func (m *Model) RequestDelete() { m.sender.Send(dispatch.EndpointDeleteResource, m.name) }

func (m *Model) RequestRename(to string) {
	m.sender.Send(dispatch.EndpointRenameResource, dispatch.RenamePayload{From: m.name, To: to})
}

// --- modal flags: independent local booleans, single-writer, no dispatch ---

func (m *Model) OpenDeleter()  { m.setFlag(&m.deleterOpen, true) }
func (m *Model) CloseDeleter() { m.setFlag(&m.deleterOpen, false) }
func (m *Model) DeleterOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleterOpen
}

func (m *Model) OpenRenamer()  { m.setFlag(&m.renamerOpen, true) }
func (m *Model) CloseRenamer() { m.setFlag(&m.renamerOpen, false) }
func (m *Model) RenamerOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renamerOpen
}

func (m *Model) OpenWatchOutput()  { m.setFlag(&m.outputOpen, true) }
func (m *Model) CloseWatchOutput() { m.setFlag(&m.outputOpen, false) }
func (m *Model) WatchOutputOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputOpen
}

func (m *Model) setFlag(f *bool, v bool) {
	m.mu.Lock()
	*f = v
	m.mu.Unlock()
}

// menuKey captures every input the menu depends on. Comparable, so the memo
// is an explicit equality check rather than framework auto-tracking.
type menuKey struct {
	running       bool
	canControl    bool
	enabled       bool
	autorestart   bool
	hasWatch      bool
	disableDelete bool
	disableRename bool
}

func (m *Model) currentKey() menuKey {
	return menuKey{
		running:       m.Running(),
		canControl:    m.CanControl(),
		enabled:       m.Enabled(),
		autorestart:   m.AutorestartEnabled(),
		hasWatch:      len(m.watchCommands()) > 0,
		disableDelete: m.opts.DisableDelete,
		disableRename: m.opts.DisableRename,
	}
}

// Menu returns the ordered context-menu entries for the resource. Unchanged
// inputs return the identical slice, so a reactive renderer can skip work.
func (m *Model) Menu() []MenuEntry {
	key := m.currentKey()
	m.memoMu.Lock()
	defer m.memoMu.Unlock()
	if m.memoOK && m.memoKey == key {
		return m.memoMenu
	}
	m.memoMenu = m.buildMenu(key)
	m.memoKey = key
	m.memoOK = true
	return m.memoMenu
}

func (m *Model) buildMenu(key menuKey) []MenuEntry {
	entries := make([]MenuEntry, 0, 8)

	// Lifecycle entries: start only while stopped, stop/restart only while
	// running. Present-but-disabled whenever the daemon is unreachable.
	if !key.running {
		entries = append(entries, MenuEntry{
			ID: "start", Icon: "play", Text: "Start",
			Disabled: !key.canControl,
			OnClick:  m.Start,
		})
	} else {
		entries = append(entries,
			MenuEntry{
				ID: "stop", Icon: "stop", Text: "Stop",
				Disabled: !key.canControl,
				OnClick:  m.Stop,
			},
			MenuEntry{
				ID: "restart", Icon: "refresh", Text: "Restart",
				Disabled: !key.canControl,
				OnClick:  m.Restart,
			},
		)
	}

	// Toggles stay enabled regardless of connectivity; labels state the
	// action that will happen, not the current state.
	enabledText := "Enable"
	if key.enabled {
		enabledText = "Disable"
	}
	entries = append(entries, MenuEntry{
		ID: "toggle-enabled", Icon: "power", Text: enabledText,
		OnClick: m.ToggleEnabled,
	})

	autoText := "Enable restart on change"
	if key.autorestart {
		autoText = "Disable restart on change"
	}
	entries = append(entries, MenuEntry{
		ID: "toggle-autorestart", Icon: "loop", Text: autoText,
		OnClick: m.ToggleAutorestart,
	})

	if key.hasWatch {
		entries = append(entries, MenuEntry{
			ID: "watch-output", Icon: "terminal", Text: "Watch commands output",
			OnClick: m.OpenWatchOutput,
		})
	}

	entries = append(entries,
		MenuEntry{
			ID: "rename", Icon: "edit", Text: "Rename",
			Disabled: key.disableRename,
			OnClick:  m.OpenRenamer,
		},
		MenuEntry{
			ID: "delete", Icon: "trash", Text: "Delete",
			Disabled: key.disableDelete,
			OnClick:  m.OpenDeleter,
		},
	)
	return entries
}
