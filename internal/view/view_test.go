package view

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/resman/internal/dispatch"
	"github.com/quayside/resman/internal/resource"
	"github.com/quayside/resman/internal/serverstate"
	"github.com/quayside/resman/internal/status"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []dispatch.Message
}

func (r *recordingSender) Send(endpoint dispatch.Endpoint, payload any) {
	r.mu.Lock()
	r.sent = append(r.sent, dispatch.Message{Endpoint: endpoint, Payload: payload})
	r.mu.Unlock()
}

func (r *recordingSender) messages() []dispatch.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Message(nil), r.sent...)
}

type fixture struct {
	model   *Model
	sender  *recordingSender
	conn    *serverstate.State
	cache   *status.Cache[resource.Status]
	configs map[string]resource.Config
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		sender:  &recordingSender{},
		conn:    serverstate.New(),
		cache:   status.NewCache[resource.Status](),
		configs: make(map[string]resource.Config),
	}
	src := ConfigSourceFunc(func(name string) (resource.Config, bool) {
		c, ok := f.configs[name]
		return c, ok
	})
	f.model = NewModel("mymod", "resources/mymod", src, f.cache, f.conn, f.sender, opts)
	return f
}

func entryByID(t *testing.T, entries []MenuEntry, id string) MenuEntry {
	t.Helper()
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("menu entry %q not found", id)
	return MenuEntry{}
}

func hasEntry(entries []MenuEntry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func TestFlagsDefaultFalseWithoutConfig(t *testing.T) {
	f := newFixture(Options{})
	assert.False(t, f.model.Enabled())
	assert.False(t, f.model.AutorestartEnabled())
}

func TestFlagsFollowConfig(t *testing.T) {
	f := newFixture(Options{})
	f.configs["mymod"] = resource.Config{Enabled: true, RestartOnChange: true}
	assert.True(t, f.model.Enabled())
	assert.True(t, f.model.AutorestartEnabled())
}

func TestRunningIndependentOfEnabled(t *testing.T) {
	f := newFixture(Options{})
	f.conn.SetRunning("mymod", true)
	assert.True(t, f.model.Running())

	// toggling enabled alone must not change the running view
	f.configs["mymod"] = resource.Config{Enabled: false}
	assert.True(t, f.model.Running())
	f.configs["mymod"] = resource.Config{Enabled: true}
	assert.True(t, f.model.Running())

	f.conn.SetRunning("mymod", false)
	assert.False(t, f.model.Running())
	assert.True(t, f.model.Enabled(), "enabled view must survive a stop")
}

func TestLifecycleEntriesDisabledNotHiddenWhenDaemonDown(t *testing.T) {
	f := newFixture(Options{})
	// daemon down, resource stopped
	menu := f.model.Menu()
	start := entryByID(t, menu, "start")
	assert.True(t, start.Disabled)
	assert.False(t, hasEntry(menu, "stop"))

	// daemon down, resource (still) believed running
	f.conn.SetRunning("mymod", true)
	menu = f.model.Menu()
	assert.True(t, entryByID(t, menu, "stop").Disabled)
	assert.True(t, entryByID(t, menu, "restart").Disabled)
	assert.False(t, hasEntry(menu, "start"))

	// daemon back up
	f.conn.SetUp(true)
	menu = f.model.Menu()
	assert.False(t, entryByID(t, menu, "stop").Disabled)
	assert.False(t, entryByID(t, menu, "restart").Disabled)
}

func TestTogglesAlwaysEnabled(t *testing.T) {
	f := newFixture(Options{})
	menu := f.model.Menu()
	assert.False(t, entryByID(t, menu, "toggle-enabled").Disabled)
	assert.False(t, entryByID(t, menu, "toggle-autorestart").Disabled)
}

func TestToggleLabelsReflectAction(t *testing.T) {
	f := newFixture(Options{})
	assert.Equal(t, "Enable", entryByID(t, f.model.Menu(), "toggle-enabled").Text)

	f.configs["mymod"] = resource.Config{Enabled: true}
	assert.Equal(t, "Disable", entryByID(t, f.model.Menu(), "toggle-enabled").Text)

	f.configs["mymod"] = resource.Config{Enabled: true, RestartOnChange: true}
	assert.Equal(t, "Disable restart on change", entryByID(t, f.model.Menu(), "toggle-autorestart").Text)
}

func TestToggleEnabledInvertsPayload(t *testing.T) {
	f := newFixture(Options{})
	f.configs["mymod"] = resource.Config{Enabled: false}
	f.model.ToggleEnabled()

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, dispatch.EndpointSetResourceConfig, msgs[0].Endpoint)
	payload := msgs[0].Payload.(dispatch.ConfigPayload)
	assert.Equal(t, "mymod", payload.ResourceName)
	patch := payload.Config.(resource.ConfigPatch)
	require.NotNil(t, patch.Enabled)
	assert.True(t, *patch.Enabled)
	assert.Nil(t, patch.RestartOnChange)

	f.configs["mymod"] = resource.Config{Enabled: true}
	f.model.ToggleEnabled()
	patch = f.sender.messages()[1].Payload.(dispatch.ConfigPayload).Config.(resource.ConfigPatch)
	assert.False(t, *patch.Enabled)
}

func TestToggleAutorestartInvertsPayload(t *testing.T) {
	f := newFixture(Options{})
	f.configs["mymod"] = resource.Config{RestartOnChange: true}
	f.model.ToggleAutorestart()
	patch := f.sender.messages()[0].Payload.(dispatch.ConfigPayload).Config.(resource.ConfigPatch)
	require.NotNil(t, patch.RestartOnChange)
	assert.False(t, *patch.RestartOnChange)
	assert.Nil(t, patch.Enabled)
}

func TestLifecycleCommandsSendBareName(t *testing.T) {
	f := newFixture(Options{})
	f.model.Start()
	f.model.Stop()
	f.model.Restart()
	msgs := f.sender.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, dispatch.EndpointStartResource, msgs[0].Endpoint)
	assert.Equal(t, "mymod", msgs[0].Payload)
	assert.Equal(t, dispatch.EndpointStopResource, msgs[1].Endpoint)
	assert.Equal(t, dispatch.EndpointRestartResource, msgs[2].Endpoint)
}

func TestWatchSummary(t *testing.T) {
	f := newFixture(Options{})
	assert.Equal(t, "", f.model.WatchSummary(), "empty map renders nothing")

	st := resource.EmptyStatus("mymod")
	st.WatchCommands = map[string]resource.WatchStatus{
		"a": {Running: true},
		"b": {Running: false},
	}
	f.cache.Set(resource.StatusKey("resources/mymod"), st)
	assert.Equal(t, "1/2", f.model.WatchSummary())
}

func TestWatchOutputEntryOnlyWithWatchCommands(t *testing.T) {
	f := newFixture(Options{})
	assert.False(t, hasEntry(f.model.Menu(), "watch-output"))

	st := resource.EmptyStatus("mymod")
	st.WatchCommands = map[string]resource.WatchStatus{"build": {Running: true}}
	f.cache.Set(resource.StatusKey("resources/mymod"), st)
	assert.True(t, hasEntry(f.model.Menu(), "watch-output"))
}

func TestPermissionFlagsDisableDeleteRename(t *testing.T) {
	f := newFixture(Options{DisableDelete: true, DisableRename: true})
	menu := f.model.Menu()
	assert.True(t, entryByID(t, menu, "delete").Disabled)
	assert.True(t, entryByID(t, menu, "rename").Disabled)
}

func TestModalOpensArePurelyLocal(t *testing.T) {
	f := newFixture(Options{})
	f.model.OpenDeleter()
	f.model.OpenRenamer()
	f.model.OpenWatchOutput()
	assert.Empty(t, f.sender.messages(), "opening modals must not dispatch")
	assert.True(t, f.model.DeleterOpen())
	assert.True(t, f.model.RenamerOpen())
	assert.True(t, f.model.WatchOutputOpen())

	f.model.CloseDeleter()
	f.model.CloseRenamer()
	f.model.CloseWatchOutput()
	assert.False(t, f.model.DeleterOpen())
	assert.False(t, f.model.RenamerOpen())
	assert.False(t, f.model.WatchOutputOpen())
	assert.Empty(t, f.sender.messages())
}

func TestModalFlagsIndependent(t *testing.T) {
	f := newFixture(Options{})
	f.model.OpenDeleter()
	assert.False(t, f.model.RenamerOpen())
	assert.False(t, f.model.WatchOutputOpen())
}

func TestRequestDeleteAndRenameDispatch(t *testing.T) {
	f := newFixture(Options{})
	f.model.RequestDelete()
	f.model.RequestRename("newname")
	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, dispatch.EndpointDeleteResource, msgs[0].Endpoint)
	assert.Equal(t, "mymod", msgs[0].Payload)
	assert.Equal(t, dispatch.EndpointRenameResource, msgs[1].Endpoint)
	assert.Equal(t, dispatch.RenamePayload{From: "mymod", To: "newname"}, msgs[1].Payload)
}

func TestMenuMemoizedOnUnchangedInputs(t *testing.T) {
	f := newFixture(Options{})
	first := f.model.Menu()
	second := f.model.Menu()
	// identical slice, not merely equal
	require.Len(t, second, len(first))
	assert.Same(t, &first[0], &second[0])

	f.conn.SetUp(true)
	third := f.model.Menu()
	assert.False(t, entryByID(t, third, "start").Disabled)
	if len(first) > 0 && len(third) > 0 {
		assert.NotSame(t, &first[0], &third[0])
	}
}

func TestStaleMenuClosureUsesLiveState(t *testing.T) {
	f := newFixture(Options{})
	f.configs["mymod"] = resource.Config{Enabled: false}
	menu := f.model.Menu()
	toggle := entryByID(t, menu, "toggle-enabled")

	// config flips after the menu was built; the closure must invert the
	// value current at click time
	f.configs["mymod"] = resource.Config{Enabled: true}
	toggle.OnClick()
	patch := f.sender.messages()[0].Payload.(dispatch.ConfigPayload).Config.(resource.ConfigPatch)
	assert.False(t, *patch.Enabled)
}
