package resman

import (
	"context"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quayside/resman/internal/manager"
	iapi "github.com/quayside/resman/internal/server"
	"github.com/quayside/resman/internal/view"
	"github.com/quayside/resman/pkg/client"
)

func TestManagerFacade(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix sleep")
	}
	m := New(nil)
	defer m.Shutdown()

	spec := Spec{Name: "web", Path: "mods/web", Command: "sleep 60"}
	if err := m.Register(spec); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Start("web"); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err := m.Status("web")
	if err != nil || !st.Running {
		t.Fatalf("status: %+v err=%v", st, err)
	}
	if err := m.Stop("web", time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	s, err := NewStore(t.TempDir() + "/resman.db")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
}

func TestExplorerEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix sleep")
	}
	gin.SetMode(gin.TestMode)
	mgr := manager.New(nil)
	defer mgr.Shutdown()
	if err := mgr.Register(Spec{Name: "web", Path: "mods/web", Command: "sleep 60"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := httptest.NewServer(iapi.NewRouter(mgr, "").Handler())
	defer srv.Close()

	c := client.New(client.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	e := NewExplorer(c, ExplorerOptions{
		Paths: map[string]string{"web": "mods/web"},
		Configs: view.ConfigSourceFunc(func(name string) (Config, bool) {
			return mgr.Config(name)
		}),
		PollInterval: 50 * time.Millisecond,
	})
	defer e.Close()

	v := e.View("web")

	// daemon reachable, resource stopped
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !v.CanControl() {
		time.Sleep(20 * time.Millisecond)
	}
	if !v.CanControl() {
		t.Fatal("explorer never observed the daemon as up")
	}
	if v.Running() {
		t.Fatal("resource must start out stopped")
	}

	// fire-and-forget start; running state arrives via polling
	v.Start()
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !v.Running() {
		time.Sleep(20 * time.Millisecond)
	}
	if !v.Running() {
		t.Fatal("explorer never observed the resource running")
	}

	// menu reflects running state
	ids := make([]string, 0, 8)
	for _, entry := range v.Menu() {
		ids = append(ids, entry.ID)
	}
	if ids[0] != "stop" || ids[1] != "restart" {
		t.Fatalf("unexpected menu for running resource: %v", ids)
	}

	// enable toggles through the daemon and shows up in the view
	v.ToggleEnabled()
	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !v.Enabled() {
		time.Sleep(20 * time.Millisecond)
	}
	if !v.Enabled() {
		t.Fatal("enable toggle never took effect")
	}
	if !v.Running() {
		t.Fatal("enable toggle must not affect running state")
	}
}
