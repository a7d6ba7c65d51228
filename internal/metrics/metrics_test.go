package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterTwice(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(r); err != nil {
		t.Fatalf("second register must be tolerated: %v", err)
	}
}

func TestCountersMove(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("register: %v", err)
	}
	ResourceStarted("mymod")
	ResourceStarted("mymod")
	ResourceStopped("mymod")
	CommandDispatched("server.startResource")
	DispatchFailed("server.startResource")
	SetRunningResources(3)
	SetRunningWatchCommands("mymod", 2)

	if got := testutil.ToFloat64(resourceStarts.WithLabelValues("mymod")); got < 2 {
		t.Fatalf("starts counter: %v", got)
	}
	if got := testutil.ToFloat64(commandsDispatched.WithLabelValues("server.startResource")); got < 1 {
		t.Fatalf("dispatched counter: %v", got)
	}

	mfs, err := r.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"resman_resource_starts_total", "resman_dispatch_commands_total", "resman_resource_running"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing metric %s in %s", want, joined)
		}
	}
}
