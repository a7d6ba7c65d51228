package serverstate

import (
	"context"
	"log/slog"
	"time"

	"github.com/quayside/resman/internal/resource"
	"github.com/quayside/resman/internal/status"
)

// Source is the part of the daemon API the poller consumes.
type Source interface {
	IsReachable(ctx context.Context) bool
	Statuses(ctx context.Context) ([]resource.Status, error)
}

// Poller keeps a State and a status cache eventually consistent with the
// daemon by polling. It is the single writer for both.
type Poller struct {
	src      Source
	state    *State
	cache    *status.Cache[resource.Status]
	paths    map[string]string // resource name -> path, for cache keys
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(src Source, st *State, cache *status.Cache[resource.Status], paths map[string]string, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{src: src, state: st, cache: cache, paths: paths, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce performs one observation cycle. On probe failure only the up flag
// drops; the last known statuses stay visible (stale but better than blank).
func (p *Poller) PollOnce(ctx context.Context) {
	if !p.src.IsReachable(ctx) {
		p.state.SetUp(false)
		return
	}
	sts, err := p.src.Statuses(ctx)
	if err != nil {
		p.logger.Debug("status poll failed", "error", err)
		p.state.SetUp(false)
		return
	}
	p.state.SetUp(true)
	running := make(map[string]bool, len(sts))
	for _, st := range sts {
		running[st.Name] = st.Running
		if path, ok := p.paths[st.Name]; ok {
			p.cache.Set(resource.StatusKey(path), st)
		}
	}
	p.state.ReplaceRunning(running)
}
