package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quayside/resman/internal/resource"
)

// ErrHandlerClosed reports a control request against a resource whose handler
// has already shut down (deleted or manager-wide shutdown).
var ErrHandlerClosed = errors.New("resource handler closed")

// CtrlType enumerates control message kinds handled by handler.
type CtrlType int

const (
	CtrlStart CtrlType = iota
	CtrlStop
	CtrlRestart
	CtrlSetConfig
	CtrlUpdateSpec
	CtrlShutdown
)

// CtrlMsg is a control-plane message sent to a handler to serialize lifecycle ops.
type CtrlMsg struct {
	Type  CtrlType
	Spec  resource.Spec
	Patch resource.ConfigPatch
	Wait  time.Duration
	Reply chan error
}

// handler owns the control path for a single resource: its main process plus
// any watch commands. All lifecycle operations funnel through the ctrl channel
// so they are serialized per resource.
type handler struct {
	mu    sync.RWMutex
	spec  resource.Spec
	main  *proc
	watch map[string]*proc // keyed by WatchSpec.ID

	ctrl chan CtrlMsg
	done chan struct{} // closed when run exits; gates requests against a shut-down handler

	// injected callbacks (no direct Manager dependency)
	onStart  func(resource.Spec, resource.Status)
	onStop   func(resource.Spec, resource.Status)
	mergeEnv func(resource.Spec) []string
}

func newHandler(spec resource.Spec, mergeEnv func(resource.Spec) []string, onStart, onStop func(resource.Spec, resource.Status)) *handler {
	h := &handler{
		spec:     spec,
		main:     newProc(spec.Name, spec.Command, spec.WorkDir, spec.Log),
		watch:    make(map[string]*proc),
		ctrl:     make(chan CtrlMsg, 16),
		done:     make(chan struct{}),
		onStart:  onStart,
		onStop:   onStop,
		mergeEnv: mergeEnv,
	}
	for _, w := range spec.Watch {
		h.watch[w.ID] = newProc(spec.Name+"-"+w.ID, w.Command, spec.WorkDir, spec.Log)
	}
	return h
}

func (h *handler) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			_ = h.stopNow(3 * time.Second)
			return
		case msg := <-h.ctrl:
			var err error
			switch msg.Type {
			case CtrlStart:
				err = h.startNow()
			case CtrlStop:
				err = h.stopNow(msg.Wait)
			case CtrlRestart:
				err = h.restartNow(msg.Wait)
			case CtrlSetConfig:
				h.mu.Lock()
				msg.Patch.Apply(&h.spec.Config)
				h.mu.Unlock()
			case CtrlUpdateSpec:
				h.applySpec(msg.Spec)
			case CtrlShutdown:
				_ = h.stopNow(3 * time.Second)
				if msg.Reply != nil {
					msg.Reply <- nil
				}
				return
			}
			if msg.Reply != nil {
				msg.Reply <- err
			}
		}
	}
}

// request sends a control message and waits for its reply. It returns
// ErrHandlerClosed instead of blocking when the handler has already shut
// down, which an operation racing a Delete would otherwise do.
func (h *handler) request(msg CtrlMsg) error {
	reply := make(chan error, 1)
	msg.Reply = reply
	select {
	case h.ctrl <- msg:
	case <-h.done:
		return ErrHandlerClosed
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrHandlerClosed
	}
}

func (h *handler) startNow() error {
	h.mu.RLock()
	spec := h.spec
	merge := h.mergeEnv
	h.mu.RUnlock()
	if h.main.alive() {
		return nil
	}
	env := []string(nil)
	if merge != nil {
		env = merge(spec)
	}
	if err := h.main.start(env); err != nil {
		return err
	}
	// watch commands are best-effort; a failed watcher does not fail the start
	h.mu.RLock()
	for _, w := range h.watch {
		_ = w.start(env)
	}
	h.mu.RUnlock()
	if h.onStart != nil {
		h.onStart(spec, h.Status())
	}
	return nil
}

func (h *handler) stopNow(wait time.Duration) error {
	h.mu.RLock()
	spec := h.spec
	watch := make([]*proc, 0, len(h.watch))
	for _, w := range h.watch {
		watch = append(watch, w)
	}
	h.mu.RUnlock()
	wasAlive := h.main.alive()
	for _, w := range watch {
		_ = w.stop(wait)
	}
	err := h.main.stop(wait)
	if wasAlive && h.onStop != nil {
		h.onStop(spec, h.Status())
	}
	return err
}

func (h *handler) restartNow(wait time.Duration) error {
	if err := h.stopNow(wait); err != nil {
		return err
	}
	h.main.markRestarted()
	return h.startNow()
}

// applySpec swaps in a new spec, rebuilding process wrappers for anything that
// is not currently running so the change takes effect on next start.
func (h *handler) applySpec(spec resource.Spec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spec = spec
	if !h.main.alive() {
		restarts := h.main.restarts
		h.main = newProc(spec.Name, spec.Command, spec.WorkDir, spec.Log)
		h.main.restarts = restarts
	}
	next := make(map[string]*proc, len(spec.Watch))
	for _, w := range spec.Watch {
		if old, ok := h.watch[w.ID]; ok && old.alive() {
			next[w.ID] = old
			continue
		}
		next[w.ID] = newProc(spec.Name+"-"+w.ID, w.Command, spec.WorkDir, spec.Log)
	}
	// stop watchers that were removed from the spec
	for id, old := range h.watch {
		if _, keep := next[id]; !keep && old.alive() {
			go func(p *proc) { _ = p.stop(time.Second) }(old)
		}
	}
	h.watch = next
}

// Status returns an externally consumable snapshot including watch-command
// states keyed by watch ID.
func (h *handler) Status() resource.Status {
	st := h.main.snapshot()
	st.WatchCommands = map[string]resource.WatchStatus{}
	h.mu.RLock()
	for id, w := range h.watch {
		st.WatchCommands[id] = resource.WatchStatus{Running: w.alive()}
	}
	h.mu.RUnlock()
	return st
}

// Spec returns a copy of the current spec.
func (h *handler) Spec() resource.Spec {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.spec
}
