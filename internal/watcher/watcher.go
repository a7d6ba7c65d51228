package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quayside/resman/internal/resource"
)

const defaultDebounce = 500 * time.Millisecond

// Controller is the slice of the supervisor the watcher needs: it reads the
// current config, checks liveness, and restarts resources. The manager
// satisfies it.
type Controller interface {
	Config(name string) (resource.Config, bool)
	Status(name string) (resource.Status, error)
	Restart(name string, wait time.Duration) error
}

// Watcher restarts resources whose files change on disk, when their
// restart-on-change flag is set. Events are debounced per resource so a
// burst of writes (editor saves, builds) causes one restart.
type Watcher struct {
	fsw      *fsnotify.Watcher
	ctl      Controller
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	dirs    map[string]string // watched dir -> resource name
	pending map[string]*time.Timer
	closed  chan struct{}
}

func New(ctl Controller, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fsw:      fsw,
		ctl:      ctl,
		logger:   logger,
		debounce: defaultDebounce,
		dirs:     make(map[string]string),
		pending:  make(map[string]*time.Timer),
		closed:   make(chan struct{}),
	}, nil
}

// Watch registers a resource's directory for change events.
func (w *Watcher) Watch(name, dir string) error {
	dir = filepath.Clean(dir)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.mu.Lock()
	w.dirs[dir] = name
	w.mu.Unlock()
	return nil
}

// Forget removes all watched directories belonging to a resource.
func (w *Watcher) Forget(name string) {
	w.mu.Lock()
	for dir, n := range w.dirs {
		if n == name {
			delete(w.dirs, dir)
			_ = w.fsw.Remove(dir)
		}
	}
	if t := w.pending[name]; t != nil {
		t.Stop()
		delete(w.pending, name)
	}
	w.mu.Unlock()
}

// Run processes filesystem events until Close is called.
func (w *Watcher) Run() {
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if name, ok := w.resolve(event.Name); ok {
				w.schedule(name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	select {
	case <-w.closed:
	default:
		close(w.closed)
	}
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()
	return w.fsw.Close()
}

// resolve maps an event path to the owning resource via its watched dir.
func (w *Watcher) resolve(path string) (string, bool) {
	dir := filepath.Clean(filepath.Dir(path))
	w.mu.Lock()
	defer w.mu.Unlock()
	if name, ok := w.dirs[dir]; ok {
		return name, true
	}
	// events can arrive for paths nested below a watched dir
	for d, name := range w.dirs {
		if strings.HasPrefix(dir, d+string(filepath.Separator)) {
			return name, true
		}
	}
	return "", false
}

func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t := w.pending[name]; t != nil {
		t.Reset(w.debounce)
		return
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()
		w.fire(name)
	})
}

func (w *Watcher) fire(name string) {
	cfg, ok := w.ctl.Config(name)
	if !ok || !cfg.RestartOnChange {
		return
	}
	st, err := w.ctl.Status(name)
	if err != nil || !st.Running {
		return
	}
	w.logger.Info("restarting resource after file change", "resource", name)
	if err := w.ctl.Restart(name, 3*time.Second); err != nil {
		w.logger.Error("restart on change failed", "resource", name, "error", err)
	}
}
