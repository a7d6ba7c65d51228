package manager

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/quayside/resman/internal/logger"
	"github.com/quayside/resman/internal/resource"
)

// proc wraps a single child process (a resource main command or one of its
// watch commands) together with its captured output writers.
type proc struct {
	mu      sync.Mutex
	name    string
	command string
	workdir string
	log     logger.Config

	pid       int
	startedAt time.Time
	stoppedAt time.Time
	restarts  int
	running   bool
	exitErr   error

	osProc *os.Process
	stdout io.WriteCloser
	stderr io.WriteCloser
	waitCh chan struct{}
}

func newProc(name, command, workdir string, log logger.Config) *proc {
	return &proc{name: name, command: command, workdir: workdir, log: log}
}

// start launches the command. It is a no-op if the process is already running.
func (p *proc) start(env []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	cmd := resource.BuildCommand(p.command)
	cmd.Dir = p.workdir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	out, errw := p.log.Writers(p.name)
	if out != nil {
		cmd.Stdout = out
	}
	if errw != nil {
		cmd.Stderr = errw
	}
	if err := cmd.Start(); err != nil {
		closeWriters(out, errw)
		p.exitErr = err
		return err
	}
	p.osProc = cmd.Process
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	p.stoppedAt = time.Time{}
	p.running = true
	p.exitErr = nil
	p.stdout = out
	p.stderr = errw
	done := make(chan struct{})
	p.waitCh = done
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.running = false
		p.stoppedAt = time.Now()
		p.exitErr = err
		closeWriters(p.stdout, p.stderr)
		p.stdout = nil
		p.stderr = nil
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

func closeWriters(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}

// stop terminates the process, escalating to kill after wait elapses.
// Stopping a process that is not running is a no-op.
func (p *proc) stop(wait time.Duration) error {
	p.mu.Lock()
	if !p.running || p.osProc == nil {
		p.mu.Unlock()
		return nil
	}
	osp := p.osProc
	done := p.waitCh
	p.mu.Unlock()

	_ = terminate(osp)
	if wait <= 0 {
		wait = 3 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(wait):
	}
	_ = osp.Kill()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (p *proc) alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *proc) markRestarted() {
	p.mu.Lock()
	p.restarts++
	p.mu.Unlock()
}

// snapshot returns the process state without the watch-command map; the
// handler fills that in.
func (p *proc) snapshot() resource.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := resource.Status{
		Name:      p.name,
		Running:   p.running,
		PID:       p.pid,
		StartedAt: p.startedAt,
		StoppedAt: p.stoppedAt,
		Restarts:  p.restarts,
		State:     "stopped",
	}
	if p.running {
		st.State = "running"
	}
	if p.exitErr != nil {
		st.ExitErr = p.exitErr.Error()
	}
	return st
}
