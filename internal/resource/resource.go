package resource

import (
	"os/exec"
	"strings"
	"time"

	"github.com/quayside/resman/internal/logger"
)

// Config holds the persisted per-resource settings. It is owned by the
// project store; views read it and mutate it only through dispatched
// config patches.
type Config struct {
	Enabled         bool `json:"enabled" mapstructure:"enabled"`
	RestartOnChange bool `json:"restart_on_change" mapstructure:"restart_on_change"`
}

// ConfigPatch is a partial update to a Config. Nil fields are left unchanged.
type ConfigPatch struct {
	Enabled         *bool `json:"enabled,omitempty"`
	RestartOnChange *bool `json:"restart_on_change,omitempty"`
}

// Apply merges the patch into c and reports whether anything changed.
func (p ConfigPatch) Apply(c *Config) bool {
	changed := false
	if p.Enabled != nil && c.Enabled != *p.Enabled {
		c.Enabled = *p.Enabled
		changed = true
	}
	if p.RestartOnChange != nil && c.RestartOnChange != *p.RestartOnChange {
		c.RestartOnChange = *p.RestartOnChange
		changed = true
	}
	return changed
}

// WatchStatus is the runtime state of a single watch command.
type WatchStatus struct {
	Running bool `json:"running"`
}

// Status is the ephemeral runtime status of a resource as observed from the
// supervisor. Enabled is intentionally absent: enabled and running are
// independently sourced and must not be conflated.
type Status struct {
	Name          string                 `json:"name"`
	Running       bool                   `json:"running"`
	PID           int                    `json:"pid"`
	StartedAt     time.Time              `json:"started_at"`
	StoppedAt     time.Time              `json:"stopped_at"`
	Restarts      int                    `json:"restarts"`
	State         string                 `json:"state"` // stopped, starting, running, stopping
	ExitErr       string                 `json:"exit_error,omitempty"`
	WatchCommands map[string]WatchStatus `json:"watch_commands,omitempty"`
}

// EmptyStatus returns the lazily-created default status for a resource that
// has not reported anything yet.
func EmptyStatus(name string) Status {
	return Status{Name: name, State: "stopped", WatchCommands: map[string]WatchStatus{}}
}

// StatusKey derives the status-cache key for a resource path.
func StatusKey(path string) string { return "resource-" + path }

// WatchSpec describes one long-running background command attached to a
// resource (e.g. an asset rebuild watcher).
type WatchSpec struct {
	ID      string `json:"id" mapstructure:"id"`
	Command string `json:"command" mapstructure:"command"`
}

// Spec describes a resource to be supervised.
type Spec struct {
	Name    string        `json:"name" mapstructure:"name"`
	Path    string        `json:"path" mapstructure:"path"` // project-relative directory of the resource
	Command string        `json:"command" mapstructure:"command"`
	WorkDir string        `json:"work_dir" mapstructure:"workdir"`
	Env     []string      `json:"env" mapstructure:"env"`
	Watch   []WatchSpec   `json:"watch" mapstructure:"watch"`
	Config  Config        `json:"config" mapstructure:",squash"`
	Log     logger.Config `json:"log" mapstructure:"log"`
}

// BuildCommand constructs an *exec.Cmd for the given command string.
// It avoids invoking a shell when not necessary, and respects an explicit
// shell invocation already present in the command (e.g. "sh -c 'echo hi'"),
// avoiding double-wrapping with another shell.
func BuildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Absolute shell path so PATH overrides in Env cannot break startup.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It returns (shellPath, afterCArg, true) when
// matched, preserving the substring after "-c " to keep quoting intact.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
