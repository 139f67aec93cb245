// Package hooks provides extension points for the process-launch lifecycle.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/victoralfred/subproc/process"
)

// Hook identifies an extension point implementation.
type Hook interface {
	// Name returns a unique identifier for the hook.
	Name() string

	// Priority determines execution order (lower = earlier).
	Priority() int
}

// PreStartHook is called before a child is launched and may rewrite the
// command.
type PreStartHook interface {
	Hook
	PreStart(ctx context.Context, cmd *process.Cmd) (*process.Cmd, error)
}

// PostExitHook is called after the child has been reaped (or the launch
// failed). code is the child's return code; runErr the launch or wait error.
type PostExitHook interface {
	Hook
	PostExit(ctx context.Context, cmd *process.Cmd, code int, res process.Result, runErr error) error
}

// Registry manages hook registration and invocation.
type Registry struct {
	preStart []PreStartHook
	postExit []PostExitHook
	mu       sync.RWMutex
}

// NewRegistry creates a new hook registry.
func NewRegistry() *Registry {
	return &Registry{
		preStart: make([]PreStartHook, 0),
		postExit: make([]PostExitHook, 0),
	}
}

// Register adds a hook to the registry. A hook may implement both interfaces.
func (r *Registry) Register(hook Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	registered := false
	if h, ok := hook.(PreStartHook); ok {
		r.preStart = append(r.preStart, h)
		sort.Slice(r.preStart, func(i, j int) bool {
			return r.preStart[i].Priority() < r.preStart[j].Priority()
		})
		registered = true
	}

	if h, ok := hook.(PostExitHook); ok {
		r.postExit = append(r.postExit, h)
		sort.Slice(r.postExit, func(i, j int) bool {
			return r.postExit[i].Priority() < r.postExit[j].Priority()
		})
		registered = true
	}

	if !registered {
		return fmt.Errorf("hook %s implements no extension point", hook.Name())
	}
	return nil
}

// Unregister removes a hook by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.preStart = removePreStart(r.preStart, name)
	r.postExit = removePostExit(r.postExit, name)
}

// RunPreStart runs all pre-start hooks in priority order, threading the
// possibly-rewritten command through them.
func (r *Registry) RunPreStart(ctx context.Context, cmd *process.Cmd) (*process.Cmd, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := cmd
	for _, hook := range r.preStart {
		modified, err := hook.PreStart(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", hook.Name(), err)
		}
		current = modified
	}
	return current, nil
}

// RunPostExit runs all post-exit hooks in priority order.
func (r *Registry) RunPostExit(ctx context.Context, cmd *process.Cmd, code int, res process.Result, runErr error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, hook := range r.postExit {
		if err := hook.PostExit(ctx, cmd, code, res, runErr); err != nil {
			return fmt.Errorf("hook %s: %w", hook.Name(), err)
		}
	}
	return nil
}

func removePreStart(hooks []PreStartHook, name string) []PreStartHook {
	result := make([]PreStartHook, 0, len(hooks))
	for _, h := range hooks {
		if h.Name() != name {
			result = append(result, h)
		}
	}
	return result
}

func removePostExit(hooks []PostExitHook, name string) []PostExitHook {
	result := make([]PostExitHook, 0, len(hooks))
	for _, h := range hooks {
		if h.Name() != name {
			result = append(result, h)
		}
	}
	return result
}

// LoggingHook is a built-in hook that logs launches and exits.
type LoggingHook struct {
	logger func(format string, args ...interface{})
}

// NewLoggingHook creates a new logging hook.
func NewLoggingHook(logger func(format string, args ...interface{})) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) Name() string  { return "logging" }
func (h *LoggingHook) Priority() int { return 1000 }

func (h *LoggingHook) PreStart(ctx context.Context, cmd *process.Cmd) (*process.Cmd, error) {
	h.logger("Launching: %s", describe(cmd))
	return cmd, nil
}

func (h *LoggingHook) PostExit(ctx context.Context, cmd *process.Cmd, code int, res process.Result, runErr error) error {
	if runErr != nil {
		h.logger("Launch failed: %s - %v", describe(cmd), runErr)
	} else {
		h.logger("Exited: %s - code=%d", describe(cmd), code)
	}
	return nil
}

func describe(cmd *process.Cmd) string {
	if cmd.Shell != "" {
		return cmd.Shell
	}
	return strings.Join(cmd.Args, " ")
}
