package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/emsplot/runtime/internal/logger"
	"github.com/emsplot/runtime/pkg/record"
)

// ErrNoProcess is returned by Current.Run before any process was installed.
var ErrNoProcess = errors.New("no process installed")

// Current holds the active process of an application that reloads its
// configuration. Replacing the process never affects runs already started.
type Current struct {
	p atomic.Pointer[Process]
}

// Load returns the active process, or nil.
func (c *Current) Load() *Process {
	return c.p.Load()
}

// Replace installs p and returns the previous process.
func (c *Current) Replace(p *Process) *Process {
	old := c.p.Swap(p)
	if p != nil {
		logger.Info("process replaced", slog.String("process", p.Name()))
	}
	return old
}

// Run executes the active process on batch.
func (c *Current) Run(ctx context.Context, batch record.Entries) ([]record.Dataset, error) {
	p := c.p.Load()
	if p == nil {
		return nil, ErrNoProcess
	}
	return p.Run(ctx, batch)
}
