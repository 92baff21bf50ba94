// Package runtime bundles the collaborators a request handler needs —
// Registry, ambient transaction support, the local node, and the JSONx
// class registry — into one explicit value, rather than package-level
// globals, so tests can instantiate multiple runtimes side by side
// (spec.md §9 design note).
package runtime

import (
	"context"
	"time"

	"github.com/schemat-io/schemat/internal/bus"
	"github.com/schemat-io/schemat/internal/jsonx"
	"github.com/schemat-io/schemat/internal/registry"
	"github.com/schemat-io/schemat/internal/rpc"
	"github.com/schemat-io/schemat/internal/scheduler"
	"github.com/schemat-io/schemat/internal/storage"
	"github.com/schemat-io/schemat/internal/txn"
)

// Runtime is the per-process handle threaded through request handling
// and agent lifecycle code.
type Runtime struct {
	NodeID   string
	WorkerID int

	Registry  *registry.Registry
	Classes   *jsonx.ClassRegistry
	Storage   *storage.Stack
	Bus       bus.Bus
	Scheduler *scheduler.Scheduler
	RPC       *rpc.Proxy
}

// Config bundles the constructor inputs so New stays a single call.
type Config struct {
	NodeID     string
	WorkerID   int
	Loader     registry.Loader
	DefaultTTL time.Duration
	Classes    *jsonx.ClassRegistry
	Storage    *storage.Stack
	Bus        bus.Bus
}

func New(cfg Config) *Runtime {
	classes := cfg.Classes
	if classes == nil {
		classes = jsonx.NewClassRegistry()
	}
	return &Runtime{
		NodeID:   cfg.NodeID,
		WorkerID: cfg.WorkerID,
		Registry: registry.New(cfg.Loader, cfg.DefaultTTL),
		Classes:  classes,
		Storage:  cfg.Storage,
		Bus:      cfg.Bus,
	}
}

// WithScheduler attaches a Scheduler and builds the RPC proxy on top of
// it, since the proxy's local-dispatch decision depends on scheduler
// residency (spec.md §4.I).
func (rt *Runtime) WithScheduler(s *scheduler.Scheduler, local rpc.LocalDispatcher, nodeOf func(int64) (string, error), timeout time.Duration) *Runtime {
	rt.Scheduler = s
	rt.RPC = rpc.New(local, rt.Bus, nodeOf, timeout)
	return rt
}

// NewTransaction starts a fresh ambient transaction bound to ctx, for
// handlers that need to stage edits (spec.md §4.G).
func (rt *Runtime) NewTransaction(ctx context.Context) (context.Context, *txn.Transaction) {
	t := txn.New()
	return txn.WithTransaction(ctx, t), t
}
