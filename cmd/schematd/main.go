// Command schematd is the process entrypoint for a single Schemat node
// (spec.md §6 "CLI (external shell)"): it wires the Registry, storage
// Stack, cluster Bus, Scheduler and RPC proxy together and runs them
// until signaled, following the teacher's cmd/hostapp/main.go bootstrap
// shape (config.Load, signal.NotifyContext, a switch over os.Args[1]).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/schemat-io/schemat/internal/bus"
	"github.com/schemat-io/schemat/internal/demo"
	"github.com/schemat-io/schemat/internal/jsonx"
	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/registry"
	"github.com/schemat-io/schemat/internal/runtime"
	"github.com/schemat-io/schemat/internal/scheduler"
	"github.com/schemat-io/schemat/internal/storage"
	"github.com/schemat-io/schemat/internal/txn"
	"github.com/schemat-io/schemat/pkg/config"
)

func main() {
	log.SetFlags(0)

	// "Dashes in subcommand names map to underscores internally"
	// (spec.md §6): normalize before dispatch.
	cmd := "run"
	var rest []string
	if len(os.Args) > 1 {
		cmd = strings.ReplaceAll(os.Args[1], "-", "_")
		rest = os.Args[2:]
	}

	switch cmd {
	case "create_cluster":
		if err := runCreateCluster(rest); err != nil {
			log.Fatalf("create-cluster: %v", err)
		}
	case "reinsert":
		if err := runReinsert(rest); err != nil {
			log.Fatalf("reinsert: %v", err)
		}
	case "run":
		if err := runDaemon(); err != nil {
			log.Fatalf("run: %v", err)
		}
	default:
		log.Fatalf("unknown command: %s (use 'run', 'reinsert', or 'create-cluster')", os.Args[1])
	}
}

func runCreateCluster(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: schematd create-cluster <manifest-path>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = config.CreateCluster(f, os.Stdout)
	return err
}

// runReinsert re-persists a set of ids into a target ring, the
// operational escape hatch spec.md §6 names for repairing a corrupted
// or migrated record: "reinsert <ids> [--new <id>] [--ring <name>]".
func runReinsert(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: schematd reinsert <id>[,<id>...] [--new <id>] [--ring <name>]")
	}
	ringName := ""
	newID := int64(0)
	var ids []int64
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--ring":
			i++
			if i >= len(args) {
				return fmt.Errorf("--ring requires a value")
			}
			ringName = args[i]
		case "--new":
			i++
			if i >= len(args) {
				return fmt.Errorf("--new requires a value")
			}
			var id int64
			if _, err := fmt.Sscanf(args[i], "%d", &id); err != nil {
				return fmt.Errorf("--new: %w", err)
			}
			newID = id
		default:
			for _, tok := range strings.Split(args[i], ",") {
				var id int64
				if _, err := fmt.Sscanf(tok, "%d", &id); err != nil {
					return fmt.Errorf("invalid id %q: %w", tok, err)
				}
				ids = append(ids, id)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	stack, closeStack, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStack()

	ctx := context.Background()
	target := stack.Writable()
	if ringName != "" {
		for _, name := range cfg.Rings {
			if name == ringName {
				target = stack.Writable() // Stack always writes to the topmost ring by design (spec.md §6)
			}
		}
	}
	for _, id := range ids {
		rec, ok, err := stack.Select(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			log.Printf("reinsert: id %d not found, skipping", id)
			continue
		}
		dest := id
		if newID != 0 {
			dest = newID
		}
		if err := target.InsertAt(ctx, dest, rec.Data); err != nil {
			return fmt.Errorf("reinsert id %d -> %d: %w", id, dest, err)
		}
		log.Printf("reinsert: %d -> %d (ring %s)", id, dest, target.Name())
	}
	return nil
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	workerID, err := config.WorkerID()
	if err != nil {
		return err
	}
	nodeID, err := config.LoadOrInitNodeID(func() string { return uuid.NewString() })
	if err != nil {
		return err
	}

	stack, closeStack, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStack()

	// A deployed cluster carries an InProcess bus on each node's local
	// fanout and a tsnet Broker/Client pair for cross-node delivery
	// (bus.NewBroker/bus.NewClient); schematd's bare-metal demo runs
	// single-node, so InProcess alone is enough to exercise the same
	// Publish/Subscribe contract without a tsnet auth key on hand.
	b := bus.NewInProcess()
	classes := jsonx.NewClassRegistry()

	rt := runtime.New(runtime.Config{
		NodeID:     nodeID,
		WorkerID:   workerID,
		DefaultTTL: time.Duration(cfg.RefreshInterval) * time.Second,
		Classes:    classes,
		Storage:    stack,
		Bus:        b,
	})

	// Two-phase wiring: the Loader needs the Registry as a jsonx reference
	// resolver for any REF fields in a stored record, but the Registry
	// needs a Loader to do anything useful — so the Registry is built
	// loader-less above and given one here (spec.md §4.F).
	categories := demo.CategoryIndex()
	loader := registry.NewStorageLoader(stack, classes, rt.Registry, categories)
	rt.Registry.SetLoader(loader)
	committer := txn.NewStorageCommitter(stack, classes)

	ttl := time.Duration(cfg.RefreshInterval) * time.Second
	persons, err := seedPersons(context.Background(), rt, committer)
	if err != nil {
		return fmt.Errorf("seed demo persons: %w", err)
	}
	fmt.Print(demo.Describe(persons))

	firstID, _ := persons[0].ID()
	agent := demo.NewHeartbeatAgent(firstID)
	provider := demo.FixedDesiredSet{Agents: []scheduler.Agent{agent}}
	sched := scheduler.New(provider, workerID, ttl)
	rt = rt.WithScheduler(sched, nil, func(int64) (string, error) { return nodeID, nil }, 5*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("schematd: node %s worker %d starting", nodeID, workerID)
	return sched.Run(ctx)
}

// seedPersons inserts a handful of demo Person objects through a real
// Transaction/Committer round trip (spec.md §4.G) rather than preloading
// them directly into the Registry's cache: each Newborn is registered,
// committed to storage, and then re-fetched through the Registry so the
// returned objects have exercised the full StorageLoader decode path.
func seedPersons(ctx context.Context, rt *runtime.Runtime, committer txn.Committer) ([]*object.Object, error) {
	type seed struct {
		name, email string
		joinedAt    time.Time
	}
	seeds := []seed{
		{"Ada Lovelace", "ada@example.com", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)},
		{"Grace Hopper", "grace@example.com", time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)},
	}

	tctx, tx := rt.NewTransaction(ctx)
	provIDs := make([]int64, len(seeds))
	for i, s := range seeds {
		provID := rt.Registry.NextProvisionalID()
		provIDs[i] = provID
		p := demo.NewNewbornPerson(provID, s.name, s.email, s.joinedAt)
		tx.Register(p)
	}

	result, err := tx.Commit(tctx, committer, false)
	if err != nil {
		return nil, err
	}

	persons := make([]*object.Object, len(seeds))
	for i, provID := range provIDs {
		realID, ok := result.AssignedIDs[provID]
		if !ok {
			return nil, fmt.Errorf("no id assigned for provisional %d", provID)
		}
		p, err := rt.Registry.GetLoaded(ctx, realID)
		if err != nil {
			return nil, fmt.Errorf("load seeded person %d: %w", realID, err)
		}
		persons[i] = p
	}
	return persons, nil
}

func openStorage(cfg *config.Config) (*storage.Stack, func(), error) {
	var rings []storage.Ring
	closers := []func() error{}
	for i, name := range cfg.Rings {
		readOnly := i < len(cfg.Rings)-1 // only the topmost ring is writable (spec.md §6)
		ring, err := storage.OpenSQLiteRing(cfg.StateDir, name, readOnly)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, fmt.Errorf("open ring %q: %w", name, err)
		}
		rings = append(rings, ring)
		closers = append(closers, ring.Close)
	}
	stack := storage.NewStack(rings...)
	return stack, func() {
		for _, c := range closers {
			_ = c()
		}
	}, nil
}
