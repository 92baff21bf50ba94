// Package demo seeds a small, runnable example of the object model —
// a "Person" category, a handful of instances, and one scheduler Agent
// object — modeled on the teacher's store.Store.SeedDemo, which seeds a
// demo Server record and synthetic logs so a freshly cloned repo has
// something to look at without external state.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/schemat-io/schemat/internal/catalog"
	"github.com/schemat-io/schemat/internal/object"
	"github.com/schemat-io/schemat/internal/registry"
	"github.com/schemat-io/schemat/internal/scheduler"
	"github.com/schemat-io/schemat/internal/types"
)

// personClasspath is the classpath a stored Person record is tagged with
// (spec.md §4.C) and the key registry.CategoryIndex looks Person up by.
const personClasspath = "schemat.demo.Person"

// personCategory implements object.Category with a fixed "Person"
// schema: name (required text), email (text, inherited), joinedAt (a
// per-instance TIMESTAMP) and sessionTTL (a DURATION supplied only as a
// category default, never set on an instance — the worked example for
// the category-defaults stream of spec.md §3's property computation).
type personCategory struct {
	schema   types.Schema
	defaults map[string][]any
}

func newPersonCategory() *personCategory {
	return &personCategory{
		schema: types.NewSchema(map[string]types.Type{
			"name":       types.NewText(types.Options{Required: true, NotNull: true, NotBlank: true}),
			"email":      types.NewText(types.Options{Inherited: true}),
			"joinedAt":   types.NewTimestamp(types.Options{Required: true, NotNull: true}),
			"sessionTTL": types.NewDuration(types.Options{Inherited: true, NotNull: true}),
		}, false),
		defaults: map[string][]any{
			"sessionTTL": {30 * time.Minute},
		},
	}
}

func (c *personCategory) FieldType(name string) types.Type { return c.schema.FieldType(name) }
func (c *personCategory) Prototypes() []object.Category     { return nil }
func (c *personCategory) CacheTimeout() int64                { return 300 }
func (c *personCategory) OwnFieldValues(name string) []any   { return c.defaults[name] }
func (c *personCategory) Classpath() string                  { return personClasspath }

func personFields(name, email string, joinedAt time.Time) *catalog.Catalog {
	return catalog.New(
		catalog.Entry{Key: "name", Value: name},
		catalog.Entry{Key: "email", Value: email},
		catalog.Entry{Key: "joinedAt", Value: joinedAt},
	)
}

// NewPerson builds a Loaded Person instance with the given name/email/
// joinedAt, for seeding a freshly started Registry directly (bypassing
// storage).
func NewPerson(id int64, name, email string, joinedAt time.Time) *object.Object {
	o := object.NewStub(id)
	o.MarkLoaded(id, personFields(name, email, joinedAt), newPersonCategory(), nil)
	return o
}

// NewNewbornPerson builds an as-yet-unsaved Person ready for registration
// with a Transaction and insertion through a real Committer (spec.md
// §4.G), as opposed to NewPerson's direct-to-cache bootstrap path.
func NewNewbornPerson(provID int64, name, email string, joinedAt time.Time) *object.Object {
	return object.NewNewborn(provID, personFields(name, email, joinedAt), newPersonCategory(), nil)
}

// CategoryIndex builds a registry.CategoryIndex pre-registered with the
// demo Person category, for wiring into registry.StorageLoader.
func CategoryIndex() *registry.MapCategoryIndex {
	idx := registry.NewCategoryIndex()
	idx.Register(personClasspath, newPersonCategory(), nil)
	return idx
}

// SeedRegistry installs a handful of already-Loaded Person instances
// directly into a Registry's cache, standing in for what a real
// bootstrap would fetch from the storage Stack via a Loader.
func SeedRegistry(reg *registry.Registry, people []*object.Object, ttl time.Duration) {
	for _, p := range people {
		reg.Preload(p, ttl)
	}
}

// heartbeatAgent is a minimal scheduler.Agent: it "starts" by recording
// a timestamp and "stops" silently, demonstrating the install/start/
// stop/restart/uninstall lifecycle spec.md §4.H describes without any
// real workload behind it.
type heartbeatAgent struct {
	id int64
}

func NewHeartbeatAgent(id int64) scheduler.Agent { return &heartbeatAgent{id: id} }

func (a *heartbeatAgent) ID() int64 { return a.id }

func (a *heartbeatAgent) Install(ctx context.Context) error { return nil }

func (a *heartbeatAgent) Start(ctx context.Context) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func (a *heartbeatAgent) Stop(ctx context.Context, state any) error { return nil }

func (a *heartbeatAgent) Restart(ctx context.Context, state any, prev scheduler.Agent) (any, error) {
	return a.Start(ctx)
}

func (a *heartbeatAgent) Uninstall(ctx context.Context) error { return nil }

// FixedDesiredSet is a scheduler.DesiredSetProvider returning a static
// agent list, standing in for a real Node object's $node.get_desired_agents
// resolution until a full node category is wired in.
type FixedDesiredSet struct {
	Agents []scheduler.Agent
}

func (p FixedDesiredSet) DesiredAgents(ctx context.Context, workerID int) ([]scheduler.Agent, error) {
	return p.Agents, nil
}

func (p FixedDesiredSet) ReloadSelfIfStale(ctx context.Context) error { return nil }

// Describe renders a human-readable summary of the seeded people, used
// by the "run" subcommand's startup log line.
func Describe(people []*object.Object) string {
	out := ""
	for _, p := range people {
		id, _ := p.ID()
		name, _ := p.Get("name")
		out += fmt.Sprintf("  #%d %v\n", id, name)
	}
	return out
}
