package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAgent struct {
	id        int64
	installed int32
	started   int32
	stopped   int32
	restarted int32
}

func (a *fakeAgent) ID() int64 { return a.id }
func (a *fakeAgent) Install(ctx context.Context) error {
	atomic.AddInt32(&a.installed, 1)
	return nil
}
func (a *fakeAgent) Start(ctx context.Context) (any, error) {
	atomic.AddInt32(&a.started, 1)
	return "state-" + string(rune('A'+a.id)), nil
}
func (a *fakeAgent) Stop(ctx context.Context, state any) error {
	atomic.AddInt32(&a.stopped, 1)
	return nil
}
func (a *fakeAgent) Restart(ctx context.Context, state any, prev Agent) (any, error) {
	atomic.AddInt32(&a.restarted, 1)
	return state, nil
}
func (a *fakeAgent) Uninstall(ctx context.Context) error { return nil }

type fakeProvider struct {
	mu      sync.Mutex
	desired []Agent
	reloads int32
}

func (p *fakeProvider) DesiredAgents(ctx context.Context, workerID int) ([]Agent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Agent(nil), p.desired...), nil
}
func (p *fakeProvider) ReloadSelfIfStale(ctx context.Context) error {
	atomic.AddInt32(&p.reloads, 1)
	return nil
}
func (p *fakeProvider) setDesired(agents ...Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.desired = agents
}

func TestTickStartsDesiredAgent(t *testing.T) {
	a := &fakeAgent{id: 1}
	p := &fakeProvider{}
	p.setDesired(a)
	s := New(p, 0, time.Hour)
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.installed != 1 || a.started != 1 {
		t.Fatalf("expected agent installed+started once, got installed=%d started=%d", a.installed, a.started)
	}
	if !s.IsResident(1) {
		t.Fatal("expected agent resident after start")
	}
}

func TestTickStopsUndesiredAgent(t *testing.T) {
	a := &fakeAgent{id: 1}
	p := &fakeProvider{}
	p.setDesired(a)
	s := New(p, 0, time.Hour)
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.setDesired() // no longer desired
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.stopped != 1 {
		t.Fatalf("expected agent stopped once, got %d", a.stopped)
	}
	if s.IsResident(1) {
		t.Fatal("expected agent no longer resident")
	}
}

func TestTickRefreshesReplacedInstance(t *testing.T) {
	a1 := &fakeAgent{id: 1}
	p := &fakeProvider{}
	p.setDesired(a1)
	s := New(p, 0, time.Hour)
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	a2 := &fakeAgent{id: 1}
	p.setDesired(a2)
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a2.restarted != 1 {
		t.Fatalf("expected replaced instance restarted, got %d", a2.restarted)
	}
}

func TestShutdownDrainsAllAgents(t *testing.T) {
	a := &fakeAgent{id: 1}
	p := &fakeProvider{}
	p.setDesired(a)
	s := New(p, 0, time.Hour)
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.RequestShutdown()
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.stopped != 1 {
		t.Fatalf("expected agent stopped on drain, got %d", a.stopped)
	}
}

func TestStateOfReturnsResidentState(t *testing.T) {
	a := &fakeAgent{id: 1}
	p := &fakeProvider{}
	p.setDesired(a)
	s := New(p, 0, time.Hour)
	if err := s.tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.StateOf(1); !ok {
		t.Fatal("expected state present for resident agent")
	}
	if _, ok := s.StateOf(99); ok {
		t.Fatal("expected no state for unknown agent")
	}
}
