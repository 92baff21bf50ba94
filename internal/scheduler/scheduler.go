// Package scheduler implements the per-node agent scheduler of spec.md
// §4.H: a loop that diffs desired vs. running agent sets and invokes
// lifecycle hooks, grounded on the teacher's jobs.Runner (per-kind
// queues, structured log fan-out) crossed with its operator reconcile
// loop's diff-and-retry convergence pattern.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Agent is the lifecycle contract a web object exposes to the scheduler
// (spec.md §4.H): __install__/__start__/__stop__/__restart__/__uninstall__.
type Agent interface {
	ID() int64
	Install(ctx context.Context) error
	Start(ctx context.Context) (state any, err error)
	Stop(ctx context.Context, state any) error
	Restart(ctx context.Context, state any, prev Agent) (newState any, err error)
	Uninstall(ctx context.Context) error
}

// DesiredSetProvider resolves the Node object's desired agent sets for
// this process (master or a specific worker id).
type DesiredSetProvider interface {
	DesiredAgents(ctx context.Context, workerID int) ([]Agent, error)
	ReloadSelfIfStale(ctx context.Context) error
}

// Scheduler runs the convergence loop described in spec.md §4.H.
type Scheduler struct {
	provider DesiredSetProvider
	workerID int
	interval time.Duration

	mu      sync.Mutex
	running map[int64]runningAgent
	locks   map[int64]*sync.Mutex // at-most-one concurrent lifecycle call per agent

	closing bool
}

type runningAgent struct {
	agent Agent
	state any
}

func New(provider DesiredSetProvider, workerID int, interval time.Duration) *Scheduler {
	return &Scheduler{
		provider: provider,
		workerID: workerID,
		interval: interval,
		running:  map[int64]runningAgent{},
		locks:    map[int64]*sync.Mutex{},
	}
}

// RequestShutdown sets the process-wide is_closing flag; the next loop
// iteration drains every running agent (spec.md §5 "Cancellation").
func (s *Scheduler) RequestShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
}

func (s *Scheduler) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Scheduler) agentLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Run drives the loop until ctx is canceled or a shutdown is requested
// and the final drain completes.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.tick(ctx); err != nil {
			log.Printf("scheduler: tick error: %v", err)
		}
		if s.isClosing() && len(s.snapshotRunning()) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			s.RequestShutdown()
			_ = s.tick(context.Background())
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

func (s *Scheduler) snapshotRunning() map[int64]runningAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]runningAgent, len(s.running))
	for k, v := range s.running {
		out[k] = v
	}
	return out
}

// tick executes exactly one iteration of the loop body in spec.md §4.H.
func (s *Scheduler) tick(ctx context.Context) error {
	if err := s.provider.ReloadSelfIfStale(ctx); err != nil {
		return fmt.Errorf("scheduler: reload self-node: %w", err)
	}

	var desired []Agent
	if !s.isClosing() {
		d, err := s.provider.DesiredAgents(ctx, s.workerID)
		if err != nil {
			return fmt.Errorf("scheduler: get_desired_agents: %w", err)
		}
		desired = d
	}

	desiredByID := map[int64]Agent{}
	for _, a := range desired {
		desiredByID[a.ID()] = a
	}

	current := s.snapshotRunning()

	var toStop, toStart, toRefresh []int64
	for id := range current {
		if _, want := desiredByID[id]; !want {
			toStop = append(toStop, id)
		} else {
			toRefresh = append(toRefresh, id)
		}
	}
	for id := range desiredByID {
		if _, have := current[id]; !have {
			toStart = append(toStart, id)
		}
	}

	var wg sync.WaitGroup
	for _, id := range toStop {
		wg.Add(1)
		go func(id int64) { defer wg.Done(); s.stopAgent(ctx, id) }(id)
	}
	for _, id := range toStart {
		wg.Add(1)
		go func(id int64, a Agent) { defer wg.Done(); s.startAgent(ctx, a) }(id, desiredByID[id])
	}
	for _, id := range toRefresh {
		wg.Add(1)
		go func(id int64, a Agent) { defer wg.Done(); s.refreshAgent(ctx, id, a) }(id, desiredByID[id])
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) startAgent(ctx context.Context, a Agent) {
	lock := s.agentLock(a.ID())
	lock.Lock()
	defer lock.Unlock()

	if err := a.Install(ctx); err != nil {
		log.Printf("scheduler: agent %d install failed: %v", a.ID(), err)
		return
	}
	state, err := a.Start(ctx)
	if err != nil {
		log.Printf("scheduler: agent %d start failed: %v", a.ID(), err)
		return
	}
	s.mu.Lock()
	s.running[a.ID()] = runningAgent{agent: a, state: state}
	s.mu.Unlock()
}

func (s *Scheduler) stopAgent(ctx context.Context, id int64) {
	lock := s.agentLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	ra, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := ra.agent.Stop(ctx, ra.state); err != nil {
		log.Printf("scheduler: agent %d stop failed: %v", id, err)
	}
	if err := ra.agent.Uninstall(ctx); err != nil {
		log.Printf("scheduler: agent %d uninstall failed: %v", id, err)
	}
	s.mu.Lock()
	delete(s.running, id)
	delete(s.locks, id)
	s.mu.Unlock()
}

// refreshAgent restarts an agent only when the desired instance has been
// replaced (a different Agent value than the one currently running);
// otherwise it is left untouched for this tick.
func (s *Scheduler) refreshAgent(ctx context.Context, id int64, desired Agent) {
	lock := s.agentLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	ra, ok := s.running[id]
	s.mu.Unlock()
	if !ok || ra.agent == desired {
		return
	}
	newState, err := desired.Restart(ctx, ra.state, ra.agent)
	if err != nil {
		log.Printf("scheduler: agent %d restart failed: %v", id, err)
		return
	}
	s.mu.Lock()
	s.running[id] = runningAgent{agent: desired, state: newState}
	s.mu.Unlock()
}

// StateOf exposes the local agent's state when resident, for the "state"
// pseudo-field of spec.md §4.I.
func (s *Scheduler) StateOf(id int64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.running[id]
	if !ok {
		return nil, false
	}
	return ra.state, true
}

// IsResident reports whether id is currently running in this process,
// for the RPC proxy's local-dispatch decision (spec.md §4.I).
func (s *Scheduler) IsResident(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}
