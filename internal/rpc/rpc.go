// Package rpc implements the role-based proxy layer of spec.md §4.I:
// accessing obj.$role.method(args) dispatches in-process when the
// target agent is locally resident, or publishes an envelope on the
// cluster bus and awaits a correlated reply otherwise.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schemat-io/schemat/internal/bus"
	"github.com/schemat-io/schemat/internal/schematerr"
)

// Envelope is the RPC message of spec.md §4.I / §6: {target, role,
// method, args}, plus correlation/reply framing. It is marshaled with
// encoding/json, not jsonx, so Args and Result carry no class tags and
// travel only as plain JSON values.
type Envelope struct {
	CorrelationID string `json:"correlation_id"`
	Target        int64  `json:"target"`
	Role          string `json:"role"`
	Method        string `json:"method"`
	Args          []any  `json:"args,omitempty"`

	IsReply bool   `json:"is_reply,omitempty"`
	Result  any    `json:"result,omitempty"`
	ErrKind string `json:"err_kind,omitempty"`
	ErrMsg  string `json:"err_msg,omitempty"`
}

// LocalDispatcher dispatches a role.method call in-process when the
// target is resident in this scheduler (spec.md: "the scheduler has it
// in state").
type LocalDispatcher interface {
	IsResident(id int64) bool
	Dispatch(ctx context.Context, target int64, role, method string, args []any) (any, error)
}

// Proxy is the RPC boundary a $role accessor synthesizes against.
type Proxy struct {
	local    LocalDispatcher
	bus      bus.Bus
	nodeOf   func(target int64) (nodeID string, err error)
	timeout  time.Duration

	mu      sync.Mutex
	waiting map[string]chan Envelope
}

func New(local LocalDispatcher, b bus.Bus, nodeOf func(target int64) (string, error), timeout time.Duration) *Proxy {
	return &Proxy{
		local:   local,
		bus:     b,
		nodeOf:  nodeOf,
		timeout: timeout,
		waiting: map[string]chan Envelope{},
	}
}

// Call implements obj.$role.method(args) from spec.md §4.I.
func (p *Proxy) Call(ctx context.Context, target int64, role, method string, args []any) (any, error) {
	if p.local != nil && p.local.IsResident(target) {
		result, err := p.local.Dispatch(ctx, target, role, method, args)
		if err != nil {
			return nil, schematerr.Wrap(schematerr.KindRemote, fmt.Sprintf("rpc: local dispatch %s.%s on %d", role, method, target), err)
		}
		return result, nil
	}
	return p.callRemote(ctx, target, role, method, args)
}

func (p *Proxy) callRemote(ctx context.Context, target int64, role, method string, args []any) (any, error) {
	if p.bus == nil || p.nodeOf == nil {
		return nil, schematerr.New(schematerr.KindUnsupported, "rpc: no cluster bus configured for remote dispatch")
	}
	nodeID, err := p.nodeOf(target)
	if err != nil {
		return nil, schematerr.Wrap(schematerr.KindObjectNotFound, "rpc: resolve node for target", err)
	}

	env := Envelope{
		CorrelationID: uuid.NewString(),
		Target:        target,
		Role:          role,
		Method:        method,
		Args:          args,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	replyCh := make(chan Envelope, 1)
	p.mu.Lock()
	p.waiting[env.CorrelationID] = replyCh
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, env.CorrelationID)
		p.mu.Unlock()
	}()

	topic := bus.NodeTopic(nodeID)
	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		return nil, schematerr.Wrap(schematerr.KindRemote, "rpc: publish envelope", err)
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case reply := <-replyCh:
		if reply.ErrKind != "" {
			return nil, schematerr.New(schematerr.Kind(reply.ErrKind), reply.ErrMsg)
		}
		return reply.Result, nil
	case <-time.After(timeout):
		return nil, schematerr.New(schematerr.KindServerTimeout, fmt.Sprintf("rpc: %s.%s on %d timed out after %s", role, method, target, timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleReply delivers a reply envelope received on this node's bus
// subscription to the waiting caller, if any.
func (p *Proxy) HandleReply(env Envelope) {
	p.mu.Lock()
	ch, ok := p.waiting[env.CorrelationID]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- env:
	default:
	}
}

// ListenReplies subscribes to this node's reply topic and feeds
// HandleReply until ctx is canceled, unifying the subscribe-loop idiom
// with the request/reply correlation above.
func (p *Proxy) ListenReplies(ctx context.Context, selfNodeID string) error {
	if p.bus == nil {
		return nil
	}
	msgs, _, err := p.bus.Subscribe(ctx, bus.NodeTopic(selfNodeID))
	if err != nil {
		return err
	}
	for msg := range msgs {
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			continue
		}
		if env.IsReply {
			p.HandleReply(env)
		}
	}
	return nil
}
