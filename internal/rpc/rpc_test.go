package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/schemat-io/schemat/internal/bus"
)

type fakeLocal struct {
	residents map[int64]bool
	result    any
	err       error
}

func (l *fakeLocal) IsResident(id int64) bool { return l.residents[id] }
func (l *fakeLocal) Dispatch(ctx context.Context, target int64, role, method string, args []any) (any, error) {
	return l.result, l.err
}

func TestCallDispatchesLocallyWhenResident(t *testing.T) {
	local := &fakeLocal{residents: map[int64]bool{5: true}, result: "ok"}
	p := New(local, nil, nil, time.Second)
	v, err := p.Call(context.Background(), 5, "worker", "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != "ok" {
		t.Fatalf("got %v", v)
	}
}

func TestCallPropagatesLocalDispatchError(t *testing.T) {
	local := &fakeLocal{residents: map[int64]bool{5: true}, err: errors.New("boom")}
	p := New(local, nil, nil, time.Second)
	_, err := p.Call(context.Background(), 5, "worker", "ping", nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCallRemoteRoundtripsOverBus(t *testing.T) {
	b := bus.NewInProcess()
	local := &fakeLocal{residents: map[int64]bool{}}
	p := New(local, b, func(target int64) (string, error) { return "node-1", nil }, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// simulate the remote node: receive the envelope, reply with a result.
	msgs, _, err := b.Subscribe(ctx, bus.NodeTopic("node-1"))
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		msg := <-msgs
		var env Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			t.Error(err)
			return
		}
		reply := Envelope{CorrelationID: env.CorrelationID, IsReply: true, Result: "pong"}
		payload, _ := json.Marshal(reply)
		_ = b.Publish(ctx, bus.NodeTopic("node-1"), payload)
	}()

	go func() { _ = p.ListenReplies(ctx, "node-1") }()

	v, err := p.Call(ctx, 99, "worker", "ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != "pong" {
		t.Fatalf("got %v", v)
	}
}

func TestCallRemoteTimesOutWithoutReply(t *testing.T) {
	b := bus.NewInProcess()
	local := &fakeLocal{residents: map[int64]bool{}}
	p := New(local, b, func(target int64) (string, error) { return "node-2", nil }, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, _ = b.Subscribe(ctx, bus.NodeTopic("node-2")) // a subscriber on the target topic that never replies

	_, err := p.Call(ctx, 1, "worker", "ping", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
