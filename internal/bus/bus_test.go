package bus

import (
	"context"
	"testing"
	"time"
)

func TestInProcessPublishSubscribe(t *testing.T) {
	b := NewInProcess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, _, err := b.Subscribe(ctx, "topic-a")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, "topic-a", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-msgs:
		if string(m.Payload) != "hello" {
			t.Fatalf("got %q", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInProcessDoesNotCrossTopics(t *testing.T) {
	b := NewInProcess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, _, _ := b.Subscribe(ctx, "topic-a")
	_ = b.Publish(ctx, "topic-b", []byte("nope"))

	select {
	case m := <-msgs:
		t.Fatalf("unexpected message on topic-a: %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientIDFormat(t *testing.T) {
	got := ClientID("abc", 3)
	want := "node-abc-worker-3"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
