package bus

import (
	"context"
	"sync"
)

// InProcess is a channel-fanout Bus for single-process deployments and
// tests, modeled on the teacher's Store.SubscribeLogs fanout (a
// topic -> set-of-subscriber-channels map guarded by one mutex).
type InProcess struct {
	mu   sync.Mutex
	subs map[string]map[chan Message]struct{}
}

func NewInProcess() *InProcess {
	return &InProcess{subs: map[string]map[chan Message]struct{}{}}
}

func (b *InProcess) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- Message{Topic: topic, Payload: payload}:
		default:
		}
	}
	return nil
}

func (b *InProcess) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)
	b.mu.Lock()
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = map[chan Message]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}
