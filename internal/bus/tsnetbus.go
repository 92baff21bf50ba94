package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"tailscale.com/tsnet"
)

// Broker fans out Publish/Subscribe calls received over a tsnet mesh
// connection, replacing the Kafka broker named in spec.md §6. It wraps
// an InProcess bus for the actual fanout bookkeeping and adds a wire
// protocol so remote nodes (reached over the cluster's tsnet, per the
// teacher's ts/connector.Connector) can publish and subscribe across
// process boundaries.
type Broker struct {
	srv   *tsnet.Server
	local *InProcess

	mu   sync.Mutex
	lnAddr string
}

// NewBroker wires a Broker onto an already-started tsnet.Server (see
// connector.Connector.Start in the teacher repo for the startup idiom).
func NewBroker(srv *tsnet.Server) *Broker {
	return &Broker{srv: srv, local: NewInProcess()}
}

// Serve accepts connections on addr (":<port>" over the tsnet
// interface) until ctx is canceled.
func (b *Broker) Serve(ctx context.Context, addr string) error {
	ln, err := b.srv.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bus: broker listen: %w", err)
	}
	b.mu.Lock()
	b.lnAddr = ln.Addr().String()
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go b.handleConn(ctx, conn)
	}
}

type wireFrame struct {
	Kind    string `json:"kind"` // "publish" or "subscribe"
	Topic   string `json:"topic"`
	Payload []byte `json:"payload,omitempty"`
}

func (b *Broker) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(bufio.NewReader(conn))
	var frame wireFrame
	if err := dec.Decode(&frame); err != nil {
		return
	}
	switch frame.Kind {
	case "publish":
		_ = b.local.Publish(ctx, frame.Topic, frame.Payload)
	case "subscribe":
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		msgs, unsubscribe, _ := b.local.Subscribe(subCtx, frame.Topic)
		defer unsubscribe()
		enc := json.NewEncoder(conn)
		for msg := range msgs {
			if err := enc.Encode(wireFrame{Kind: "message", Topic: msg.Topic, Payload: msg.Payload}); err != nil {
				return
			}
		}
	}
}

// Client is a Bus implementation that reaches a remote Broker by dialing
// over the tsnet mesh, the cross-node counterpart to Broker.
type Client struct {
	srv        *tsnet.Server
	brokerAddr string
}

func NewClient(srv *tsnet.Server, brokerAddr string) *Client {
	return &Client{srv: srv, brokerAddr: brokerAddr}
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	conn, err := c.srv.Dial(ctx, "tcp", c.brokerAddr)
	if err != nil {
		return fmt.Errorf("bus: client dial: %w", err)
	}
	defer conn.Close()
	return json.NewEncoder(conn).Encode(wireFrame{Kind: "publish", Topic: topic, Payload: payload})
}

func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	conn, err := c.srv.Dial(ctx, "tcp", c.brokerAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("bus: client dial: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(wireFrame{Kind: "subscribe", Topic: topic}); err != nil {
		conn.Close()
		return nil, nil, err
	}

	out := make(chan Message, 64)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			conn.Close()
			close(out)
		})
	}
	go func() {
		defer cancel()
		dec := json.NewDecoder(bufio.NewReader(conn))
		for {
			var frame wireFrame
			if err := dec.Decode(&frame); err != nil {
				return
			}
			select {
			case out <- Message{Topic: frame.Topic, Payload: frame.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
