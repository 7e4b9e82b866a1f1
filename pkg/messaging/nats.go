package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/terminal-bench/comptroller/pkg/circuit"
)

// Client wraps NATS connection with additional functionality
type Client struct {
	conn    *nats.Conn
	breaker *circuit.Breaker
	subs    map[string]*nats.Subscription

	mu         sync.RWMutex
	reconnects int
}

// Config holds NATS configuration
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
	Breaker        circuit.Config
}

// NewClient creates a new NATS client
func NewClient(cfg Config) (*Client, error) {
	client := &Client{
		breaker: circuit.NewBreaker(cfg.Breaker),
		subs:    make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectHandler(func(*nats.Conn) {
			client.mu.Lock()
			client.reconnects++
			client.mu.Unlock()
		}),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	client.conn = conn

	return client, nil
}

// Publish publishes a message to a subject. Publication goes through a
// circuit breaker so a dead broker fails fast.
func (c *Client) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	return c.breaker.Execute(ctx, func() error {
		if !c.conn.IsConnected() {
			return nats.ErrConnectionClosed
		}
		return c.conn.Publish(subject, payload)
	})
}

// QueueSubscribe subscribes with a queue group so only one replica handles each message
func (c *Client) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := subject + ":" + queue
	if _, exists := c.subs[key]; exists {
		return fmt.Errorf("already subscribed to %s with queue %s", subject, queue)
	}

	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("failed to queue subscribe: %w", err)
	}

	c.subs[key] = sub
	return nil
}

// Reconnects returns number of reconnections
func (c *Client) Reconnects() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnects
}

// Close drains subscriptions and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		_ = sub.Unsubscribe()
		delete(c.subs, key)
	}

	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to drain connection: %w", err)
	}
	return nil
}
