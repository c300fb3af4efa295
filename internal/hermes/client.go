package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	maxReconnects = 60
	reconnectWait = 2 * time.Second
	flushTimeout  = time.Second
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Handler receives the raw payload of a message on a subscribed subject.
type Handler func(subject string, data []byte)

// conn is the part of *nats.Conn the client uses.
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Client publishes workspace events and holds at most one subscription per
// subject.
type Client struct {
	conn     conn
	instance string
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	closed bool
}

// NewClient connects to NATS. A deadline on ctx bounds the initial connect.
func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	instance := uuid.NewString()
	nc, err := nats.Connect(url, connectOptions(ctx, instance, token, logger)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("event bus connected", "url", nc.ConnectedUrl(), "instance", instance)
	return newClient(nc, instance, logger), nil
}

func newClient(c conn, instance string, logger *slog.Logger) *Client {
	return &Client{
		conn:     c,
		instance: instance,
		logger:   logger.With("component", "hermes"),
		subs:     map[string]*nats.Subscription{},
	}
}

func connectOptions(ctx context.Context, instance, token string, logger *slog.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name("oracle-workspace/" + instance),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("event bus disconnected, workspace events paused", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("event bus reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	return opts
}

// Instance identifies this process on the bus.
func (c *Client) Instance() string { return c.instance }

// Publish sends data as JSON on subject.
func (c *Client) Publish(subject string, data any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe routes messages on subject to handler. Subscribing to a
// subject again replaces the previous handler. A panicking handler is
// logged and the subscription stays alive.
func (c *Client) Subscribe(subject string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		c.dispatch(handler, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if prev, ok := c.subs[subject]; ok {
		_ = prev.Unsubscribe()
		c.logger.Debug("replaced subscription", "subject", subject)
	}
	c.subs[subject] = sub
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) dispatch(handler Handler, subject string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "subject", subject, "panic", r)
		}
	}()
	handler(subject, data)
}

// Unsubscribe drops the subscription on subject. It reports whether one
// existed.
func (c *Client) Unsubscribe(subject string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[subject]
	if !ok {
		return false
	}
	_ = sub.Unsubscribe()
	delete(c.subs, subject)
	return true
}

// Subjects lists the subscribed subjects in order.
func (c *Client) Subjects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Close unsubscribes everything, flushes pending events (the sign-out event
// is usually the last one) and closes the connection. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for subject, sub := range c.subs {
		_ = sub.Unsubscribe()
		delete(c.subs, subject)
	}
	c.mu.Unlock()

	if err := c.conn.FlushTimeout(flushTimeout); err != nil {
		c.logger.Debug("flush before close", "error", err)
	}
	c.conn.Close()
}
