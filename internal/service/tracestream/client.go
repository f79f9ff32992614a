// Package tracestream reads decoded bus frames from a trace gateway websocket.
package tracestream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"BusScope/internal/domain/models"
	drepo "BusScope/internal/domain/repository"
	"BusScope/pkg/logger"
)

// Config describes the gateway endpoint.
type Config struct {
	URL            string        `yaml:"url" default:"ws://127.0.0.1:5000/trace" validate:"required,url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"15s" validate:"gt=0"`
	// Buffer is the capacity of the entry channel; entries are dropped when full.
	Buffer int `yaml:"buffer" default:"4096" validate:"gt=0"`
}

var errNotConnected = errors.New("tracestream: not connected")

// Client implements a TraceStream backed by the gateway websocket.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	// ready is closed whenever a usable connection is in place
	ready chan struct{}
	// dropped counts entries lost to backpressure
	dropped uint64
}

// New creates a new trace stream.
func New(cfg Config, log *logger.Logger) drepo.TraceStream {
	return NewClient(cfg, log)
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4096
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    log.Component("tracestream"),
		ready:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("tracestream connect: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("tracestream: closed")
	}
	c.conn = conn
	c.connected = true
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()
	c.log.Info("connected", logger.String("url", c.cfg.URL))
	return nil
}

// command is a client to gateway event.
type command struct {
	Event string `json:"event"`
}

// Subscribe asks the gateway to start streaming trace frames.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return errNotConnected
	}
	if err := c.conn.WriteJSON(command{Event: "start_trace"}); err != nil {
		return fmt.Errorf("start trace: %w", err)
	}
	return nil
}

// envelope is a gateway to client event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses one websocket message into trace entries. It accepts event
// envelopes ({"event":"trace","data":...}), bare entries and arrays of entries.
// Gateway status events yield no entries.
func Decode(b []byte) ([]*models.TraceEntry, string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, "", nil
	}
	if b[0] == '[' {
		var out []*models.TraceEntry
		if err := decodeNumbers(b, &out); err != nil {
			return nil, "", err
		}
		return out, "trace", nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, "", err
	}
	switch env.Event {
	case "":
		var e models.TraceEntry
		if err := decodeNumbers(b, &e); err != nil {
			return nil, "", err
		}
		return []*models.TraceEntry{&e}, "trace", nil
	case "trace":
		if len(env.Data) == 0 {
			return nil, env.Event, nil
		}
		return Decode(env.Data)
	default:
		return nil, env.Event, nil
	}
}

func decodeNumbers(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// Read streams trace entries and errors until ctx ends or the client closes.
// After a read error the loop waits for Reconnect.
func (c *Client) Read(ctx context.Context) (<-chan *models.TraceEntry, <-chan error) {
	entries := make(chan *models.TraceEntry, c.cfg.Buffer)
	errs := make(chan error, 1)

	go c.pingLoop(ctx)

	go func() {
		defer close(entries)
		defer close(errs)
		for {
			conn, ok := c.waitConn(ctx)
			if !ok {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if c.isClosed() {
					return
				}
				c.markDown(conn)
				select {
				case errs <- fmt.Errorf("tracestream read: %w", err):
				default:
				}
				continue
			}
			batch, event, err := Decode(b)
			if err != nil {
				c.log.Debug("undecodable frame ignored", logger.Error(err))
				continue
			}
			if event == "trace_error" {
				c.log.Warn("gateway reported a trace error", logger.String("payload", string(b)))
			}
			for _, e := range batch {
				if e == nil {
					continue
				}
				select {
				case entries <- e:
				default:
					c.mu.Lock()
					c.dropped++
					c.mu.Unlock()
				}
			}
		}
	}()

	return entries, errs
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if c.conn != nil && c.connected {
				_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
			c.mu.Unlock()
		}
	}
}

// waitConn blocks until a connection is usable.
func (c *Client) waitConn(ctx context.Context) (*websocket.Conn, bool) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, false
		}
		if c.connected && c.conn != nil {
			conn := c.conn
			c.mu.Unlock()
			return conn, true
		}
		ready := c.ready
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-ready:
		}
	}
}

// markDown flags conn as broken unless it was already replaced.
func (c *Client) markDown(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.connected = false
	c.ready = make(chan struct{})
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Reconnect drops the current connection, waits the reconnect delay and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connected = false
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection. Readers return once it is closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Dropped reports how many entries were discarded because the reader lagged.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

var _ drepo.TraceStream = (*Client)(nil)
