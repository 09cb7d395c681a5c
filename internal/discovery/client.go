package discovery

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client talks to the daemon over one persistent connection. A
// registration lives exactly as long as the connection, so closing the
// client (or crashing) deregisters the local identity.
//
// The client is used by a single goroutine; it is not safe for
// concurrent use.
type Client struct {
	addr    string
	timeout time.Duration
	conn    net.Conn
	reader  *bufio.Reader
}

// NewClient builds a client for the daemon at addr. An empty addr means
// the default loopback port.
func NewClient(addr string, timeout time.Duration) *Client {
	if strings.TrimSpace(addr) == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", DefaultPort)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

// Connect dials the daemon. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close drops the connection and with it every registration it owns.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Register publishes name->port. Hidden names stay invisible to name
// listings.
func (c *Client) Register(ctx context.Context, name string, port int, hidden bool) error {
	resp, err := c.request(ctx, request{Op: opRegister, Name: name, Port: port, Hidden: hidden})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("discovery: register %q: %s", name, resp.Error)
	}
	return nil
}

// Deregister removes a name this connection registered.
func (c *Client) Deregister(ctx context.Context, name string) error {
	resp, err := c.request(ctx, request{Op: opDeregister, Name: name})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("discovery: deregister %q: %s", name, resp.Error)
	}
	return nil
}

// Lookup resolves a registered name to its call port.
func (c *Client) Lookup(ctx context.Context, name string) (int, error) {
	resp, err := c.request(ctx, request{Op: opLookup, Name: name})
	if err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return resp.Port, nil
}

// Names lists visible registrations.
func (c *Client) Names(ctx context.Context) ([]Entry, error) {
	resp, err := c.request(ctx, request{Op: opNames})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New("discovery: names: " + resp.Error)
	}
	return resp.Entries, nil
}

func (c *Client) request(ctx context.Context, req request) (response, error) {
	if err := c.Connect(ctx); err != nil {
		return response{}, err
	}

	line, err := json.Marshal(req)
	if err != nil {
		return response{}, err
	}
	line = append(line, '\n')

	_ = c.conn.SetWriteDeadline(c.deadline(ctx))
	if _, err := c.conn.Write(line); err != nil {
		return response{}, fmt.Errorf("discovery: send %s: %w", req.Op, err)
	}

	_ = c.conn.SetReadDeadline(c.deadline(ctx))
	respLine, err := c.reader.ReadBytes('\n')
	if err != nil {
		return response{}, fmt.Errorf("discovery: recv %s: %w", req.Op, err)
	}

	var resp response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return response{}, fmt.Errorf("discovery: decode %s: %w", req.Op, err)
	}
	return resp, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}
