// Package client implements the privileged-client side of a photon's
// wire protocol (§6.2): dial the daemon's socket, write one JSON line
// per frame, and correlate responses back to requests by id. It is
// shared by the CLI and photon-webhookd — anything that needs to talk
// to a running photon daemon goes through here rather than rolling
// its own socket handling.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photon-run/photond/internal/config"
	"github.com/photon-run/photond/internal/protocol"
)

const defaultCallTimeout = 30 * time.Second

// Client is one connection to a photon daemon. It is safe for
// concurrent use: multiple goroutines may call Call at once, each
// getting back only the response correlated to its own request id.
type Client struct {
	conn    net.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Response

	notify chan *protocol.Response
	closed chan struct{}
}

// Dial connects to the photon daemon identified by paths. It does not
// start the daemon — callers that need autostart semantics should
// call EnsureDaemon first.
func Dial(paths *config.Paths) (*Client, error) {
	conn, err := net.Dial("unix", paths.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("dial photon daemon: %w", err)
	}
	return newClient(conn), nil
}

// NewForConn wraps an already-established connection, bypassing Dial.
// Used by tests and by callers that obtain their transport some other
// way (e.g. a net.Pipe in a handler test).
func NewForConn(conn net.Conn) *Client {
	return newClient(conn)
}

func newClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan *protocol.Response),
		notify:  make(chan *protocol.Response, 64),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), 10*1024*1024)
	for scanner.Scan() {
		var resp protocol.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		c.dispatch(&resp)
	}

	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.closed)
}

// dispatch routes an incoming frame either to the caller awaiting its
// correlation id, or — for channel fan-out and prompt suspensions,
// which arrive unsolicited — onto the Notifications channel.
func (c *Client) dispatch(resp *protocol.Response) {
	if resp.Type == "channel_message" || resp.Type == "prompt" {
		select {
		case c.notify <- resp:
		default:
		}
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// Notifications returns the stream of frames that don't correlate to
// any pending Call: channel_message fan-out and prompt requests.
func (c *Client) Notifications() <-chan *protocol.Response {
	return c.notify
}

// Call sends req, assigning it a fresh id if it has none, and blocks
// for the correlated response up to timeout (defaulting to 30s).
func (c *Client) Call(req *protocol.Request, timeout time.Duration) (*protocol.Response, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	ch := make(chan *protocol.Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed before response to %q arrived", req.Type)
		}
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("timed out waiting for response to %q", req.Type)
	case <-c.closed:
		return nil, fmt.Errorf("connection closed")
	}
}

// Send writes req without waiting for a response — used for
// prompt_response frames, which the daemon acknowledges only on
// failure.
func (c *Client) Send(req *protocol.Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	return c.write(req)
}

func (c *Client) write(req *protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
