package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/photon-run/photond/internal/protocol"
)

const maxFrameSize = 10 * 1024 * 1024

// writeEntry is one queued outbound frame. channelFrame marks entries
// subject to the bounded channel_message queue of §4.8; every other
// response uses the unbounded queue of §4.2.
type writeEntry struct {
	data         []byte
	channelFrame bool
}

// Connection is one accepted Unix-socket client (§4.2): a reader
// loop, a writer loop draining a private queue, and the bookkeeping
// the rest of the daemon needs — pending prompts, channel
// subscriptions, and the session identity used for lock ownership and
// publish exclusion.
type Connection struct {
	ID        string
	SessionID string

	conn    net.Conn
	scanner *bufio.Scanner

	mu              sync.Mutex
	queue           []writeEntry
	notify          chan struct{}
	closed          chan struct{}
	closeOnce       sync.Once
	channelPending  int
	parseFailures   int

	pendingPrompts map[string]chan json.RawMessage
	wg             sync.WaitGroup
}

func NewConnection(conn net.Conn) *Connection {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameSize)

	c := &Connection{
		ID:             uuid.New().String(),
		conn:           conn,
		scanner:        scanner,
		notify:         make(chan struct{}, 1),
		closed:         make(chan struct{}),
		pendingPrompts: make(map[string]chan json.RawMessage),
	}
	c.SessionID = c.ID // default session identity until a request supplies one

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()
	return c
}

// Handle implements Subscriber — the connection's own ID is its
// pub/sub handle.
func (c *Connection) Handle() string { return c.ID }

// ReadLine returns the next newline-delimited frame, or an error once
// the connection is closed or the peer disconnects.
func (c *Connection) ReadLine() ([]byte, error) {
	if c.scanner.Scan() {
		line := c.scanner.Bytes()
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, net.ErrClosed
}

// NoteParseFailure increments the consecutive-failure counter and
// reports whether the connection has now hit the three-strikes limit
// of §4.2.
func (c *Connection) NoteParseFailure() (shouldClose bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parseFailures++
	return c.parseFailures >= 3
}

// NoteParseSuccess resets the consecutive-failure counter.
func (c *Connection) NoteParseSuccess() {
	c.mu.Lock()
	c.parseFailures = 0
	c.mu.Unlock()
}

// SendResponse enqueues an outbound frame on the unbounded writer
// queue (§4.2) — used for request/response replies and prompt frames.
func (c *Connection) SendResponse(resp *protocol.Response) {
	data, err := resp.Serialize()
	if err != nil {
		return
	}
	c.enqueue(writeEntry{data: data})
}

// DeliverChannelMessage implements Subscriber for the Channel Bus: it
// enqueues on the bounded (1024-deep) channel queue and reports
// whether the frame was accepted or dropped (§4.8 backpressure).
func (c *Connection) DeliverChannelMessage(channel string, message json.RawMessage) bool {
	c.mu.Lock()
	if c.channelPending >= maxChannelQueue {
		c.mu.Unlock()
		return false
	}
	c.channelPending++
	c.mu.Unlock()

	resp := protocol.ChannelMessage(channel, message)
	data, err := resp.Serialize()
	if err != nil {
		c.mu.Lock()
		c.channelPending--
		c.mu.Unlock()
		return false
	}
	c.enqueue(writeEntry{data: data, channelFrame: true})
	return true
}

func (c *Connection) enqueue(entry writeEntry) {
	select {
	case <-c.closed:
		return
	default:
	}
	c.mu.Lock()
	c.queue = append(c.queue, entry)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.notify:
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			entry := c.queue[0]
			c.queue = c.queue[1:]
			if entry.channelFrame {
				c.channelPending--
			}
			c.mu.Unlock()

			if _, err := c.conn.Write(entry.data); err != nil {
				return
			}
		}
	}
}

// RegisterPrompt allocates a correlation channel for a daemon-
// originated prompt frame, keyed by a freshly generated prompt id.
func (c *Connection) RegisterPrompt(promptID string) chan json.RawMessage {
	ch := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.pendingPrompts[promptID] = ch
	c.mu.Unlock()
	return ch
}

// ResolvePrompt delivers a prompt_response's value to the waiting
// caller, if any. Returns false if promptID is unknown (already
// resolved, or never registered on this connection).
func (c *Connection) ResolvePrompt(promptID string, value json.RawMessage) bool {
	c.mu.Lock()
	ch, ok := c.pendingPrompts[promptID]
	if ok {
		delete(c.pendingPrompts, promptID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- value
	return true
}

// abandonPrompts closes every still-pending prompt channel with a nil
// value — callers interpret this as client-gone (§4.5).
func (c *Connection) abandonPrompts() {
	c.mu.Lock()
	pending := c.pendingPrompts
	c.pendingPrompts = make(map[string]chan json.RawMessage)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// Close shuts down the writer loop and underlying socket. Safe to
// call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.abandonPrompts()
		c.conn.Close()
	})
	c.wg.Wait()
}
