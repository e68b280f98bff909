// Package wsstream exposes a durable.DurableStream over a WebSocket,
// grounded on whisper-darkly-sticky-dvr's overseer.Client
// (overseer/client.go): the same persistent-connection-with-reconnect
// client, the same per-request pending-map correlation keyed by a
// locally generated request id, and the same "fail every in-flight
// request" behavior on disconnect. Where that client issued
// fire-and-forget or single-shot commands to a process supervisor,
// this one issues the four DurableStream operations as request/reply
// pairs against a remote stream served by Server.
package wsstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/durable-go/durable"
	"github.com/gorilla/websocket"
)

type request struct {
	Type      string               `json:"type"`
	ID        string               `json:"id"`
	Event     *durable.DurableEvent `json:"event,omitempty"`
	FromOffset int                 `json:"fromOffset,omitempty"`
}

type response struct {
	ID      string                 `json:"id"`
	Error   string                 `json:"error,omitempty"`
	Offset  int                    `json:"offset,omitempty"`
	Entries []durable.StreamEntry  `json:"entries,omitempty"`
	Length  int                    `json:"length,omitempty"`
	Closed  bool                   `json:"closed,omitempty"`
}

type pendingResult struct {
	resp response
	err  error
}

// Client is a durable.DurableStream backed by a remote Server over a
// persistent, auto-reconnecting WebSocket connection.
type Client struct {
	url string

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	pending sync.Map // request id -> chan pendingResult

	idSeq atomic.Int64

	reconnectDelay time.Duration
	requestTimeout time.Duration
}

// NewClient creates a Client targeting url. Call Run in its own
// goroutine before issuing any stream operations.
func NewClient(url string) *Client {
	return &Client{
		url:            url,
		reconnectDelay: 5 * time.Second,
		requestTimeout: 15 * time.Second,
	}
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.connect(ctx); err != nil && ctx.Err() == nil {
			log.Printf("wsstream: %v — retrying in %s", err, c.reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// IsConnected reports whether a connection is currently active.
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		conn.Close()
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()

		c.pending.Range(func(k, v any) bool {
			v.(chan pendingResult) <- pendingResult{err: fmt.Errorf("wsstream: connection lost")}
			c.pending.Delete(k)
			return true
		})
	}()

	for {
		if ctx.Err() != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Printf("wsstream: bad message: %v", err)
		return
	}
	if ch, ok := c.pending.LoadAndDelete(resp.ID); ok {
		ch.(chan pendingResult) <- pendingResult{resp: resp}
	}
}

func (c *Client) nextID() string {
	return fmt.Sprintf("r%d", c.idSeq.Add(1))
}

func (c *Client) roundTrip(ctx context.Context, req request) (response, error) {
	req.ID = c.nextID()
	ch := make(chan pendingResult, 1)
	c.pending.Store(req.ID, ch)

	raw, err := json.Marshal(req)
	if err != nil {
		c.pending.Delete(req.ID)
		return response{}, err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		c.pending.Delete(req.ID)
		return response{}, fmt.Errorf("wsstream: not connected")
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, raw)
	c.writeMu.Unlock()
	if err != nil {
		c.pending.Delete(req.ID)
		return response{}, err
	}

	select {
	case result := <-ch:
		if result.err != nil {
			return response{}, result.err
		}
		if result.resp.Error != "" {
			return response{}, fmt.Errorf("wsstream: %s", result.resp.Error)
		}
		return result.resp, nil
	case <-ctx.Done():
		c.pending.Delete(req.ID)
		return response{}, ctx.Err()
	case <-time.After(c.requestTimeout):
		c.pending.Delete(req.ID)
		return response{}, fmt.Errorf("wsstream: timeout waiting for response")
	}
}

// Append sends event to the remote stream and returns its offset.
func (c *Client) Append(event durable.DurableEvent) (int, error) {
	resp, err := c.roundTrip(context.Background(), request{Type: "append", Event: &event})
	if err != nil {
		return 0, err
	}
	return resp.Offset, nil
}

// Read fetches every entry at or after fromOffset from the remote
// stream.
func (c *Client) Read(fromOffset int) ([]durable.StreamEntry, error) {
	resp, err := c.roundTrip(context.Background(), request{Type: "read", FromOffset: fromOffset})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Length returns the remote stream's current entry count.
func (c *Client) Length() int {
	resp, err := c.roundTrip(context.Background(), request{Type: "length"})
	if err != nil {
		return 0
	}
	return resp.Length
}

// Closed reports whether the remote stream has been closed.
func (c *Client) Closed() bool {
	resp, err := c.roundTrip(context.Background(), request{Type: "closed"})
	if err != nil {
		return false
	}
	return resp.Closed
}

// Close closes the remote stream. The local connection stays open
// until the context passed to Run is cancelled.
func (c *Client) Close() error {
	_, err := c.roundTrip(context.Background(), request{Type: "close"})
	return err
}
