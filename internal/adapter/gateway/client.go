package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"gpimon/internal/usecase/gpi"
)

// RPCError is an error returned by the server in a response frame.
type RPCError struct {
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client is a gateway RPC client.
type Client struct {
	ws      *websocket.Conn
	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan Frame
	events  chan uint64
	done    chan struct{}
	err     error
}

// Dial connects to the gateway at addr (host:port) with the given token.
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gateway dial %s: %w", addr, err)
	}
	c := &Client{
		ws:      ws,
		pending: make(map[uint64]chan Frame),
		events:  make(chan uint64, defaultSendBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers the value of every gpi.change event. Events are dropped
// while the channel is full. The channel is closed when the connection ends.
func (c *Client) Events() <-chan uint64 { return c.events }

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)
	for {
		var frame Frame
		if err := wsjson.Read(context.Background(), c.ws, &frame); err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		switch frame.Type {
		case FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		case FrameTypeEvent:
			if frame.Value == nil {
				continue
			}
			select {
			case c.events <- *frame.Value:
			default:
			}
		}
	}
}

// Call sends a request and waits for the matching response.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := Frame{Type: FrameTypeRequest, ID: c.nextID.Add(1), Method: method}
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		req.Payload = payload
	}

	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.ws, req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, &RPCError{Code: resp.Code, Message: resp.Error}
		}
		return resp.Payload, nil
	case <-c.done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		return nil, fmt.Errorf("connection closed: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write requests a new output value.
func (c *Client) Write(ctx context.Context, value uint64) error {
	_, err := c.Call(ctx, MethodWrite, WriteParams{Value: value})
	return err
}

// Status fetches the monitor status.
func (c *Client) Status(ctx context.Context) (gpi.Status, error) {
	var st gpi.Status
	raw, err := c.Call(ctx, MethodStatus, nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
