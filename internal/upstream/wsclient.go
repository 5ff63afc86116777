package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
)

// wsFrame is one message of the socket protocol. Requests carry op, sheet,
// range and (for writes) values; responses echo the id with either values
// or an error.
type wsFrame struct {
	ID     uint64      `json:"id"`
	Op     string      `json:"op,omitempty"`
	Sheet  string      `json:"sheet,omitempty"`
	Range  string      `json:"range,omitempty"`
	Values grid.Matrix `json:"values,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// WSClient implements SheetService over a single WebSocket connection,
// for backends that expose a socket endpoint instead of (or alongside)
// REST. In-flight calls are multiplexed by frame id.
type WSClient struct {
	url            string
	requestTimeout time.Duration
	logger         zerolog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	pending   map[uint64]chan wsFrame
	pendingMu sync.Mutex
	nextID    uint64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WSClientConfig configures a WebSocket sheet client.
type WSClientConfig struct {
	URL            string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// DialWS connects to the backend's socket endpoint and starts the read loop.
func DialWS(ctx context.Context, cfg WSClientConfig) (*WSClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect WebSocket: %w", err)
	}

	c := &WSClient{
		url:            cfg.URL,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger.With().Str("component", "upstream-ws").Logger(),
		conn:           conn,
		pending:        make(map[uint64]chan wsFrame),
		closed:         make(chan struct{}),
	}

	c.logger.Info().Str("url", cfg.URL).Msg("WebSocket connected")
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// ReadRange fetches one rectangular region over the socket.
func (c *WSClient) ReadRange(ctx context.Context, sheetID string, rng cellref.Range) (grid.Matrix, error) {
	resp, err := c.call(ctx, wsFrame{Op: "read", Sheet: sheetID, Range: cellref.Format(rng)})
	if err != nil {
		return nil, &CallError{Op: "read", SheetID: sheetID, Range: rng, Message: err.Error()}
	}
	if resp.Error != "" {
		return nil, &CallError{Op: "read", SheetID: sheetID, Range: rng, Message: resp.Error}
	}
	return resp.Values, nil
}

// WriteRange writes one rectangular region over the socket.
func (c *WSClient) WriteRange(ctx context.Context, sheetID string, rng cellref.Range, values grid.Matrix) error {
	resp, err := c.call(ctx, wsFrame{Op: "write", Sheet: sheetID, Range: cellref.Format(rng), Values: values})
	if err != nil {
		return &CallError{Op: "write", SheetID: sheetID, Range: rng, Message: err.Error()}
	}
	if resp.Error != "" {
		return &CallError{Op: "write", SheetID: sheetID, Range: rng, Message: resp.Error}
	}
	return nil
}

func (c *WSClient) call(ctx context.Context, frame wsFrame) (wsFrame, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	respChan := make(chan wsFrame, 1)
	c.pendingMu.Lock()
	c.nextID++
	frame.ID = c.nextID
	c.pending[frame.ID] = respChan
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(frame.ID)
		return wsFrame{}, fmt.Errorf("write failed: %w", err)
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		c.dropPending(frame.ID)
		return wsFrame{}, ctx.Err()
	case <-c.closed:
		return wsFrame{}, fmt.Errorf("connection closed")
	}
}

func (c *WSClient) dropPending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()
	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Error().Err(err).Msg("WebSocket read failed")
			}
			c.closeOnce.Do(func() { close(c.closed) })
			c.failPending()
			return
		}

		c.pendingMu.Lock()
		respChan, ok := c.pending[frame.ID]
		if ok {
			delete(c.pending, frame.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Warn().Uint64("id", frame.ID).Msg("response for unknown request")
			continue
		}
		respChan <- frame
	}
}

// failPending unblocks every in-flight call after the connection dies.
func (c *WSClient) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- wsFrame{ID: id, Error: "connection closed"}
	}
	c.pending = make(map[uint64]chan wsFrame)
	c.pendingMu.Unlock()
}

// Close shuts the connection down and unblocks in-flight calls.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	err := c.conn.Close()
	c.wg.Wait()
	return err
}
