// Package coalesce implements the batching coordinator: requests for one
// sheet are buffered in a short window, merged into the fewest possible
// upstream calls, and each caller's exact result is reconstructed from
// the merged execution. Merging is invisible to callers.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cellmux/internal/cellref"
	"cellmux/internal/grid"
	"cellmux/internal/merge"
	"cellmux/internal/split"
	"cellmux/internal/upstream"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("coalescer is closed")

// Config is the runtime tuning surface of the coordinator.
type Config struct {
	// MaxWait is how long a window stays open after its first request.
	MaxWait time.Duration
	// MaxRequests closes a window early once this many requests buffered.
	MaxRequests int
	// CallTimeout is the deadline for one merged upstream call. A timeout
	// fails the whole unit; there is no partial cancellation.
	CallTimeout time.Duration
	// WasteFactor and Adjacency tune the merge engine, see merge.Engine.
	WasteFactor float64
	Adjacency   int
	// ParseCacheSize sizes the address parse cache used by SubmitAddress.
	ParseCacheSize int
}

// Coalescer buffers concurrent requests per sheet, merges them and fans
// merged results back out. It is safe for concurrent use; all window
// state transitions happen under one mutex.
type Coalescer struct {
	cfg     Config
	service upstream.SheetService
	engine  merge.Engine
	parser  *cellref.Parser
	logger  zerolog.Logger

	mu     sync.Mutex
	sheets map[string]*sheetQueue
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

// sheetQueue serializes windows for one sheet: the open window accepting
// requests, plus closed windows awaiting execution in open order. No two
// windows of one sheet execute their upstream calls concurrently.
type sheetQueue struct {
	open    *window
	pending []*window
	running bool
}

// New creates a Coalescer on top of the given sheet service.
func New(cfg Config, service upstream.SheetService, logger zerolog.Logger) (*Coalescer, error) {
	parser, err := cellref.NewParser(cfg.ParseCacheSize)
	if err != nil {
		return nil, err
	}
	return &Coalescer{
		cfg:     cfg,
		service: service,
		engine:  merge.Engine{Adjacency: cfg.Adjacency, WasteFactor: cfg.WasteFactor},
		parser:  parser,
		logger:  logger.With().Str("component", "coalescer").Logger(),
	}, nil
}

// Submit enqueues one request and returns its future. The request joins
// the sheet's currently open window, or deterministically opens the next
// one; it is never silently dropped. The future resolves after the
// window executes, with content indistinguishable from an unmerged call.
// ctx gates admission only: a done ctx fails here, but once enqueued the
// request rides its window to completion.
func (c *Coalescer) Submit(ctx context.Context, sheetID string, rng cellref.Range, kind Kind, payload grid.Matrix) (Future, error) {
	if sheetID == "" {
		return nil, errors.New("sheet id is required")
	}
	if !rng.Valid() {
		return nil, errors.New("invalid range")
	}
	if kind == KindWrite && payload == nil {
		return nil, errors.New("write request requires a payload")
	}
	if kind == KindRead && payload != nil {
		return nil, errors.New("read request must not carry a payload")
	}
	if kind == KindWrite {
		if err := checkPayloadShape(rng, payload); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := &Request{
		SheetID:   sheetID,
		Range:     rng,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
		done:      make(chan Result, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	c.seq++
	req.Seq = c.seq
	req.ID = c.seq

	if c.sheets == nil {
		c.sheets = make(map[string]*sheetQueue)
	}
	sq := c.sheets[sheetID]
	if sq == nil {
		sq = &sheetQueue{}
		c.sheets[sheetID] = sq
	}

	w := sq.open
	if w == nil {
		w = &window{openedAt: time.Now()}
		sq.open = w
		w.timer = time.AfterFunc(c.cfg.MaxWait, func() {
			c.closeWindow(sheetID, w)
		})
	}
	w.requests = append(w.requests, req)

	if c.cfg.MaxRequests > 0 && len(w.requests) >= c.cfg.MaxRequests {
		c.closeLocked(sheetID, sq, w)
	}
	c.mu.Unlock()

	return req.done, nil
}

// checkPayloadShape rejects payloads taller or wider than their declared
// rectangle: such a payload would spill into cells the caller never
// addressed.
func checkPayloadShape(rng cellref.Range, payload grid.Matrix) error {
	if rows := rng.Rows(); rows != cellref.Open && payload.Rows() > rows {
		return fmt.Errorf("payload has %d rows but range %s has %d", payload.Rows(), rng, rows)
	}
	if cols := rng.Cols(); cols != cellref.Open && payload.Cols() > cols {
		return fmt.Errorf("payload has %d columns but range %s has %d", payload.Cols(), rng, cols)
	}
	return nil
}

// SubmitAddress parses an A1-notation address and submits it. Malformed
// addresses fail here, before any window is touched. currentSheet fills
// in the sheet name when the address has no qualifier.
func (c *Coalescer) SubmitAddress(ctx context.Context, sheetID, currentSheet, address string, kind Kind, payload grid.Matrix) (Future, error) {
	rng, err := c.parser.Parse(address, currentSheet)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, sheetID, rng, kind, payload)
}

// closeWindow is the timer path. The window may already have been closed
// by the size threshold or by Close; then this is a no-op.
func (c *Coalescer) closeWindow(sheetID string, w *window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sq := c.sheets[sheetID]
	if sq == nil || sq.open != w {
		return
	}
	c.closeLocked(sheetID, sq, w)
}

// closeLocked moves the open window onto the sheet's execution queue and
// starts the sheet's run loop if it is idle. Caller holds c.mu.
func (c *Coalescer) closeLocked(sheetID string, sq *sheetQueue, w *window) {
	if w.timer != nil {
		w.timer.Stop()
	}
	sq.open = nil
	sq.pending = append(sq.pending, w)

	c.logger.Debug().
		Str("sheet", sheetID).
		Int("requests", len(w.requests)).
		Dur("open", time.Since(w.openedAt)).
		Msg("window closed")

	if !sq.running {
		sq.running = true
		c.wg.Add(1)
		go c.runSheet(sheetID, sq)
	}
}

// runSheet drains one sheet's closed windows in open order.
func (c *Coalescer) runSheet(sheetID string, sq *sheetQueue) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if len(sq.pending) == 0 {
			sq.running = false
			c.mu.Unlock()
			return
		}
		w := sq.pending[0]
		sq.pending = sq.pending[1:]
		c.mu.Unlock()

		c.executeWindow(sheetID, w)
	}
}

// executeWindow merges one closed window's requests per kind and issues
// the merged calls: all writes first, then all reads. Write and read
// units each run concurrently among themselves.
func (c *Coalescer) executeWindow(sheetID string, w *window) {
	var reads, writes []*Request
	for _, req := range w.requests {
		if req.Kind == KindWrite {
			writes = append(writes, req)
		} else {
			reads = append(reads, req)
		}
	}

	writeUnits := c.mergeGroup(writes)
	readUnits := c.mergeGroup(reads)

	c.logger.Debug().
		Str("sheet", sheetID).
		Int("writes", len(writes)).
		Int("reads", len(reads)).
		Int("writeUnits", len(writeUnits)).
		Int("readUnits", len(readUnits)).
		Msg("executing window")

	var wg sync.WaitGroup
	for _, unit := range writeUnits {
		wg.Add(1)
		go func(u merge.Unit) {
			defer wg.Done()
			c.executeWriteUnit(sheetID, writes, u)
		}(unit)
	}
	wg.Wait()

	for _, unit := range readUnits {
		wg.Add(1)
		go func(u merge.Unit) {
			defer wg.Done()
			c.executeReadUnit(sheetID, reads, u)
		}(unit)
	}
	wg.Wait()
}

// mergeGroup runs the merge engine over one kind's requests. A merge
// failure here means a broken invariant; the affected requests fail
// rather than fabricating calls.
func (c *Coalescer) mergeGroup(reqs []*Request) []merge.Unit {
	if len(reqs) == 0 {
		return nil
	}
	ranges := make([]cellref.Range, len(reqs))
	for i, req := range reqs {
		ranges[i] = req.Range
	}
	units, err := c.engine.Merge(ranges)
	if err != nil {
		c.logger.Error().Err(err).Msg("merge failed")
		for _, req := range reqs {
			req.resolve(Result{Err: err})
		}
		return nil
	}
	return units
}

func (c *Coalescer) executeReadUnit(sheetID string, reqs []*Request, unit merge.Unit) {
	ctx, cancel := c.callContext()
	defer cancel()

	fetched, err := c.service.ReadRange(ctx, sheetID, unit.Covering)
	if err != nil {
		// The whole unit shares the failure; merging never fabricates
		// partial success.
		for _, m := range unit.Members {
			reqs[m].resolve(Result{Err: err})
		}
		return
	}

	for _, m := range unit.Members {
		req := reqs[m]
		sub, err := split.SliceRead(unit.Covering, req.Range, fetched)
		if err != nil {
			c.logger.Error().Err(err).Stringer("range", req.Range).Msg("read split failed")
			req.resolve(Result{Err: err})
			continue
		}
		req.resolve(Result{Values: sub})
	}
}

func (c *Coalescer) executeWriteUnit(sheetID string, reqs []*Request, unit merge.Unit) {
	pieces := make([]split.WritePiece, len(unit.Members))
	for i, m := range unit.Members {
		req := reqs[m]
		pieces[i] = split.WritePiece{
			Range:     req.Range,
			Payload:   req.Payload,
			CreatedAt: req.CreatedAt,
			Seq:       req.Seq,
		}
	}

	combined, err := split.ComposeWrite(unit.Covering, pieces)
	if err != nil {
		c.logger.Error().Err(err).Stringer("range", unit.Covering).Msg("write compose failed")
		for _, m := range unit.Members {
			reqs[m].resolve(Result{Err: err})
		}
		return
	}

	ctx, cancel := c.callContext()
	defer cancel()

	err = c.service.WriteRange(ctx, sheetID, unit.Covering, combined)
	for _, m := range unit.Members {
		reqs[m].resolve(Result{Err: err})
	}
}

func (c *Coalescer) callContext() (context.Context, context.CancelFunc) {
	if c.cfg.CallTimeout > 0 {
		return context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	}
	return context.WithCancel(context.Background())
}

// Close stops admission, flushes every open window and waits for all
// in-flight windows to drain, or for ctx to expire.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for sheetID, sq := range c.sheets {
		if sq.open != nil {
			c.closeLocked(sheetID, sq, sq.open)
		}
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info().Msg("coalescer closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
