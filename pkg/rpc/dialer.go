package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
)

// Dialer owns one WebSocket connection and correlates responses to calls.
type Dialer interface {
	// Dial opens the connection and returns once it is established. The
	// connection lives until ctx is done or the socket fails; handleClosure
	// then runs once with the first error, or nil on a clean shutdown.
	Dial(ctx context.Context, url string, handleClosure func(err error)) error

	IsConnected() bool

	// Call sends req and waits for the response carrying the same request
	// id. It fails with ErrCallTimeout when ctx's deadline passes and with
	// ErrConnectionLost when the socket goes away first.
	Call(ctx context.Context, req *Request) (*Response, error)

	// EventCh delivers frames that match no pending call, in arrival order.
	EventCh() <-chan *Response
}

type dialCtx struct {
	ctx  context.Context
	conn *websocket.Conn
	lg   log.Logger
}

type pendingCall struct {
	method      string
	sink        chan *Response
	submittedAt time.Time
}

// WebsocketDialerConfig tunes the WebsocketDialer. Zero values fall back to
// DefaultWebsocketDialerConfig, except PingInterval.
type WebsocketDialerConfig struct {
	HandshakeTimeout time.Duration

	// PingInterval is the keep-alive period. Zero disables keep-alive.
	PingInterval time.Duration
	PingTimeout  time.Duration
	// PingRequestID is reserved for keep-alive pings. Callers must never
	// mint it.
	PingRequestID uint64

	EventChanSize int

	// AbandonedTTL bounds how long ids of timed-out calls are remembered so
	// their late responses are dropped instead of surfacing as events.
	AbandonedTTL time.Duration
}

// DefaultWebsocketDialerConfig is the configuration used by the session layer.
var DefaultWebsocketDialerConfig = WebsocketDialerConfig{
	HandshakeTimeout: 5 * time.Second,
	PingInterval:     5 * time.Second,
	PingTimeout:      10 * time.Second,
	PingRequestID:    100,
	EventChanSize:    100,
	AbandonedTTL:     5 * time.Minute,
}

var _ Dialer = (*WebsocketDialer)(nil)

// WebsocketDialer implements Dialer over gorilla/websocket. Writes are
// serialized so calls reach the wire in the order they were issued.
type WebsocketDialer struct {
	cfg       WebsocketDialerConfig
	dialCtx   *dialCtx
	eventCh   chan *Response
	pending   map[uint64]*pendingCall
	abandoned map[uint64]time.Time
	mu        sync.RWMutex
	writeMu   sync.Mutex
}

// NewWebsocketDialer returns a disconnected dialer. Call Dial to connect.
func NewWebsocketDialer(cfg WebsocketDialerConfig) *WebsocketDialer {
	if cfg.EventChanSize <= 0 {
		cfg.EventChanSize = DefaultWebsocketDialerConfig.EventChanSize
	}
	if cfg.AbandonedTTL <= 0 {
		cfg.AbandonedTTL = DefaultWebsocketDialerConfig.AbandonedTTL
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultWebsocketDialerConfig.PingTimeout
	}
	return &WebsocketDialer{
		cfg:       cfg,
		eventCh:   make(chan *Response, cfg.EventChanSize),
		pending:   make(map[uint64]*pendingCall),
		abandoned: make(map[uint64]time.Time),
	}
}

// Dial connects to url. It fails with ErrAlreadyConnected while a previous
// connection is live.
func (d *WebsocketDialer) Dial(parentCtx context.Context, url string, handleClosure func(err error)) error {
	if d.IsConnected() {
		return ErrAlreadyConnected
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  d.cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(parentCtx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	childCtx, cancel := context.WithCancel(parentCtx)
	workers := 2
	if d.cfg.PingInterval > 0 {
		workers++
	}
	wg := sync.WaitGroup{}
	wg.Add(workers)

	var closureErr error
	var closureErrMu sync.Mutex
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		defer closureErrMu.Unlock()

		if err != nil && closureErr == nil {
			closureErr = err
		}
		cancel()
		wg.Done()
	}

	dc := &dialCtx{
		ctx:  childCtx,
		conn: conn,
		lg:   log.FromContext(parentCtx).WithName("ws-dialer"),
	}
	eventCh := make(chan *Response, d.cfg.EventChanSize)

	d.mu.Lock()
	d.dialCtx = dc
	d.eventCh = eventCh
	d.pending = make(map[uint64]*pendingCall)
	d.abandoned = make(map[uint64]time.Time)
	d.mu.Unlock()

	// Workers are bound to dc so a redial never hands them the new socket.
	go d.closeOnContextDone(dc, childHandleClosure)
	go d.readMessages(dc, eventCh, childHandleClosure)
	if d.cfg.PingInterval > 0 {
		go d.pingPeriodically(dc, childHandleClosure)
	}

	go func() {
		wg.Wait()

		closureErrMu.Lock()
		defer closureErrMu.Unlock()
		if handleClosure != nil {
			handleClosure(closureErr)
		}
	}()

	return nil
}

func (d *WebsocketDialer) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.dialCtx != nil && d.dialCtx.ctx.Err() == nil
}

// PendingCount returns the number of calls awaiting a response.
func (d *WebsocketDialer) PendingCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pending)
}

func (d *WebsocketDialer) closeOnContextDone(dc *dialCtx, handleClosure func(err error)) {
	<-dc.ctx.Done()

	outstanding := 0
	d.mu.Lock()
	// After a redial the maps belong to the new connection.
	if d.dialCtx == dc {
		outstanding = len(d.pending)
		// Waiting calls observe the closed connection context and fail with
		// ErrConnectionLost.
		d.pending = make(map[uint64]*pendingCall)
		d.abandoned = make(map[uint64]time.Time)
	}
	d.mu.Unlock()

	if outstanding > 0 {
		dc.lg.Warn("connection closed with calls outstanding", "count", outstanding)
	}

	conn := dc.conn
	d.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	d.writeMu.Unlock()

	handleClosure(conn.Close())
}

func (d *WebsocketDialer) readMessages(dc *dialCtx, eventCh chan<- *Response, handleClosure func(err error)) {
	ctx, conn, lg := dc.ctx, dc.conn, dc.lg

	for {
		_, messageBytes, err := conn.ReadMessage()
		if ctx.Err() != nil {
			handleClosure(nil)
			lg.Debug("read loop exiting due to context done")
			return
		} else if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				lg.Error("websocket read timeout", "error", err)
			} else {
				lg.Warn("websocket read failed", "error", err)
			}
			handleClosure(fmt.Errorf("%w: %w: %w", ErrConnectionLost, ErrReadingMessage, err))
			return
		}

		var msg Response
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			lg.Warn("malformed message", "message", string(messageBytes), "error", err)
			continue
		}

		id := msg.Res.RequestID
		d.mu.Lock()
		if d.dialCtx != dc {
			d.mu.Unlock()
			handleClosure(nil)
			return
		}
		call, isResponse := d.pending[id]
		if isResponse {
			delete(d.pending, id)
		}
		_, isLate := d.abandoned[id]
		if !isResponse && isLate {
			delete(d.abandoned, id)
		}
		d.mu.Unlock()

		switch {
		case isResponse:
			// sink has capacity 1 and receives exactly one frame.
			call.sink <- &msg
		case isLate:
			lg.Debug("dropping late response", "requestID", id, "method", msg.Res.Method)
		default:
			select {
			case <-ctx.Done():
				handleClosure(nil)
				return
			case eventCh <- &msg:
			default:
				lg.Warn("event channel full, dropping event", "method", msg.Res.Method)
			}
		}
	}
}

func (d *WebsocketDialer) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	id := req.Req.RequestID

	// Register before writing so a fast response always finds its sink.
	d.mu.Lock()
	if d.dialCtx == nil || d.dialCtx.ctx.Err() != nil {
		d.mu.Unlock()
		return nil, ErrNotConnected
	}
	if _, exists := d.pending[id]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrDuplicateRequestID, id)
	}
	conn := d.dialCtx.conn
	connCtx := d.dialCtx.ctx
	call := &pendingCall{
		method:      req.Req.Method,
		sink:        make(chan *Response, 1),
		submittedAt: time.Now(),
	}
	d.pending[id] = call
	delete(d.abandoned, id)
	d.mu.Unlock()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		d.forget(id)
		return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, err)
	}

	d.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, reqJSON)
	d.writeMu.Unlock()
	if err != nil {
		d.forget(id)
		if connCtx.Err() != nil {
			return nil, fmt.Errorf("%w: request %d", ErrConnectionLost, id)
		}
		return nil, fmt.Errorf("%w: %w", ErrSendingRequest, err)
	}

	select {
	case res := <-call.sink:
		return res, nil
	case <-ctx.Done():
		d.abandon(id)
		if res, ok := tryReceive(call.sink); ok {
			return res, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s request %d after %s",
				ErrCallTimeout, call.method, id, time.Since(call.submittedAt).Round(time.Millisecond))
		}
		return nil, ctx.Err()
	case <-connCtx.Done():
		d.forget(id)
		if res, ok := tryReceive(call.sink); ok {
			return res, nil
		}
		return nil, fmt.Errorf("%w: %s request %d", ErrConnectionLost, call.method, id)
	}
}

func tryReceive(sink chan *Response) (*Response, bool) {
	select {
	case res := <-sink:
		return res, true
	default:
		return nil, false
	}
}

func (d *WebsocketDialer) forget(id uint64) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// abandon removes a timed-out call and remembers its id so a late response
// is dropped.
func (d *WebsocketDialer) abandon(id uint64) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pending, id)
	for abandonedID, at := range d.abandoned {
		if now.Sub(at) > d.cfg.AbandonedTTL {
			delete(d.abandoned, abandonedID)
		}
	}
	d.abandoned[id] = now
}

func (d *WebsocketDialer) pingPeriodically(dc *dialCtx, handleClosure func(err error)) {
	ctx, lg := dc.ctx, dc.lg

	ticker := time.NewTicker(d.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			handleClosure(nil)
			lg.Debug("ping loop exiting due to context done")
			return
		case <-ticker.C:
			req := NewRequest(NewPayload(d.cfg.PingRequestID, PingMethod.String(), nil))

			pingCtx, cancel := context.WithTimeout(ctx, d.cfg.PingTimeout)
			res, err := d.Call(pingCtx, &req)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					handleClosure(nil)
					return
				}
				lg.Error("error sending ping", "error", err)
				handleClosure(fmt.Errorf("%w: %w", ErrSendingPing, err))
				return
			}

			if res.Res.Method != PongMethod.String() {
				lg.Warn("unexpected response to ping", "method", res.Res.Method)
			}
		}
	}
}

func (d *WebsocketDialer) EventCh() <-chan *Response {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.eventCh
}
