package rpc

import (
	"context"
	"fmt"
	"sync"
)

// MockHandler answers one request with result params or an error, which
// the mock wraps in the coordinator's error response.
type MockHandler func(req *Request) (Params, error)

var _ Dialer = (*MockDialer)(nil)

// MockDialer is an in-memory Dialer that plays the coordinator in tests.
// Calls for methods without a handler receive a "method not found" error.
type MockDialer struct {
	mu            sync.Mutex
	handlers      map[Method]MockHandler
	hanging       map[Method]bool
	requests      []*Request
	connected     bool
	dialErr       error
	dialCount     int
	closed        chan struct{}
	handleClosure func(err error)
	eventCh       chan *Response
}

func NewMockDialer() *MockDialer {
	return &MockDialer{
		handlers: make(map[Method]MockHandler),
		hanging:  make(map[Method]bool),
		closed:   make(chan struct{}),
		eventCh:  make(chan *Response, 100),
	}
}

func (d *MockDialer) RegisterHandler(method Method, handler MockHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = handler
}

// RegisterResult answers method with a fixed result.
func (d *MockDialer) RegisterResult(method Method, result any) {
	d.RegisterHandler(method, func(*Request) (Params, error) {
		return NewParams(result)
	})
}

// Hang makes calls to method wait until their context ends or the
// connection drops.
func (d *MockDialer) Hang(method Method) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hanging[method] = true
}

// FailDial makes the next dials fail with err. Nil restores success.
func (d *MockDialer) FailDial(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

func (d *MockDialer) Dial(ctx context.Context, _ string, handleClosure func(err error)) error {
	d.mu.Lock()
	d.dialCount++
	if d.dialErr != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, d.dialErr)
	}
	if d.connected {
		d.mu.Unlock()
		return ErrAlreadyConnected
	}
	d.connected = true
	d.closed = make(chan struct{})
	d.handleClosure = handleClosure
	closed := d.closed
	d.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			d.Drop(nil)
		case <-closed:
		}
	}()
	return nil
}

// Drop ends the current connection as if the socket closed with err.
func (d *MockDialer) Drop(err error) {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return
	}
	d.connected = false
	close(d.closed)
	handleClosure := d.handleClosure
	d.handleClosure = nil
	d.mu.Unlock()

	if handleClosure != nil {
		handleClosure(err)
	}
}

func (d *MockDialer) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *MockDialer) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil, ErrNotConnected
	}
	d.requests = append(d.requests, req)
	method := Method(req.Req.Method)
	handler, exists := d.handlers[method]
	hang := d.hanging[method]
	closed := d.closed
	d.mu.Unlock()

	if hang {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: %s request %d", ErrCallTimeout, method, req.Req.RequestID)
			}
			return nil, ctx.Err()
		case <-closed:
			return nil, fmt.Errorf("%w: %s request %d", ErrConnectionLost, method, req.Req.RequestID)
		}
	}

	if !exists {
		res := NewErrorResponse(req.Req.RequestID, "method not found")
		return &res, nil
	}

	params, err := handler(req)
	if err != nil {
		res := NewErrorResponse(req.Req.RequestID, err.Error())
		return &res, nil
	}
	res := NewResponse(NewPayload(req.Req.RequestID, ExpectedResponseMethod(method).String(), params))
	return &res, nil
}

func (d *MockDialer) EventCh() <-chan *Response {
	return d.eventCh
}

// Publish pushes an unsolicited frame with the given method name.
func (d *MockDialer) Publish(method string, params any) error {
	p, err := NewParams(params)
	if err != nil {
		return err
	}
	res := NewResponse(NewPayload(0, method, p))
	select {
	case d.eventCh <- &res:
		return nil
	default:
		return fmt.Errorf("mock event channel full")
	}
}

// Requests returns every request received so far.
func (d *MockDialer) Requests() []*Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Request(nil), d.requests...)
}

// RequestsFor returns the requests received for method.
func (d *MockDialer) RequestsFor(method Method) []*Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Request
	for _, r := range d.requests {
		if Method(r.Req.Method) == method {
			out = append(out, r)
		}
	}
	return out
}

func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount
}
