package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

// DefaultCallTimeout bounds how long a call waits for its response.
const DefaultCallTimeout = 30 * time.Second

// EventHandler receives an unsolicited push. Handlers for one event run in
// subscription order on the client's dispatch goroutine.
type EventHandler func(ctx context.Context, event *Response)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout overrides DefaultCallTimeout. Zero leaves calls bounded
// only by their context.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.callTimeout = d }
}

// WithMetrics records call latency and outcomes in m.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithReservedIDs keeps the given request ids out of the minted sequence.
func WithReservedIDs(ids ...uint64) ClientOption {
	return func(c *Client) {
		for _, id := range ids {
			c.reservedIDs[id] = struct{}{}
		}
	}
}

// Client issues signed calls over a Dialer and dispatches pushes to
// subscribers.
type Client struct {
	dialer      Dialer
	signer      PayloadSigner
	handlers    notify.Registry[Event, EventHandler]
	callTimeout time.Duration
	metrics     *Metrics
	nextID      atomic.Uint64
	reservedIDs map[uint64]struct{}
}

// NewClient returns a client that signs every request with signer. The
// dialer's keep-alive id is reserved by default.
func NewClient(dialer Dialer, signer PayloadSigner, opts ...ClientOption) *Client {
	c := &Client{
		dialer:      dialer,
		signer:      signer,
		callTimeout: DefaultCallTimeout,
		reservedIDs: map[uint64]struct{}{
			0: {},
			DefaultWebsocketDialerConfig.PingRequestID: {},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.nextID.Store(uint64(uuid.New().ID()))
	return c
}

// Start dials url and starts dispatching events until the connection ends.
// handleClosure runs once the connection is gone.
func (c *Client) Start(ctx context.Context, url string, handleClosure func(err error)) error {
	parentCtx, cancel := context.WithCancel(ctx)
	childHandleClosure := func(err error) {
		cancel()
		if handleClosure != nil {
			handleClosure(err)
		}
	}

	if err := c.dialer.Dial(parentCtx, url, childHandleClosure); err != nil {
		cancel()
		return err
	}

	go c.listenEvents(parentCtx)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.dialer.IsConnected()
}

// Subscribe registers handler for event. Event names are normalized, so
// "balance_update" and "bu" address the same handlers.
func (c *Client) Subscribe(event Event, handler EventHandler) (unsubscribe func()) {
	return c.handlers.Subscribe(NormalizeEvent(event.String()), handler)
}

func (c *Client) listenEvents(ctx context.Context) {
	lg := log.FromContext(ctx).WithName("rpc-client")
	eventCh := c.dialer.EventCh()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			c.dispatch(ctx, lg, event)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, lg log.Logger, event *Response) {
	name := NormalizeEvent(event.Res.Method)
	c.metrics.eventReceived(name)

	handlers := c.handlers.Handlers(name)
	if len(handlers) == 0 {
		lg.Debug("no handler for event", "event", name, "method", event.Res.Method)
		return
	}
	for _, handler := range handlers {
		handler(ctx, event)
	}
}

// Call signs and sends method with params and waits for the result. A
// coordinator error wrapper is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, method Method, params any) (*Response, error) {
	return c.call(ctx, method, params)
}

// Do sends a tagged request record and decodes the result into result,
// which may be nil.
func (c *Client) Do(ctx context.Context, req RequestParams, result any) ([]sign.Signature, error) {
	res, err := c.call(ctx, req.Method(), req)
	if err != nil {
		return nil, err
	}
	if result != nil {
		if err := res.Res.Params.Translate(result); err != nil {
			return res.Sig, err
		}
	}
	return res.Sig, nil
}

// Ping checks the coordinator answers with a pong.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, PingRequest{}, nil)
	return err
}

// GetConfig returns the broker address and supported networks.
func (c *Client) GetConfig(ctx context.Context) (GetConfigResponse, error) {
	var res GetConfigResponse
	_, err := c.Do(ctx, GetConfigRequest{}, &res)
	return res, err
}

// GetAssets lists supported assets, filtered by chain when req.ChainID is set.
func (c *Client) GetAssets(ctx context.Context, req GetAssetsRequest) (GetAssetsResponse, error) {
	var res GetAssetsResponse
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// AuthRequest announces the auth policy and returns the challenge.
func (c *Client) AuthRequest(ctx context.Context, req AuthRequestRequest) (AuthRequestResponse, error) {
	var res AuthRequestResponse
	if _, err := c.Do(ctx, req, &res); err != nil {
		return res, err
	}
	if res.ChallengeMessage == "" {
		return res, fmt.Errorf("%w: empty challenge", ErrAuthenticationFailed)
	}
	return res, nil
}

// AuthVerify answers the challenge. The signer attaches the typed-data
// signature.
func (c *Client) AuthVerify(ctx context.Context, req AuthVerifyRequest) (AuthVerifyResponse, error) {
	var res AuthVerifyResponse
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// GetLedgerBalances returns the off-chain ledger balances of the
// authenticated account, or of req.AccountID.
func (c *Client) GetLedgerBalances(ctx context.Context, req GetLedgerBalancesRequest) (GetLedgerBalancesResponse, error) {
	var res GetLedgerBalancesResponse
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// GetAppSessions lists app sessions of req.Participant, optionally by status.
func (c *Client) GetAppSessions(ctx context.Context, req GetAppSessionsRequest) (GetAppSessionsResponse, error) {
	var res GetAppSessionsResponse
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// CreateAppSession opens an app session with the initial allocations.
func (c *Client) CreateAppSession(ctx context.Context, req CreateAppSessionRequest) (AppSession, error) {
	var res AppSession
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// SubmitAppState submits a new allocation for an open app session.
func (c *Client) SubmitAppState(ctx context.Context, req SubmitAppStateRequest) (AppSession, error) {
	var res AppSession
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// CloseAppSession closes an app session with the final allocations.
func (c *Client) CloseAppSession(ctx context.Context, req CloseAppSessionRequest) (AppSession, error) {
	var res AppSession
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// Transfer moves ledger funds to another account by address or user tag.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	var res TransferResponse
	_, err := c.Do(ctx, req, &res)
	return res, err
}

// SendMessage relays an application message to the other participants of
// req.AppSessionID.
func (c *Client) SendMessage(ctx context.Context, req MessageRequest) error {
	_, err := c.Do(ctx, req, nil)
	return err
}

// OnBalanceUpdate subscribes to decoded balance pushes.
func (c *Client) OnBalanceUpdate(handler func(ctx context.Context, notif BalanceUpdateNotification)) (unsubscribe func()) {
	return c.Subscribe(BalanceUpdateEvent, decoding(handler))
}

// OnAppSessionUpdate subscribes to decoded app session pushes.
func (c *Client) OnAppSessionUpdate(handler func(ctx context.Context, notif AppSessionUpdateNotification)) (unsubscribe func()) {
	return c.Subscribe(AppSessionUpdateEvent, decoding(handler))
}

// OnTransfer subscribes to decoded transfer pushes.
func (c *Client) OnTransfer(handler func(ctx context.Context, notif TransferNotification)) (unsubscribe func()) {
	return c.Subscribe(TransferEvent, decoding(handler))
}

// OnChannelUpdate subscribes to decoded channel pushes.
func (c *Client) OnChannelUpdate(handler func(ctx context.Context, notif ChannelUpdateNotification)) (unsubscribe func()) {
	return c.Subscribe(ChannelUpdateEvent, decoding(handler))
}

func decoding[T any](handler func(ctx context.Context, notif T)) EventHandler {
	return func(ctx context.Context, event *Response) {
		var notif T
		if err := event.Res.Params.Translate(&notif); err != nil {
			log.FromContext(ctx).Error("failed to translate event", "error", err, "method", event.Res.Method)
			return
		}
		handler(ctx, notif)
	}
}

func (c *Client) call(ctx context.Context, method Method, reqParams any) (*Response, error) {
	if !c.dialer.IsConnected() {
		return nil, ErrNotConnected
	}

	payload, err := c.PreparePayload(method, reqParams)
	if err != nil {
		return nil, err
	}

	if c.signer == nil {
		return nil, ErrSignerUnavailable
	}
	sig, err := c.signer.Sign(ctx, payload)
	if err != nil {
		c.metrics.signingFailed(method)
		return nil, err
	}
	req := NewRequest(payload, sig)

	callCtx := ctx
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	c.metrics.callStarted()
	start := time.Now()
	res, err := c.dialer.Call(callCtx, &req)
	if err != nil {
		c.metrics.callFinished(method, outcome(err), time.Since(start))
		return nil, err
	}

	if err := res.Error(); err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			remoteErr.Method = method
		}
		c.metrics.callFinished(method, "remote_error", time.Since(start))
		return nil, err
	}
	c.metrics.callFinished(method, "ok", time.Since(start))

	if expected, ok := responseMethods[method]; ok && res.Res.Method != expected.String() {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedResponse, expected, res.Res.Method)
	}
	return res, nil
}

// PreparePayload builds an unsigned payload for method with a fresh id.
func (c *Client) PreparePayload(method Method, reqParams any) (Payload, error) {
	params, err := NewParams(reqParams)
	if err != nil {
		return Payload{}, err
	}
	return NewPayload(c.mintID(), method.String(), params), nil
}

func (c *Client) mintID() uint64 {
	for {
		id := c.nextID.Add(1)
		if _, reserved := c.reservedIDs[id]; !reserved {
			return id
		}
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrCallTimeout):
		return "timeout"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	default:
		return "error"
	}
}
