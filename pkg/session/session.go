package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

var (
	// ErrAlreadyConnected is returned by Connect on a live session. The
	// handshake is not repeated.
	ErrAlreadyConnected  = rpc.ErrAlreadyConnected
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrConnectAborted    = errors.New("connect aborted by disconnect")
)

// DefaultChainSettleDelay is how long EnsureChain waits after asking the
// wallet to switch chains.
const DefaultChainSettleDelay = time.Second

type Config struct {
	URL  string
	Auth AuthContext
	// ChainID is the chain the wallet must be on for on-chain flows. Zero
	// disables EnsureChain.
	ChainID uint64
	// ChainSettleDelay is waited after a chain switch. Zero selects the
	// default, a negative value disables the wait.
	ChainSettleDelay time.Duration
	DialRetry        DialRetry
	ClientOptions    []rpc.ClientOption
}

type Option func(*Session)

func WithLogger(lg log.Logger) Option {
	return func(s *Session) { s.lg = log.OrNoop(lg) }
}

func WithHub(hub *notify.Hub) Option {
	return func(s *Session) { s.hub = hub }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the time source used for session key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// forwardedEvents are relayed from the live connection to subscribers
// registered through Session.Subscribe.
var forwardedEvents = []rpc.Event{
	rpc.BalanceUpdateEvent,
	rpc.AppSessionUpdateEvent,
	rpc.TransferEvent,
	rpc.ChannelUpdateEvent,
}

// Session drives one wallet's connection to the coordinator through
// disconnected, connecting, authenticating and connected. Each Connect
// builds a fresh rpc.Client whose signer is bound to the auth policy of that
// connection. Lost connections are reported, never re-established.
type Session struct {
	cfg     Config
	dialer  rpc.Dialer
	hub     *notify.Hub
	lg      log.Logger
	metrics *Metrics
	now     func() time.Time

	events notify.Registry[rpc.Event, rpc.EventHandler]

	mu         sync.Mutex
	wallet     sign.Wallet
	status     Status
	generation uint64
	client     *rpc.Client
	credential *Credential
	cancelConn context.CancelFunc
}

func New(dialer rpc.Dialer, wallet sign.Wallet, cfg Config, opts ...Option) *Session {
	if cfg.ChainSettleDelay == 0 {
		cfg.ChainSettleDelay = DefaultChainSettleDelay
	}
	if cfg.DialRetry == (DialRetry{}) {
		cfg.DialRetry = DefaultDialRetry
	}

	s := &Session{
		cfg:    cfg,
		dialer: dialer,
		wallet: wallet,
		status: Status{State: StateDisconnected},
		lg:     log.NewNoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lg = s.lg.WithName("session")
	if s.hub == nil {
		s.hub = notify.NewHub(s.lg)
	}
	s.metrics.setState(StateDisconnected)
	return s
}

func (s *Session) Hub() *notify.Hub {
	return s.hub
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) State() State {
	return s.Status().State
}

// Credential returns the credential of the live connection.
func (s *Session) Credential() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credential == nil {
		return Credential{}, false
	}
	return *s.credential, true
}

// SetWallet attaches the wallet used by the next Connect.
func (s *Session) SetWallet(wallet sign.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = wallet
}

func (s *Session) Wallet() sign.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet
}

// Connect dials the coordinator and runs the auth_request / auth_verify
// handshake. On failure the session is left in StateError and the socket is
// closed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	wallet := s.wallet
	switch {
	case wallet == nil:
		s.mu.Unlock()
		return fmt.Errorf("%w: no wallet attached", rpc.ErrPreconditionFailed)
	case s.cfg.URL == "":
		s.mu.Unlock()
		return fmt.Errorf("%w: coordinator url is not configured", rpc.ErrPreconditionFailed)
	case s.status.State == StateConnected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	case s.status.State == StateConnecting || s.status.State == StateAuthenticating:
		s.mu.Unlock()
		return ErrConnectInProgress
	}

	s.generation++
	gen := s.generation
	connCtx, cancel := context.WithCancel(log.SetContextLogger(context.Background(), s.lg))
	s.cancelConn = cancel
	s.setStatusLocked(Status{State: StateConnecting})
	s.mu.Unlock()

	lg := s.lg.WithKV("wallet", wallet.Address().Hex())
	ctx = log.SetContextLogger(ctx, lg)
	notify.Publish(s.hub, notify.PhaseTopic, notify.Phase{Flow: connectFlow, Step: PhaseDialing, Detail: s.cfg.URL})

	policy := s.cfg.Auth.policy(wallet.Address(), s.now())
	client := rpc.NewClient(s.dialer, rpc.NewMethodSigner(wallet, policy), s.cfg.ClientOptions...)
	s.forwardEvents(client)

	err := retryDial(ctx, s.cfg.DialRetry, func() error {
		return client.Start(connCtx, s.cfg.URL, s.handleClosure(gen))
	})
	if err != nil {
		return s.fail(gen, err)
	}

	if err := s.advance(gen, StateAuthenticating); err != nil {
		return err
	}
	notify.Publish(s.hub, notify.PhaseTopic, notify.Phase{Flow: connectFlow, Step: PhaseAwaitingSignature})

	cred, err := authenticate(ctx, client, policy)
	if err != nil {
		if !errors.Is(err, rpc.ErrAuthenticationFailed) {
			err = fmt.Errorf("%w: %w", rpc.ErrAuthenticationFailed, err)
		}
		return s.fail(gen, err)
	}
	if !client.IsConnected() {
		return s.fail(gen, fmt.Errorf("%w: socket closed during handshake", rpc.ErrConnectionLost))
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrConnectAborted
	}
	s.client = client
	s.credential = cred
	status := s.setStatusLocked(Status{State: StateConnected})
	s.mu.Unlock()

	lg.Info("session authenticated", "sessionKey", cred.SessionKey.Hex(), "expiresAt", cred.ExpiresAt)
	notify.Publish(s.hub, notify.PhaseTopic, notify.Phase{Flow: connectFlow, Step: PhaseAuthenticated})
	notify.Publish(s.hub, ConnectedTopic, status)
	return nil
}

func authenticate(ctx context.Context, client *rpc.Client, policy rpc.AuthPolicy) (*Credential, error) {
	challenge, err := client.AuthRequest(ctx, policy.AuthRequest())
	if err != nil {
		return nil, err
	}

	res, err := client.AuthVerify(ctx, rpc.AuthVerifyRequest{Challenge: challenge.ChallengeMessage})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New("challenge signature was not accepted")
	}
	return newCredential(res, policy)
}

// Disconnect closes the connection. It is a no-op when already
// disconnected and aborts a connect in progress.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.status.State == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.generation++
	status := s.resetLocked(Status{State: StateDisconnected})
	s.mu.Unlock()

	s.lg.Info("session disconnected")
	notify.Publish(s.hub, DisconnectedTopic, status)
}

// Authenticated returns the client of the live connection. Outside
// StateConnected it fails with rpc.ErrNotConnected.
func (s *Session) Authenticated() (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State != StateConnected || s.client == nil {
		return nil, fmt.Errorf("%w: session is %s", rpc.ErrNotConnected, s.status.State)
	}
	return s.client, nil
}

// Call sends req over the live connection and decodes the result into
// result, which may be nil.
func (s *Session) Call(ctx context.Context, req rpc.RequestParams, result any) error {
	client, err := s.Authenticated()
	if err != nil {
		return err
	}
	_, err = client.Do(ctx, req, result)
	return err
}

// Subscribe registers handler for pushes of event on the current and every
// future connection.
func (s *Session) Subscribe(event rpc.Event, handler rpc.EventHandler) (unsubscribe func()) {
	return s.events.Subscribe(rpc.NormalizeEvent(event.String()), handler)
}

func (s *Session) forwardEvents(client *rpc.Client) {
	for _, event := range forwardedEvents {
		client.Subscribe(event, func(ctx context.Context, res *rpc.Response) {
			for _, handler := range s.events.Handlers(event) {
				handler(ctx, res)
			}
		})
	}
}

// EnsureChain switches the wallet to the configured chain if it is on
// another one, then waits the settle delay. The switch is not re-checked.
func (s *Session) EnsureChain(ctx context.Context) error {
	required := s.cfg.ChainID
	if required == 0 {
		return nil
	}

	wallet := s.Wallet()
	if wallet == nil {
		return fmt.Errorf("%w: no wallet attached", rpc.ErrPreconditionFailed)
	}
	switcher, ok := wallet.(sign.ChainSwitcher)
	if !ok {
		return fmt.Errorf("%w: wallet cannot switch chains", rpc.ErrPreconditionFailed)
	}

	current, err := switcher.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read wallet chain: %w", err)
	}
	if current == required {
		return nil
	}

	s.lg.Info("switching wallet chain", "from", current, "to", required)
	if err := switcher.SwitchChain(ctx, required); err != nil {
		return fmt.Errorf("failed to switch wallet to chain %d: %w", required, err)
	}
	return Sleep(ctx, s.cfg.ChainSettleDelay)
}

// ChainID returns the chain EnsureChain switches to.
func (s *Session) ChainID() uint64 {
	return s.cfg.ChainID
}

func (s *Session) handleClosure(gen uint64) func(err error) {
	return func(err error) {
		s.mu.Lock()
		// A closure during the handshake fails the pending auth call instead.
		if gen != s.generation || s.status.State != StateConnected {
			s.mu.Unlock()
			return
		}
		reason := err
		switch {
		case reason == nil:
			reason = rpc.ErrConnectionLost
		case !errors.Is(reason, rpc.ErrConnectionLost):
			reason = fmt.Errorf("%w: %w", rpc.ErrConnectionLost, reason)
		}
		status := s.resetLocked(Status{State: StateDisconnected, Reason: reason})
		s.mu.Unlock()

		s.lg.Warn("connection lost", "error", reason)
		notify.Publish(s.hub, DisconnectedTopic, status)
	}
}

// advance moves a connect attempt forward unless it was superseded.
func (s *Session) advance(gen uint64, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrConnectAborted
	}
	if !canTransition(s.status.State, to) {
		return fmt.Errorf("illegal transition from %s to %s", s.status.State, to)
	}
	s.setStatusLocked(Status{State: to})
	return nil
}

func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return ErrConnectAborted
	}
	status := s.resetLocked(Status{State: StateError, Err: err})
	s.mu.Unlock()

	s.lg.Error("connect failed", "error", err)
	notify.Publish(s.hub, ErrorTopic, status)
	return err
}

// resetLocked drops the connection and records status.
func (s *Session) resetLocked(status Status) Status {
	if s.cancelConn != nil {
		s.cancelConn()
		s.cancelConn = nil
	}
	s.client = nil
	s.credential = nil
	return s.setStatusLocked(status)
}

func (s *Session) setStatusLocked(status Status) Status {
	if status.State != s.status.State && !canTransition(s.status.State, status.State) {
		s.lg.Error("illegal state transition", "from", s.status.State, "to", status.State)
	}
	s.status = status
	s.metrics.setState(status.State)
	return status
}

// Sleep waits for d or until ctx is done. Non-positive durations return
// immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
