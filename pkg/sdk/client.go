package sdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/snehendu098/ghost/clearclient/pkg/chain"
	"github.com/snehendu098/ghost/clearclient/pkg/deposit"
	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

type Config struct {
	Session session.Config
	Deposit deposit.Config
}

type Option func(*options)

type options struct {
	lg         log.Logger
	dialer     rpc.Dialer
	chains     *chain.Registry
	registry   prometheus.Registerer
	httpClient *http.Client
}

func WithLogger(lg log.Logger) Option {
	return func(o *options) { o.lg = lg }
}

// WithDialer replaces the websocket transport, e.g. with rpc.MockDialer.
func WithDialer(d rpc.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithChains enables deposits and wallet balances on the registry's chains.
func WithChains(r *chain.Registry) Option {
	return func(o *options) { o.chains = r }
}

// WithMetrics registers session and RPC metrics on registry.
func WithMetrics(registry prometheus.Registerer) Option {
	return func(o *options) { o.registry = registry }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Client is one wallet's handle on the coordinator. It wires the session,
// the ledger cache and the deposit flows to a single notification hub.
// Independent clients share nothing.
type Client struct {
	session  *session.Session
	ledger   *ledger.Ledger
	deposits *deposit.Orchestrator
	chains   *chain.Registry
	hub      *notify.Hub
	lg       log.Logger
}

func New(wallet sign.Wallet, cfg Config, opts ...Option) *Client {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	lg := log.OrNoop(o.lg)
	if o.dialer == nil {
		o.dialer = rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
	}

	hub := notify.NewHub(lg)
	sessOpts := []session.Option{session.WithLogger(lg), session.WithHub(hub)}
	if o.registry != nil {
		sessOpts = append(sessOpts, session.WithMetrics(session.NewMetrics(o.registry)))
		cfg.Session.ClientOptions = append(cfg.Session.ClientOptions, rpc.WithMetrics(rpc.NewMetrics(o.registry)))
	}
	sess := session.New(o.dialer, wallet, cfg.Session, sessOpts...)

	ledgerOpts := []ledger.Option{ledger.WithLogger(lg)}
	depositOpts := []deposit.Option{deposit.WithLogger(lg), deposit.WithHub(hub)}
	if o.chains != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithWalletReader(o.chains))
		depositOpts = append(depositOpts, deposit.WithDepositor(o.chains))
	}
	if o.httpClient != nil {
		depositOpts = append(depositOpts, deposit.WithHTTPClient(o.httpClient))
	}
	led := ledger.New(sess, hub, ledgerOpts...)

	return &Client{
		session:  sess,
		ledger:   led,
		deposits: deposit.New(sess, led, cfg.Deposit, depositOpts...),
		chains:   o.chains,
		hub:      hub,
		lg:       lg.WithName("sdk"),
	}
}

// Connect authenticates the wallet and seeds the cache with its app
// sessions and ledger balances. Seeding failures are logged; the session
// stays connected.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		return err
	}

	wallet := c.session.Wallet()
	if _, err := c.ledger.RefreshSessions(ctx, wallet.Address().Hex()); err != nil {
		c.lg.Warn("failed to seed app sessions", "error", err)
	}
	if _, err := c.ledger.RefreshBalances(ctx); err != nil {
		c.lg.Warn("failed to seed ledger balances", "error", err)
	}
	return nil
}

// Disconnect closes the connection. Cached balances and sessions are
// dropped so a later connection starts clean.
func (c *Client) Disconnect() {
	c.session.Disconnect()
	c.ledger.Cache().Reset()
}

// Close disconnects and stops applying pushes.
func (c *Client) Close() {
	c.Disconnect()
	c.ledger.Close()
}

func (c *Client) Status() session.Status {
	return c.session.Status()
}

func (c *Client) State() session.State {
	return c.session.State()
}

func (c *Client) Credential() (session.Credential, bool) {
	return c.session.Credential()
}

// SetWallet replaces the wallet used by the next Connect.
func (c *Client) SetWallet(wallet sign.Wallet) {
	c.session.SetWallet(wallet)
}

func (c *Client) Wallet() sign.Wallet {
	return c.session.Wallet()
}

func (c *Client) Hub() *notify.Hub {
	return c.hub
}

func (c *Client) Session() *session.Session {
	return c.session
}

func (c *Client) Ledger() *ledger.Ledger {
	return c.ledger
}

func (c *Client) Chains() *chain.Registry {
	return c.chains
}

func (c *Client) Balances() []ledger.Balance {
	return c.ledger.Balances()
}

func (c *Client) AppSessions() []ledger.AppSession {
	return c.ledger.Sessions()
}

func (c *Client) RefreshBalances(ctx context.Context) ([]ledger.Balance, error) {
	return c.ledger.RefreshBalances(ctx)
}

func (c *Client) RefreshAppSessions(ctx context.Context) ([]ledger.AppSession, error) {
	wallet := c.session.Wallet()
	if wallet == nil {
		return nil, fmt.Errorf("%w: no wallet attached", rpc.ErrPreconditionFailed)
	}
	return c.ledger.RefreshSessions(ctx, wallet.Address().Hex())
}

func (c *Client) CreateAppSession(ctx context.Context, req rpc.CreateAppSessionRequest) (ledger.AppSession, error) {
	return c.ledger.CreateAppSession(ctx, req)
}

func (c *Client) SubmitAppState(ctx context.Context, req rpc.SubmitAppStateRequest) (ledger.AppSession, error) {
	return c.ledger.SubmitAppState(ctx, req)
}

func (c *Client) CloseAppSession(ctx context.Context, req rpc.CloseAppSessionRequest) (ledger.AppSession, error) {
	return c.ledger.CloseAppSession(ctx, req)
}

func (c *Client) Transfer(ctx context.Context, req rpc.TransferRequest) (rpc.TransferResponse, error) {
	return c.ledger.Transfer(ctx, req)
}

func (c *Client) WalletBalances(ctx context.Context, chainID uint64) ([]ledger.WalletBalance, error) {
	return c.ledger.WalletBalances(ctx, chainID)
}

func (c *Client) Deposit(ctx context.Context, req deposit.DepositRequest) (*deposit.DepositResult, error) {
	return c.deposits.Deposit(ctx, req)
}

func (c *Client) RequestFaucetTokens(ctx context.Context, address string) (*deposit.FaucetResult, error) {
	return c.deposits.RequestFaucetTokens(ctx, address)
}

func (c *Client) GetConfig(ctx context.Context) (rpc.GetConfigResponse, error) {
	var res rpc.GetConfigResponse
	err := c.session.Call(ctx, rpc.GetConfigRequest{}, &res)
	return res, err
}

func (c *Client) GetAssets(ctx context.Context, chainID uint64) (rpc.GetAssetsResponse, error) {
	var res rpc.GetAssetsResponse
	req := rpc.GetAssetsRequest{}
	if chainID != 0 {
		req.ChainID = &chainID
	}
	err := c.session.Call(ctx, req, &res)
	return res, err
}

func (c *Client) SendMessage(ctx context.Context, req rpc.MessageRequest) error {
	return c.session.Call(ctx, req, nil)
}
