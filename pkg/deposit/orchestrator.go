package deposit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
)

// DefaultSettlementDelay is how long the coordinator is given to observe an
// on-chain deposit or faucet payout before balances are refreshed.
const DefaultSettlementDelay = 5 * time.Second

// Flow names and steps published on notify.PhaseTopic.
const (
	DepositFlow = "deposit"
	FaucetFlow  = "faucet"

	PhaseAwaitingSwitch     = "awaiting_chain_switch"
	PhaseSubmittingTransfer = "submitting_transfer"
	PhaseRequestingTokens   = "requesting_tokens"
	PhaseAwaitingSettlement = "awaiting_settlement"
	PhaseRefreshingBalances = "refreshing_balances"
	PhaseDone               = "done"
)

// Depositor submits on-chain deposits into custody. *chain.Registry
// implements it.
type Depositor interface {
	Deposit(ctx context.Context, chainID uint64, asset string, amount decimal.Decimal) (common.Hash, error)
}

// Session is the part of *session.Session the flows depend on.
type Session interface {
	EnsureChain(ctx context.Context) error
	ChainID() uint64
	State() session.State
}

// Balances is the part of *ledger.Ledger the flows refresh.
type Balances interface {
	RefreshBalances(ctx context.Context) ([]ledger.Balance, error)
	WalletBalances(ctx context.Context, chainID uint64) ([]ledger.WalletBalance, error)
}

type Config struct {
	// SettlementDelay is waited after the primary side effect. Zero selects
	// the default, a negative value disables the wait.
	SettlementDelay time.Duration
	// SettleOnPush ends the settlement wait early when the coordinator
	// pushes a balance update.
	SettleOnPush bool

	FaucetURL string
	// FaucetRate limits faucet requests per second. Zero means one request
	// every ten seconds.
	FaucetRate  rate.Limit
	FaucetBurst int
}

type DepositRequest struct {
	Asset  string          `validate:"required,printascii,max=32"`
	Amount decimal.Decimal `validate:"gt=0"`
}

// DepositResult describes a deposit whose on-chain transfer succeeded.
// Degraded is set when the follow-up refresh failed; RefreshErr holds the
// cause.
type DepositResult struct {
	TxHash         common.Hash
	ChainID        uint64
	Asset          string
	Amount         decimal.Decimal
	Balances       []ledger.Balance
	WalletBalances []ledger.WalletBalance
	Degraded       bool
	RefreshErr     error
}

type FaucetRequest struct {
	Address string `validate:"required,eth_addr"`
}

// FaucetResult describes an accepted faucet request. Refreshed is false when
// the session was not connected after settlement, leaving balances stale.
type FaucetResult struct {
	Address        common.Address
	Message        string
	Refreshed      bool
	Balances       []ledger.Balance
	WalletBalances []ledger.WalletBalance
	Degraded       bool
	RefreshErr     error
}

type Option func(*Orchestrator)

func WithLogger(lg log.Logger) Option {
	return func(o *Orchestrator) { o.lg = log.OrNoop(lg) }
}

func WithHub(hub *notify.Hub) Option {
	return func(o *Orchestrator) { o.hub = hub }
}

func WithDepositor(d Depositor) Option {
	return func(o *Orchestrator) { o.depositor = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.httpClient = c }
}

// Orchestrator sequences deposits and faucet top-ups. Concurrent calls are
// not deduplicated.
type Orchestrator struct {
	cfg        Config
	session    Session
	balances   Balances
	depositor  Depositor
	hub        *notify.Hub
	httpClient *http.Client
	limiter    *rate.Limiter
	validate   *validator.Validate
	lg         log.Logger
}

func New(sess Session, balances Balances, cfg Config, opts ...Option) *Orchestrator {
	if cfg.SettlementDelay == 0 {
		cfg.SettlementDelay = DefaultSettlementDelay
	}
	if cfg.FaucetRate == 0 {
		cfg.FaucetRate = rate.Every(10 * time.Second)
	}
	if cfg.FaucetBurst <= 0 {
		cfg.FaucetBurst = 1
	}

	o := &Orchestrator{
		cfg:        cfg,
		session:    sess,
		balances:   balances,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(cfg.FaucetRate, cfg.FaucetBurst),
		validate:   newValidator(),
		lg:         log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.lg = o.lg.WithName("deposit")
	return o
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Deposit switches the wallet to the session's chain, submits the deposit,
// waits for settlement and refreshes both balance views. Errors before the
// transfer is mined are returned; refresh failures only degrade the result.
func (o *Orchestrator) Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: invalid deposit request: %w", rpc.ErrPreconditionFailed, err)
	}
	if o.depositor == nil {
		return nil, fmt.Errorf("%w: no chain client configured", rpc.ErrPreconditionFailed)
	}
	chainID := o.session.ChainID()
	if chainID == 0 {
		return nil, fmt.Errorf("%w: no deposit chain configured", rpc.ErrPreconditionFailed)
	}
	lg := o.lg.WithKV("asset", req.Asset).WithKV("amount", req.Amount).WithKV("chainID", chainID)

	o.phase(DepositFlow, PhaseAwaitingSwitch, "")
	if err := o.session.EnsureChain(ctx); err != nil {
		return nil, err
	}

	o.phase(DepositFlow, PhaseSubmittingTransfer, "")
	hash, err := o.depositor.Deposit(ctx, chainID, req.Asset, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("deposit failed: %w", err)
	}
	lg.Info("deposit mined", "tx", hash.Hex())

	result := &DepositResult{
		TxHash:  hash,
		ChainID: chainID,
		Asset:   req.Asset,
		Amount:  req.Amount,
	}

	o.phase(DepositFlow, PhaseAwaitingSettlement, hash.Hex())
	if err := o.settle(ctx); err != nil {
		result.Degraded, result.RefreshErr = true, err
		lg.Warn("settlement wait interrupted", "error", err)
		o.phase(DepositFlow, PhaseDone, hash.Hex())
		return result, nil
	}

	o.phase(DepositFlow, PhaseRefreshingBalances, "")
	result.Balances, result.WalletBalances, result.RefreshErr = o.refresh(ctx, chainID)
	if result.RefreshErr != nil {
		result.Degraded = true
		lg.Warn("balance refresh after deposit failed", "error", result.RefreshErr)
	}
	o.phase(DepositFlow, PhaseDone, hash.Hex())
	return result, nil
}

// RequestFaucetTokens asks the faucet to fund address. It needs no
// authenticated session; balances are refreshed after settlement only when
// the session is connected by then.
func (o *Orchestrator) RequestFaucetTokens(ctx context.Context, address string) (*FaucetResult, error) {
	if err := o.validate.Struct(FaucetRequest{Address: address}); err != nil {
		return nil, fmt.Errorf("%w: invalid faucet request: %w", rpc.ErrPreconditionFailed, err)
	}
	if o.cfg.FaucetURL == "" {
		return nil, fmt.Errorf("%w: no faucet configured", rpc.ErrPreconditionFailed)
	}
	account := common.HexToAddress(address)

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("faucet throttled: %w", err)
	}

	o.phase(FaucetFlow, PhaseRequestingTokens, "")
	message, err := requestTokens(ctx, o.httpClient, o.cfg.FaucetURL, account)
	if err != nil {
		return nil, err
	}
	o.lg.Info("faucet accepted request", "address", account.Hex(), "message", message)

	result := &FaucetResult{Address: account, Message: message}

	o.phase(FaucetFlow, PhaseAwaitingSettlement, "")
	if err := o.settle(ctx); err != nil {
		result.Degraded, result.RefreshErr = true, err
		o.phase(FaucetFlow, PhaseDone, "")
		return result, nil
	}

	if o.session.State() != session.StateConnected {
		o.lg.Debug("session not connected, balances left stale")
		o.phase(FaucetFlow, PhaseDone, "")
		return result, nil
	}

	o.phase(FaucetFlow, PhaseRefreshingBalances, "")
	result.Refreshed = true
	result.Balances, result.WalletBalances, result.RefreshErr = o.refresh(ctx, o.session.ChainID())
	if result.RefreshErr != nil {
		result.Degraded = true
		o.lg.Warn("balance refresh after faucet failed", "error", result.RefreshErr)
	}
	o.phase(FaucetFlow, PhaseDone, "")
	return result, nil
}

// refresh reads the wallet view of chainID and the ledger view. A missing
// wallet reader or chain skips the wallet view.
func (o *Orchestrator) refresh(ctx context.Context, chainID uint64) ([]ledger.Balance, []ledger.WalletBalance, error) {
	var (
		wallet []ledger.WalletBalance
		errs   []error
	)
	if chainID != 0 {
		var err error
		wallet, err = o.balances.WalletBalances(ctx, chainID)
		if err != nil && !errors.Is(err, rpc.ErrPreconditionFailed) {
			errs = append(errs, err)
		}
	}
	balances, err := o.balances.RefreshBalances(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	return balances, wallet, errors.Join(errs...)
}

// settle waits the settlement delay. With SettleOnPush a balance push ends
// the wait early.
func (o *Orchestrator) settle(ctx context.Context) error {
	if !o.cfg.SettleOnPush || o.hub == nil || o.cfg.SettlementDelay <= 0 {
		return session.Sleep(ctx, o.cfg.SettlementDelay)
	}

	pushed := make(chan struct{})
	var once sync.Once
	unsubscribe := notify.Subscribe(o.hub, ledger.BalanceTopic, func([]ledger.Balance) {
		once.Do(func() { close(pushed) })
	})
	defer unsubscribe()

	timer := time.NewTimer(o.cfg.SettlementDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-pushed:
		o.lg.Debug("settled on balance push")
		return nil
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) phase(flow, step, detail string) {
	notify.Publish(o.hub, notify.PhaseTopic, notify.Phase{Flow: flow, Step: step, Detail: detail})
}
