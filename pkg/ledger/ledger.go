package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
)

// pushRefreshTimeout bounds the balance refresh started by a transfer push.
const pushRefreshTimeout = 30 * time.Second

var (
	BalanceTopic       = notify.NewTopic[[]Balance](notify.BalanceUpdate)
	SessionTopic       = notify.NewTopic[AppSession](notify.SessionUpdate)
	WalletBalanceTopic = notify.NewTopic[WalletBalances](notify.WalletBalanceUpdate)
)

// Caller sends authenticated requests and relays pushes. *session.Session
// implements it.
type Caller interface {
	Call(ctx context.Context, req rpc.RequestParams, result any) error
	Subscribe(event rpc.Event, handler rpc.EventHandler) (unsubscribe func())
}

// WalletBalanceReader reads on-chain balances of the wallet on one chain.
type WalletBalanceReader interface {
	WalletBalances(ctx context.Context, chainID uint64) ([]WalletBalance, error)
}

type Option func(*Ledger)

func WithLogger(lg log.Logger) Option {
	return func(l *Ledger) { l.lg = log.OrNoop(lg) }
}

func WithWalletReader(r WalletBalanceReader) Option {
	return func(l *Ledger) { l.reader = r }
}

func WithCache(c *Cache) Option {
	return func(l *Ledger) { l.cache = c }
}

// Ledger keeps the Cache in sync with the coordinator. It applies pushed
// balance and session updates, refreshes balances after every mutating call
// and publishes the results on the hub.
type Ledger struct {
	caller Caller
	hub    *notify.Hub
	cache  *Cache
	reader WalletBalanceReader
	lg     log.Logger
	unsubs []func()

	// Push-triggered refreshes run off the dispatch goroutine and end on Close.
	mu        sync.Mutex
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	refreshes sync.WaitGroup
}

func New(caller Caller, hub *notify.Hub, opts ...Option) *Ledger {
	l := &Ledger{
		caller: caller,
		hub:    hub,
		lg:     log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lg = l.lg.WithName("ledger")
	if l.cache == nil {
		l.cache = NewCache()
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	l.unsubs = append(l.unsubs,
		caller.Subscribe(rpc.BalanceUpdateEvent, l.onBalanceUpdate),
		caller.Subscribe(rpc.AppSessionUpdateEvent, l.onSessionUpdate),
		caller.Subscribe(rpc.TransferEvent, l.onTransfer),
	)
	return l
}

// Close stops applying pushes and waits for push-triggered refreshes to end.
func (l *Ledger) Close() {
	for _, unsub := range l.unsubs {
		unsub()
	}
	l.unsubs = nil

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.refreshes.Wait()
}

func (l *Ledger) Cache() *Cache {
	return l.cache
}

func (l *Ledger) Balances() []Balance {
	return l.cache.Balances()
}

func (l *Ledger) Sessions() []AppSession {
	return l.cache.Sessions()
}

// RefreshBalances fetches the ledger balances and replaces the cached set.
func (l *Ledger) RefreshBalances(ctx context.Context) ([]Balance, error) {
	var res rpc.GetLedgerBalancesResponse
	if err := l.caller.Call(ctx, rpc.GetLedgerBalancesRequest{}, &res); err != nil {
		return nil, fmt.Errorf("failed to fetch ledger balances: %w", err)
	}
	return l.applyBalances(res.LedgerBalances), nil
}

// RefreshSessions fetches the app sessions of participant and upserts them.
func (l *Ledger) RefreshSessions(ctx context.Context, participant string) ([]AppSession, error) {
	var res rpc.GetAppSessionsResponse
	if err := l.caller.Call(ctx, rpc.GetAppSessionsRequest{Participant: participant}, &res); err != nil {
		return nil, fmt.Errorf("failed to fetch app sessions: %w", err)
	}
	for _, s := range res.AppSessions {
		l.cache.UpsertSession(sessionFromRPC(s))
	}
	return l.cache.Sessions(), nil
}

func (l *Ledger) CreateAppSession(ctx context.Context, req rpc.CreateAppSessionRequest) (AppSession, error) {
	var res rpc.AppSession
	if err := l.caller.Call(ctx, req, &res); err != nil {
		return AppSession{}, fmt.Errorf("failed to create app session: %w", err)
	}
	if res.Application == "" {
		res.Application = req.Definition.Application
	}
	if res.Protocol == "" {
		res.Protocol = req.Definition.Protocol
	}
	if len(res.ParticipantWallets) == 0 {
		res.ParticipantWallets = req.Definition.ParticipantWallets
	}
	stored := l.applySession(sessionFromRPC(res))
	l.refreshAfter(ctx, rpc.CreateAppSessionMethod.String())
	return stored, nil
}

func (l *Ledger) SubmitAppState(ctx context.Context, req rpc.SubmitAppStateRequest) (AppSession, error) {
	var res rpc.AppSession
	if err := l.caller.Call(ctx, req, &res); err != nil {
		return AppSession{}, fmt.Errorf("failed to submit app state: %w", err)
	}
	stored := l.applySession(l.merge(res, req.AppSessionID, ""))
	l.refreshAfter(ctx, rpc.SubmitAppStateMethod.String())
	return stored, nil
}

// CloseAppSession closes the session on the coordinator. The cached entry
// is kept and marked closed.
func (l *Ledger) CloseAppSession(ctx context.Context, req rpc.CloseAppSessionRequest) (AppSession, error) {
	var res rpc.AppSession
	if err := l.caller.Call(ctx, req, &res); err != nil {
		return AppSession{}, fmt.Errorf("failed to close app session: %w", err)
	}
	stored := l.applySession(l.merge(res, req.AppSessionID, SessionClosed))
	l.refreshAfter(ctx, rpc.CloseAppSessionMethod.String())
	return stored, nil
}

func (l *Ledger) Transfer(ctx context.Context, req rpc.TransferRequest) (rpc.TransferResponse, error) {
	var res rpc.TransferResponse
	if err := l.caller.Call(ctx, req, &res); err != nil {
		return res, fmt.Errorf("failed to transfer: %w", err)
	}
	l.refreshAfter(ctx, rpc.TransferMethod.String())
	return res, nil
}

// WalletBalances reads the on-chain view of chainID and caches it apart
// from the ledger balances.
func (l *Ledger) WalletBalances(ctx context.Context, chainID uint64) ([]WalletBalance, error) {
	if l.reader == nil {
		return nil, fmt.Errorf("%w: no wallet balance reader configured", rpc.ErrPreconditionFailed)
	}
	list, err := l.reader.WalletBalances(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet balances on chain %d: %w", chainID, err)
	}
	stored := l.cache.SetWalletBalances(chainID, list)
	notify.Publish(l.hub, WalletBalanceTopic, WalletBalances{ChainID: chainID, Balances: slices.Clone(stored)})
	return stored, nil
}

// merge overlays the coordinator's answer on the cached session, since
// state and close results may carry only the changed fields.
func (l *Ledger) merge(res rpc.AppSession, id string, status SessionStatus) AppSession {
	if res.AppSessionID == "" {
		res.AppSessionID = id
	}
	next := sessionFromRPC(res)
	if cached, ok := l.cache.Session(next.ID); ok {
		if next.Application == "" {
			next.Application = cached.Application
		}
		if len(next.Participants) == 0 {
			next.Participants = cached.Participants
		}
		if len(next.Weights) == 0 {
			next.Weights = cached.Weights
		}
		if next.Protocol == "" {
			next.Protocol = cached.Protocol
		}
		if next.Quorum == 0 {
			next.Quorum = cached.Quorum
		}
		if next.CreatedAt == "" {
			next.CreatedAt = cached.CreatedAt
		}
	}
	if status != "" {
		next.Status = status
	}
	return next
}

func (l *Ledger) applyBalances(list []rpc.LedgerBalance) []Balance {
	balances := make([]Balance, 0, len(list))
	for _, b := range list {
		balances = append(balances, balanceFromRPC(b))
	}
	stored := l.cache.ReplaceBalances(balances)
	notify.Publish(l.hub, BalanceTopic, slices.Clone(stored))
	return stored
}

func (l *Ledger) applySession(s AppSession) AppSession {
	stored, _ := l.cache.UpsertSession(s)
	notify.Publish(l.hub, SessionTopic, stored.clone())
	return stored
}

// refreshAfter refreshes balances after a successful mutation. Failure is
// logged only; the mutation already succeeded.
func (l *Ledger) refreshAfter(ctx context.Context, after string) {
	if _, err := l.RefreshBalances(ctx); err != nil {
		l.lg.Warn("balance refresh failed", "after", after, "error", err)
	}
}

func (l *Ledger) onBalanceUpdate(ctx context.Context, event *rpc.Response) {
	var notif rpc.BalanceUpdateNotification
	if err := event.Res.Params.Translate(&notif); err != nil {
		l.lg.Error("failed to decode balance update", "error", err)
		return
	}
	l.applyBalances(notif.BalanceUpdates)
}

func (l *Ledger) onSessionUpdate(ctx context.Context, event *rpc.Response) {
	var notif rpc.AppSessionUpdateNotification
	if err := event.Res.Params.Translate(&notif); err != nil {
		l.lg.Error("failed to decode app session update", "error", err)
		return
	}
	if notif.AppSession.AppSessionID == "" {
		l.lg.Warn("app session update without id")
		return
	}
	l.applySession(sessionFromRPC(notif.AppSession))
}

// onTransfer refreshes balances in the background so that pushes queued
// behind it are not held up by the round trip.
func (l *Ledger) onTransfer(context.Context, *rpc.Response) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.refreshes.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.refreshes.Done()
		ctx, cancel := context.WithTimeout(l.ctx, pushRefreshTimeout)
		defer cancel()
		l.refreshAfter(ctx, "transfer push")
	}()
}
