package ledger

import (
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
)

// Balance is the off-chain balance of one asset. Amounts are compared by
// value: the wire form "100.00" decodes to a decimal whose String is "100",
// so display code formats with StringFixed.
type Balance struct {
	Asset     string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

func balanceFromRPC(b rpc.LedgerBalance) Balance {
	return Balance{Asset: b.Asset, Available: b.Amount, Locked: b.Locked}
}

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

type AppSession struct {
	ID           string
	Application  string
	Status       SessionStatus
	Participants []string
	Protocol     rpc.Version
	Weights      []int64
	Quorum       uint64
	Challenge    uint64
	Version      uint64
	Nonce        uint64
	SessionData  string
	CreatedAt    string
	UpdatedAt    string
}

func (s AppSession) clone() AppSession {
	s.Participants = slices.Clone(s.Participants)
	s.Weights = slices.Clone(s.Weights)
	return s
}

func sessionFromRPC(s rpc.AppSession) AppSession {
	status := SessionStatus(strings.ToLower(s.Status))
	if status == "" {
		status = SessionOpen
	}
	return AppSession{
		ID:           s.AppSessionID,
		Application:  s.Application,
		Status:       status,
		Participants: slices.Clone(s.ParticipantWallets),
		Protocol:     s.Protocol,
		Weights:      slices.Clone(s.Weights),
		Quorum:       s.Quorum,
		Challenge:    s.Challenge,
		Version:      s.Version,
		Nonce:        s.Nonce,
		SessionData:  s.SessionData,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// WalletBalance is the on-chain view of one token for the wallet: what it
// holds directly and what it has deposited into custody.
type WalletBalance struct {
	Asset    string
	Token    common.Address
	Decimals uint8
	Wallet   decimal.Decimal
	Custody  decimal.Decimal
}

// WalletBalances is the on-chain view of one chain.
type WalletBalances struct {
	ChainID  uint64
	Balances []WalletBalance
}

// Cache holds the latest known ledger balances, app sessions and wallet
// balances. Ledger balances are always replaced as a whole; sessions are
// upserted by id and keep their first-seen position. Every read returns a
// copy.
type Cache struct {
	mu       sync.RWMutex
	balances []Balance
	sessions []AppSession
	index    map[string]int
	wallet   map[uint64][]WalletBalance
}

func NewCache() *Cache {
	return &Cache{
		index:  make(map[string]int),
		wallet: make(map[uint64][]WalletBalance),
	}
}

func assetKey(asset string) string {
	return strings.ToLower(strings.TrimSpace(asset))
}

// ReplaceBalances swaps the whole balance collection for list. Later entries
// for the same asset win.
func (c *Cache) ReplaceBalances(list []Balance) []Balance {
	seen := make(map[string]int, len(list))
	next := make([]Balance, 0, len(list))
	for _, b := range list {
		b.Asset = assetKey(b.Asset)
		if i, ok := seen[b.Asset]; ok {
			next[i] = b
			continue
		}
		seen[b.Asset] = len(next)
		next = append(next, b)
	}

	c.mu.Lock()
	c.balances = next
	c.mu.Unlock()
	return slices.Clone(next)
}

func (c *Cache) Balances() []Balance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.balances)
}

// Balance looks an asset up case-insensitively.
func (c *Cache) Balance(asset string) (Balance, bool) {
	key := assetKey(asset)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.balances {
		if b.Asset == key {
			return b, true
		}
	}
	return Balance{}, false
}

// UpsertSession stores s under its id. A known session is updated in place.
func (c *Cache) UpsertSession(s AppSession) (stored AppSession, created bool) {
	s = s.clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.index[s.ID]; ok {
		c.sessions[i] = s
		return s.clone(), false
	}
	c.index[s.ID] = len(c.sessions)
	c.sessions = append(c.sessions, s)
	return s.clone(), true
}

func (c *Cache) Sessions() []AppSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AppSession, len(c.sessions))
	for i, s := range c.sessions {
		out[i] = s.clone()
	}
	return out
}

func (c *Cache) Session(id string) (AppSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return AppSession{}, false
	}
	return c.sessions[i].clone(), true
}

func (c *Cache) SetWalletBalances(chainID uint64, list []WalletBalance) []WalletBalance {
	list = slices.Clone(list)
	c.mu.Lock()
	c.wallet[chainID] = list
	c.mu.Unlock()
	return slices.Clone(list)
}

func (c *Cache) WalletBalances(chainID uint64) ([]WalletBalance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list, ok := c.wallet[chainID]
	return slices.Clone(list), ok
}

// Reset forgets everything, for example when another wallet takes over.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances = nil
	c.sessions = nil
	c.index = make(map[string]int)
	c.wallet = make(map[uint64][]WalletBalance)
}
