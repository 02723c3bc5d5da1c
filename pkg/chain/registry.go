package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
)

// Registry routes balance reads and deposits to the client of each chain.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

func NewRegistry(clients ...*Client) *Registry {
	r := &Registry{clients: make(map[uint64]*Client)}
	for _, c := range clients {
		r.Add(c)
	}
	return r
}

// Add registers c, replacing a previous client of the same chain.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.network.ChainID] = c
}

func (r *Registry) Client(chainID uint64) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc endpoint configured for chain %d", chainID)
	}
	return c, nil
}

// ChainIDs returns the registered chains in ascending order.
func (r *Registry) ChainIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) WalletBalances(ctx context.Context, chainID uint64) ([]ledger.WalletBalance, error) {
	c, err := r.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c.WalletBalances(ctx, chainID)
}

func (r *Registry) Deposit(ctx context.Context, chainID uint64, asset string, amount decimal.Decimal) (common.Hash, error) {
	c, err := r.Client(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return c.Deposit(ctx, chainID, asset, amount)
}
