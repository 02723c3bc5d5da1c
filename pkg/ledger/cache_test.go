package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCache_ReplaceBalances(t *testing.T) {
	c := NewCache()

	c.ReplaceBalances([]Balance{
		{Asset: "USDC", Available: dec("100.00")},
		{Asset: "eth", Available: dec("1"), Locked: dec("0.5")},
	})
	c.ReplaceBalances([]Balance{{Asset: "usdc", Available: dec("40")}})

	balances := c.Balances()
	require.Len(t, balances, 1)
	assert.Equal(t, "usdc", balances[0].Asset)
	assert.True(t, dec("40").Equal(balances[0].Available))

	_, ok := c.Balance("ETH")
	assert.False(t, ok, "replace must not merge with the previous set")
}

func TestCache_ReplaceBalancesIsIdempotent(t *testing.T) {
	c := NewCache()
	list := []Balance{{Asset: "usdc", Available: dec("100")}, {Asset: "eth", Available: dec("2")}}

	first := c.ReplaceBalances(list)
	second := c.ReplaceBalances(list)
	assert.Equal(t, first, second)
	assert.Equal(t, first, c.Balances())
}

func TestCache_DuplicateAssetsLastWins(t *testing.T) {
	c := NewCache()
	c.ReplaceBalances([]Balance{
		{Asset: "usdc", Available: dec("1")},
		{Asset: "eth", Available: dec("2")},
		{Asset: "USDC", Available: dec("3")},
	})

	balances := c.Balances()
	require.Len(t, balances, 2)
	assert.Equal(t, "usdc", balances[0].Asset)
	assert.True(t, dec("3").Equal(balances[0].Available))
}

func TestCache_BalanceLookup(t *testing.T) {
	c := NewCache()
	c.ReplaceBalances([]Balance{{Asset: "usdc", Available: dec("100.00"), Locked: dec("5")}})

	b, ok := c.Balance(" USDC ")
	require.True(t, ok)
	assert.True(t, dec("100").Equal(b.Available))
	assert.True(t, dec("105").Equal(b.Total()))
}

func TestBalanceFromRPC_ComparesByValue(t *testing.T) {
	b := balanceFromRPC(rpc.LedgerBalance{Asset: "usdc", Amount: dec("100.00")})

	assert.True(t, dec("100").Equal(b.Available))
	assert.Equal(t, "100", b.Available.String())
	assert.Equal(t, "100.00", b.Available.StringFixed(2))
	assert.True(t, b.Locked.IsZero())
}

func TestCache_UpsertSession(t *testing.T) {
	c := NewCache()

	_, created := c.UpsertSession(AppSession{ID: "s1", Version: 1, Status: SessionOpen})
	assert.True(t, created)
	c.UpsertSession(AppSession{ID: "s2", Version: 1, Status: SessionOpen})

	stored, created := c.UpsertSession(AppSession{ID: "s1", Version: 2, Status: SessionClosed})
	assert.False(t, created)
	assert.Equal(t, uint64(2), stored.Version)

	sessions := c.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, SessionClosed, sessions[0].Status)
	assert.Equal(t, "s2", sessions[1].ID)

	// Reapplying the same update leaves one entry.
	c.UpsertSession(AppSession{ID: "s1", Version: 2, Status: SessionClosed})
	assert.Len(t, c.Sessions(), 2)
}

func TestCache_ReadsAreCopies(t *testing.T) {
	c := NewCache()
	c.ReplaceBalances([]Balance{{Asset: "usdc", Available: dec("1")}})
	c.UpsertSession(AppSession{ID: "s1", Participants: []string{"0xa", "0xb"}})
	c.SetWalletBalances(1, []WalletBalance{{Asset: "usdc", Wallet: dec("7")}})

	balances := c.Balances()
	balances[0].Asset = "mutated"
	sessions := c.Sessions()
	sessions[0].Participants[0] = "mutated"
	wallet, _ := c.WalletBalances(1)
	wallet[0].Asset = "mutated"

	assert.Equal(t, "usdc", c.Balances()[0].Asset)
	s, ok := c.Session("s1")
	require.True(t, ok)
	assert.Equal(t, "0xa", s.Participants[0])
	wallet, _ = c.WalletBalances(1)
	assert.Equal(t, "usdc", wallet[0].Asset)
}

func TestCache_WalletBalancesAreSeparate(t *testing.T) {
	c := NewCache()
	c.ReplaceBalances([]Balance{{Asset: "usdc", Available: dec("100")}})
	c.SetWalletBalances(1, []WalletBalance{{Asset: "usdc", Wallet: dec("5"), Custody: dec("2")}})
	c.SetWalletBalances(137, []WalletBalance{{Asset: "usdc", Wallet: dec("9")}})

	b, _ := c.Balance("usdc")
	assert.True(t, dec("100").Equal(b.Available))

	eth, ok := c.WalletBalances(1)
	require.True(t, ok)
	assert.True(t, dec("5").Equal(eth[0].Wallet))
	_, ok = c.WalletBalances(10)
	assert.False(t, ok)

	c.Reset()
	assert.Empty(t, c.Balances())
	_, ok = c.WalletBalances(1)
	assert.False(t, ok)
}

func TestSessionFromRPC(t *testing.T) {
	s := sessionFromRPC(rpc.AppSession{
		AppSessionID:       "0xs",
		Status:             "Closed",
		ParticipantWallets: []string{"0xa"},
		Weights:            []int64{100},
		Quorum:             100,
		Version:            3,
	})
	assert.Equal(t, "0xs", s.ID)
	assert.Equal(t, SessionClosed, s.Status)
	assert.Equal(t, []string{"0xa"}, s.Participants)

	assert.Equal(t, SessionOpen, sessionFromRPC(rpc.AppSession{AppSessionID: "x"}).Status)
}
