package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snehendu098/ghost/clearclient/pkg/config"
	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
	"github.com/snehendu098/ghost/clearclient/pkg/storage"
)

func setupApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &app{cfg: cfg, lg: log.NewNoopLogger(), store: store}
}

func TestApp_LoadWallet(t *testing.T) {
	imported, err := sign.GenerateEthereumWallet(0)
	require.NoError(t, err)
	fromEnv, err := sign.GenerateEthereumWallet(0)
	require.NoError(t, err)

	a := setupApp(t, &config.Config{ChainID: 80002, PrivateKey: fromEnv.PrivateKeyHex()})
	_, err = a.store.AddWallet("main", imported.PrivateKeyHex())
	require.NoError(t, err)

	w, err := a.loadWallet("main")
	require.NoError(t, err)
	assert.Equal(t, imported.Address(), w.Address())
	chainID, err := w.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), chainID)

	w, err = a.loadWallet("")
	require.NoError(t, err)
	assert.Equal(t, fromEnv.Address(), w.Address())

	_, err = a.loadWallet("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	a.cfg.PrivateKey = ""
	_, err = a.loadWallet("")
	assert.Error(t, err)
}

func TestApp_NewClient(t *testing.T) {
	a := setupApp(t, &config.Config{
		ClearNodeURL: "ws://localhost:8000/ws",
		Application:  "clearclient",
		DialAttempts: 1,
		Networks: []config.NetworkConfig{
			{Name: "polygon_amoy", ChainID: 80002, Custody: "0x019B65A265EB3363822f2752141b3dF16131b262"},
		},
	})
	wallet, err := sign.GenerateEthereumWallet(0)
	require.NoError(t, err)

	client, err := a.newClient(context.Background(), wallet)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	assert.Equal(t, session.StateDisconnected, client.State())
	assert.Empty(t, client.Chains().ChainIDs(), "chains without an RPC URL are skipped")
}

func TestParseChainID(t *testing.T) {
	id, err := parseChainID("137")
	require.NoError(t, err)
	assert.Equal(t, uint64(137), id)

	for _, raw := range []string{"", "0", "-1", "polygon"} {
		_, err := parseChainID(raw)
		assert.Error(t, err, raw)
	}
}

func TestFmtDec(t *testing.T) {
	assert.Equal(t, "100.0", fmtDec(decimal.RequireFromString("100.00")))
	assert.Equal(t, "0.25", fmtDec(decimal.RequireFromString("0.250")))
}
