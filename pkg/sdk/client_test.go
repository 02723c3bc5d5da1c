package sdk_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snehendu098/ghost/clearclient/pkg/deposit"
	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
	"github.com/snehendu098/ghost/clearclient/pkg/sdk"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

var walletAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newClient(t *testing.T, opts ...sdk.Option) (*sdk.Client, *rpc.MockDialer, *sign.MockWallet) {
	t.Helper()

	dialer := rpc.NewMockDialer()
	dialer.RegisterResult(rpc.AuthRequestMethod, rpc.AuthRequestResponse{ChallengeMessage: "c1"})
	dialer.RegisterResult(rpc.AuthVerifyMethod, rpc.AuthVerifyResponse{Address: walletAddr.Hex(), Success: true})
	dialer.RegisterResult(rpc.GetLedgerBalancesMethod, rpc.GetLedgerBalancesResponse{
		LedgerBalances: []rpc.LedgerBalance{{Asset: "usdc", Amount: decimal.RequireFromString("100.00")}},
	})
	dialer.RegisterResult(rpc.GetAppSessionsMethod, rpc.GetAppSessionsResponse{
		AppSessions: []rpc.AppSession{{AppSessionID: "0xs1", Application: "ghost-app", Status: "open", Version: 1}},
	})

	wallet := sign.NewMockWallet(walletAddr, 1)
	cfg := sdk.Config{
		Session: session.Config{
			URL:  "ws://mock",
			Auth: session.AuthContext{Application: "ghost-app", Scope: "app.ghost"},
		},
	}
	client := sdk.New(wallet, cfg, append([]sdk.Option{sdk.WithDialer(dialer)}, opts...)...)
	t.Cleanup(client.Close)
	return client, dialer, wallet
}

func TestClient_ConnectOperateAndLoseSocket(t *testing.T) {
	client, dialer, wallet := newClient(t)

	rec := &recorder{}
	client.OnConnected(func(session.Status) { rec.add("connected") })
	client.OnDisconnected(func(st session.Status) { rec.add("disconnected") })
	client.OnBalanceUpdate(func([]ledger.Balance) { rec.add("balance_update") })

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, session.StateConnected, client.State())

	typed := wallet.TypedDataRequests()
	require.Len(t, typed, 1)
	assert.Equal(t, "ghost-app", typed[0].Domain.Name)
	assert.Equal(t, "c1", typed[0].Message["challenge"])

	balances := client.Balances()
	require.Len(t, balances, 1)
	assert.Equal(t, "usdc", balances[0].Asset)
	assert.True(t, decimal.NewFromInt(100).Equal(balances[0].Available))
	assert.Equal(t, "100.00", balances[0].Available.StringFixed(2))
	require.Len(t, client.AppSessions(), 1, "connect seeds the app sessions")

	dialer.Hang(rpc.TransferMethod)
	callErr := make(chan error, 1)
	go func() {
		_, err := client.Transfer(context.Background(), rpc.TransferRequest{Destination: "0xdef"})
		callErr <- err
	}()
	require.Eventually(t, func() bool {
		return len(dialer.RequestsFor(rpc.TransferMethod)) == 1
	}, time.Second, time.Millisecond)

	dialer.Drop(errors.New("socket closed"))

	select {
	case err := <-callErr:
		assert.ErrorIs(t, err, rpc.ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("outstanding call was not failed")
	}
	require.Eventually(t, func() bool {
		return client.State() == session.StateDisconnected
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, client.Status().Reason, rpc.ErrConnectionLost)

	assert.Equal(t, []string{"connected", "balance_update", "disconnected"}, rec.Events())

	_, err := client.RefreshBalances(context.Background())
	assert.ErrorIs(t, err, rpc.ErrNotConnected)
}

func TestClient_ConnectSurvivesSeedFailure(t *testing.T) {
	client, dialer, _ := newClient(t)
	dialer.RegisterHandler(rpc.GetAppSessionsMethod, func(*rpc.Request) (rpc.Params, error) {
		return nil, errors.New("unavailable")
	})

	require.NoError(t, client.Connect(context.Background()))
	assert.Empty(t, client.AppSessions())
	assert.Len(t, client.Balances(), 1)
}

func TestClient_DisconnectClearsCache(t *testing.T) {
	client, _, _ := newClient(t)
	require.NoError(t, client.Connect(context.Background()))
	require.NotEmpty(t, client.Balances())

	client.Disconnect()
	assert.Equal(t, session.StateDisconnected, client.State())
	assert.Empty(t, client.Balances())
	assert.Empty(t, client.AppSessions())
}

func TestClient_InstancesAreIndependent(t *testing.T) {
	first, _, _ := newClient(t)
	second, _, _ := newClient(t)

	require.NoError(t, first.Connect(context.Background()))
	assert.Equal(t, session.StateConnected, first.State())
	assert.Equal(t, session.StateDisconnected, second.State())
	assert.Empty(t, second.Balances())
}

func TestClient_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	client, _, _ := newClient(t, sdk.WithMetrics(registry))

	require.NoError(t, client.Connect(context.Background()))

	count, err := testutil.GatherAndCount(registry, "clearclient_rpc_calls_total", "clearclient_session_state")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestClient_RemoteCalls(t *testing.T) {
	client, dialer, _ := newClient(t)
	dialer.RegisterResult(rpc.GetConfigMethod, rpc.GetConfigResponse{BrokerAddress: "0xbroker"})
	dialer.RegisterResult(rpc.GetAssetsMethod, rpc.GetAssetsResponse{Assets: []rpc.Asset{{Symbol: "usdc", ChainID: 137}}})

	_, err := client.GetConfig(context.Background())
	assert.ErrorIs(t, err, rpc.ErrNotConnected)

	require.NoError(t, client.Connect(context.Background()))

	cfg, err := client.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xbroker", cfg.BrokerAddress)

	assets, err := client.GetAssets(context.Background(), 137)
	require.NoError(t, err)
	require.Len(t, assets.Assets, 1)

	var req rpc.GetAssetsRequest
	require.NoError(t, dialer.RequestsFor(rpc.GetAssetsMethod)[0].Req.Params.Translate(&req))
	require.NotNil(t, req.ChainID)
	assert.Equal(t, uint64(137), *req.ChainID)
}

func TestClient_DepositWithoutChains(t *testing.T) {
	client, _, _ := newClient(t)
	_, err := client.Deposit(context.Background(), deposit.DepositRequest{
		Asset:  "usdc",
		Amount: decimal.RequireFromString("1.5"),
	})
	assert.ErrorIs(t, err, rpc.ErrPreconditionFailed)

	_, err = client.WalletBalances(context.Background(), 1)
	assert.ErrorIs(t, err, rpc.ErrPreconditionFailed)
}

func TestClient_Events(t *testing.T) {
	client, dialer, _ := newClient(t)

	var steps []string
	client.OnPhase(func(p notify.Phase) { steps = append(steps, p.Step) })

	updates := &recorder{}
	unsubscribe := client.OnSessionUpdate(func(s ledger.AppSession) { updates.add(s.ID) })

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, []string{session.PhaseDialing, session.PhaseAwaitingSignature, session.PhaseAuthenticated}, steps)

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, rpc.ErrAlreadyConnected)

	require.NoError(t, dialer.Publish("asu", rpc.AppSessionUpdateNotification{
		AppSession: rpc.AppSession{AppSessionID: "0xs1", Status: "closed", Version: 2},
	}))
	require.Eventually(t, func() bool {
		sessions := client.AppSessions()
		return len(sessions) == 1 && sessions[0].Version == 2
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(updates.Events()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0xs1"}, updates.Events())

	unsubscribe()
	unsubscribe()
	assert.Zero(t, client.Hub().Subscribers(notify.SessionUpdate))
}
