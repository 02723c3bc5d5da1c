package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

var (
	walletAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenExp   = time.Unix(1893456000, 0)
)

func testToken(t *testing.T) string {
	t.Helper()
	claims := session.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(tokenExp),
			Issuer:    "clearnode",
		},
	}
	claims.Policy.Wallet = walletAddr.Hex()
	claims.Policy.Application = "ghost-app"

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func testConfig() session.Config {
	return session.Config{
		URL: "ws://mock",
		Auth: session.AuthContext{
			Application: "ghost-app",
			Scope:       "app.ghost",
			ExpiresAt:   time.Unix(1800000000, 0),
			Allowances:  []rpc.Allowance{{Asset: "usdc", Amount: "100"}},
		},
		ChainID:          1,
		ChainSettleDelay: time.Millisecond,
		DialRetry:        session.DialRetry{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
}

type fixture struct {
	session *session.Session
	dialer  *rpc.MockDialer
	wallet  *sign.MockWallet
	events  *eventLog
}

// eventLog records hub notifications in arrival order.
type eventLog struct {
	mu     sync.Mutex
	names  []notify.Name
	status []session.Status
	phases []notify.Phase
}

func (l *eventLog) record(name notify.Name) func(session.Status) {
	return func(st session.Status) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.names = append(l.names, name)
		l.status = append(l.status, st)
	}
}

func (l *eventLog) Names() []notify.Name {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Name(nil), l.names...)
}

func (l *eventLog) Last() session.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.status) == 0 {
		return session.Status{}
	}
	return l.status[len(l.status)-1]
}

func (l *eventLog) Steps() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var steps []string
	for _, p := range l.phases {
		steps = append(steps, p.Step)
	}
	return steps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dialer := rpc.NewMockDialer()
	dialer.RegisterResult(rpc.AuthRequestMethod, rpc.AuthRequestResponse{ChallengeMessage: "c1"})
	dialer.RegisterResult(rpc.AuthVerifyMethod, rpc.AuthVerifyResponse{
		Address:  walletAddr.Hex(),
		JwtToken: testToken(t),
		Success:  true,
	})

	wallet := sign.NewMockWallet(walletAddr, 1)
	s := session.New(dialer, wallet, testConfig())
	t.Cleanup(s.Disconnect)

	events := &eventLog{}
	notify.Subscribe(s.Hub(), session.ConnectedTopic, events.record(notify.Connected))
	notify.Subscribe(s.Hub(), session.DisconnectedTopic, events.record(notify.Disconnected))
	notify.Subscribe(s.Hub(), session.ErrorTopic, events.record(notify.Error))
	notify.Subscribe(s.Hub(), notify.PhaseTopic, func(p notify.Phase) {
		events.mu.Lock()
		defer events.mu.Unlock()
		events.phases = append(events.phases, p)
	})

	return &fixture{session: s, dialer: dialer, wallet: wallet, events: events}
}

func TestSession_Connect(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.session.Connect(context.Background()))
	assert.Equal(t, session.StateConnected, f.session.State())
	assert.Equal(t, []notify.Name{notify.Connected}, f.events.Names())
	assert.Equal(t, []string{session.PhaseDialing, session.PhaseAwaitingSignature, session.PhaseAuthenticated}, f.events.Steps())

	authReq := f.dialer.RequestsFor(rpc.AuthRequestMethod)
	require.Len(t, authReq, 1)
	var announced rpc.AuthRequestRequest
	require.NoError(t, authReq[0].Req.Params.Translate(&announced))
	assert.Equal(t, "ghost-app", announced.Application)
	assert.Equal(t, walletAddr.Hex(), announced.Address)
	assert.Equal(t, walletAddr.Hex(), announced.SessionKey)
	assert.Equal(t, uint64(1800000000), announced.ExpiresAt)

	verifyReq := f.dialer.RequestsFor(rpc.AuthVerifyMethod)
	require.Len(t, verifyReq, 1)
	assert.Equal(t, "typed:ghost-app:Policy", string(verifyReq[0].Sig[0]))
	typed := f.wallet.TypedDataRequests()
	require.Len(t, typed, 1)
	assert.Equal(t, "c1", typed[0].Message["challenge"])

	cred, ok := f.session.Credential()
	require.True(t, ok)
	assert.Equal(t, walletAddr, cred.Address)
	assert.Equal(t, tokenExp.Unix(), cred.ExpiresAt.Unix())
	require.NotNil(t, cred.Claims)
	assert.Equal(t, "ghost-app", cred.Claims.Policy.Application)
	assert.False(t, cred.Expired(time.Unix(1700000000, 0)))

	client, err := f.session.Authenticated()
	require.NoError(t, err)
	assert.True(t, client.IsConnected())
}

func TestSession_ConnectWhileConnected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Connect(context.Background()))

	err := f.session.Connect(context.Background())
	assert.ErrorIs(t, err, session.ErrAlreadyConnected)
	assert.Equal(t, session.StateConnected, f.session.State())
	assert.Equal(t, 1, f.dialer.DialCount())
	assert.Len(t, f.dialer.RequestsFor(rpc.AuthRequestMethod), 1)
}

func TestSession_ConnectWithoutWallet(t *testing.T) {
	dialer := rpc.NewMockDialer()
	s := session.New(dialer, nil, testConfig())

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, rpc.ErrPreconditionFailed)
	assert.Equal(t, session.StateDisconnected, s.State())
	assert.Zero(t, dialer.DialCount())
}

func TestSession_AuthenticationFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		wantErr error
		sent    int
	}{
		{
			name: "rejected by coordinator",
			setup: func(f *fixture) {
				f.dialer.RegisterHandler(rpc.AuthVerifyMethod, func(*rpc.Request) (rpc.Params, error) {
					return nil, errors.New("invalid signature")
				})
			},
			sent: 2,
		},
		{
			name: "success flag unset",
			setup: func(f *fixture) {
				f.dialer.RegisterResult(rpc.AuthVerifyMethod, rpc.AuthVerifyResponse{Success: false})
			},
			sent: 2,
		},
		{
			name: "different wallet confirmed",
			setup: func(f *fixture) {
				f.dialer.RegisterResult(rpc.AuthVerifyMethod, rpc.AuthVerifyResponse{
					Success: true,
					Address: "0x00000000000000000000000000000000000000ff",
				})
			},
			sent: 2,
		},
		{
			name: "empty challenge",
			setup: func(f *fixture) {
				f.dialer.RegisterResult(rpc.AuthRequestMethod, rpc.AuthRequestResponse{})
			},
			sent: 1,
		},
		{
			name:    "wallet refuses to sign",
			setup:   func(f *fixture) { f.wallet.SetReject(true) },
			wantErr: rpc.ErrSigningRejected,
			sent:    0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f)

			err := f.session.Connect(context.Background())
			require.ErrorIs(t, err, rpc.ErrAuthenticationFailed)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}

			st := f.session.Status()
			assert.Equal(t, session.StateError, st.State)
			assert.ErrorIs(t, st.Err, rpc.ErrAuthenticationFailed)
			assert.Len(t, f.dialer.Requests(), tc.sent)
			assert.Equal(t, []notify.Name{notify.Error}, f.events.Names())
			assert.Equal(t, st.Message(), f.events.Last().Message())

			// The socket is closed and the handshake is not retried.
			require.Eventually(t, func() bool { return !f.dialer.IsConnected() }, time.Second, time.Millisecond)
			assert.Equal(t, 1, f.dialer.DialCount())
			_, err = f.session.Authenticated()
			assert.ErrorIs(t, err, rpc.ErrNotConnected)
		})
	}
}

func TestSession_ReconnectAfterError(t *testing.T) {
	f := newFixture(t)
	f.wallet.SetReject(true)
	require.Error(t, f.session.Connect(context.Background()))
	require.Eventually(t, func() bool { return !f.dialer.IsConnected() }, time.Second, time.Millisecond)

	f.wallet.SetReject(false)
	require.NoError(t, f.session.Connect(context.Background()))
	st := f.session.Status()
	assert.Equal(t, session.StateConnected, st.State)
	assert.NoError(t, st.Err)
}

func TestSession_DialRetry(t *testing.T) {
	f := newFixture(t)
	f.dialer.FailDial(errors.New("connection refused"))

	err := f.session.Connect(context.Background())
	assert.ErrorIs(t, err, rpc.ErrDialingWebsocket)
	assert.Equal(t, 2, f.dialer.DialCount())
	assert.Equal(t, session.StateError, f.session.State())
	assert.Empty(t, f.wallet.MessageRequests())
}

func TestSession_ConnectInProgress(t *testing.T) {
	f := newFixture(t)
	f.dialer.Hang(rpc.AuthRequestMethod)

	done := make(chan error, 1)
	go func() { done <- f.session.Connect(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.session.State() == session.StateAuthenticating && len(f.dialer.Requests()) == 1
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, f.session.Connect(context.Background()), session.ErrConnectInProgress)

	f.session.Disconnect()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, session.ErrConnectAborted)
	case <-time.After(time.Second):
		t.Fatal("connect did not return")
	}
	assert.Equal(t, session.StateDisconnected, f.session.State())
}

func TestSession_NotConnected(t *testing.T) {
	f := newFixture(t)

	err := f.session.Call(context.Background(), rpc.GetLedgerBalancesRequest{}, nil)
	assert.ErrorIs(t, err, rpc.ErrNotConnected)
	assert.Empty(t, f.dialer.Requests())
	assert.Empty(t, f.wallet.MessageRequests())
}

func TestSession_SocketLoss(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Connect(context.Background()))
	f.dialer.Hang(rpc.GetLedgerBalancesMethod)

	callErr := make(chan error, 1)
	go func() {
		callErr <- f.session.Call(context.Background(), rpc.GetLedgerBalancesRequest{}, nil)
	}()
	require.Eventually(t, func() bool {
		return len(f.dialer.RequestsFor(rpc.GetLedgerBalancesMethod)) == 1
	}, time.Second, time.Millisecond)

	f.dialer.Drop(errors.New("unexpected EOF"))

	select {
	case err := <-callErr:
		assert.ErrorIs(t, err, rpc.ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("outstanding call did not fail")
	}

	st := f.session.Status()
	assert.Equal(t, session.StateDisconnected, st.State)
	assert.ErrorIs(t, st.Reason, rpc.ErrConnectionLost)
	assert.Contains(t, st.Message(), "unexpected EOF")
	assert.Equal(t, []notify.Name{notify.Connected, notify.Disconnected}, f.events.Names())

	_, err := f.session.Authenticated()
	assert.ErrorIs(t, err, rpc.ErrNotConnected)
	_, ok := f.session.Credential()
	assert.False(t, ok)
	assert.Equal(t, 1, f.dialer.DialCount())
}

func TestSession_Disconnect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Connect(context.Background()))

	f.session.Disconnect()
	f.session.Disconnect()

	assert.Equal(t, session.StateDisconnected, f.session.State())
	assert.Equal(t, []notify.Name{notify.Connected, notify.Disconnected}, f.events.Names())
	assert.NoError(t, f.events.Last().Reason)
	require.Eventually(t, func() bool { return !f.dialer.IsConnected() }, time.Second, time.Millisecond)

	// A stale closure of the dropped socket does not produce another event.
	assert.Len(t, f.events.Names(), 2)
}

func TestSession_ForwardsEventsAcrossConnections(t *testing.T) {
	f := newFixture(t)

	received := make(chan *rpc.Response, 4)
	f.session.Subscribe(rpc.Event("balance_update"), func(_ context.Context, res *rpc.Response) {
		received <- res
	})

	update := rpc.BalanceUpdateNotification{BalanceUpdates: []rpc.LedgerBalance{{Asset: "usdc", Amount: decimal.NewFromInt(1)}}}
	for i := 0; i < 2; i++ {
		require.NoError(t, f.session.Connect(context.Background()))
		require.NoError(t, f.dialer.Publish("bu", update))

		select {
		case res := <-received:
			assert.Equal(t, "bu", res.Res.Method)
		case <-time.After(time.Second):
			t.Fatalf("event not forwarded on connection %d", i+1)
		}
		f.session.Disconnect()
		require.Eventually(t, func() bool { return !f.dialer.IsConnected() }, time.Second, time.Millisecond)
	}
}

// plainWallet hides the chain switching methods of the wrapped wallet.
type plainWallet struct {
	sign.Wallet
}

func TestSession_EnsureChain(t *testing.T) {
	ctx := context.Background()

	t.Run("switches once", func(t *testing.T) {
		wallet := sign.NewMockWallet(walletAddr, 5)
		s := session.New(rpc.NewMockDialer(), wallet, testConfig())

		require.NoError(t, s.EnsureChain(ctx))
		require.NoError(t, s.EnsureChain(ctx))
		assert.Equal(t, []uint64{1}, wallet.SwitchCalls())
	})

	t.Run("switch refused", func(t *testing.T) {
		wallet := sign.NewMockWallet(walletAddr, 5)
		wallet.SetSwitchError(sign.ErrRejected)
		s := session.New(rpc.NewMockDialer(), wallet, testConfig())

		assert.ErrorIs(t, s.EnsureChain(ctx), sign.ErrRejected)
	})

	t.Run("wallet cannot switch", func(t *testing.T) {
		s := session.New(rpc.NewMockDialer(), plainWallet{sign.NewMockWallet(walletAddr, 5)}, testConfig())
		assert.ErrorIs(t, s.EnsureChain(ctx), rpc.ErrPreconditionFailed)
	})

	t.Run("no chain required", func(t *testing.T) {
		cfg := testConfig()
		cfg.ChainID = 0
		s := session.New(rpc.NewMockDialer(), plainWallet{sign.NewMockWallet(walletAddr, 5)}, cfg)
		assert.NoError(t, s.EnsureChain(ctx))
	})

	t.Run("settle delay honours context", func(t *testing.T) {
		cfg := testConfig()
		cfg.ChainSettleDelay = time.Hour
		s := session.New(rpc.NewMockDialer(), sign.NewMockWallet(walletAddr, 5), cfg)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, s.EnsureChain(cctx), context.DeadlineExceeded)
	})
}
