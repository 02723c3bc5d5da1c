package sdk

import (
	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
)

// OnConnected registers fn for successful handshakes. Like every On method,
// fn runs synchronously on the goroutine that caused the event, receives a
// copy it may keep, and is removed by the returned idempotent func.
func (c *Client) OnConnected(fn func(session.Status)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, session.ConnectedTopic, fn)
}

func (c *Client) OnDisconnected(fn func(session.Status)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, session.DisconnectedTopic, fn)
}

func (c *Client) OnError(fn func(session.Status)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, session.ErrorTopic, fn)
}

func (c *Client) OnBalanceUpdate(fn func([]ledger.Balance)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, ledger.BalanceTopic, fn)
}

func (c *Client) OnSessionUpdate(fn func(ledger.AppSession)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, ledger.SessionTopic, fn)
}

func (c *Client) OnWalletBalanceUpdate(fn func(ledger.WalletBalances)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, ledger.WalletBalanceTopic, fn)
}

// OnPhase reports the steps of connect, deposit and faucet flows.
func (c *Client) OnPhase(fn func(notify.Phase)) (unsubscribe func()) {
	return notify.Subscribe(c.hub, notify.PhaseTopic, fn)
}
