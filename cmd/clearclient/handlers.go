package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"github.com/snehendu098/ghost/clearclient/pkg/deposit"
	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
)

func (c *console) handleConnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := c.client.Connect(ctx); err != nil {
		return err
	}
	cred, _ := c.client.Credential()
	fmt.Printf("Authenticated as %s\n", cred.Address.Hex())
	return c.handleBalances()
}

func (c *console) handleStatus() {
	st := c.client.Status()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendRow(table.Row{"State", st.State})
	if msg := st.Message(); msg != "" {
		t.AppendRow(table.Row{"Reason", msg})
	}
	if wallet := c.client.Wallet(); wallet != nil {
		t.AppendRow(table.Row{"Wallet", wallet.Address().Hex()})
	}
	if cred, ok := c.client.Credential(); ok {
		t.AppendRow(table.Row{"Session key", cred.SessionKey.Hex()})
		if !cred.ExpiresAt.IsZero() {
			t.AppendRow(table.Row{"Expires", cred.ExpiresAt.Format(time.RFC3339)})
		}
	}
	t.AppendRow(table.Row{"Chains", fmt.Sprint(c.client.Chains().ChainIDs())})
	t.Render()
}

func (c *console) handleBalances() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	balances, err := c.client.RefreshBalances(ctx)
	if err != nil {
		return err
	}
	renderBalances(balances)
	return nil
}

func (c *console) handleSessions() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sessions, err := c.client.RefreshAppSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No app sessions found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Application", "Status", "Version", "Participants"})
	t.AppendSeparator()
	for _, s := range sessions {
		t.AppendRow(table.Row{s.ID, s.Application, s.Status, s.Version, strings.Join(s.Participants, "\n")})
	}
	t.Render()
	return nil
}

func (c *console) handleAssets(args []string) error {
	var chainID uint64
	if len(args) > 1 {
		var err error
		if chainID, err = parseChainID(args[1]); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := c.client.GetAssets(ctx, chainID)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Chain", "Symbol", "Token", "Decimals"})
	t.AppendSeparator()
	for _, a := range res.Assets {
		t.AppendRow(table.Row{a.ChainID, a.Symbol, a.Token, a.Decimals})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	t.Render()
	return nil
}

func (c *console) handleWalletBalances(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: wallet-balances <chain_id>")
	}
	chainID, err := parseChainID(args[1])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	balances, err := c.client.WalletBalances(ctx, chainID)
	if err != nil {
		return err
	}
	renderWalletBalances(chainID, balances)
	return nil
}

func (c *console) handleDeposit(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: deposit <asset> <amount>")
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), depositTimeout)
	defer cancel()

	res, err := c.client.Deposit(ctx, deposit.DepositRequest{Asset: args[1], Amount: amount})
	if err != nil {
		return err
	}
	fmt.Printf("Deposited %s %s on chain %d in %s\n", fmtDec(res.Amount), res.Asset, res.ChainID, res.TxHash.Hex())
	if res.Degraded {
		fmt.Printf("Balances may be stale: %s\n", res.RefreshErr)
		return nil
	}
	renderBalances(res.Balances)
	if len(res.WalletBalances) > 0 {
		renderWalletBalances(res.ChainID, res.WalletBalances)
	}
	return nil
}

func (c *console) handleFaucet(args []string) error {
	address := ""
	if len(args) > 1 {
		address = args[1]
	} else if wallet := c.client.Wallet(); wallet != nil {
		address = wallet.Address().Hex()
	}

	ctx, cancel := context.WithTimeout(context.Background(), depositTimeout)
	defer cancel()

	res, err := c.client.RequestFaucetTokens(ctx, address)
	if err != nil {
		return err
	}
	if res.Message != "" {
		fmt.Printf("Faucet: %s\n", res.Message)
	} else {
		fmt.Printf("Faucet tokens requested for %s\n", res.Address.Hex())
	}
	switch {
	case res.Degraded:
		fmt.Printf("Balances may be stale: %s\n", res.RefreshErr)
	case res.Refreshed:
		renderBalances(res.Balances)
	}
	return nil
}

func (c *console) handleTransfer(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: transfer <asset> <amount> [destination]")
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	destination := ""
	if len(args) > 3 {
		destination = args[3]
	} else {
		fmt.Println("Destination address or user tag:")
		destination = strings.TrimSpace(c.readExtraArg("destination"))
	}
	if destination == "" {
		return errors.New("destination cannot be empty")
	}

	req := rpc.TransferRequest{
		Allocations: []rpc.TransferAllocation{{AssetSymbol: strings.ToLower(args[1]), Amount: amount}},
	}
	if common.IsHexAddress(destination) {
		req.Destination = common.HexToAddress(destination).Hex()
	} else {
		req.DestinationUserTag = destination
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := c.client.Transfer(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Transferred %s %s to %s (%d ledger transactions)\n", fmtDec(amount), args[1], destination, len(res.Transactions))
	renderBalances(c.client.Balances())
	return nil
}

func (c *console) handleCloseSession(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: close-session <app_session_id>")
	}
	existing, ok := c.client.Ledger().Cache().Session(args[1])
	if !ok {
		return fmt.Errorf("unknown app session %s, run 'sessions' first", args[1])
	}

	// Closing with an empty allocation list returns every participant's
	// share as last agreed.
	req := rpc.CloseAppSessionRequest{AppSessionID: existing.ID, Allocations: []rpc.AppAllocation{}}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	closed, err := c.client.CloseAppSession(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("App session %s is %s at version %d\n", closed.ID, closed.Status, closed.Version)
	return nil
}

func renderBalances(balances []ledger.Balance) {
	if len(balances) == 0 {
		fmt.Println("No ledger balances.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Asset", "Available", "Locked", "Total"})
	t.AppendSeparator()
	for _, b := range balances {
		t.AppendRow(table.Row{b.Asset, fmtDec(b.Available), fmtDec(b.Locked), fmtDec(b.Total())})
	}
	t.Render()
}

func renderWalletBalances(chainID uint64, balances []ledger.WalletBalance) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Chain", "Asset", "Wallet", "Custody"})
	t.AppendSeparator()
	for _, b := range balances {
		t.AppendRow(table.Row{chainID, b.Asset, fmtDec(b.Wallet), fmtDec(b.Custody)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	t.Render()
}

func fmtDec(value decimal.Decimal) string {
	if value.Equal(value.Floor()) {
		return value.StringFixed(1)
	}
	return value.String()
}
