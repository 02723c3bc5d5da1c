package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/notify"
	"github.com/snehendu098/ghost/clearclient/pkg/sdk"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
)

const (
	commandTimeout = 30 * time.Second
	// Deposits wait for mining and settlement.
	depositTimeout = 5 * time.Minute
)

type console struct {
	app    *app
	client *sdk.Client
	exitCh chan struct{}
}

func runConsole(ctx context.Context, a *app, walletName string) error {
	wallet, err := a.loadWallet(walletName)
	if err != nil {
		return err
	}
	client, err := a.newClient(ctx, wallet)
	if err != nil {
		return err
	}
	defer client.Close()

	c := &console{app: a, client: client, exitCh: make(chan struct{})}
	c.subscribe()
	fmt.Printf("Wallet %s loaded. Type 'connect' to authenticate.\n", wallet.Address().Hex())

	initialState, _ := term.GetState(int(os.Stdin.Fd()))
	handleExit := func() {
		if initialState != nil {
			_ = term.Restore(int(os.Stdin.Fd()), initialState)
		}
		_ = exec.Command("stty", "sane").Run()
	}

	options := append(styleOptions(),
		prompt.OptionPrefix(">>> "),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn: func(*prompt.Buffer) {
				fmt.Println("Exiting clearclient.")
				client.Close()
				handleExit()
				os.Exit(0)
			},
		}),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn:  func(*prompt.Buffer) {},
		}),
	)
	p := prompt.New(c.Execute, c.Complete, options...)

	promptExitCh := make(chan struct{})
	go func() {
		p.Run()
		close(promptExitCh)
	}()

	select {
	case <-c.exitCh:
	case <-promptExitCh:
	case <-ctx.Done():
	}
	handleExit()
	fmt.Println("Exiting clearclient.")
	return nil
}

// subscribe prints connection and flow progress as it happens.
func (c *console) subscribe() {
	c.client.OnPhase(func(p notify.Phase) {
		if p.Detail != "" {
			fmt.Printf("[%s] %s: %s\n", p.Flow, p.Step, p.Detail)
			return
		}
		fmt.Printf("[%s] %s\n", p.Flow, p.Step)
	})
	c.client.OnDisconnected(func(st session.Status) {
		if msg := st.Message(); msg != "" {
			fmt.Printf("Disconnected: %s\n", msg)
			return
		}
		fmt.Println("Disconnected.")
	})
	c.client.OnError(func(st session.Status) {
		fmt.Printf("Connection error: %s\n", st.Message())
	})
}

func (c *console) Complete(d prompt.Document) []prompt.Suggest {
	return prompt.FilterHasPrefix(c.complete(d), d.GetWordBeforeCursor(), true)
}

func (c *console) complete(d prompt.Document) []prompt.Suggest {
	args := strings.Split(d.TextBeforeCursor(), " ")

	if len(args) < 2 {
		return []prompt.Suggest{
			{Text: "connect", Description: "Authenticate to the ClearNode with the loaded wallet"},
			{Text: "disconnect", Description: "Close the ClearNode connection"},
			{Text: "status", Description: "Show the connection state and credential"},
			{Text: "balances", Description: "List ledger balances"},
			{Text: "sessions", Description: "List app sessions of the wallet"},
			{Text: "assets", Description: "List assets supported by the ClearNode"},
			{Text: "wallet-balances", Description: "List on-chain wallet and custody balances"},
			{Text: "deposit", Description: "Deposit an asset into custody"},
			{Text: "faucet", Description: "Request test tokens"},
			{Text: "transfer", Description: "Transfer assets to another account"},
			{Text: "close-session", Description: "Close an app session"},
			{Text: "exit", Description: "Exit the console"},
		}
	}

	if len(args) < 3 {
		switch args[0] {
		case "wallet-balances", "assets":
			return c.chainSuggestions()
		case "deposit", "transfer":
			return c.assetSuggestions()
		case "close-session":
			return c.sessionSuggestions()
		}
	}
	return nil
}

func (c *console) Execute(s string) {
	args := strings.Fields(s)
	if len(args) == 0 {
		return
	}

	var err error
	switch args[0] {
	case "connect":
		err = c.handleConnect()
	case "disconnect":
		c.client.Disconnect()
	case "status":
		c.handleStatus()
	case "balances":
		err = c.handleBalances()
	case "sessions":
		err = c.handleSessions()
	case "assets":
		err = c.handleAssets(args)
	case "wallet-balances":
		err = c.handleWalletBalances(args)
	case "deposit":
		err = c.handleDeposit(args)
	case "faucet":
		err = c.handleFaucet(args)
	case "transfer":
		err = c.handleTransfer(args)
	case "close-session":
		err = c.handleCloseSession(args)
	case "exit":
		close(c.exitCh)
	default:
		fmt.Printf("Unknown command: %s\n", s)
	}
	if err != nil {
		fmt.Printf("Error: %s\n", err.Error())
	}
}

func (c *console) chainSuggestions() []prompt.Suggest {
	var suggestions []prompt.Suggest
	for _, n := range c.app.cfg.Networks {
		suggestions = append(suggestions, prompt.Suggest{
			Text:        fmt.Sprintf("%d", n.ChainID),
			Description: n.Name,
		})
	}
	return suggestions
}

func (c *console) assetSuggestions() []prompt.Suggest {
	seen := make(map[string]bool)
	var suggestions []prompt.Suggest
	for _, b := range c.client.Balances() {
		if !seen[b.Asset] {
			seen[b.Asset] = true
			suggestions = append(suggestions, prompt.Suggest{Text: b.Asset, Description: "Available " + fmtDec(b.Available)})
		}
	}
	for _, n := range c.app.cfg.Networks {
		for _, t := range n.Tokens {
			symbol := strings.ToLower(t.Symbol)
			if !seen[symbol] {
				seen[symbol] = true
				suggestions = append(suggestions, prompt.Suggest{Text: symbol, Description: n.Name})
			}
		}
	}
	return suggestions
}

func (c *console) sessionSuggestions() []prompt.Suggest {
	var suggestions []prompt.Suggest
	for _, s := range c.client.AppSessions() {
		if s.Status == ledger.SessionOpen {
			suggestions = append(suggestions, prompt.Suggest{Text: s.ID, Description: s.Application})
		}
	}
	return suggestions
}

func (c *console) readExtraArg(name string) string {
	return prompt.Input(fmt.Sprintf("{%s}>>> ", name), emptyCompleter,
		prompt.OptionTitle("clearclient"),
		prompt.OptionPrefixTextColor(prompt.Yellow),
	)
}

func emptyCompleter(prompt.Document) []prompt.Suggest {
	return []prompt.Suggest{}
}

func styleOptions() []prompt.Option {
	return []prompt.Option{
		prompt.OptionTitle("clearclient"),
		prompt.OptionPrefixTextColor(prompt.Yellow),
		prompt.OptionPreviewSuggestionTextColor(prompt.Cyan),

		prompt.OptionSuggestionTextColor(prompt.White),
		prompt.OptionSuggestionBGColor(prompt.DarkBlue),

		prompt.OptionDescriptionTextColor(prompt.Black),
		prompt.OptionDescriptionBGColor(prompt.Yellow),

		prompt.OptionSelectedSuggestionTextColor(prompt.Black),
		prompt.OptionSelectedSuggestionBGColor(prompt.Yellow),

		prompt.OptionSelectedDescriptionTextColor(prompt.White),
		prompt.OptionSelectedDescriptionBGColor(prompt.DarkBlue),

		prompt.OptionShowCompletionAtStart(),
	}
}
