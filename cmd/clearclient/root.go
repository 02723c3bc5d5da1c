package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newRootCmd() *cobra.Command {
	var walletName string

	root := &cobra.Command{
		Use:   "clearclient",
		Short: "Interactive console for a ClearNode coordinator",
		Long: `clearclient authenticates a wallet against a ClearNode coordinator and
opens an interactive console for balances, app sessions, transfers,
deposits and faucet requests.

Configuration is read from CLEARCLIENT_* variables, an optional .env file
and networks.yaml in CLEARCLIENT_CONFIG_DIR_PATH.

Example:
  clearclient import wallet main
  clearclient --wallet main`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runConsole(cmd.Context(), a, walletName)
		},
	}
	root.PersistentFlags().StringVarP(&walletName, "wallet", "w", "", "name of an imported wallet to authenticate with")

	root.AddCommand(newImportCmd(), newWalletsCmd(), newChainsCmd())
	return root
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet private key or a chain RPC URL",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "wallet <name>",
		Short: "Import a wallet from its private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return importWallet(a, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rpc <chain-id>",
		Short: "Import an RPC URL for a configured chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return importRPC(a, args[0])
		},
	})
	return cmd
}

func newWalletsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallets",
		Short: "List imported wallets",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return listWallets(a)
		},
	}
}

func newChainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List configured chains and their RPC endpoints",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return listChains(a)
		},
	}
}

func importWallet(a *app, name string) error {
	fmt.Println("Paste private key:")
	privateKeyHex, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}

	dto, err := a.store.AddWallet(name, string(privateKeyHex))
	if err != nil {
		return err
	}
	fmt.Printf("Wallet imported successfully: %s (%s)\n", dto.Name, dto.Address)
	return nil
}

func importRPC(a *app, chainIDStr string) error {
	chainID, err := parseChainID(chainIDStr)
	if err != nil {
		return err
	}
	if _, ok := a.cfg.Network(chainID); !ok {
		return fmt.Errorf("chain %d is not configured", chainID)
	}

	fmt.Println("Paste chain RPC URL:")
	rpcURL, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read chain RPC URL: %w", err)
	}
	if err := a.store.AddChainRPC(string(rpcURL), chainID); err != nil {
		return err
	}
	fmt.Printf("RPC URL for chain %d imported successfully\n", chainID)
	return nil
}

func listWallets(a *app) error {
	wallets, err := a.store.Wallets()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Address", "Imported"})
	t.AppendSeparator()
	for _, w := range wallets {
		t.AppendRow(table.Row{w.Name, w.Address, w.CreatedAt.Format("2006-01-02 15:04")})
	}
	t.Render()
	return nil
}

func listChains(a *app) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Token", "Stored RPCs", "Configured RPC"})
	t.AppendSeparator()

	for _, n := range a.cfg.Networks {
		stored, err := a.store.ChainRPCs(n.ChainID)
		if err != nil {
			return err
		}
		configured := "no"
		if n.RPCURL != "" {
			configured = "yes"
		}
		for _, token := range n.Tokens {
			t.AppendRow(table.Row{n.ChainID, n.Name, token.Symbol, len(stored), configured})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})
	t.Render()
	return nil
}
