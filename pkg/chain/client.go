package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	golog "github.com/ipfs/go-log/v2"
	"github.com/layer-3/clearsync/pkg/debounce"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/snehendu098/ghost/clearclient/pkg/ledger"
	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

var ethLogger = golog.Logger("chain-client")

var (
	ErrUnknownAsset = errors.New("asset is not configured on this chain")
	ErrWrongChain   = errors.New("rpc endpoint serves a different chain")
	ErrTxFailed     = errors.New("transaction reverted")
)

// Token is an asset deployed on a network. The zero address denotes the
// native currency.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

type Network struct {
	ChainID        uint64
	Name           string
	CustodyAddress common.Address
	Tokens         []Token
}

func (n Network) Token(symbol string) (Token, bool) {
	for _, t := range n.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// Backend is what the client needs from a node. *ethclient.Client
// implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client reads balances from and deposits into the custody contract of one
// network on behalf of one wallet.
type Client struct {
	backend Backend
	network Network
	signer  sign.TxSigner
	lg      log.Logger
}

func NewClient(backend Backend, network Network, signer sign.TxSigner, lg log.Logger) *Client {
	return &Client{
		backend: backend,
		network: network,
		signer:  signer,
		lg:      log.OrNoop(lg).WithName("chain").WithKV("chainID", network.ChainID),
	}
}

// Dial connects to rpcURL and checks that it serves the network's chain.
func Dial(ctx context.Context, rpcURL string, network Network, signer sign.TxSigner, lg log.Logger) (*Client, error) {
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", network.Name)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, errors.Wrap(err, "failed to read chain id")
	}
	if chainID.Uint64() != network.ChainID {
		backend.Close()
		return nil, fmt.Errorf("%w: expected %d, got %s", ErrWrongChain, network.ChainID, chainID)
	}
	return NewClient(backend, network, signer, lg), nil
}

func (c *Client) Network() Network {
	return c.network
}

// WalletBalances reads what the wallet holds of every configured token and
// what it has deposited into custody.
func (c *Client) WalletBalances(ctx context.Context, chainID uint64) ([]ledger.WalletBalance, error) {
	if chainID != c.network.ChainID {
		return nil, fmt.Errorf("%w: client serves %d, asked for %d", ErrWrongChain, c.network.ChainID, chainID)
	}
	if len(c.network.Tokens) == 0 {
		return nil, nil
	}

	account := c.signer.Address()
	tokens := make([]common.Address, len(c.network.Tokens))
	for i, t := range c.network.Tokens {
		tokens[i] = t.Address
	}

	custody, err := c.custodyBalances(ctx, account, tokens)
	if err != nil {
		return nil, err
	}

	balances := make([]ledger.WalletBalance, 0, len(c.network.Tokens))
	for i, t := range c.network.Tokens {
		held, err := c.heldBalance(ctx, t, account)
		if err != nil {
			return nil, err
		}
		balances = append(balances, ledger.WalletBalance{
			Asset:    strings.ToLower(t.Symbol),
			Token:    t.Address,
			Decimals: t.Decimals,
			Wallet:   FromBaseUnits(held, t.Decimals),
			Custody:  FromBaseUnits(custody[i], t.Decimals),
		})
	}
	return balances, nil
}

func (c *Client) heldBalance(ctx context.Context, token Token, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := debounce.Debounce(ctx, ethLogger, func(ctx context.Context) error {
		var err error
		if token.Address == (common.Address{}) {
			balance, err = c.backend.BalanceAt(ctx, account, nil)
			return err
		}
		out, err := c.call(ctx, erc20Contract(), token.Address, "balanceOf", account)
		if err != nil {
			return err
		}
		balance = abi.ConvertType(out[0], new(big.Int)).(*big.Int)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s balance", token.Symbol)
	}
	return balance, nil
}

func (c *Client) custodyBalances(ctx context.Context, account common.Address, tokens []common.Address) ([]*big.Int, error) {
	var result []*big.Int
	err := debounce.Debounce(ctx, ethLogger, func(ctx context.Context) error {
		out, err := c.call(ctx, custodyContract(), c.network.CustodyAddress, "getAccountsBalances", []common.Address{account}, tokens)
		if err != nil {
			return err
		}
		rows := *abi.ConvertType(out[0], new([][]*big.Int)).(*[][]*big.Int)
		if len(rows) != 1 || len(rows[0]) != len(tokens) {
			return fmt.Errorf("unexpected custody balances shape")
		}
		result = rows[0]
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody balances")
	}
	return result, nil
}

// Deposit moves amount of asset from the wallet into custody. ERC-20 tokens
// are approved first. It returns once the deposit is mined.
func (c *Client) Deposit(ctx context.Context, chainID uint64, asset string, amount decimal.Decimal) (common.Hash, error) {
	if chainID != c.network.ChainID {
		return common.Hash{}, fmt.Errorf("%w: client serves %d, asked for %d", ErrWrongChain, c.network.ChainID, chainID)
	}
	token, ok := c.network.Token(asset)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if !amount.IsPositive() {
		return common.Hash{}, fmt.Errorf("amount must be positive, got %s", amount)
	}
	raw := ToBaseUnits(amount, token.Decimals)
	account := c.signer.Address()

	opts, err := c.txOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	if token.Address != (common.Address{}) {
		c.lg.Info("approving custody allowance", "asset", token.Symbol, "amount", amount)
		tx, err := c.transact(opts, erc20Contract(), token.Address, "approve", c.network.CustodyAddress, raw)
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "failed to approve allowance")
		}
		if err := c.waitMined(ctx, tx); err != nil {
			return common.Hash{}, errors.Wrap(err, "approval failed")
		}
	} else {
		opts.Value = raw
	}

	c.lg.Info("depositing into custody", "asset", token.Symbol, "amount", amount)
	tx, err := c.transact(opts, custodyContract(), c.network.CustodyAddress, "deposit", account, token.Address, raw)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to submit deposit")
	}
	if err := c.waitMined(ctx, tx); err != nil {
		return tx.Hash(), errors.Wrap(err, "deposit failed")
	}
	return tx.Hash(), nil
}

func (c *Client) call(ctx context.Context, contractABI abi.ABI, address common.Address, method string, params ...any) ([]any, error) {
	contract := bind.NewBoundContract(address, contractABI, c.backend, c.backend, c.backend)
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

func (c *Client) transact(opts *bind.TransactOpts, contractABI abi.ABI, address common.Address, method string, params ...any) (*types.Transaction, error) {
	contract := bind.NewBoundContract(address, contractABI, c.backend, c.backend, c.backend)
	return contract.Transact(opts, method, params...)
}

func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) error {
	receipt, err := bind.WaitMined(ctx, c.backend, tx.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTxFailed, tx.Hash().Hex())
	}
	return nil
}

// txOpts signs with the wallet and bids twice the suggested gas price.
func (c *Client) txOpts(ctx context.Context) (*bind.TransactOpts, error) {
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas price")
	}

	chainID := new(big.Int).SetUint64(c.network.ChainID)
	from := c.signer.Address()
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(address common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if address != from {
				return nil, bind.ErrNotAuthorized
			}
			return c.signer.SignTx(ctx, tx, chainID)
		},
		GasPrice: new(big.Int).Mul(gasPrice, big.NewInt(2)),
	}, nil
}

// ToBaseUnits converts a human amount into the token's integer units.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// FromBaseUnits converts integer token units into a human amount.
func FromBaseUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
