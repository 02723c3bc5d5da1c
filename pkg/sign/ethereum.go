package sign

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	_ Wallet        = (*EthereumWallet)(nil)
	_ ChainSwitcher = (*EthereumWallet)(nil)
	_ TxSigner      = (*EthereumWallet)(nil)
)

// EthereumWallet is a Wallet backed by an in-memory secp256k1 key.
// It never prompts, so it never rejects. The active chain is tracked
// locally because a raw key can sign for any chain.
type EthereumWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu      sync.RWMutex
	chainID uint64
}

// NewEthereumWallet parses a hex-encoded private key, with or without 0x.
func NewEthereumWallet(privateKeyHex string, chainID uint64) (*EthereumWallet, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return NewEthereumWalletFromKey(key, chainID), nil
}

func NewEthereumWalletFromKey(key *ecdsa.PrivateKey, chainID uint64) *EthereumWallet {
	return &EthereumWallet{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}
}

// GenerateEthereumWallet creates a wallet with a fresh random key.
func GenerateEthereumWallet(chainID uint64) (*EthereumWallet, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewEthereumWalletFromKey(key, chainID), nil
}

func (w *EthereumWallet) Address() common.Address { return w.address }

// PrivateKeyHex returns the 0x-prefixed private key.
func (w *EthereumWallet) PrivateKeyHex() string {
	return "0x" + common.Bytes2Hex(ethcrypto.FromECDSA(w.key))
}

func (w *EthereumWallet) SignTypedData(ctx context.Context, data apitypes.TypedData) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return w.signHash(hash)
}

func (w *EthereumWallet) SignMessage(ctx context.Context, msg []byte) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.signHash(accounts.TextHash(msg))
}

func (w *EthereumWallet) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

func (w *EthereumWallet) ChainID(context.Context) (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID, nil
}

func (w *EthereumWallet) SwitchChain(_ context.Context, chainID uint64) error {
	if chainID == 0 {
		return errors.New("chain id must be positive")
	}
	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	return nil
}

func (w *EthereumWallet) signHash(hash []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(hash, w.key)
	if err != nil {
		return nil, err
	}
	// 0/1 recovery id to 27/28.
	sig[64] += 27
	return Signature(sig), nil
}

// RecoverTypedDataSigner returns the address that produced sig over data.
func RecoverTypedDataSigner(data apitypes.TypedData, sig Signature) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return RecoverAddressFromHash(hash, sig)
}

// RecoverMessageSigner returns the address that personal-signed msg.
func RecoverMessageSigner(msg []byte, sig Signature) (common.Address, error) {
	return RecoverAddressFromHash(accounts.TextHash(msg), sig)
}

func RecoverAddressFromHash(hash []byte, sig Signature) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	local := make([]byte, 65)
	copy(local, sig)
	if local[64] >= 27 {
		local[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash, local)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
