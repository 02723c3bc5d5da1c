package sign

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrRejected is returned by wallets when the holder declines to sign.
var ErrRejected = errors.New("signature request rejected")

// Wallet signs on behalf of a single account. Implementations may block
// until the holder approves and may fail with ErrRejected.
type Wallet interface {
	Address() common.Address
	// SignTypedData produces an EIP-712 signature over data.
	SignTypedData(ctx context.Context, data apitypes.TypedData) (Signature, error)
	// SignMessage produces an EIP-191 personal signature over msg.
	SignMessage(ctx context.Context, msg []byte) (Signature, error)
}

// ChainSwitcher reports and changes the chain a wallet is operating on.
type ChainSwitcher interface {
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
}

// TxSigner signs transactions for on-chain submission.
type TxSigner interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Signature is a raw signature. It is hex encoded in JSON.
type Signature []byte

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Signature) String() string {
	return hexutil.Encode(s)
}
