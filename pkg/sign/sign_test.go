package sign_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func greetingTypedData(name string) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}},
			"Greeting":     {{Name: "text", Type: "string"}},
		},
		PrimaryType: "Greeting",
		Domain:      apitypes.TypedDataDomain{Name: name},
		Message:     apitypes.TypedDataMessage{"text": "hello"},
	}
}

func TestEthereumWallet_SignTypedData(t *testing.T) {
	wallet, err := sign.NewEthereumWallet(testKey, 1)
	require.NoError(t, err)

	data := greetingTypedData("clearclient")
	sig, err := wallet.SignTypedData(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	signer, err := sign.RecoverTypedDataSigner(data, sig)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), signer)

	// A different domain name yields a different signer on recovery.
	other, err := sign.RecoverTypedDataSigner(greetingTypedData("other"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, wallet.Address(), other)
}

func TestEthereumWallet_SignMessage(t *testing.T) {
	wallet, err := sign.GenerateEthereumWallet(1)
	require.NoError(t, err)

	msg := []byte(`{"req":[1,"ping",{},1]}`)
	sig, err := wallet.SignMessage(context.Background(), msg)
	require.NoError(t, err)

	signer, err := sign.RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), signer)
}

func TestEthereumWallet_CancelledContext(t *testing.T) {
	wallet, err := sign.GenerateEthereumWallet(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = wallet.SignMessage(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEthereumWallet_SwitchChain(t *testing.T) {
	ctx := context.Background()
	wallet, err := sign.NewEthereumWallet(testKey, 1)
	require.NoError(t, err)

	require.NoError(t, wallet.SwitchChain(ctx, 137))
	id, err := wallet.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(137), id)

	assert.Error(t, wallet.SwitchChain(ctx, 0))
}

func TestEthereumWallet_SignTx(t *testing.T) {
	wallet, err := sign.NewEthereumWallet(testKey, 1)
	require.NoError(t, err)

	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
	signed, err := wallet.SignTx(context.Background(), tx, big.NewInt(11155111))
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), signed)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), from)
}

func TestNewEthereumWallet_InvalidKey(t *testing.T) {
	_, err := sign.NewEthereumWallet("0xzz", 1)
	assert.Error(t, err)
}

func TestSignature_JSON(t *testing.T) {
	sig := sign.Signature{0xde, 0xad, 0xbe, 0xef}
	raw, err := json.Marshal(sig)
	require.NoError(t, err)
	assert.JSONEq(t, `"0xdeadbeef"`, string(raw))

	var decoded sign.Signature
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, sig, decoded)

	assert.Error(t, json.Unmarshal([]byte(`"nothex"`), &decoded))
}

func TestRecoverAddressFromHash_InvalidLength(t *testing.T) {
	_, err := sign.RecoverAddressFromHash(make([]byte, 32), sign.Signature{1, 2, 3})
	assert.Error(t, err)
}

func TestMockWallet(t *testing.T) {
	ctx := context.Background()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	wallet := sign.NewMockWallet(addr, 1)

	sig, err := wallet.SignTypedData(ctx, greetingTypedData("app"))
	require.NoError(t, err)
	assert.Equal(t, "typed:app:Greeting", string(sig))
	require.Len(t, wallet.TypedDataRequests(), 1)

	_, err = wallet.SignMessage(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("payload")}, wallet.MessageRequests())

	wallet.SetReject(true)
	_, err = wallet.SignMessage(ctx, []byte("payload"))
	assert.ErrorIs(t, err, sign.ErrRejected)
	assert.Len(t, wallet.MessageRequests(), 1)

	require.NoError(t, wallet.SwitchChain(ctx, 10))
	id, _ := wallet.ChainID(ctx)
	assert.Equal(t, uint64(10), id)
	assert.Equal(t, []uint64{10}, wallet.SwitchCalls())
}
