package sign

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	_ Wallet        = (*MockWallet)(nil)
	_ ChainSwitcher = (*MockWallet)(nil)
)

// MockWallet is a Wallet for tests. Signatures are predictable and every
// request is recorded.
type MockWallet struct {
	address common.Address

	mu          sync.Mutex
	reject      bool
	chainID     uint64
	switchErr   error
	typedData   []apitypes.TypedData
	messages    [][]byte
	switchCalls []uint64
}

func NewMockWallet(address common.Address, chainID uint64) *MockWallet {
	return &MockWallet{address: address, chainID: chainID}
}

func (m *MockWallet) Address() common.Address { return m.address }

// SetReject makes subsequent sign requests fail with ErrRejected.
func (m *MockWallet) SetReject(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject = reject
}

// SetSwitchError makes SwitchChain fail with err.
func (m *MockWallet) SetSwitchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchErr = err
}

func (m *MockWallet) SignTypedData(_ context.Context, data apitypes.TypedData) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return nil, ErrRejected
	}
	m.typedData = append(m.typedData, data)
	return Signature(fmt.Sprintf("typed:%s:%s", data.Domain.Name, data.PrimaryType)), nil
}

func (m *MockWallet) SignMessage(_ context.Context, msg []byte) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return nil, ErrRejected
	}
	m.messages = append(m.messages, append([]byte(nil), msg...))
	return Signature("msg:" + m.address.Hex()), nil
}

func (m *MockWallet) ChainID(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID, nil
}

func (m *MockWallet) SwitchChain(_ context.Context, chainID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchCalls = append(m.switchCalls, chainID)
	if m.switchErr != nil {
		return m.switchErr
	}
	m.chainID = chainID
	return nil
}

// TypedDataRequests returns the typed data signed so far.
func (m *MockWallet) TypedDataRequests() []apitypes.TypedData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]apitypes.TypedData(nil), m.typedData...)
}

// MessageRequests returns the raw messages signed so far.
func (m *MockWallet) MessageRequests() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.messages...)
}

// SwitchCalls returns every chain id passed to SwitchChain.
func (m *MockWallet) SwitchCalls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.switchCalls...)
}
