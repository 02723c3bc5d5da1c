package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

// PayloadSigner produces the signature attached to an outbound request.
type PayloadSigner interface {
	Sign(ctx context.Context, payload Payload) (sign.Signature, error)
}

// AuthPolicy is the set of parameters announced in auth_request. The same
// values are signed when answering the challenge, so it must not change for
// the lifetime of a connection.
type AuthPolicy struct {
	Application string
	Scope       string
	Wallet      common.Address
	SessionKey  common.Address
	ExpiresAt   uint64
	Allowances  []Allowance
}

// AuthRequest returns the auth_request params announcing this policy.
func (p AuthPolicy) AuthRequest() AuthRequestRequest {
	allowances := make([]Allowance, len(p.Allowances))
	copy(allowances, p.Allowances)
	return AuthRequestRequest{
		Address:     p.Wallet.Hex(),
		SessionKey:  p.SessionKey.Hex(),
		Application: p.Application,
		Allowances:  allowances,
		ExpiresAt:   p.ExpiresAt,
		Scope:       p.Scope,
	}
}

// TypedData builds the EIP-712 Policy message for challenge. The domain
// name is the application announced in auth_request.
func (p AuthPolicy) TypedData(challenge string) apitypes.TypedData {
	allowances := make([]any, 0, len(p.Allowances))
	for _, a := range p.Allowances {
		allowances = append(allowances, map[string]any{
			"asset":  a.Asset,
			"amount": a.Amount,
		})
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
			},
			"Policy": {
				{Name: "challenge", Type: "string"},
				{Name: "scope", Type: "string"},
				{Name: "wallet", Type: "address"},
				{Name: "session_key", Type: "address"},
				{Name: "expires_at", Type: "uint64"},
				{Name: "allowances", Type: "Allowance[]"},
			},
			"Allowance": {
				{Name: "asset", Type: "string"},
				{Name: "amount", Type: "string"},
			},
		},
		PrimaryType: "Policy",
		Domain: apitypes.TypedDataDomain{
			Name: p.Application,
		},
		Message: apitypes.TypedDataMessage{
			"challenge":   challenge,
			"scope":       p.Scope,
			"wallet":      p.Wallet.Hex(),
			"session_key": p.SessionKey.Hex(),
			"expires_at":  new(big.Int).SetUint64(p.ExpiresAt),
			"allowances":  allowances,
		},
	}
}

var _ PayloadSigner = (*MethodSigner)(nil)

// MethodSigner picks the signing mode from the payload's method. auth_verify
// is answered with an EIP-712 signature over the Policy; every other method
// gets a personal signature over the payload's SigningBytes.
type MethodSigner struct {
	wallet sign.Wallet
	policy AuthPolicy
}

// NewMethodSigner binds wallet to the policy of one connection. A nil wallet
// is allowed; every Sign call then fails with ErrSignerUnavailable.
func NewMethodSigner(wallet sign.Wallet, policy AuthPolicy) *MethodSigner {
	return &MethodSigner{wallet: wallet, policy: policy}
}

func (s *MethodSigner) Policy() AuthPolicy {
	return s.policy
}

func (s *MethodSigner) Sign(ctx context.Context, payload Payload) (sign.Signature, error) {
	if s == nil || s.wallet == nil {
		return nil, ErrSignerUnavailable
	}

	var (
		sig sign.Signature
		err error
	)
	if Method(payload.Method) == AuthVerifyMethod {
		var req AuthVerifyRequest
		if err := payload.Params.Translate(&req); err != nil {
			return nil, fmt.Errorf("invalid auth_verify params: %w", err)
		}
		sig, err = s.wallet.SignTypedData(ctx, s.policy.TypedData(req.Challenge))
	} else {
		msg, mErr := payload.SigningBytes()
		if mErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, mErr)
		}
		sig, err = s.wallet.SignMessage(ctx, msg)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSigningRejected, err)
	}
	return sig, nil
}
