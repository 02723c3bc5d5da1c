package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
)

// AuthContext holds the parameters announced in auth_request. Application
// doubles as the EIP-712 domain name of the challenge signature.
type AuthContext struct {
	Application string
	Scope       string
	// SessionKey is the delegated key. The zero address delegates to the
	// wallet itself.
	SessionKey common.Address
	// TTL is used when ExpiresAt is zero.
	TTL        time.Duration
	ExpiresAt  time.Time
	Allowances []rpc.Allowance
}

// policy freezes the context for one connection of wallet.
func (a AuthContext) policy(wallet common.Address, now time.Time) rpc.AuthPolicy {
	expires := a.ExpiresAt
	if expires.IsZero() {
		ttl := a.TTL
		if ttl <= 0 {
			ttl = DefaultSessionTTL
		}
		expires = now.Add(ttl)
	}
	sessionKey := a.SessionKey
	if sessionKey == (common.Address{}) {
		sessionKey = wallet
	}
	allowances := make([]rpc.Allowance, len(a.Allowances))
	copy(allowances, a.Allowances)

	return rpc.AuthPolicy{
		Application: a.Application,
		Scope:       a.Scope,
		Wallet:      wallet,
		SessionKey:  sessionKey,
		ExpiresAt:   uint64(expires.Unix()),
		Allowances:  allowances,
	}
}

// DefaultSessionTTL is the session key lifetime requested when the
// AuthContext leaves it open.
const DefaultSessionTTL = 24 * time.Hour

// JWTClaims mirrors the claims the coordinator puts into the session token.
type JWTClaims struct {
	Policy struct {
		Wallet      string          `json:"wallet"`
		SessionKey  string          `json:"session_key"`
		Scope       string          `json:"scope"`
		Application string          `json:"application"`
		Allowances  []rpc.Allowance `json:"allowance"`
		ExpiresAt   time.Time       `json:"expiration"`
	} `json:"policy"`
	jwt.RegisteredClaims
}

// Credential is the outcome of a successful auth_verify.
type Credential struct {
	Address    common.Address
	SessionKey common.Address
	JWT        string
	// ExpiresAt comes from the token when it carries an expiry, otherwise
	// from the announced policy.
	ExpiresAt time.Time
	Claims    *JWTClaims
}

// Expired reports whether the credential is past its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func newCredential(res rpc.AuthVerifyResponse, policy rpc.AuthPolicy) (*Credential, error) {
	cred := &Credential{
		Address:    policy.Wallet,
		SessionKey: policy.SessionKey,
		JWT:        res.JwtToken,
		ExpiresAt:  time.Unix(int64(policy.ExpiresAt), 0),
	}
	if res.Address != "" {
		if !common.IsHexAddress(res.Address) {
			return nil, fmt.Errorf("invalid address in auth_verify result: %q", res.Address)
		}
		addr := common.HexToAddress(res.Address)
		if addr != policy.Wallet {
			return nil, fmt.Errorf("auth_verify confirmed %s, expected %s", addr.Hex(), policy.Wallet.Hex())
		}
	}
	if res.SessionKey != "" && common.IsHexAddress(res.SessionKey) {
		cred.SessionKey = common.HexToAddress(res.SessionKey)
	}

	if strings.TrimSpace(res.JwtToken) == "" {
		return cred, nil
	}
	claims, err := ParseJWT(res.JwtToken)
	if err != nil {
		return nil, err
	}
	cred.Claims = claims
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}

// ParseJWT decodes the claims of a session token. The signature is not
// checked; the token is only ever presented back to its issuer.
func ParseJWT(token string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	return claims, nil
}
