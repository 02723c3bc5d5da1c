package rpc

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Version is the app session protocol version.
type Version string

const (
	VersionNitroRPCv0_2 Version = "NitroRPC/0.2"
	VersionNitroRPCv0_4 Version = "NitroRPC/0.4"
)

// Method is an RPC method name.
type Method string

const (
	PingMethod              Method = "ping"
	PongMethod              Method = "pong"
	ErrorMethod             Method = "error"
	GetConfigMethod         Method = "get_config"
	GetAssetsMethod         Method = "get_assets"
	GetAppSessionsMethod    Method = "get_app_sessions"
	GetLedgerBalancesMethod Method = "get_ledger_balances"
	AuthRequestMethod       Method = "auth_request"
	AuthChallengeMethod     Method = "auth_challenge"
	AuthVerifyMethod        Method = "auth_verify"
	TransferMethod          Method = "transfer"
	CreateAppSessionMethod  Method = "create_app_session"
	SubmitAppStateMethod    Method = "submit_app_state"
	CloseAppSessionMethod   Method = "close_app_session"
	MessageMethod           Method = "message"
)

func (m Method) String() string {
	return string(m)
}

// responseMethods lists methods whose successful result arrives under a
// different name than the request.
var responseMethods = map[Method]Method{
	PingMethod:        PongMethod,
	AuthRequestMethod: AuthChallengeMethod,
}

// ExpectedResponseMethod returns the method name a successful result for m carries.
func ExpectedResponseMethod(m Method) Method {
	if res, ok := responseMethods[m]; ok {
		return res
	}
	return m
}

// Event is the normalized name of an unsolicited server push.
type Event string

const (
	BalanceUpdateEvent    Event = "bu"
	ChannelUpdateEvent    Event = "cu"
	TransferEvent         Event = "tr"
	AppSessionUpdateEvent Event = "asu"
)

func (e Event) String() string {
	return string(e)
}

var eventAliases = map[string]Event{
	"bu":                 BalanceUpdateEvent,
	"balance_update":     BalanceUpdateEvent,
	"balanceupdate":      BalanceUpdateEvent,
	"cu":                 ChannelUpdateEvent,
	"channel_update":     ChannelUpdateEvent,
	"channelupdate":      ChannelUpdateEvent,
	"tr":                 TransferEvent,
	"transfer_update":    TransferEvent,
	"asu":                AppSessionUpdateEvent,
	"app_session_update": AppSessionUpdateEvent,
	"appsessionupdate":   AppSessionUpdateEvent,
	"session_update":     AppSessionUpdateEvent,
	"sessionupdate":      AppSessionUpdateEvent,
}

// NormalizeEvent maps the short, snake and camel case spellings of a push
// method onto one Event. Unknown names are returned lower-cased.
func NormalizeEvent(method string) Event {
	key := strings.ToLower(strings.TrimSpace(method))
	if ev, ok := eventAliases[key]; ok {
		return ev
	}
	return Event(key)
}

// RequestParams is implemented by every request record. The method it
// returns tags the record on the wire.
type RequestParams interface {
	Method() Method
}

type PingRequest struct{}

func (PingRequest) Method() Method { return PingMethod }

type GetConfigRequest struct{}

func (GetConfigRequest) Method() Method { return GetConfigMethod }

type GetConfigResponse struct {
	BrokerAddress string        `json:"broker_address"`
	Networks      []NetworkInfo `json:"networks"`
}

type NetworkInfo struct {
	ChainID            uint64 `json:"chain_id"`
	Name               string `json:"name"`
	CustodyAddress     string `json:"custody_address"`
	AdjudicatorAddress string `json:"adjudicator_address"`
}

type GetAssetsRequest struct {
	ChainID *uint64 `json:"chain_id,omitempty"`
}

func (GetAssetsRequest) Method() Method { return GetAssetsMethod }

type GetAssetsResponse struct {
	Assets []Asset `json:"assets"`
}

type Asset struct {
	Token    string `json:"token"`
	ChainID  uint64 `json:"chain_id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type AuthRequestRequest struct {
	Address     string      `json:"address"`
	SessionKey  string      `json:"session_key"`
	Application string      `json:"application"`
	Allowances  []Allowance `json:"allowances"`
	ExpiresAt   uint64      `json:"expires_at"`
	Scope       string      `json:"scope"`
}

func (AuthRequestRequest) Method() Method { return AuthRequestMethod }

type Allowance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type AuthRequestResponse struct {
	ChallengeMessage string `json:"challenge_message"`
}

type AuthVerifyRequest struct {
	Challenge string `json:"challenge"`
}

func (AuthVerifyRequest) Method() Method { return AuthVerifyMethod }

type AuthVerifyResponse struct {
	Address    string `json:"address"`
	SessionKey string `json:"session_key"`
	JwtToken   string `json:"jwt_token"`
	Success    bool   `json:"success"`
}

type GetLedgerBalancesRequest struct {
	AccountID string `json:"account_id,omitempty"`
}

func (GetLedgerBalancesRequest) Method() Method { return GetLedgerBalancesMethod }

type GetLedgerBalancesResponse struct {
	LedgerBalances []LedgerBalance `json:"ledger_balances"`
}

// LedgerBalance is one asset's off-chain balance as reported by the
// coordinator. Amount is the available part.
type LedgerBalance struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Locked decimal.Decimal `json:"locked,omitzero"`
}

type GetAppSessionsRequest struct {
	Participant string `json:"participant,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (GetAppSessionsRequest) Method() Method { return GetAppSessionsMethod }

type GetAppSessionsResponse struct {
	AppSessions []AppSession `json:"app_sessions"`
}

type AppSession struct {
	AppSessionID       string   `json:"app_session_id"`
	Application        string   `json:"application"`
	Status             string   `json:"status"`
	ParticipantWallets []string `json:"participants"`
	SessionData        string   `json:"session_data,omitempty"`
	Protocol           Version  `json:"protocol"`
	Challenge          uint64   `json:"challenge"`
	Weights            []int64  `json:"weights"`
	Quorum             uint64   `json:"quorum"`
	Version            uint64   `json:"version"`
	Nonce              uint64   `json:"nonce"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

type AppDefinition struct {
	Application        string   `json:"application"`
	Protocol           Version  `json:"protocol"`
	ParticipantWallets []string `json:"participants"`
	Weights            []int64  `json:"weights"`
	Quorum             uint64   `json:"quorum"`
	Challenge          uint64   `json:"challenge"`
	Nonce              uint64   `json:"nonce"`
}

type AppAllocation struct {
	Participant string          `json:"participant"`
	AssetSymbol string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

type CreateAppSessionRequest struct {
	Definition  AppDefinition   `json:"definition"`
	Allocations []AppAllocation `json:"allocations"`
	SessionData *string         `json:"session_data,omitempty"`
}

func (CreateAppSessionRequest) Method() Method { return CreateAppSessionMethod }

type AppSessionIntent string

const (
	AppSessionIntentOperate  AppSessionIntent = "operate"
	AppSessionIntentDeposit  AppSessionIntent = "deposit"
	AppSessionIntentWithdraw AppSessionIntent = "withdraw"
)

type SubmitAppStateRequest struct {
	AppSessionID string           `json:"app_session_id"`
	Intent       AppSessionIntent `json:"intent"`
	Version      uint64           `json:"version"`
	Allocations  []AppAllocation  `json:"allocations"`
	SessionData  *string          `json:"session_data,omitempty"`
}

func (SubmitAppStateRequest) Method() Method { return SubmitAppStateMethod }

type CloseAppSessionRequest struct {
	AppSessionID string          `json:"app_session_id"`
	Allocations  []AppAllocation `json:"allocations"`
	SessionData  *string         `json:"session_data,omitempty"`
}

func (CloseAppSessionRequest) Method() Method { return CloseAppSessionMethod }

type TransferRequest struct {
	Destination        string               `json:"destination,omitempty"`
	DestinationUserTag string               `json:"destination_user_tag,omitempty"`
	Allocations        []TransferAllocation `json:"allocations"`
}

func (TransferRequest) Method() Method { return TransferMethod }

type TransferAllocation struct {
	AssetSymbol string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

type TransferResponse struct {
	Transactions []LedgerTransaction `json:"transactions"`
}

type LedgerTransaction struct {
	ID          uint64          `json:"id"`
	TxType      string          `json:"tx_type"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   string          `json:"created_at"`
}

// MessageRequest relays an application message to the other participants
// of an app session.
type MessageRequest struct {
	AppSessionID string          `json:"app_session_id"`
	Message      json.RawMessage `json:"message"`
}

func (MessageRequest) Method() Method { return MessageMethod }

type BalanceUpdateNotification struct {
	BalanceUpdates []LedgerBalance `json:"balance_updates"`
}

type AppSessionUpdateNotification struct {
	AppSession             AppSession      `json:"app_session"`
	ParticipantAllocations []AppAllocation `json:"participant_allocations"`
}

type TransferNotification struct {
	Transactions []LedgerTransaction `json:"transactions"`
}

type ChannelUpdateNotification struct {
	ChannelID   string          `json:"channel_id"`
	Participant string          `json:"participant"`
	Status      string          `json:"status"`
	Token       string          `json:"token"`
	ChainID     uint64          `json:"chain_id"`
	Amount      decimal.Decimal `json:"amount"`
	Version     uint64          `json:"version"`
}
