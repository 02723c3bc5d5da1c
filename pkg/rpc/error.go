package rpc

import (
	"encoding/json"
	"fmt"
)

const errorParamKey = "error"

// Failure kinds surfaced to callers. Match them with errors.Is.
var (
	ErrPreconditionFailed   = fmt.Errorf("precondition failed")
	ErrSignerUnavailable    = fmt.Errorf("signer unavailable")
	ErrSigningRejected      = fmt.Errorf("signing rejected")
	ErrNotConnected         = fmt.Errorf("not connected")
	ErrConnectionLost       = fmt.Errorf("connection lost")
	ErrCallTimeout          = fmt.Errorf("call timed out")
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
)

// Transport errors.
var (
	ErrAlreadyConnected   = fmt.Errorf("already connected")
	ErrNilRequest         = fmt.Errorf("nil request")
	ErrDuplicateRequestID = fmt.Errorf("request id already in flight")
	ErrMarshalingRequest  = fmt.Errorf("error marshaling request")
	ErrSendingRequest     = fmt.Errorf("error sending request")
	ErrDialingWebsocket   = fmt.Errorf("error dialing websocket server")
	ErrReadingMessage     = fmt.Errorf("error reading message")
	ErrSendingPing        = fmt.Errorf("error sending ping")
	ErrUnexpectedResponse = fmt.Errorf("unexpected response method")
)

// RemoteError is an application error reported by the coordinator through
// the "error" result wrapper.
type RemoteError struct {
	RequestID uint64
	Method    Method
	Message   string
}

func (e *RemoteError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("remote error on %s: %s", e.Method, e.Message)
	}
	return "remote error: " + e.Message
}

// NewErrorParams returns {"error": errMsg}.
func NewErrorParams(errMsg string) Params {
	raw, _ := json.Marshal(errMsg)
	return Params{errorParamKey: raw}
}
