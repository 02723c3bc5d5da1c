package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Payload is the body of every frame. On the wire it is the array
// [RequestID, Method, Params, Timestamp].
type Payload struct {
	RequestID uint64
	Method    string
	Params    Params
	// Timestamp is Unix milliseconds at creation time.
	Timestamp uint64
}

// NewPayload stamps a payload with the current time. Nil params become an
// empty object so the wire form is always {}.
func NewPayload(id uint64, method string, params Params) Payload {
	if params == nil {
		params = Params{}
	}
	return Payload{
		RequestID: id,
		Method:    method,
		Params:    params,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
}

func (p Payload) MarshalJSON() ([]byte, error) {
	params := p.Params
	if params == nil {
		params = Params{}
	}
	return json.Marshal([]any{p.RequestID, p.Method, params, p.Timestamp})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("payload is not an array: %w", err)
	}
	if len(raw) != 4 {
		return errors.New("invalid payload: expected 4 elements in array")
	}

	if err := json.Unmarshal(raw[0], &p.RequestID); err != nil {
		return fmt.Errorf("invalid request_id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Method); err != nil {
		return fmt.Errorf("invalid method: %w", err)
	}
	if err := json.Unmarshal(raw[2], &p.Params); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := json.Unmarshal(raw[3], &p.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	return nil
}

// SigningBytes returns the exact bytes a raw-message signature covers: the
// compact JSON array of the payload. Params keys are emitted in sorted order
// and decimal amounts as strings, so the coordinator can rebuild the same
// sequence from the frame it receives.
func (p Payload) SigningBytes() ([]byte, error) {
	return json.Marshal(p)
}

// Params holds method parameters or results keyed by field name.
type Params map[string]json.RawMessage

// NewParams converts any JSON-encodable struct or map into Params.
func NewParams(v any) (Params, error) {
	if v == nil {
		return Params{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error marshalling params: %w", err)
	}
	var params Params
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("error unmarshalling params: %w", err)
	}
	if params == nil {
		params = Params{}
	}
	return params, nil
}

// Translate decodes the params into v, typically a pointer to one of the
// response records in api.go.
func (p Params) Translate(v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("error marshalling params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error unmarshalling params: %w", err)
	}
	return nil
}

// ErrorMessage returns the message stored under the error key, if any.
func (p Params) ErrorMessage() (string, bool) {
	raw, ok := p[errorParamKey]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return string(raw), true
	}
	return msg, true
}
