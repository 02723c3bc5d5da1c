package rpc

import (
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
)

// Request is an outbound frame: {"req": payload, "sig": [...]}.
type Request struct {
	Req Payload          `json:"req"`
	Sig []sign.Signature `json:"sig"`
}

func NewRequest(payload Payload, sig ...sign.Signature) Request {
	if sig == nil {
		sig = []sign.Signature{}
	}
	return Request{Req: payload, Sig: sig}
}

// Response is an inbound frame: {"res": payload, "sig": [...]}. Unsolicited
// pushes use the same shape.
type Response struct {
	Res Payload          `json:"res"`
	Sig []sign.Signature `json:"sig"`
}

func NewResponse(payload Payload, sig ...sign.Signature) Response {
	return Response{Res: payload, Sig: sig}
}

// NewErrorResponse builds the coordinator's error wrapper for requestID.
func NewErrorResponse(requestID uint64, errMsg string) Response {
	return NewResponse(NewPayload(requestID, ErrorMethod.String(), NewErrorParams(errMsg)))
}

// Error returns a *RemoteError when the frame is the error wrapper.
func (r Response) Error() error {
	if r.Res.Method != ErrorMethod.String() {
		return nil
	}
	msg, _ := r.Res.Params.ErrorMessage()
	return &RemoteError{RequestID: r.Res.RequestID, Message: msg}
}
