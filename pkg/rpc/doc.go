// Package rpc implements the client side of the ClearNode RPC protocol.
//
// Messages travel as JSON arrays over a WebSocket:
//
//	{"req":[request_id, method, params, timestamp], "sig":["0x..."]}
//	{"res":[request_id, method, result, timestamp], "sig":["0x..."]}
//
// A Dialer owns the socket and correlates responses with pending calls by
// request id. Frames that match no pending call are delivered as events.
// Client builds on a Dialer: it mints request ids, signs every payload
// through a PayloadSigner, converts "error" results into *RemoteError and
// dispatches events to subscribers.
//
// MethodSigner selects the signing mode per method. auth_verify is signed as
// EIP-712 typed data over the AuthPolicy announced in auth_request; every
// other method is signed as a raw message over the payload's canonical JSON.
package rpc
