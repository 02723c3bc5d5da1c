// Package session implements the connection lifecycle of a wallet against
// the coordinator:
//
//	disconnected -> connecting -> authenticating -> connected
//
// Any step may end in error; Disconnect or a lost socket returns to
// disconnected. Authenticated calls are only possible in connected, and a
// lost connection is never re-established automatically.
package session
