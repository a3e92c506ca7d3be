package printer

import "errors"

// ErrNoCommonName is returned by identity probing when the device certificate
// carries no subject common name.
var ErrNoCommonName = errors.New("device certificate has no common name")

// ErrConnectTimeout is returned when the device accepts the transport
// handshake but never reports status within the connect window.
var ErrConnectTimeout = errors.New("timeout waiting for first status report")

// ErrReplyTimeout is returned when no reply is received before the timeout.
var ErrReplyTimeout = errors.New("timeout waiting for reply")

// ErrCallPending is returned when a reply-awaiting call is issued while a
// previous one has not drained its reply yet.
var ErrCallPending = errors.New("another call is awaiting a reply")

// ErrSessionClosed is returned to waiters unblocked by a disconnect.
var ErrSessionClosed = errors.New("session closed")
