// Package netconn is a unified asynchronous networking library exposing one
// connection abstraction over three wire transports: raw TCP (optionally
// TLS-wrapped), WebSocket over TCP/TLS, and KCP (reliable UDP). An
// application composes a Handler that reacts to connection lifecycle events
// and a NetSender that enqueues outbound messages; the package drives the
// read/write loop, framing, handshake, flow control, and graceful shutdown
// for each transport.
//
// NetConn is the single entry point: construct one with DialTCP, ListenTCP,
// DialWS, ListenWS, DialKCP, or ListenKCP, then call RunHandler with a
// factory that builds a Handler from the NetSender the engine hands it.
package netconn

import "github.com/rs/zerolog"

// logger receives the listener's admission-control rejection warnings;
// TLS load failures, handshake failures and fatal engine errors are
// returned to the caller and not logged. It is silent by default; call
// SetLogger to attach a real sink.
var logger = zerolog.Nop()

// SetLogger attaches the logger the engine reports lifecycle events to.
func SetLogger(l zerolog.Logger) {
	logger = l
}
