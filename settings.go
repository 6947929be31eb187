package netconn

import "time"

// Settings is the bounded-resource configuration snapshot every connection
// carries. Zero-valued Settings is never used directly; construct one with
// DefaultSettings and override the fields that matter.
//
// Every timeout field is a time.Duration rather than a bare millisecond
// count: one sibling of the reference implementation this package is
// ported from called as_micros() on a field documented and used
// everywhere else as milliseconds. Typing these as time.Duration (built
// from a millisecond count in DefaultSettings) makes that unit mismatch
// impossible to reintroduce.
type Settings struct {
	// MaxConnections bounds the number of concurrently open children a
	// listener will admit before it starts rejecting accepted sockets.
	MaxConnections int
	// QueueSize is the sender-channel capacity (clamped to a sane ceiling
	// in newSender).
	QueueSize int
	// InBufferMax bounds the read buffer; exceeding it is fatal.
	InBufferMax int
	// OutBufferMax bounds the write buffer; reaching it pauses the
	// sender-side receive (backpressure). An outbound message whose
	// encoding pushes the buffer past it is fatal (ErrOverOutbufferSize).
	OutBufferMax int
	// OnemsgMaxSize bounds a single length-prefixed frame's total length,
	// the 4-byte header included.
	OnemsgMaxSize int
	// ClosingTime is the max time given to drain the write buffer once a
	// close has been initiated.
	ClosingTime time.Duration
	// ConnectTimeout bounds a dial.
	ConnectTimeout time.Duration
	// ShakeTimeout bounds the WebSocket HTTP handshake.
	ShakeTimeout time.Duration
	// ReadTimeout is the max silence tolerated on an open connection
	// before it is aborted with ErrReadTimeout.
	ReadTimeout time.Duration
	// IsRaw switches the TCP/KCP codec into header-less pass-through mode.
	IsRaw bool
	// Domain, if set, both requests TLS on a TCP or KCP dial and validates
	// the SNI name presented by the remote server. DialWS does not read
	// it: TLS there follows the URL scheme and the URL's host name.
	Domain string
	// Cert and Key are PEM-encoded certificate chain and private key.
	// When both are set a listener requires TLS for every accepted
	// connection.
	Cert string
	Key  string
}

// DefaultSettings returns the spec-mandated defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxConnections: 1024,
		QueueSize:      10,
		InBufferMax:    10 * 1024 * 1024,
		OutBufferMax:   10 * 1024 * 1024,
		OnemsgMaxSize:  65535,
		ClosingTime:    1000 * time.Millisecond,
		ConnectTimeout: 30000 * time.Millisecond,
		ShakeTimeout:   30000 * time.Millisecond,
		ReadTimeout:    60000 * time.Millisecond,
		IsRaw:          false,
	}
}

// hasTLS reports whether cert+key are both configured, i.e. a listener
// built from these settings requires TLS.
func (s Settings) hasTLS() bool {
	return s.Cert != "" && s.Key != ""
}
