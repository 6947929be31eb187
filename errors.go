package netconn

import "fmt"

// ErrorKind classifies a NetError the way spec.md §7's error taxonomy does.
type ErrorKind int

const (
	ErrTooShort ErrorKind = iota
	ErrTooShortLength
	ErrOnlyTCP
	ErrBadCode
	ErrBadText
	ErrTimeout
	ErrReadTimeout
	ErrOverMsgSize
	ErrOverInbufferSize
	ErrOverOutbufferSize
	ErrSendFull
	ErrSendClosed
	ErrExtension
	ErrIO
	ErrWS
	ErrKCP
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTooShort:
		return "TooShort"
	case ErrTooShortLength:
		return "TooShortLength"
	case ErrOnlyTCP:
		return "OnlyTcp"
	case ErrBadCode:
		return "BadCode"
	case ErrBadText:
		return "BadText"
	case ErrTimeout:
		return "Timeout"
	case ErrReadTimeout:
		return "ReadTimeout"
	case ErrOverMsgSize:
		return "OverMsgSize"
	case ErrOverInbufferSize:
		return "OverInbufferSize"
	case ErrOverOutbufferSize:
		return "OverOutbufferSize"
	case ErrSendFull:
		return "SendFull"
	case ErrSendClosed:
		return "SendClosed"
	case ErrExtension:
		return "Extension"
	case ErrIO:
		return "Io"
	case ErrWS:
		return "Ws"
	case ErrKCP:
		return "Kcp"
	default:
		return "Unknown"
	}
}

// NetError is the error type returned across the package. It wraps an
// underlying cause (io errors, ws protocol errors, kcp errors) where one
// exists, and carries the rejected Command for SendFull/SendClosed.
type NetError struct {
	kind    ErrorKind
	msg     string
	cause   error
	command *Command
}

func newNetError(kind ErrorKind, msg string) *NetError {
	return &NetError{kind: kind, msg: msg}
}

func wrapNetError(kind ErrorKind, cause error) *NetError {
	return &NetError{kind: kind, cause: cause}
}

// Kind returns the error's taxonomy classification.
func (e *NetError) Kind() ErrorKind { return e.kind }

// Command returns the rejected outbound command for SendFull/SendClosed
// errors, and nil otherwise.
func (e *NetError) Command() *Command { return e.command }

func (e *NetError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("netconn: %s: %v", e.kind, e.cause)
	}
	if e.msg != "" {
		return fmt.Sprintf("netconn: %s: %s", e.kind, e.msg)
	}
	return fmt.Sprintf("netconn: %s", e.kind)
}

func (e *NetError) Unwrap() error { return e.cause }

var (
	ErrTooShortErr         = newNetError(ErrTooShort, "frame header declares length < 4")
	ErrBadCodeErr          = newNetError(ErrBadCode, "unrecognized opcode")
	ErrBadTextErr          = newNetError(ErrBadText, "payload is not valid utf-8")
	ErrOverMsgSizeErr      = newNetError(ErrOverMsgSize, "frame exceeds onemsg_max_size")
	ErrOverInbufferSizeErr = newNetError(ErrOverInbufferSize, "read buffer exceeds in_buffer_max")
	ErrReadTimeoutErr      = newNetError(ErrReadTimeout, "no readable progress within read_timeout")
	ErrTimeoutErr          = newNetError(ErrTimeout, "operation exceeded its deadline")
	ErrOnlyTCPErr          = newNetError(ErrOnlyTCP, "only tcp connections are supported here")

	// ErrAcceptTwice mirrors the reference's
	// NetError::Extension("can't accept twice"). No code path in this
	// package returns it: maybeAcceptStream.upgrade is idempotent.
	ErrAcceptTwice = newNetError(ErrExtension, "can't accept twice")
)

func ioErr(err error) *NetError {
	if err == nil {
		return nil
	}
	if ne, ok := err.(*NetError); ok {
		return ne
	}
	return wrapNetError(ErrIO, err)
}

func wsErr(err error) *NetError {
	if err == nil {
		return nil
	}
	if ne, ok := err.(*NetError); ok {
		return ne
	}
	return wrapNetError(ErrWS, err)
}

func kcpErr(err error) *NetError {
	if err == nil {
		return nil
	}
	if ne, ok := err.(*NetError); ok {
		return ne
	}
	return wrapNetError(ErrKCP, err)
}
