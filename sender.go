package netconn

import "math"

// Command is the unit carried over the sender/receiver channel.
type Command struct {
	Msg Message
}

// NetReceiver is the consumer side of the bounded sender channel; only the
// connection engine ever reads from it.
type NetReceiver <-chan Command

// netReceiver is the concrete, closable channel backing NetReceiver. The
// engine owns the only read end and closes it on exit so NetSender.Closed
// and IsClosed observe termination.
type netReceiver struct {
	ch     chan Command
	closed chan struct{}
}

// NetSender is the application-side handle used to enqueue outbound
// messages. Cloning is cheap (it shares the channel); the engine retains
// one clone for the connection's lifetime so the channel never closes out
// from under a handler that dropped its own copy.
type NetSender struct {
	ch    chan Command
	done  chan struct{}
	id    uint64
}

// maxQueueCapacity caps QueueSize the way the reference implementation
// clamps to usize::MAX >> 3 — here, to a value no real caller will hit but
// that keeps make(chan, n) from panicking on a hostile Settings.
const maxQueueCapacity = math.MaxInt32 >> 3

// newSender builds a sender/receiver pair with the given buffered capacity,
// clamped to maxQueueCapacity, tagged with a connection id.
func newSender(capacity int, id uint64) (NetSender, *netReceiver) {
	if capacity < 0 {
		capacity = 0
	}
	if capacity > maxQueueCapacity {
		capacity = maxQueueCapacity
	}
	ch := make(chan Command, capacity)
	done := make(chan struct{})
	return NetSender{ch: ch, done: done, id: id}, &netReceiver{ch: ch, closed: done}
}

// SendMessage enqueues msg without blocking. It returns ErrSendFull if the
// channel is at capacity, or ErrSendClosed if the engine has exited.
func (s NetSender) SendMessage(msg Message) error {
	select {
	case <-s.done:
		e := wrapNetError(ErrSendClosed, nil)
		e.command = &Command{Msg: msg}
		return e
	default:
	}
	select {
	case s.ch <- Command{Msg: msg}:
		return nil
	default:
		e := wrapNetError(ErrSendFull, nil)
		e.command = &Command{Msg: msg}
		return e
	}
}

// CloseWithReason enqueues a Close message carrying code and reason.
func (s NetSender) CloseWithReason(code CloseCode, reason string) error {
	return s.SendMessage(CloseMessage(code, reason))
}

// GetConnectionID returns the id of the connection this sender belongs to.
func (s NetSender) GetConnectionID() uint64 { return s.id }

// Closed returns a channel that closes once the engine has dropped its
// receiver — i.e. once the connection has terminated.
func (s NetSender) Closed() <-chan struct{} { return s.done }

// IsClosed reports whether the engine has already terminated.
func (s NetSender) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// close is called exactly once by the engine on exit; it unblocks Closed()
// and IsClosed() for every clone of the sender.
func (r *netReceiver) close() {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
}
