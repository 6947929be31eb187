package netconn

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"netconn/internal/netmetrics"
)

// connState is the Open/Closing/Closed state machine shared by every
// transport engine (spec.md §4.5).
type connState int

const (
	stateOpen connState = iota
	stateClosing
	stateClosed
)

// streamEngine runs the per-connection select loop for the two transports
// that share a plain net.Conn and the length-prefixed codec: TCP and KCP.
// WS gets its own engine because of the handshake states and frame format.
type streamEngine struct {
	conn     net.Conn
	settings *Settings
	handler  Handler
	sender   NetSender
	receiver *netReceiver
	connID   uint64
	wrapErr  func(error) *NetError

	state         connState
	readBuf       []byte
	writeBuf      []byte
	closeDeadline time.Time
}

func newStreamEngine(conn net.Conn, settings *Settings, handler Handler, sender NetSender, receiver *netReceiver, connID uint64, wrapErr func(error) *NetError) *streamEngine {
	return &streamEngine{
		conn:     conn,
		settings: settings,
		handler:  handler,
		sender:   sender,
		receiver: receiver,
		connID:   connID,
		wrapErr:  wrapErr,
		state:    stateOpen,
	}
}

// run drives the engine until it reaches a terminal state. The returned
// error is non-nil only for fatal conditions (spec.md §7); a clean local
// or remote close returns nil.
func (e *streamEngine) run(ctx context.Context) error {
	defer e.receiver.close()
	defer e.conn.Close()

	if err := e.handler.OnOpen(ctx); err != nil {
		return err
	}

	readCh := make(chan readResult, 1)
	go e.readLoop(ctx, readCh)

	readTimeout := time.NewTimer(e.settings.ReadTimeout)
	defer readTimeout.Stop()

	for {
		if e.state == stateClosed {
			return nil
		}

		var closeTimer <-chan time.Time
		if e.state == stateClosing {
			remaining := time.Until(e.closeDeadline)
			if remaining <= 0 {
				e.finishClosing()
				continue
			}
			t := time.NewTimer(remaining)
			defer t.Stop()
			closeTimer = t.C
		}

		// Per spec.md §4.5, Closing still reads and drops the sender queue
		// (dispatchOutbound silently discards everything, a repeated
		// Close/Shutdown included); only backpressure from a full writeBuf
		// closes this gate.
		var sendCh <-chan Command
		if len(e.writeBuf) < e.settings.OutBufferMax {
			sendCh = e.receiver.ch
		}

		var writeReady <-chan struct{}
		if len(e.writeBuf) > 0 {
			ready := make(chan struct{}, 1)
			ready <- struct{}{}
			writeReady = ready
		}

		select {
		case <-ctx.Done():
			return ioErr(ctx.Err())

		case res := <-readCh:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					if err := e.dispatchInbound(ctx, ShutdownMessage()); err != nil {
						return err
					}
					return nil
				}
				wrapped := e.wrapErr(res.err)
				netmetrics.Errors.WithLabelValues(wrapped.Kind().String()).Inc()
				return wrapped
			}
			readTimeout.Reset(e.settings.ReadTimeout)
			netmetrics.Bytes.WithLabelValues("in").Add(float64(len(res.data)))
			e.readBuf = append(e.readBuf, res.data...)
			if len(e.readBuf) > e.settings.InBufferMax {
				netmetrics.OversizeDrops.WithLabelValues("in_buffer_max").Inc()
				return ErrOverInbufferSizeErr
			}
			if err := e.drainInbound(ctx); err != nil {
				return err
			}
			go e.readLoop(ctx, readCh)

		case cmd, ok := <-sendCh:
			if !ok {
				continue
			}
			if err := e.dispatchOutbound(cmd.Msg); err != nil {
				return err
			}

		case <-writeReady:
			n, err := e.conn.Write(e.writeBuf)
			if err != nil {
				wrapped := e.wrapErr(err)
				netmetrics.Errors.WithLabelValues(wrapped.Kind().String()).Inc()
				return wrapped
			}
			netmetrics.Bytes.WithLabelValues("out").Add(float64(n))
			e.writeBuf = e.writeBuf[n:]
			if e.state == stateClosing && len(e.writeBuf) == 0 {
				e.finishClosing()
			}

		case <-closeTimer:
			e.finishClosing()

		case <-readTimeout.C:
			netmetrics.Errors.WithLabelValues(ErrReadTimeout.String()).Inc()
			return ErrReadTimeoutErr
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

func (e *streamEngine) readLoop(ctx context.Context, out chan<- readResult) {
	buf := make([]byte, 65536)
	n, err := e.conn.Read(buf)
	select {
	case out <- readResult{data: buf[:n], err: err}:
	case <-ctx.Done():
	}
}

// drainInbound decodes as many complete frames as are buffered.
func (e *streamEngine) drainInbound(ctx context.Context) error {
	for {
		msg, consumed, err := decodeMessage(e.readBuf, e.settings)
		if err != nil {
			if errors.Is(err, ErrOverMsgSizeErr) {
				netmetrics.OversizeDrops.WithLabelValues("onemsg_max_size").Inc()
			}
			return err
		}
		if consumed == 0 {
			return nil
		}
		e.readBuf = e.readBuf[consumed:]
		if err := e.dispatchInbound(ctx, *msg); err != nil {
			return err
		}
		if e.state == stateClosed {
			return nil
		}
	}
}

// dispatchInbound implements spec.md §4.4's inbound dispatch table.
func (e *streamEngine) dispatchInbound(ctx context.Context, msg Message) error {
	if !msg.IsShutdown() {
		netmetrics.Messages.WithLabelValues("in", msg.OpCode().String()).Inc()
	}
	switch msg.OpCode() {
	case OpText, OpBinary:
		return e.handler.OnMessage(ctx, msg)
	case OpPing:
		reply, err := e.handler.OnPing(ctx, msg.Binary())
		if err != nil {
			return err
		}
		if reply != nil {
			pong := PongMessage(reply)
			e.writeBuf = encodeMessage(e.writeBuf, pong, e.settings.IsRaw)
			netmetrics.Messages.WithLabelValues("out", OpPong.String()).Inc()
		}
		return nil
	case OpPong:
		return e.handler.OnPong(ctx, msg.Binary())
	case OpClose:
		e.handler.OnClose(ctx, msg.CloseCode(), msg.Reason())
		e.beginClosing()
		return nil
	default:
		if msg.IsShutdown() {
			return nil
		}
		return ErrBadCodeErr
	}
}

// dispatchOutbound implements spec.md §4.4's outbound dispatch table. Once
// Closing, everything enqueued on the sender is silently dropped — there is
// nothing left to encode a second close frame onto.
func (e *streamEngine) dispatchOutbound(msg Message) error {
	if e.state != stateOpen {
		return nil
	}
	switch {
	case msg.OpCode() == OpClose:
		netmetrics.Messages.WithLabelValues("out", OpClose.String()).Inc()
		e.writeBuf = encodeMessage(e.writeBuf, msg, e.settings.IsRaw)
		e.beginClosing()
	case msg.IsShutdown():
		shutdownClose := CloseMessage(CloseAway, "Shutdown")
		netmetrics.Messages.WithLabelValues("out", OpClose.String()).Inc()
		e.writeBuf = encodeMessage(e.writeBuf, shutdownClose, e.settings.IsRaw)
		e.beginClosing()
	default:
		netmetrics.Messages.WithLabelValues("out", msg.OpCode().String()).Inc()
		e.writeBuf = encodeMessage(e.writeBuf, msg, e.settings.IsRaw)
		if len(e.writeBuf) > e.settings.OutBufferMax {
			netmetrics.OversizeDrops.WithLabelValues("out_buffer_max").Inc()
			return ErrOverOutbufferSizeErr()
		}
	}
	return nil
}

// beginClosing transitions Open -> Closing, starting the closing_time
// countdown. The caller is responsible for queuing any close frame into
// writeBuf before calling this — a remote-initiated close has nothing
// further to encode.
func (e *streamEngine) beginClosing() {
	if e.state != stateOpen {
		return
	}
	e.state = stateClosing
	e.closeDeadline = time.Now().Add(e.settings.ClosingTime)
}

func (e *streamEngine) finishClosing() {
	e.state = stateClosed
}

// ErrOverOutbufferSizeErr builds the fatal error both engines return when
// encoding one outbound message pushes writeBuf past OutBufferMax. A
// writeBuf that only reaches the limit is not an error: it pauses the
// sender-side receive instead.
func ErrOverOutbufferSizeErr() *NetError {
	return newNetError(ErrOverOutbufferSize, "write buffer exceeds out_buffer_max")
}
