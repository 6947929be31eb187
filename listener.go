package netconn

import (
	"context"
	"crypto/tls"
	"net"

	"netconn/internal/netmetrics"
)

// acceptFunc abstracts net.Listener.Accept so TCP and KCP listeners share
// one admission-control loop.
type acceptFunc func() (net.Conn, error)

// listenerCore runs the accept loop shared by every transport's listener:
// mint a connection id, enforce max_connections, and hand the winner to
// the handler's OnAccept.
type listenerCore struct {
	transport string
	accept    acceptFunc
	close     func() error
	addr      net.Addr
	settings  *Settings
	tlsCfg    *tls.Config
	online    onlineCount
	ids       *connectionIDMinter
}

func newListenerCore(transport string, accept acceptFunc, closeFn func() error, addr net.Addr, settings *Settings, tlsCfg *tls.Config) *listenerCore {
	return &listenerCore{
		transport: transport,
		accept:    accept,
		close:     closeFn,
		addr:      addr,
		settings:  settings,
		tlsCfg:    tlsCfg,
		online:    newOnlineCount(),
		ids:       newConnectionIDMinter(),
	}
}

// run accepts connections until ctx is cancelled or the socket is closed.
// onChild is invoked for every admitted connection; the admission-control
// rejection path never touches onChild, matching spec.md §4.6's "drop
// without surfacing to the handler".
func (l *listenerCore) run(ctx context.Context, onChild func(raw net.Conn, connID uint64, handle *onlineCountHandle)) error {
	defer l.close()

	// Accept blocks with no deadline, so ctx cancellation has to reach it
	// indirectly: closing the socket unblocks Accept() with an error the
	// loop below already treats as a clean shutdown when ctx is Done.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.close()
		case <-stopWatch:
		}
	}()

	for {
		raw, err := l.accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return ioErr(err)
		}

		if l.online.now() >= int64(l.settings.MaxConnections) {
			netmetrics.Rejected.WithLabelValues("max_connections").Inc()
			logger.Warn().Str("transport", l.transport).Msg("netconn: rejecting connection, max_connections reached")
			_ = raw.Close()
			continue
		}

		connID := l.ids.next()
		handle := l.online.acquire()
		netmetrics.Accepted.WithLabelValues(l.transport).Inc()
		netmetrics.OnlineConnections.Inc()
		onChild(raw, connID, handle)
	}
}
