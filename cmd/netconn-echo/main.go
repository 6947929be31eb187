// Command netconn-echo is a minimal echo server for any one of netconn's
// three transports, chosen with -transport: it accepts connections, logs
// their lifecycle, and echoes every Text/Binary message back to the sender.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"netconn"
)

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	transport := flag.String("transport", "tcp", "tcp, ws, or kcp")
	metricsAddr := flag.String("metrics", "", "prometheus metrics listen address (disabled if empty)")
	maxConns := flag.Int("max-conns", 1024, "max concurrent connections")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	netconn.SetLogger(logger)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", *metricsAddr).Msg("metrics server listening")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	settings := netconn.DefaultSettings()
	settings.MaxConnections = *maxConns

	var ln *netconn.NetConn
	var err error
	switch *transport {
	case "tcp":
		ln, err = netconn.ListenTCP(*addr, settings)
	case "ws":
		ln, err = netconn.ListenWS(*addr, settings)
	case "kcp":
		ln, err = netconn.ListenKCP(*addr, settings)
	default:
		fmt.Fprintf(os.Stderr, "unknown -transport %q\n", *transport)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("listen failed")
	}

	logger.Info().Str("transport", *transport).Str("addr", *addr).Msg("netconn-echo listening")

	listenerHandler := &acceptHandler{logger: logger, settings: settings}
	if err := ln.RunHandler(context.Background(), func(sender netconn.NetSender) netconn.Handler {
		return listenerHandler
	}); err != nil {
		logger.Fatal().Err(err).Msg("listener exited")
	}
}

// acceptHandler is the listener-side handler: its only job is spawning a
// goroutine to run the echo handler over each accepted child.
type acceptHandler struct {
	netconn.NoopHandler
	logger   zerolog.Logger
	settings netconn.Settings
}

func (h *acceptHandler) OnAccept(ctx context.Context, child *netconn.NetConn) error {
	go func() {
		id := child.GetConnectionID()
		h.logger.Info().Uint64("conn_id", id).Str("remote", addrString(child)).Msg("accepted")
		err := child.RunHandler(ctx, func(sender netconn.NetSender) netconn.Handler {
			return &echoHandler{logger: h.logger, sender: sender}
		})
		if err != nil {
			h.logger.Warn().Uint64("conn_id", id).Err(err).Msg("connection ended with error")
		}
	}()
	return nil
}

func addrString(c *netconn.NetConn) string {
	if a := c.RemoteAddr(); a != nil {
		return a.String()
	}
	return "?"
}

// echoHandler implements the per-connection protocol: every Text/Binary
// message it receives is sent straight back.
type echoHandler struct {
	netconn.NoopHandler
	logger zerolog.Logger
	sender netconn.NetSender
}

func (h *echoHandler) OnOpen(ctx context.Context) error {
	h.logger.Debug().Uint64("conn_id", h.sender.GetConnectionID()).Msg("open")
	return nil
}

func (h *echoHandler) OnMessage(ctx context.Context, msg netconn.Message) error {
	return h.sender.SendMessage(msg)
}

func (h *echoHandler) OnClose(ctx context.Context, code netconn.CloseCode, reason string) {
	h.logger.Debug().Uint64("conn_id", h.sender.GetConnectionID()).
		Uint16("code", uint16(code)).Str("reason", reason).Msg("closed")
}
