package mcpquic

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/passerelle/idgen"
	"github.com/hazyhaar/passerelle/kit"
)

// Handler runs individual MCP-over-QUIC connections without owning a
// listener. Listener drives it; it is exported separately so a process
// multiplexing several ALPNs on one UDP socket can dispatch connections
// here itself.
type Handler struct {
	mcpServer *mcp.Server
	logger    *slog.Logger
	newID     idgen.Generator
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerIDGenerator sets a custom ID generator for session IDs.
func WithHandlerIDGenerator(gen idgen.Generator) HandlerOption {
	return func(h *Handler) { h.newID = gen }
}

// NewHandler creates an MCP connection handler.
func NewHandler(mcpSrv *mcp.Server, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		mcpServer: mcpSrv,
		logger:    logger,
		newID:     idgen.NanoID(8),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeConn handles one QUIC connection as one MCP session and blocks
// until the session ends. The connection must already have passed the
// ALPN check; ServeConn enforces the stream preamble.
func (h *Handler) ServeConn(ctx context.Context, conn *quic.Conn) {
	sessionID := "quic_" + h.newID()
	remote := conn.RemoteAddr().String()
	log := h.logger.With("session", sessionID, "remote", remote)

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		log.Error("mcpquic: no stream from peer", "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return
	}
	if err := ValidateMagicBytes(stream); err != nil {
		log.Error("mcpquic: preamble rejected", "error", err)
		stream.CancelWrite(StreamErrorProtocolConfusion)
		stream.CancelRead(StreamErrorProtocolConfusion)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid magic bytes")
		return
	}

	log.Info("mcpquic: session starting")

	// The audit middleware reads these for attribution; they ride the
	// session context into every tool handler.
	ctx = kit.WithTransport(ctx, "mcp_quic")
	ctx = kit.WithSessionID(ctx, sessionID)
	ctx = kit.WithRemoteAddr(ctx, remote)

	// The SDK owns the JSON-RPC loop from here. Wait returns when the
	// peer hangs up or ctx is cancelled.
	ss, err := h.mcpServer.Connect(ctx, &streamTransport{stream: stream, sessionID: sessionID}, nil)
	if err != nil {
		log.Error("mcpquic: session setup failed", "error", err)
		stream.Close()
		conn.CloseWithError(ConnErrorInternal, "connect failed")
		return
	}
	if err := ss.Wait(); err != nil {
		log.Debug("mcpquic: session closed with error", "error", err)
	}
	log.Info("mcpquic: session ended")
}

// Listener accepts MCP-over-QUIC connections and dispatches them to a
// shared MCP Server.
type Listener struct {
	listener *quic.Listener
	handler  *Handler
	logger   *slog.Logger
}

// NewListener binds a QUIC listener on addr. The TLS config must carry
// the mcp-quic-v1 ALPN; SelfSignedTLSConfig and FileTLSConfig both do.
func NewListener(addr string, tlsCfg *tls.Config, mcpSrv *mcp.Server, logger *slog.Logger, opts ...HandlerOption) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l, err := quic.ListenAddr(addr, tlsCfg, ProductionQUICConfig())
	if err != nil {
		return nil, err
	}
	logger.Info("mcpquic: listener ready", "addr", l.Addr().String())
	return &Listener{
		listener: l,
		handler:  NewHandler(mcpSrv, logger, opts...),
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Serve accepts connections until ctx is cancelled. Connections that
// negotiated a foreign ALPN are closed before any stream is read.
func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("mcpquic: accept failed", "error", err)
			continue
		}

		if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
			conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN: "+alpn)
			continue
		}

		go l.handler.ServeConn(ctx, conn)
	}
}

func (l *Listener) Close() error {
	return l.listener.Close()
}

// streamTransport exposes an accepted QUIC stream as an mcp.Transport.
// The SDK's IOTransport supplies the framing; taggedConn overlays the
// session ID, which the underlying connection reports as "".
type streamTransport struct {
	stream    *quic.Stream
	sessionID string
}

func (t *streamTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := (&mcp.IOTransport{
		Reader: io.NopCloser(t.stream),
		Writer: streamWriter{t.stream},
	}).Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &taggedConn{Connection: conn, id: t.sessionID}, nil
}

// taggedConn wraps an mcp.Connection with an explicit session ID.
type taggedConn struct {
	mcp.Connection
	id string
}

func (c *taggedConn) SessionID() string { return c.id }

// streamWriter is the write half of a bidirectional QUIC stream. Close
// sends FIN without touching the read side.
type streamWriter struct{ stream *quic.Stream }

func (w streamWriter) Write(p []byte) (int, error) { return w.stream.Write(p) }
func (w streamWriter) Close() error                { return w.stream.Close() }
