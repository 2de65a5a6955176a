// CLAUDE:SUMMARY Wire-level contract for MCP over QUIC: ALPN, magic bytes, message cap, TLS and QUIC configs, typed connection errors.
// Package mcpquic carries MCP sessions over QUIC for server-to-server
// links. A connection is one TLS 1.3 QUIC connection negotiated on the
// mcp-quic-v1 ALPN; the client opens one bidirectional stream, sends the
// MCP1 preamble, and the stream then speaks the SDK's newline-delimited
// JSON-RPC in both directions.
package mcpquic

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPNProtocolMCP is the ALPN identifier both sides must negotiate.
	ALPNProtocolMCP = "mcp-quic-v1"

	// MagicBytesMCP is the stream preamble the client sends before any
	// JSON-RPC. It lets the server reject stray traffic (HTTP/3 probes,
	// port scans) before handing the stream to the protocol machinery.
	MagicBytesMCP = "MCP1"

	// MaxMessageSize bounds one JSON-RPC message on the wire. The
	// per-stream receive window is sized to it, so a peer cannot buffer
	// more than one oversized message before flow control stops it.
	MaxMessageSize = 10 * 1024 * 1024

	// DefaultIdleTimeout closes connections with no activity. Keepalives
	// hold healthy links open well below it.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultKeepAlive is the ping period on idle connections.
	DefaultKeepAlive = 30 * time.Second
)

// Application-level connection close codes.
const (
	ConnErrorNoError           quic.ApplicationErrorCode = 0x00
	ConnErrorInternal          quic.ApplicationErrorCode = 0x01
	ConnErrorUnsupportedALPN   quic.ApplicationErrorCode = 0x02
	ConnErrorProtocolViolation quic.ApplicationErrorCode = 0x03
)

// StreamErrorProtocolConfusion resets a stream whose peer did not speak
// the expected preamble.
const StreamErrorProtocolConfusion quic.StreamErrorCode = 0x01

// ErrInvalidMagicBytes is returned when a stream does not start with the
// MCP1 preamble.
var ErrInvalidMagicBytes = errors.New("mcpquic: invalid magic bytes")

// ErrUnsupportedALPN is returned when the peer negotiated a different
// application protocol.
var ErrUnsupportedALPN = errors.New("mcpquic: unsupported ALPN protocol")

// ErrConnectionClosed is returned from calls on a closed connection.
var ErrConnectionClosed = errors.New("mcpquic: connection closed")

// ConnectionError describes a failed connection with the peer address and
// the application close code.
type ConnectionError struct {
	RemoteAddr string
	Code       quic.ApplicationErrorCode
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcpquic: connection %s failed (code 0x%02x): %v", e.RemoteAddr, uint64(e.Code), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendMagicBytes writes the stream preamble.
func SendMagicBytes(w io.Writer) error {
	if _, err := io.WriteString(w, MagicBytesMCP); err != nil {
		return fmt.Errorf("mcpquic: send magic bytes: %w", err)
	}
	return nil
}

// ValidateMagicBytes reads and checks the stream preamble.
func ValidateMagicBytes(r io.Reader) error {
	buf := make([]byte, len(MagicBytesMCP))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("mcpquic: read magic bytes: %w", err)
	}
	if string(buf) != MagicBytesMCP {
		return fmt.Errorf("%w: got %q", ErrInvalidMagicBytes, buf)
	}
	return nil
}

// ProductionQUICConfig returns the QUIC tuning both sides use. 0-RTT
// stays off: replayable early data and mutating tools do not mix.
func ProductionQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:         DefaultIdleTimeout,
		KeepAlivePeriod:        DefaultKeepAlive,
		Allow0RTT:              false,
		MaxStreamReceiveWindow: MaxMessageSize,
	}
}

// SelfSignedTLSConfig generates an in-memory ECDSA certificate for
// localhost. Development and tests only; production loads real
// certificates with FileTLSConfig.
func SelfSignedTLSConfig() (*tls.Config, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("mcpquic: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("mcpquic: serial number: %w", err)
	}
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "passerelle-dev"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("mcpquic: create certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: priv}},
		NextProtos:   []string{ALPNProtocolMCP},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// FileTLSConfig loads a server certificate and key from PEM files.
func FileTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("mcpquic: load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocolMCP},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig returns the client-side TLS config. insecure skips
// server certificate verification, for dialing self-signed dev servers.
func ClientTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{ALPNProtocolMCP},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
	}
}
