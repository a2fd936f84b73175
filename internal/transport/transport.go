// Package transport implements the two connection flavors a Session can
// sit on top of: a plain TCP socket, and a TLS stream either established
// up front (implicit TLS) or produced by upgrading an existing plain
// socket in place (STARTTLS).
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Transport is the abstract byte-duplex a Session's Response Monitor reads
// from and a Session's Command Layer writes to.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// Close tears down the connection. force destroys it immediately;
	// !force performs an orderly shutdown (half-close the write side
	// where the underlying socket supports it).
	Close(force bool) error

	// Secure reports whether this transport is a TLS stream.
	Secure() bool
}

// Plain is a TCP transport (RFC 5321's usual unencrypted stream, and the
// stream STARTTLS upgrades in place).
type Plain struct {
	conn net.Conn
}

// Dial opens a TCP connection to host:port. host is trimmed before use.
func Dial(ctx context.Context, host string, port int) (*Plain, error) {
	addr := net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port))
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Plain{conn: c}, nil
}

func (p *Plain) Read(b []byte) (int, error)  { return p.conn.Read(b) }
func (p *Plain) Write(b []byte) (int, error) { return p.conn.Write(b) }
func (p *Plain) Secure() bool                { return false }

func (p *Plain) Close(force bool) error {
	if !force {
		if cw, ok := p.conn.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}
	return p.conn.Close()
}

// Conn exposes the underlying net.Conn, needed to wrap it for an in-place
// STARTTLS upgrade.
func (p *Plain) Conn() net.Conn { return p.conn }

// TLS is an encrypted transport, either dialed directly (implicit TLS,
// e.g. SMTPS on port 465) or produced by Upgrade (STARTTLS on an existing
// Plain transport).
type TLS struct {
	conn *tls.Conn
}

// DialImplicit establishes a TLS connection from scratch. config may be
// nil, meaning "use Go's default trust store, no client certificate."
func DialImplicit(ctx context.Context, host string, port int, config *tls.Config) (*TLS, error) {
	plain, err := Dial(ctx, host, port)
	if err != nil {
		return nil, err
	}
	return wrapHandshake(ctx, plain.conn, host, config)
}

// Upgrade wraps an existing Plain transport's net.Conn with TLS, in place,
// for STARTTLS. The Plain is consumed; the caller should replace its
// reference to it with the returned *TLS.
func Upgrade(ctx context.Context, plain *Plain, host string, config *tls.Config) (*TLS, error) {
	return wrapHandshake(ctx, plain.conn, host, config)
}

func wrapHandshake(ctx context.Context, nc net.Conn, host string, config *tls.Config) (*TLS, error) {
	cfg := config
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = strings.TrimSpace(host)
	}

	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("transport: TLS handshake: %w", err)
	}
	return &TLS{conn: tc}, nil
}

func (t *TLS) Read(b []byte) (int, error)  { return t.conn.Read(b) }
func (t *TLS) Write(b []byte) (int, error) { return t.conn.Write(b) }
func (t *TLS) Secure() bool                { return true }

func (t *TLS) Close(force bool) error {
	if !force {
		t.conn.CloseWrite()
	}
	return t.conn.Close()
}

// ConnectionState exposes the negotiated TLS state, e.g. for peer
// certificate inspection.
func (t *TLS) ConnectionState() tls.ConnectionState {
	return t.conn.ConnectionState()
}
