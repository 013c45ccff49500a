package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/chronologos/ttyrelay/internal/auth"
)

// HandshakeTimeout bounds how long a native device may take to announce
// its pairing token.
const HandshakeTimeout = 10 * time.Second

// Handler receives an authenticated native device. It owns c and runs for
// the life of the connection.
type Handler func(ctx context.Context, kind Kind, token string, c Conn)

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:    30 * time.Second,
		KeepAlivePeriod:   10 * time.Second,
		InitialPacketSize: 1200, // survives 1280-byte tunnel MTUs
	}
}

// NativeListener accepts native device agents on QUIC and, on the same port
// number, TLS over TCP.
//
// The first frame on the stream is the hello: the pairing token, prefixed
// by a 32-byte MAC over the TLS exporter when a device secret is set.
type NativeListener struct {
	tr     *quic.Transport
	ql     *quic.Listener
	tl     net.Listener
	port   int
	secret []byte
	log    *slog.Logger

	closeOnce sync.Once
}

// ListenNative binds addr for both transports. An empty secret disables
// the MAC check.
func ListenNative(addr string, cert tls.Certificate, secret []byte, log *slog.Logger) (*NativeListener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("native listen address %q: %w", addr, err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	ql, err := tr.Listen(ServerTLSConfig(cert), quicConfig())
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("QUIC listen: %w", err)
	}

	port := udpConn.LocalAddr().(*net.UDPAddr).Port
	tl, err := tls.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)), ServerTLSConfig(cert))
	if err != nil {
		ql.Close()
		tr.Close()
		return nil, fmt.Errorf("TLS listen: %w", err)
	}

	return &NativeListener{tr: tr, ql: ql, tl: tl, port: port, secret: secret, log: log}, nil
}

// Port returns the bound port, shared by UDP and TCP.
func (l *NativeListener) Port() int { return l.port }

// Serve accepts devices until ctx ends or a listener fails.
func (l *NativeListener) Serve(ctx context.Context, handle Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		l.Close()
		return nil
	})
	g.Go(func() error {
		for {
			qconn, err := l.ql.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept QUIC connection: %w", err)
			}
			go l.serveQUIC(ctx, qconn, handle)
		}
	})
	g.Go(func() error {
		for {
			c, err := l.tl.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept TLS connection: %w", err)
			}
			go l.serveTLS(ctx, c.(*tls.Conn), handle)
		}
	})
	return g.Wait()
}

func (l *NativeListener) serveQUIC(ctx context.Context, qconn *quic.Conn, handle Handler) {
	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	remote := qconn.RemoteAddr().String()
	s, err := qconn.AcceptStream(hctx)
	if err != nil {
		l.log.Debug("device opened no stream", "remote", remote, "err", err)
		qconn.CloseWithError(1, "no stream")
		return
	}
	conn := &streamConn{
		s:      s,
		remote: remote,
		close: func(reason string) error {
			s.CancelRead(0)
			s.Close()
			return qconn.CloseWithError(0, reason)
		},
	}
	l.handshake(ctx, hctx, KindQUIC, conn, qconn.ConnectionState().TLS, handle)
}

func (l *NativeListener) serveTLS(ctx context.Context, tc *tls.Conn, handle Handler) {
	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	conn := &streamConn{
		s:      tc,
		remote: tc.RemoteAddr().String(),
		close:  func(string) error { return tc.Close() },
	}
	if err := tc.HandshakeContext(hctx); err != nil {
		l.log.Debug("TLS handshake failed", "remote", conn.remote, "err", err)
		conn.Close("")
		return
	}
	l.handshake(ctx, hctx, KindTLS, conn, tc.ConnectionState(), handle)
}

func (l *NativeListener) handshake(ctx, hctx context.Context, kind Kind, conn *streamConn, state tls.ConnectionState, handle Handler) {
	hello, err := conn.ReadPacket(hctx)
	if err != nil {
		l.log.Debug("device sent no hello", "transport", kind, "remote", conn.remote, "err", err)
		conn.Close("no hello")
		return
	}
	token, err := l.verifyHello(hello, state)
	if err != nil {
		l.log.Warn("device rejected", "transport", kind, "remote", conn.remote, "err", err)
		conn.Close("authentication failed")
		return
	}
	// The deadline hook armed by ReadPacket is gone; clear any leftover.
	conn.s.SetReadDeadline(time.Time{})
	handle(ctx, kind, token, conn)
}

func (l *NativeListener) verifyHello(hello []byte, state tls.ConnectionState) (string, error) {
	if len(l.secret) == 0 {
		return string(hello), nil
	}
	if len(hello) < auth.MACSize {
		return "", fmt.Errorf("%w: hello too short", ErrAuthFailed)
	}
	material, err := state.ExportKeyingMaterial(exporterLabel, nil, 32)
	if err != nil {
		return "", fmt.Errorf("export keying material: %w", err)
	}
	if !auth.VerifyDeviceMAC(l.secret, material, hello[:auth.MACSize]) {
		return "", ErrAuthFailed
	}
	return string(hello[auth.MACSize:]), nil
}

// Close stops both listeners. QUIC devices share the listener's transport
// and are dropped with it; TLS devices stay connected.
func (l *NativeListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.tl.Close()
		l.ql.Close()
		err = l.tr.Close()
	})
	return err
}

// --- Device side ---

// DialQUIC connects to a native listener over QUIC and announces token.
func DialQUIC(ctx context.Context, addr, token string, secret []byte) (Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}

	tr := &quic.Transport{Conn: udpConn}
	qconn, err := tr.Dial(ctx, udpAddr, ClientTLSConfig(), quicConfig())
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("QUIC dial: %w", err)
	}
	s, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		qconn.CloseWithError(1, "open stream")
		tr.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	conn := &streamConn{
		s:      s,
		remote: addr,
		close: func(reason string) error {
			s.Close()
			qconn.CloseWithError(0, reason)
			return tr.Close()
		},
	}
	if err := sendHello(ctx, conn, token, secret, qconn.ConnectionState().TLS); err != nil {
		conn.Close("hello failed")
		return nil, err
	}
	return conn, nil
}

// DialTLS connects to a native listener over TLS and announces token.
func DialTLS(ctx context.Context, addr, token string, secret []byte) (Conn, error) {
	d := &tls.Dialer{Config: ClientTLSConfig()}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("TLS dial: %w", err)
	}
	tc := c.(*tls.Conn)
	conn := &streamConn{
		s:      tc,
		remote: addr,
		close:  func(string) error { return tc.Close() },
	}
	if err := sendHello(ctx, conn, token, secret, tc.ConnectionState()); err != nil {
		conn.Close("")
		return nil, err
	}
	return conn, nil
}

func sendHello(ctx context.Context, conn *streamConn, token string, secret []byte, state tls.ConnectionState) error {
	hello := []byte(token)
	if len(secret) > 0 {
		material, err := state.ExportKeyingMaterial(exporterLabel, nil, 32)
		if err != nil {
			return fmt.Errorf("export keying material: %w", err)
		}
		mac := auth.ComputeDeviceMAC(secret, material)
		hello = append(mac[:], hello...)
	}
	if err := conn.WritePacket(ctx, hello); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}
	return nil
}
