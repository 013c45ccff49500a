package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/chronologos/ttyrelay/internal/protocol"
)

type wsConn struct {
	c      *websocket.Conn
	remote string
}

// AcceptWebSocket upgrades an HTTP request into a device Conn.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (Conn, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Devices are not browsers and send no Origin worth checking.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	c.SetReadLimit(protocol.MaxPacketSize)
	return &wsConn{c: c, remote: r.RemoteAddr}, nil
}

// DialWebSocket connects to a relay's device endpoint, as a device would.
func DialWebSocket(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	c.SetReadLimit(protocol.MaxPacketSize)
	return &wsConn{c: c, remote: url}, nil
}

func (w *wsConn) ReadPacket(ctx context.Context) ([]byte, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, ErrTextFrame
	}
	return data, nil
}

func (w *wsConn) WritePacket(ctx context.Context, p []byte) error {
	return w.c.Write(ctx, websocket.MessageBinary, p)
}

// maxCloseReason is what fits in a close frame's 125-byte payload after the
// status code.
const maxCloseReason = 123

func (w *wsConn) Close(reason string) error {
	if len(reason) > maxCloseReason {
		reason = strings.ToValidUTF8(reason[:maxCloseReason], "")
	}
	return w.c.Close(websocket.StatusNormalClosure, reason)
}

func (w *wsConn) RemoteAddr() string { return w.remote }
