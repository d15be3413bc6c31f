package conn

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coder/websocket"
)

// Connection abstracts one dialect's transport. Read returns one
// transport-level chunk (a full WebSocket message, or whatever a single
// TCP Read call yields); the caller is responsible for re-assembling
// wire frames out of however many chunks that takes.
type Connection interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context) ([]byte, error)
	Close() error
	RemoteAddr() string
}

// binaryPort is the fixed port the binary socket dialect listens on.
const binaryPort = "8090"

// websocketPath is the fixed path the text dialect's WebSocket endpoint
// is served under.
const websocketPath = "/fcsl"

// tcpConn implements Connection over a plain TCP stream (the binary
// dialect's own length-prefixed framing is handled entirely by
// wire.BinaryCodec; this layer just moves bytes).
type tcpConn struct {
	conn net.Conn
	addr string
}

func dialTCP(ctx context.Context, host string) (*tcpConn, error) {
	addr := net.JoinHostPort(host, binaryPort)
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", addr, err)
	}
	return &tcpConn{conn: c, addr: addr}, nil
}

func (t *tcpConn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	}
	_, err := t.conn.Write(data)
	return err
}

func (t *tcpConn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(deadline)
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 64*1024)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

func (t *tcpConn) RemoteAddr() string {
	return t.addr
}

// wsConn implements Connection over a text-dialect WebSocket.
type wsConn struct {
	conn *websocket.Conn
	addr string
}

func dialWebSocket(ctx context.Context, host string) (*wsConn, error) {
	url := fmt.Sprintf("wss://%s%s", host, websocketPath)
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	c.SetReadLimit(1 << 22) // 4 MB: the text dialect can multiplex several frames per message
	return &wsConn{conn: c, addr: host}, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.conn.CloseNow()
}

func (w *wsConn) RemoteAddr() string {
	return w.addr
}
