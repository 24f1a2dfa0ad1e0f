package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcpchat/internal/transport"
)

type fakeAttacher struct {
	mu     sync.Mutex
	conns  []transport.Conn
	refuse bool
}

func (f *fakeAttacher) Attach(c transport.Conn) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		_ = c.Close()
		return 0
	}
	f.conns = append(f.conns, c)
	return uint64(len(f.conns))
}

func (f *fakeAttacher) attached() []transport.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Conn(nil), f.conns...)
}

func startGateway(t *testing.T, fa *fakeAttacher) *httptest.Server {
	t.Helper()
	e := echo.New()
	e.GET("/ws", New(fa, zerolog.Nop()).Handle)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleBridgesWebSocketToTransport(t *testing.T) {
	fa := &fakeAttacher{}
	srv := startGateway(t, fa)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/ws"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return len(fa.attached()) == 1 }, 2*time.Second, 10*time.Millisecond)
	peer := fa.attached()[0]

	// Client frame comes out of the transport-side Read.
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("alice\n")))
	buf := make([]byte, 64)
	n, err := peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "alice\n", string(buf[:n]))

	// Transport-side Write reaches the client as a text frame.
	_, err = peer.Write([]byte("hello\n"))
	require.NoError(t, err)
	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "hello\n", string(data))
}

func TestHandleClosesSocketWhenAttachRefuses(t *testing.T) {
	fa := &fakeAttacher{refuse: true}
	srv := startGateway(t, fa)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/ws"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	// The transport refuses by closing the conn, so the client's next
	// read fails rather than seeing any particular close status.
	_, _, err = c.Read(ctx)
	require.Error(t, err)
}

func TestHandleRejectsPlainHTTP(t *testing.T) {
	fa := &fakeAttacher{}
	srv := startGateway(t, fa)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	assert.Empty(t, fa.attached())
}
