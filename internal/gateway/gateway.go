package gateway

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"tcpchat/internal/transport"
)

// Attacher is the part of the transport the gateway hands accepted
// connections to.
type Attacher interface {
	Attach(conn transport.Conn) uint64
}

// Gateway upgrades browser connections to WebSocket and attaches them to
// the chat transport. Web clients then speak the same line protocol as
// raw TCP peers, one text frame per line.
type Gateway struct {
	transport Attacher
	logger    zerolog.Logger
}

func New(t Attacher, logger zerolog.Logger) *Gateway {
	return &Gateway{transport: t, logger: logger.With().Str("component", "gateway").Logger()}
}

// Handle upgrades one request and wraps the socket as a net.Conn for the
// transport. The background context is deliberate: the socket outlives
// this handler, and the transport owns its lifecycle from here on.
func (g *Gateway) Handle(c echo.Context) error {
	ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("remote", c.RealIP()).Msg("websocket upgrade failed")
		return echo.NewHTTPError(http.StatusBadRequest, "WebSocket upgrade failed")
	}

	nc := websocket.NetConn(context.Background(), ws, websocket.MessageText)
	id := g.transport.Attach(transport.NewConn(nc))
	if id == 0 {
		ws.Close(websocket.StatusTryAgainLater, "server shutting down")
		return nil
	}

	g.logger.Info().Uint64("client", id).Str("remote", c.RealIP()).Msg("websocket client attached")
	return nil
}
