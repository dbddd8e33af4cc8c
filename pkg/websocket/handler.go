package websocket

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type HandlerOptions struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	EnableCompression bool
	// AllowedOrigins lists accepted Origin hosts or full origins. "*" allows
	// any origin; requests without an Origin header are always accepted.
	AllowedOrigins []string
	Client         ClientOptions
}

// Handler upgrades HTTP requests into hub clients.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	opts     HandlerOptions
}

func NewHandler(hub *Hub, opts HandlerOptions) *Handler {
	return &Handler{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    opts.ReadBufferSize,
			WriteBufferSize:   opts.WriteBufferSize,
			HandshakeTimeout:  opts.HandshakeTimeout,
			EnableCompression: opts.EnableCompression,
			CheckOrigin:       originChecker(opts.AllowedOrigins),
		},
	}
}

// Upgrade completes the websocket handshake and returns an unstarted
// client. On failure the upgrader has already replied to the request.
func (h *Handler) Upgrade(c *gin.Context, userID primitive.ObjectID, moderator bool) (*Client, error) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	return NewClient(conn, userID, moderator, h.opts.Client), nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, candidate := range allowed {
			if candidate == "*" ||
				strings.EqualFold(candidate, origin) ||
				strings.EqualFold(candidate, parsed.Host) {
				return true
			}
		}
		return false
	}
}
