// Package ws serves the event stream over WebSocket for clients that cannot
// use Server-Sent Events. Message semantics match the SSE stream.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	ecotel "github.com/Strob0t/eventcast/internal/adapter/otel"
	"github.com/Strob0t/eventcast/internal/adapter/outbox"
	"github.com/Strob0t/eventcast/internal/adapter/sse"
	"github.com/Strob0t/eventcast/internal/logger"
	"github.com/Strob0t/eventcast/internal/middleware"
	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

// Options configures a Handler.
type Options struct {
	OriginPatterns []string // empty allows any origin
	BufferSize     int
	WriteTimeout   time.Duration
}

// Handler upgrades authenticated requests and attaches them as sessions.
type Handler struct {
	conn sse.Connector
	opts Options
}

// NewHandler creates a Handler.
func NewHandler(c sse.Connector, opts Options) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Handler{conn: c, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		http.Error(w, `{"status":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	acceptOpts := &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns}
	if len(h.opts.OriginPatterns) == 0 {
		acceptOpts.InsecureSkipVerify = true // CORS handled by configuration
	}
	c, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		slog.Warn("websocket accept failed", append(logger.Attrs(r.Context()), "error", err)...)
		return
	}
	defer func() { _ = c.CloseNow() }()

	box := outbox.New(h.opts.BufferSize)
	spanCtx, span := ecotel.StartConnectSpan(r.Context(), "websocket", p.ID)
	id, err := h.conn.Connect(spanCtx, p, box)
	span.End()
	if err != nil {
		slog.Warn("websocket session rejected", append(logger.Attrs(r.Context()), "identity", p.ID, "error", err)...)
		_ = c.Close(websocket.StatusTryAgainLater, "unavailable")
		return
	}
	defer h.conn.Disconnect(id)

	// Reads are only used to notice the client going away. CloseRead returns
	// a context that is cancelled when that happens.
	ctx := c.CloseRead(logger.WithSessionID(r.Context(), id))
	slog.Info("websocket connected", append(logger.Attrs(ctx), "remote", r.RemoteAddr)...)

	err = box.Run(ctx, func(ctx context.Context, msg broadcast.Message) error {
		data, err := Encode(msg)
		if err != nil {
			slog.Error("dropping unencodable message", "topic", msg.Topic, "error", err)
			return nil
		}
		wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
		defer cancel()
		return c.Write(wctx, websocket.MessageText, data)
	})
	if err != nil {
		slog.Info("websocket write failed", append(logger.Attrs(ctx), "error", err)...)
		return
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}
