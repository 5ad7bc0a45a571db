package sse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ecotel "github.com/Strob0t/eventcast/internal/adapter/otel"
	"github.com/Strob0t/eventcast/internal/adapter/outbox"
	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/logger"
	"github.com/Strob0t/eventcast/internal/middleware"
	"github.com/Strob0t/eventcast/internal/port/broadcast"
)

// Connector opens and closes broadcast sessions.
type Connector interface {
	Connect(ctx context.Context, p *user.Principal, t broadcast.Transport) (string, error)
	Disconnect(id string)
}

// Options configures a Handler.
type Options struct {
	CORSOrigin   string
	BufferSize   int
	WriteTimeout time.Duration // per frame, 0 disables
}

// Handler serves one event stream per request. The principal must already be
// in the request context.
type Handler struct {
	conn Connector
	opts Options
}

// NewHandler creates a Handler.
func NewHandler(c Connector, opts Options) *Handler {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	return &Handler{conn: c, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"unauthorized"}`))
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache, no-transform")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Access-Control-Allow-Origin", h.opts.CORSOrigin)
	hdr.Set("X-Accel-Buffering", "no")

	box := outbox.New(h.opts.BufferSize)
	spanCtx, span := ecotel.StartConnectSpan(r.Context(), "sse", p.ID)
	id, err := h.conn.Connect(spanCtx, p, box)
	span.End()
	if err != nil {
		slog.Warn("stream connect failed", append(logger.Attrs(r.Context()), "identity", p.ID, "error", err)...)
		hdr.Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	ctx := logger.WithSessionID(r.Context(), id)
	defer h.conn.Disconnect(id)

	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		slog.Warn("stream flush unsupported", append(logger.Attrs(ctx), "error", err)...)
		return
	}

	err = box.Run(ctx, func(_ context.Context, msg broadcast.Message) error {
		return h.write(w, rc, msg)
	})
	if err != nil {
		// The client is gone or stuck; the session is closed below.
		slog.Info("stream write failed", append(logger.Attrs(ctx), "error", err)...)
	}
}

func (h *Handler) write(w http.ResponseWriter, rc *http.ResponseController, msg broadcast.Message) error {
	frame, err := Encode(msg)
	if err != nil {
		slog.Error("dropping unencodable message", "topic", msg.Topic, "error", err)
		return nil
	}
	if h.opts.WriteTimeout > 0 {
		if err := rc.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return rc.Flush()
}
