package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	echttp "github.com/Strob0t/eventcast/internal/adapter/http"
	"github.com/Strob0t/eventcast/internal/adapter/jwtauth"
	ecnats "github.com/Strob0t/eventcast/internal/adapter/nats"
	"github.com/Strob0t/eventcast/internal/adapter/natskv"
	ecotel "github.com/Strob0t/eventcast/internal/adapter/otel"
	"github.com/Strob0t/eventcast/internal/adapter/ristretto"
	"github.com/Strob0t/eventcast/internal/adapter/sse"
	"github.com/Strob0t/eventcast/internal/adapter/ws"
	"github.com/Strob0t/eventcast/internal/config"
	"github.com/Strob0t/eventcast/internal/logger"
	"github.com/Strob0t/eventcast/internal/middleware"
	"github.com/Strob0t/eventcast/internal/port/authn"
	"github.com/Strob0t/eventcast/internal/resilience"
	"github.com/Strob0t/eventcast/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("flags: %w", err)
	}

	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"stream", cfg.NATS.Stream,
		"auth_mode", cfg.Auth.Mode,
		"heartbeat_interval", cfg.Broadcaster.HeartbeatInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := ecotel.Setup(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := ecotel.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Event log ---

	eventLog, err := ecnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = eventLog.Close() }()

	// --- Authentication ---

	authenticator, err := newAuthenticator(ctx, cfg, eventLog)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Auth.CacheSize > 0 {
		principals, err := ristretto.New(cfg.Auth.CacheSize)
		if err != nil {
			return fmt.Errorf("principal cache: %w", err)
		}
		defer principals.Close()
		authenticator = service.NewCachingAuthenticator(authenticator, principals, cfg.Auth.CacheTTL)
	}

	// --- Broadcaster ---

	b := service.NewBroadcaster(eventLog, service.BroadcasterOptions{
		HeartbeatInterval: cfg.Broadcaster.HeartbeatInterval,
		Recorder:          metrics,
		Logger:            log,
	})
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("broadcaster: %w", err)
	}

	// --- HTTP ---

	var limiter *middleware.ConnectLimiter
	if cfg.Server.ConnectRate > 0 {
		limiter = middleware.NewConnectLimiter(cfg.Server.ConnectRate, cfg.Server.ConnectBurst)
	}

	router := echttp.NewRouter(echttp.Router{
		Config:  cfg.Server,
		Service: cfg.Logging.Service,
		Handlers: &echttp.Handlers{
			Stream:    b,
			Connected: eventLog.IsConnected,
		},
		Authenticator: authenticator,
		SSE: sse.NewHandler(b, sse.Options{
			CORSOrigin:   cfg.Server.CORSOrigin,
			BufferSize:   cfg.Broadcaster.SendBuffer,
			WriteTimeout: cfg.Server.WriteTimeout,
		}),
		WebSocket: ws.NewHandler(b, ws.Options{
			OriginPatterns: originPatterns(cfg.Server.CORSOrigin),
			BufferSize:     cfg.Broadcaster.SendBuffer,
			WriteTimeout:   cfg.Server.WriteTimeout,
		}),
		Limiter: limiter,
	})

	addr := ":" + cfg.Server.Port
	// No server-wide write timeout: streams are long-lived and bound their
	// writes per frame.
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case err := <-b.Err():
			return err
		case <-gctx.Done():
			return nil
		}
	})

	if limiter != nil {
		g.Go(func() error {
			limiter.RunCleanup(gctx, time.Minute, 10*time.Minute)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Closing the sessions first ends every stream handler, so the
		// server's graceful shutdown does not wait on them.
		bErr := b.Shutdown(sctx)
		sErr := srv.Shutdown(sctx)
		return errors.Join(bErr, sErr)
	})

	return g.Wait()
}

func newAuthenticator(ctx context.Context, cfg *config.Config, eventLog *ecnats.Log) (authn.Authenticator, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeKV:
		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
			resilience.WithName("credentials"),
			resilience.WithFailureFilter(natskv.IsLookupFailure),
		)
		return natskv.Open(ctx, eventLog.JetStream(), cfg.NATS.KVBucket, breaker, cfg.Auth.SessionTTL)
	default:
		return jwtauth.New(jwtauth.Options{
			Secret:     []byte(cfg.Auth.JWTSecret),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			SessionTTL: cfg.Auth.SessionTTL,
		})
	}
}

// originPatterns maps the CORS origin onto WebSocket origin patterns.
// A wildcard origin accepts any host.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}
