package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/rpggio/taskflow/internal/config"
	"github.com/rpggio/taskflow/internal/domain/dashboard"
	"github.com/rpggio/taskflow/internal/domain/message"
	"github.com/rpggio/taskflow/internal/domain/task"
	"github.com/rpggio/taskflow/internal/domain/thread"
	"github.com/rpggio/taskflow/internal/mcp"
	"github.com/rpggio/taskflow/internal/ratelimit"
	"github.com/rpggio/taskflow/internal/sqlite"
	"github.com/rpggio/taskflow/internal/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMetrics := setupMetrics(cfg.Metrics)
	defer shutdownMetrics()

	limits, err := cfg.RateLimit.Limits()
	if err != nil {
		logger.Error("invalid rate limits", "error", err)
		os.Exit(1)
	}
	store, closeStore, err := newLimiterStore(ctx, cfg.RateLimit, db, logger)
	if err != nil {
		logger.Error("failed to set up rate limit store", "store", cfg.RateLimit.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	metrics, err := ratelimit.NewMetrics(otel.GetMeterProvider().Meter(ratelimit.MeterName))
	if err != nil {
		logger.Error("failed to create limiter metrics", "error", err)
		os.Exit(1)
	}
	limiter := ratelimit.New(store, limits,
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(metrics),
	)

	taskRepo := sqlite.NewTaskRepository(db)
	threadRepo := sqlite.NewThreadRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)
	keys := sqlite.NewAPIKeyStore(db)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Tasks:    task.NewService(taskRepo, limiter, logger),
			Threads:  thread.NewService(threadRepo, limiter, logger),
			Messages: message.NewService(messageRepo, threadRepo, limiter, logger),
			Dashboard: dashboard.NewService(dashboard.Sources{
				Tasks:    taskRepo,
				Threads:  threadRepo,
				Messages: messageRepo,
			}, logger),
		},
		Resolver:      keys,
		AuthEnabled:   cfg.Auth.Enabled,
		DefaultUser:   cfg.Auth.DefaultUser,
		TransportMode: cfg.Transport.Mode,
		Logger:        logger,
	})

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, logger, mcpServer)
		return
	}

	opts := transport.Options{
		Signup:     transport.NewSignupHandler(keys, limiter, logger),
		TrustProxy: cfg.Server.TrustProxy,
	}
	if cfg.Auth.Enabled {
		opts.Auth = transport.AuthMiddleware(keys, limiter, logger)
	} else {
		opts.Auth = transport.DefaultCallerMiddleware(cfg.Auth.DefaultUser)
	}
	if ingress := cfg.RateLimit.Ingress; ingress.RPS > 0 {
		opts.Ingress = transport.NewIngressLimiter(ingress.RPS, ingress.Burst, transport.WithIdleTTL(cfg.RateLimit.IdleTTL))
		opts.Ingress.StartJanitor(ctx, cfg.RateLimit.SweepInterval)
	}
	runHTTPMode(logger, mcpServer, opts, cfg.Server.Host, cfg.Server.Port)
}

// setupMetrics installs a global meter provider when enabled and returns its shutdown.
func setupMetrics(cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		otel.SetMeterProvider(noop.NewMeterProvider())
		return func() {}
	}
	mp := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(mp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(ctx)
	}
}

// newLimiterStore builds the configured state store and starts its sweeper.
func newLimiterStore(ctx context.Context, cfg config.RateLimitConfig, db *sqlite.DB, logger *slog.Logger) (ratelimit.StateStore, func(), error) {
	switch cfg.Store {
	case "sqlite":
		store := sqlite.NewRateLimitStore(db)
		go sweepPeriodically(ctx, cfg.SweepInterval, logger, func(now time.Time) (int, error) {
			return store.Sweep(ctx, now.Add(-cfg.IdleTTL))
		})
		return store, func() {}, nil
	case "bolt":
		store, err := ratelimit.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		go sweepPeriodically(ctx, cfg.SweepInterval, logger, func(now time.Time) (int, error) {
			return store.Sweep(now.Add(-cfg.IdleTTL))
		})
		return store, func() { _ = store.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		store := ratelimit.NewRedisStore(client,
			ratelimit.WithKeyPrefix(cfg.Redis.Prefix),
			ratelimit.WithTTL(cfg.IdleTTL),
		)
		return store, func() { _ = client.Close() }, nil
	default:
		store := ratelimit.NewMemoryStore()
		store.StartJanitor(ctx, cfg.SweepInterval, cfg.IdleTTL)
		return store, func() {}, nil
	}
}

// sweepPeriodically runs sweep on every tick until ctx is done.
func sweepPeriodically(ctx context.Context, every time.Duration, logger *slog.Logger, sweep func(time.Time) (int, error)) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sweep(now)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("rate limit sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("rate limit state swept", "removed", n)
			}
		}
	}
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Create stdio transport
	transport := &sdkmcp.StdioTransport{}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, transport); err != nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(logger *slog.Logger, mcpServer *sdkmcp.Server, opts transport.Options, host string, port int) {
	opts.MCP = sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           transport.NewServer(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}
	if size <= keepLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
