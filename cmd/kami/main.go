// Command kami serves the MCP tool runtime over stdio or HTTP.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kamitools/kami/pkg/audit"
	"github.com/kamitools/kami/pkg/config"
	"github.com/kamitools/kami/pkg/engine"
	"github.com/kamitools/kami/pkg/mcp"
	"github.com/kamitools/kami/pkg/observability"
	"github.com/kamitools/kami/pkg/registry"
	"github.com/kamitools/kami/pkg/runtime"
	"github.com/kamitools/kami/pkg/store/postgres"
	"github.com/kamitools/kami/pkg/store/sqlite"
	httptransport "github.com/kamitools/kami/pkg/transport/http"
	"github.com/kamitools/kami/pkg/transport/stdio"
)

// version is stamped by the release build.
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kami:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	transport := flag.String("transport", "", "transport: stdio or http (overrides config)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *transport != "" {
		cfg.Transport = config.Transport(*transport)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	observability.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	eng := engine.New(engine.DefaultConfig())
	resolver := runtime.NewResolver(eng, runtime.NewComponentCache(cfg.CacheSize), repo)
	executor := runtime.NewWasmExecutor(eng, runtime.ExecutorOptions{
		InheritStdout: cfg.InheritStdio,
		InheritStderr: cfg.InheritStdio,
		SandboxDir:    cfg.SandboxDir,
	})

	opts := []runtime.Option{}
	if cfg.RateLimitPerTool > 0 || cfg.RateLimitGlobal > 0 {
		opts = append(opts, runtime.WithRateLimiter(runtime.NewRateLimiter(cfg.RuntimeConfig().RateLimit)))
	}
	if instruments, err := observability.NewExecutionInstruments(); err == nil {
		opts = append(opts, runtime.WithObserver(instruments))
	}
	recorder, closeRecorder, err := openRecorder(cfg, repo)
	if err != nil {
		return err
	}
	defer closeRecorder()
	opts = append(opts, runtime.WithRecorder(recorder))

	orchestrator := runtime.NewOrchestrator(cfg.RuntimeConfig(), executor, resolver, opts...)
	handler := mcp.NewHandler(orchestrator, repo, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case config.TransportHTTP:
		err = serveHTTP(ctx, cfg, handler)
	default:
		server := stdio.NewServer(stdio.NewTransport(os.Stdin, os.Stdout), handler)
		err = server.Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if derr := orchestrator.Shutdown(shutdownCtx); derr != nil {
		slog.Warn("shutdown drain incomplete", "error", derr)
	}
	return nil
}

func serveHTTP(ctx context.Context, cfg config.Config, handler *mcp.Handler) error {
	routerCfg := httptransport.RouterConfig{
		RateLimiter: httptransport.NewClientRateLimiter(50, 100),
	}
	switch {
	case cfg.JWTSecret != "":
		routerCfg.Auth = httptransport.NewJWTAuth([]byte(cfg.JWTSecret))
	case cfg.BearerToken != "":
		routerCfg.Auth = httptransport.NewStaticTokenAuth(cfg.BearerToken)
	}

	router := httptransport.NewRouter(handler, routerCfg)
	return httptransport.NewServer(cfg.ListenAddr, router).Run(ctx)
}

func openRepository(cfg config.Config) (registry.ToolRepository, func(), error) {
	if cfg.DatabaseURL != "" {
		repo, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	repo, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

// openRecorder backs the audit trail with the catalog's SQLite handle,
// or with a local receipts database when the catalog lives in Postgres.
func openRecorder(cfg config.Config, repo registry.ToolRepository) (*audit.Recorder, func(), error) {
	if catalog, ok := repo.(*sqlite.Repository); ok {
		store, err := audit.NewStore(catalog.DB())
		if err != nil {
			return nil, nil, err
		}
		return audit.NewRecorder(store), func() {}, nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open receipts db %s: %w", cfg.DatabasePath, err)
	}
	db.SetMaxOpenConns(1)
	store, err := audit.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return audit.NewRecorder(store), func() { _ = db.Close() }, nil
}
