package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fieldware/sessiongate"
	"github.com/fieldware/sessiongate/gateway"
	"github.com/fieldware/sessiongate/middleware/tokenguard"
	"github.com/fieldware/sessiongate/profile"
	"github.com/fieldware/sessiongate/provider/localidp"
	"github.com/fieldware/sessiongate/provider/remoteidp"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Config is read from the environment. SIGNING_KEY is the only required
// value when running with the local provider.
type Config struct {
	Addr           string
	DSN            string
	SigningKey     string
	TokenTTL       time.Duration
	ProviderURL    string
	ProviderAPIKey string
	RedisAddr      string
	CacheTTL       time.Duration
	LogLevel       string
}

func loadConfig() Config {
	cfg := Config{
		Addr:           envOr("ADDR", ":8572"),
		DSN:            envOr("DSN", "file:sessiongate.db"),
		SigningKey:     os.Getenv("SIGNING_KEY"),
		TokenTTL:       envDuration("TOKEN_TTL", time.Hour*24),
		ProviderURL:    os.Getenv("PROVIDER_URL"),
		ProviderAPIKey: os.Getenv("PROVIDER_API_KEY"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		CacheTTL:       envDuration("CACHE_TTL", time.Minute*5),
		LogLevel:       envOr("LOG_LEVEL", "info"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func logLevel(name string) string {
	switch name {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "warn":
		return glog.Warn
	case "error":
		return glog.Error
	}
	return glog.Info
}

// glogAdapter bridges the printf-style component logger onto a named glog
// logger.
type glogAdapter struct {
	lgr glog.Logger
}

func (a glogAdapter) Debug(format string, args ...any) { a.lgr.Debug(fmt.Sprintf(format, args...)) }
func (a glogAdapter) Info(format string, args ...any)  { a.lgr.Info(fmt.Sprintf(format, args...)) }
func (a glogAdapter) Warn(format string, args ...any)  { a.lgr.Warn(fmt.Sprintf(format, args...)) }
func (a glogAdapter) Error(format string, args ...any) { a.lgr.Error(fmt.Sprintf(format, args...)) }

func main() {
	cfg := loadConfig()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(logLevel(cfg.LogLevel)),
		glog.WithName("sessiongate"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	named := func(name string) sessiongate.Logger {
		return glogAdapter{lgr: lgr.GetLogger(name)}
	}

	ctx := context.Background()

	db, err := openDB(cfg.DSN)
	if err != nil {
		lgr.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	provider, err := buildProvider(ctx, cfg, db, named)
	if err != nil {
		lgr.Error("failed to build identity provider", "error", err)
		os.Exit(1)
	}

	profiles := profile.NewStore(db)
	if err := profiles.Migrate(ctx); err != nil {
		lgr.Error("failed to migrate profiles", "error", err)
		os.Exit(1)
	}

	guardCfg := tokenguard.Config{
		Provider: provider,
		Logger:   named("tokenguard"),
	}

	var cacheOpt gateway.ControllerOption
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		cache := tokenguard.NewCache(rdb, cfg.CacheTTL, tokenguard.WithCacheLogger(named("cache")))
		guardCfg.Cache = cache
		cacheOpt = gateway.WithCache(cache)
	}

	opts := []gateway.ControllerOption{gateway.WithLogger(named("gateway"))}
	if cacheOpt != nil {
		opts = append(opts, cacheOpt)
	}

	ctrl := gateway.NewController(provider, profiles, opts...)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	app.Use(gateway.RequestLogger(named("http")))

	gateway.RegisterRoutes(app, ctrl, tokenguard.New(guardCfg))

	go func() {
		lgr.Info("listening", "addr", cfg.Addr)
		if err := app.Listen(cfg.Addr); err != nil {
			lgr.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	sig := waitExitSignal()
	lgr.Info("shutting down", "signal", sig.String())

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		lgr.Error("shutdown failed", "error", err)
	}
}

func openDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// buildProvider wires the remote provider when PROVIDER_URL is set, and the
// local one otherwise.
func buildProvider(ctx context.Context, cfg Config, db *bun.DB, named func(string) sessiongate.Logger) (sessiongate.IdentityProvider, error) {
	if cfg.ProviderURL != "" {
		opts := []remoteidp.Option{remoteidp.WithLogger(named("remoteidp"))}
		if cfg.ProviderAPIKey != "" {
			opts = append(opts, remoteidp.WithAPIKey(cfg.ProviderAPIKey))
		}
		return remoteidp.New(cfg.ProviderURL, opts...), nil
	}

	if cfg.SigningKey == "" {
		return nil, goerrors.New("SIGNING_KEY is required when no PROVIDER_URL is set", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	local := localidp.New(db, []byte(cfg.SigningKey),
		localidp.WithLogger(named("localidp")),
		localidp.WithTokenTTL(cfg.TokenTTL),
	)

	if err := local.Migrate(ctx); err != nil {
		return nil, err
	}

	return local, nil
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
