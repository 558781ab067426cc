package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/fleetwatch/internal/auth"
	"github.com/example/fleetwatch/internal/console"
	"github.com/example/fleetwatch/internal/dispatch"
	"github.com/example/fleetwatch/internal/fleet/client"
	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/fleet/matching"
	httpmw "github.com/example/fleetwatch/internal/http/middleware"
	"github.com/example/fleetwatch/internal/location"
	"github.com/example/fleetwatch/internal/notify"
	"github.com/example/fleetwatch/internal/roster"
	"github.com/example/fleetwatch/internal/talk"
	"github.com/example/fleetwatch/pkg/observability"
)

type appConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	BackendURL      string
	BackendToken    string
	RedisAddr       string
	NATSURL         string
	JWTSecret       string
	TalkSecret      string
	TalkTokenTTL    time.Duration
	RosterInterval  time.Duration
	WatchInterval   time.Duration
	MinPollGap      time.Duration
	AvailableLabels []string
	ReadRate        float64
	ReadBurst       float64
	WriteRate       float64
	WriteBurst      float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("fleet-console")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "fleet-console")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()
	if cfg.BackendURL == "" {
		logger.Fatal("BACKEND_URL is required")
	}

	var clientOpts []client.Option
	if cfg.BackendToken != "" {
		clientOpts = append(clientOpts, client.WithBearerToken(cfg.BackendToken))
	}
	backend := client.New(cfg.BackendURL, clientOpts...)

	statuses, err := backend.ListStatuses(ctx)
	if err != nil {
		logger.Fatal("load status catalog", zap.Error(err))
	}
	catalog := domain.NewStatusCatalog(statuses, cfg.AvailableLabels...)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("fleet-console")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	store := roster.NewStore()
	var geoIndex *matching.RedisGeoIndex
	var geoSink roster.GeoSink
	if redisClient != nil {
		geoIndex = matching.NewRedisGeoIndex(redisClient, "")
		geoSink = geoIndex
	}

	alerts := notify.NewChannelNotifier(0)
	notifier := notify.Multi{notify.NewLogNotifier(logger.Named("alerts")), alerts}

	refresher, err := roster.NewRefresher(backend, store, catalog, geoSink, domain.SystemClock{}, logger.Named("roster"), roster.RefresherConfig{
		Interval: cfg.RosterInterval,
	})
	if err != nil {
		logger.Fatal("build roster refresher", zap.Error(err))
	}

	watcher, err := dispatch.NewWatcher(backend, notifier, notify.NewNATSPublisher(natsConn, ""), domain.SystemClock{}, logger.Named("watcher"), dispatch.WatcherConfig{
		Interval:   cfg.WatchInterval,
		MinPollGap: cfg.MinPollGap,
	})
	if err != nil {
		logger.Fatal("build dispatch watcher", zap.Error(err))
	}
	lifecycle := dispatch.NewLifecycle(backend, watcher, notifier, logger.Named("lifecycle"))
	intake := dispatch.NewIntake(backend, watcher, dispatch.NewMemoryIdempotencyStore(), logger.Named("intake"))

	issuer, err := talk.NewTokenIssuer([]byte(cfg.TalkSecret), cfg.TalkTokenTTL)
	if err != nil {
		logger.Fatal("build talk token issuer", zap.Error(err))
	}

	handler := console.NewHandler(console.Config{
		Backend:       backend,
		Store:         store,
		Catalog:       catalog,
		Watcher:       watcher,
		Lifecycle:     lifecycle,
		Intake:        intake,
		GeoIndex:      geoIndex,
		Issuer:        issuer,
		Notifications: alerts,
		Logger:        logger.Named("api"),
	})

	var mws []func(http.Handler) http.Handler
	if limiter := httpmw.NewRateLimiter(redisClient,
		httpmw.RateConfig{Rate: cfg.ReadRate, Burst: cfg.ReadBurst},
		httpmw.RateConfig{Rate: cfg.WriteRate, Burst: cfg.WriteBurst},
	); limiter != nil {
		mws = append(mws, limiter.Middleware)
	}
	if cfg.JWTSecret != "" {
		mws = append(mws, auth.Middleware(cfg.JWTSecret, auth.RoleOperator, auth.RoleAdmin))
	}

	r := chi.NewRouter()
	r.Mount("/", handler.Router(mws...))
	r.Mount("/observability", observability.MetricsRouter(func() bool {
		return !store.RefreshedAt().IsZero()
	}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go runWorker(ctx, logger, "roster refresher", refresher.Run)
	go runWorker(ctx, logger, "dispatch watcher", watcher.Run)
	go runGRPC(ctx, logger, cfg.GRPCAddr, store)

	go func() {
		logger.Info("console listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runWorker(ctx context.Context, logger *zap.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", zap.String("worker", name), zap.Error(err))
	}
}

func runGRPC(ctx context.Context, logger *zap.Logger, addr string, store *roster.Store) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer()
	location.RegisterPositionsServer(srv, location.NewServer(store, logger.Named("ingest")))
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	logger.Info("position ingest listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Error("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	talkSecret := firstNonEmpty(os.Getenv("TALK_SECRET"), os.Getenv("JWT_SECRET"), "fleetwatch-dev")
	return appConfig{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getenv("GRPC_ADDR", ":9090"),
		BackendURL:      os.Getenv("BACKEND_URL"),
		BackendToken:    os.Getenv("BACKEND_TOKEN"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		NATSURL:         os.Getenv("NATS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TalkSecret:      talkSecret,
		TalkTokenTTL:    time.Duration(parseIntEnv("TALK_TOKEN_TTL_MIN", 60)) * time.Minute,
		RosterInterval:  time.Duration(parseIntEnv("ROSTER_INTERVAL_SEC", 10)) * time.Second,
		WatchInterval:   time.Duration(parseIntEnv("WATCH_INTERVAL_SEC", 15)) * time.Second,
		MinPollGap:      time.Duration(parseIntEnv("MIN_POLL_GAP_SEC", 5)) * time.Second,
		AvailableLabels: splitList(os.Getenv("STATUS_AVAILABLE_LABELS")),
		ReadRate:        parseFloatEnv("RATE_READ_PER_SEC", 0),
		ReadBurst:       parseFloatEnv("RATE_READ_BURST", 0),
		WriteRate:       parseFloatEnv("RATE_WRITE_PER_SEC", 0),
		WriteBurst:      parseFloatEnv("RATE_WRITE_BURST", 0),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
