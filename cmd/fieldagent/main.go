package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/client"
	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/geo"
	"github.com/example/fleetwatch/internal/location"
	"github.com/example/fleetwatch/internal/locsync"
	"github.com/example/fleetwatch/internal/notify"
	"github.com/example/fleetwatch/internal/roster"
	"github.com/example/fleetwatch/pkg/observability"
)

type agentConfig struct {
	BackendURL     string
	BackendToken   string
	UnitID         string
	CrewEmail      string
	GPSBridgeURL   string
	FixedLat       float64
	FixedLon       float64
	HasFixed       bool
	NominatimURL   string
	IngestAddr     string
	SampleInterval time.Duration
	AcquireTimeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("field-agent")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "field-agent")
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

	unitID := cfg.UnitID
	if unitID == "" {
		if cfg.CrewEmail == "" {
			logger.Fatal("one of UNIT_ID or CREW_EMAIL is required")
		}
		unitID, err = backend.FindUnitByCrewEmail(ctx, cfg.CrewEmail)
		if err != nil {
			logger.Fatal("resolve unit from crew email", zap.Error(err))
		}
		logger.Info("unit resolved from crew email", zap.String("unit_id", unitID))
	}

	provider := buildProvider(cfg, logger)

	var geocoder domain.ReverseGeocoder
	if cfg.NominatimURL != "" {
		geocoder = geo.NewNominatimClient(cfg.NominatimURL)
	}

	store := roster.NewStore()
	notifier := notify.NewLogNotifier(logger.Named("alerts"))

	syncer, err := locsync.New(locsync.Config{
		UnitID:         unitID,
		Interval:       cfg.SampleInterval,
		AcquireTimeout: cfg.AcquireTimeout,
	}, provider, backend, geocoder, store, notifier, domain.SystemClock{}, logger.Named("locsync"))
	if err != nil {
		logger.Fatal("build location syncer", zap.Error(err))
	}

	if cfg.IngestAddr != "" {
		reporter, err := location.NewReporter(cfg.IngestAddr, unitID, logger.Named("reporter"))
		if err != nil {
			logger.Warn("position reporter disabled", zap.Error(err))
		} else {
			defer reporter.Close()
			syncer.OnPublish = func(ctx context.Context, point domain.GeoPoint, label string, at time.Time) {
				if err := reporter.Report(ctx, point, label, at.Unix()); err != nil {
					logger.Debug("position report failed", zap.Error(err))
				}
			}
		}
	}

	logger.Info("field agent running",
		zap.String("unit_id", unitID),
		zap.Duration("interval", cfg.SampleInterval),
	)
	if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("location syncer stopped", zap.Error(err))
	}
}

func buildProvider(cfg agentConfig, logger *zap.Logger) geo.Provider {
	if cfg.GPSBridgeURL != "" {
		return geo.NewHTTPProvider(cfg.GPSBridgeURL)
	}
	if cfg.HasFixed {
		logger.Info("using fixed position", zap.Float64("lat", cfg.FixedLat), zap.Float64("lon", cfg.FixedLon))
		return geo.FixedProvider{Point: domain.GeoPoint{Lat: cfg.FixedLat, Lng: cfg.FixedLon}}
	}
	logger.Fatal("one of GPS_BRIDGE_URL or FIXED_LAT/FIXED_LON is required")
	return nil
}

func loadConfig() agentConfig {
	lat, latOK := lookupFloatEnv("FIXED_LAT")
	lon, lonOK := lookupFloatEnv("FIXED_LON")
	return agentConfig{
		BackendURL:     os.Getenv("BACKEND_URL"),
		BackendToken:   os.Getenv("BACKEND_TOKEN"),
		UnitID:         os.Getenv("UNIT_ID"),
		CrewEmail:      os.Getenv("CREW_EMAIL"),
		GPSBridgeURL:   os.Getenv("GPS_BRIDGE_URL"),
		FixedLat:       lat,
		FixedLon:       lon,
		HasFixed:       latOK && lonOK,
		NominatimURL:   getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		IngestAddr:     os.Getenv("INGEST_ADDR"),
		SampleInterval: time.Duration(parseIntEnv("SAMPLE_INTERVAL_SEC", 10)) * time.Second,
		AcquireTimeout: time.Duration(parseIntEnv("ACQUIRE_TIMEOUT_SEC", 5)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func lookupFloatEnv(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
