package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/stonecode/pickmyroute/server/internal/cache"
	"github.com/stonecode/pickmyroute/server/internal/clients/google"
	"github.com/stonecode/pickmyroute/server/internal/config"
	"github.com/stonecode/pickmyroute/server/internal/metrics"
	"github.com/stonecode/pickmyroute/server/internal/publisher"
	"github.com/stonecode/pickmyroute/server/internal/server"
	"github.com/stonecode/pickmyroute/server/internal/services"
)

func main() {
	configPath := flag.String("config", "", "YAML config file; defaults to prefab's configuration")
	flag.Parse()

	appConfig := loadConfig(*configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Route plan cache with background expiry
	routeCache := cache.NewCache()
	routeCache.StartPeriodicCleanup(ctx, appConfig.Cache.CleanupInterval)

	directions, err := google.NewDirectionsClient(appConfig.Directions)
	if err != nil {
		log.Fatalf("Failed to create Directions client: %v", err)
	}

	collector := metrics.NewCollector(appConfig.Metrics.Namespace)
	collector.WatchCache(routeCache, time.Now)

	var sinks []services.ProgressSink
	if appConfig.NATS.Enabled {
		nc, err := publisher.NewNATSPublisher(publisher.Options{
			URL:           appConfig.NATS.URL,
			ClientName:    appConfig.NATS.ClientName,
			SubjectPrefix: appConfig.NATS.SubjectPrefix,
		}, collector)
		if err != nil {
			log.Fatalf("Failed to connect progress publisher: %v", err)
		}
		defer nc.Close()
		sinks = append(sinks, nc)
		log.Printf("Publishing progress to NATS at %s", appConfig.NATS.URL)
	}

	navService, err := services.NewNavigationService(directions, routeCache, services.Options{
		Params:        appConfig.Navigation,
		CacheTTL:      appConfig.Cache.TTL,
		CommandBuffer: appConfig.Server.CommandBuffer,
		MaxSessions:   appConfig.Server.MaxSessions,
		Sinks:         sinks,
		Metrics:       collector,
	})
	if err != nil {
		log.Fatalf("Failed to create navigation service: %v", err)
	}
	defer navService.Shutdown()

	if appConfig.Server.SessionIdleTimeout > 0 {
		reaper := services.NewSessionReaper(navService, appConfig.Server.SessionIdleTimeout, appConfig.Server.ReapInterval)
		reaper.Start(ctx)
		defer reaper.Stop()
	}

	healthServer := health.NewServer()

	var metricsHandler http.Handler
	if appConfig.Metrics.Enabled {
		metricsHandler = collector.Handler()
	}
	router := server.NewRouter(navService, server.Options{
		Metric:         appConfig.Directions.Metric,
		CorsOrigins:    appConfig.Server.CorsOrigins,
		Metrics:        metricsHandler,
		Health:         healthServer,
		RequestTimeout: appConfig.Directions.Timeout * 2,
	})

	log.Printf("Navigation server starting")
	log.Printf("Matching: snap %.0f m, off-route %.0f/%.0f m, advance %.0f m",
		appConfig.Navigation.SnapThresholdMeters,
		appConfig.Navigation.OffRouteEnterMeters,
		appConfig.Navigation.OffRouteExitMeters,
		appConfig.Navigation.AdvanceDistanceMeters)

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars.
	// The API is mounted on explicit paths so it sits beside prefab's own handlers.
	srv := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/sessions", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/api/sessions/", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/healthz", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/metrics", router.ServeHTTP),
	)

	healthpb.RegisterHealthServer(srv.ServiceRegistrar(), healthServer)

	// Start the server (blocks until shutdown)
	if err := srv.Start(); err != nil {
		healthServer.Shutdown()
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig reads the given file, or the app sections of Prefab's config
// when no file is given, then fills secrets from .env.
func loadConfig(path string) *config.Config {
	var (
		appConfig *config.Config
		err       error
	)
	if path != "" {
		appConfig, err = config.LoadFile(path)
	} else {
		appConfig, err = config.Load(prefab.Config)
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := appConfig.LoadDotEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return appConfig
}
