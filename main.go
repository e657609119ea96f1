package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"drinkOnMeAPI/handlers"
	"drinkOnMeAPI/internal/config"
	"drinkOnMeAPI/internal/dispatch"
	"drinkOnMeAPI/internal/geo"
	"drinkOnMeAPI/internal/ingest"
	"drinkOnMeAPI/internal/logging"
	"drinkOnMeAPI/internal/storage"
	"drinkOnMeAPI/internal/types/venue"
	"drinkOnMeAPI/internal/workers"
	"drinkOnMeAPI/middleware"
	"drinkOnMeAPI/services"

	_ "net/http/pprof"
)

var (
	cfg    config.Config
	logger *slog.Logger
	dbPool *pgxpool.Pool

	presenceService   *services.PresenceService
	admissionService  *services.AdmissionService
	redemptionService *services.RedemptionService
	venueService      *services.VenueService
	occupancyFeed     *dispatch.OccupancyFeed
	ledgerProducer    *ingest.LedgerProducer
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	logger = logging.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Without DATABASE_URL everything runs on the in-memory store, which is
	// enough for local development and the client simulator.
	var store interface {
		storage.VenueStore
		storage.PresenceStore
		storage.LedgerStore
		storage.ViolationStore
		storage.TokenStore
	}
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to parse database URL:", err)
		}

		poolConfig.MaxConns = 25
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		poolConfig.HealthCheckPeriod = time.Minute

		dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			log.Fatal("Failed to create connection pool:", err)
		}
		if err := dbPool.Ping(ctx); err != nil {
			log.Fatal("Failed to ping database:", err)
		}

		pg := storage.NewPostgres(dbPool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to ensure schema:", err)
		}
		store = pg
		logger.Info("connected to postgres")
	} else {
		store = storage.NewMemory()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	occupancyFeed = dispatch.NewOccupancyFeed()

	venueService = services.NewVenueService(store)
	presenceService = services.NewPresenceService(store, store, logger)
	presenceService.SetFeed(occupancyFeed)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, occupancy cache disabled", "error", err)
		} else {
			presenceService.SetOccupancyCache(rdb, cfg.OccupancyCacheTTL)
			logger.Info("occupancy cache enabled", "addr", cfg.RedisAddr)
		}
	}

	admissionService = services.NewAdmissionService(store, store, services.AdmissionPolicy{
		HourlyCap:          cfg.HourlyCap,
		DailyCap:           cfg.DailyCap,
		HourlyWindow:       cfg.HourlyWindow,
		DailyWindow:        cfg.DailyWindow,
		ViolationWindow:    cfg.ViolationWindow,
		ViolationThreshold: cfg.ViolationThreshold,
		SuspensionDuration: cfg.SuspensionDuration,
	}, logger)

	if len(cfg.KafkaBrokers) > 0 {
		ledgerProducer = ingest.NewLedgerProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		admissionService.SetLedgerProducer(ledgerProducer)
		logger.Info("ledger feed enabled", "topic", cfg.KafkaTopic)
	}

	redemptionService = services.NewRedemptionService(
		store, presenceService, &services.LogOrderNotifier{Logger: logger},
		cfg.CodeTTL, cfg.CodeMinLength, cfg.CodeMaxLength, logger,
	)

	if dbPool == nil {
		seedDemoVenues(ctx)
	}

	middleware.InitPrometheus()
}

// seedDemoVenues gives the in-memory store something to check in to.
func seedDemoVenues(ctx context.Context) {
	demo := []venue.Venue{
		{
			ID:                   "venue_demo_1",
			Name:                 "The Thirsty Gopher",
			Coordinate:           geo.Coordinate{Latitude: 42.6977, Longitude: 23.3219},
			GeofenceRadiusMeters: cfg.GeofenceRadiusMeters,
		},
		{
			ID:                   "venue_demo_2",
			Name:                 "Barrel & Byte",
			Coordinate:           geo.Coordinate{Latitude: 42.6950, Longitude: 23.3330},
			GeofenceRadiusMeters: cfg.GeofenceRadiusMeters,
		},
	}
	if err := venueService.Seed(ctx, demo); err != nil {
		logger.Warn("failed to seed demo venues", "error", err)
	}
}

func main() {
	defer func() {
		if dbPool != nil {
			log.Println("Closing database connection pool...")
			dbPool.Close()
		}
		if ledgerProducer != nil {
			ledgerProducer.Close()
		}
	}()

	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	workers.StartExpirySweep(rootCtx, redemptionService, time.Hour, logger)

	// Initialize handlers
	presenceHandler := handlers.NewPresenceHandler(presenceService)
	venueHandler := handlers.NewVenueHandler(venueService, presenceService)
	drinkHandler := handlers.NewDrinkHandler(admissionService)
	redemptionHandler := handlers.NewRedemptionHandler(redemptionService)
	realtimeHandler := handlers.NewRealtimeHandler(occupancyFeed, presenceService)

	r := mux.NewRouter()

	r.HandleFunc("/api/v1/venues/ws/{id}", realtimeHandler.VenueOccupancyStream)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if dbPool != nil {
			if err := dbPool.Ping(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "drinkOnMe-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	// This inherits middleware from standardRouter
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/venues", venueHandler.GetVenues).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)

	protected.HandleFunc("/presence/checkin", presenceHandler.CheckIn).Methods("POST")
	protected.HandleFunc("/presence/checkout", presenceHandler.CheckOut).Methods("POST")

	protected.HandleFunc("/venues/{id}/occupancy", venueHandler.GetOccupancy).Methods("GET")

	protected.HandleFunc("/drinks/eligibility/{recipientId}", drinkHandler.CheckEligibility).Methods("GET")
	protected.HandleFunc("/drinks/record", drinkHandler.RecordDrink).Methods("POST")
	protected.HandleFunc("/drinks/limits", drinkHandler.GetLimits).Methods("GET")
	protected.HandleFunc("/drinks/redeem", redemptionHandler.RedeemCode).Methods("POST")

	protected.HandleFunc("/redemptions/issue", redemptionHandler.IssueToken).Methods("POST")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	server := http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      corsHandler(r), // Pass the root router 'r'
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
