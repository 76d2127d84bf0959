package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"fuelmap-cloud/internal/audit"
	"fuelmap-cloud/internal/auth"
	"fuelmap-cloud/internal/directory/application"
	directoryrepo "fuelmap-cloud/internal/directory/infrastructure/postgres"
	directoryhttp "fuelmap-cloud/internal/directory/interfaces/http"
	directorynotify "fuelmap-cloud/internal/directory/notify"
	"fuelmap-cloud/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()
	auditRepo := audit.NewRepository(db)

	dirCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("directory config error: %v", err)
	}

	stationRepo := directoryrepo.NewStationRepository(db)
	stationService, err := application.NewStationService(stationRepo, logger)
	if err != nil {
		logger.Fatalf("station service error: %v", err)
	}
	nearestService, err := application.NewNearestService(stationRepo, logger,
		application.WithNearestLimits(dirCfg.NearestDefaultLimit, dirCfg.NearestMaxLimit))
	if err != nil {
		logger.Fatalf("nearest service error: %v", err)
	}

	dedupeOpts := []application.DedupeOption{application.WithAuditLogger(auditRepo)}
	if dirCfg.WebhookURL != "" {
		channel, err := directorynotify.NewWebhookChannel(dirCfg.WebhookURL)
		if err != nil {
			logger.Fatalf("resolve webhook error: %v", err)
		}
		tpl, err := directorynotify.NewTemplate(dirCfg.NotifyTemplate)
		if err != nil {
			logger.Fatalf("resolve template error: %v", err)
		}
		notifier, err := directorynotify.NewNotifier(channel, tpl,
			directorynotify.WithRequestTimeout(dirCfg.NotifyTimeout),
			directorynotify.WithLogger(logger))
		if err != nil {
			logger.Fatalf("resolve notifier error: %v", err)
		}
		dedupeOpts = append(dedupeOpts, application.WithResolutionNotifier(notifier))
	}
	dedupeService, err := application.NewDedupeService(stationRepo, nearestService, logger, dedupeOpts...)
	if err != nil {
		logger.Fatalf("dedupe service error: %v", err)
	}

	stationsHandler, err := directoryhttp.NewHandler(stationService, dedupeService, nearestService)
	if err != nil {
		logger.Fatalf("stations handler error: %v", err)
	}
	exportHandler, err := directoryhttp.NewExportHandler(stationService)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}
	importHandler, err := directoryhttp.NewImportHandler(stationService)
	if err != nil {
		logger.Fatalf("import handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/stations", stationsHandler)
	mux.Handle("/api/v1/stations/", stationsHandler)
	mux.Handle("/api/v1/exports/stations.xlsx", exportHandler)
	mux.Handle("/api/v1/imports/stations.xlsx", importHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
