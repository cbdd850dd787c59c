package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tariffwatch/internal/audit"
	"tariffwatch/internal/auth"
	consumption "tariffwatch/internal/consumption/domain"
	readingmemory "tariffwatch/internal/consumption/infrastructure/memory"
	readingrepo "tariffwatch/internal/consumption/infrastructure/postgres"
	"tariffwatch/internal/observability/metrics"
	refreshapp "tariffwatch/internal/refresh/application"
	refreshhttp "tariffwatch/internal/refresh/interfaces/http"
	refreshnotify "tariffwatch/internal/refresh/notify"
	"tariffwatch/internal/tariff/infrastructure/kraken"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	tariffCfg, err := refreshapp.LoadConfig()
	if err != nil {
		logger.Fatalf("tariff config error: %v", err)
	}

	var db *sql.DB
	var auditLogger audit.Logger
	var readings consumption.ReadingRepository = readingmemory.NewReadingRepository()
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		readings = readingrepo.NewReadingRepository(db)
		auditLogger = audit.NewRepository(db)
	} else {
		logger.Printf("DATABASE_URL not set, meter readings kept in memory")
	}

	metrics.Init(db, logger)

	source, err := kraken.NewClient(
		tariffCfg.APIBaseURL,
		tariffCfg.ProductCode,
		tariffCfg.TariffCode,
		kraken.WithTimeout(tariffCfg.APITimeout),
		kraken.WithRetry(tariffCfg.RetryAttempts, tariffCfg.RetryDelay),
		kraken.WithMaxPages(tariffCfg.MaxPages),
		kraken.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("tariff client error: %v", err)
	}

	location, err := tariffCfg.Location()
	if err != nil {
		logger.Fatalf("tariff timezone error: %v", err)
	}
	broker := refreshhttp.NewSSEBroker()
	notifiers := []refreshapp.TransitionNotifier{broker}
	if tariffCfg.WebhookURL != "" {
		channel, err := refreshnotify.NewWebhookChannel(tariffCfg.WebhookURL, refreshnotify.WithHTTPClient(&http.Client{Timeout: cfg.NotifyTimeout}))
		if err != nil {
			logger.Fatalf("tariff webhook error: %v", err)
		}
		tpl, err := refreshnotify.NewTemplate(cfg.NotifyTemplate)
		if err != nil {
			logger.Fatalf("tariff template error: %v", err)
		}
		webhookNotifier, err := refreshnotify.NewNotifier(channel, tpl,
			refreshnotify.WithDedupeWindow(cfg.NotifyDedupeWindow),
			refreshnotify.WithLocation(location),
		)
		if err != nil {
			logger.Fatalf("tariff notifier error: %v", err)
		}
		notifiers = append(notifiers, webhookNotifier)
	}

	diagnostics := refreshapp.NewDiagnostics(tariffCfg.DiagnosticsSize)
	pipeline, err := refreshapp.NewPipeline(tariffCfg, source,
		refreshapp.WithMetadataSource(source),
		refreshapp.WithReadingRepository(readings),
		refreshapp.WithNotifier(refreshnotify.NewMultiNotifier(notifiers...)),
		refreshapp.WithDiagnostics(diagnostics),
		refreshapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("refresh pipeline error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := refreshapp.NewScheduler(pipeline, tariffCfg.ScanInterval, refreshapp.WithSchedulerLogger(logger))
	go scheduler.Start(ctx)

	tariffHandler, err := refreshhttp.NewHandler(pipeline.Publisher(),
		refreshhttp.WithDiagnostics(diagnostics),
		refreshhttp.WithTrigger(scheduler),
		refreshhttp.WithThresholds(pipeline.Classifier().Thresholds()),
		refreshhttp.WithAudit(auditLogger),
		refreshhttp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("tariff handler error: %v", err)
	}
	readingsHandler, err := refreshhttp.NewReadingsHandler(readings, tariffCfg.MeterID, auditLogger, logger)
	if err != nil {
		logger.Fatalf("readings handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	authMiddleware.Logger = logger

	mux := http.NewServeMux()
	mux.Handle("/api/v1/tariff/", tariffHandler)
	mux.Handle("/api/v1/tariff/stream", refreshhttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/tariff/readings", readingsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s tariff=%s", cfg.HTTPAddr, tariffCfg.TariffCode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	JWTSecret          string
	NotifyTemplate     string
	NotifyDedupeWindow time.Duration
	NotifyTimeout      time.Duration
	ShutdownTimeout    time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		NotifyTemplate:     getenvDefault("TARIFF_NOTIFY_TEMPLATE", ""),
		NotifyDedupeWindow: getenvDuration("TARIFF_NOTIFY_DEDUP_WINDOW", 30*time.Minute),
		NotifyTimeout:      getenvDuration("TARIFF_NOTIFY_TIMEOUT", 5*time.Second),
		ShutdownTimeout:    time.Duration(getenvIntDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
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

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
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

// Flush keeps the SSE stream working behind the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
