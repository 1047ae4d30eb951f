package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/pay-gate/config"
	"github.com/IliaW/pay-gate/internal/broker"
	cacheClient "github.com/IliaW/pay-gate/internal/cache"
	"github.com/IliaW/pay-gate/internal/crawler"
	"github.com/IliaW/pay-gate/internal/demo"
	"github.com/IliaW/pay-gate/internal/gate"
	"github.com/IliaW/pay-gate/internal/model"
	"github.com/IliaW/pay-gate/internal/persistence"
	"github.com/IliaW/pay-gate/internal/telemetry"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

var (
	cfg   *config.Config
	db    *sql.DB
	cache cacheClient.IdentityCache
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	setupLogger()
	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	db = setupDatabase()
	defer closeDatabase()
	identifier := crawler.NewIdentifier(loadSignatures())
	if cfg.CacheSettings.Enabled {
		cache = cacheClient.NewMemcachedClient(cfg.CacheSettings)
		defer cache.Close()
	}
	httpClient := setupHttpClient()
	kafkaAudit := broker.NewKafkaAudit(cfg.ServiceName, cfg.KafkaSettings.Producer)
	slog.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env))

	billingChan := make(chan *model.ChargeEvent, 100)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	kafka := broker.NewChargeEventProducer(billingChan, metrics.KafkaMetrics, cfg.KafkaSettings.Producer, wg)
	go kafka.Run()

	payGate := &gate.Gate{
		Identifier:  identifier,
		Cache:       cache,
		HttpClient:  httpClient,
		Cfg:         cfg,
		BillingChan: billingChan,
		Audit:       kafkaAudit,
		Metrics:     metrics.GateMetrics,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(payGate, identifier),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error.", slog.String("err", err.Error()))
			stop()
		}
	}()

	// Graceful shutdown.
	// 1. Stop accepting new requests and drain the in-flight ones.
	// 2. Close billingChan and wait till the kafka producer flushes the batch.
	// 3. Close database and memcached connections.
	<-ctx.Done()
	slog.Info("stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown http server.", slog.String("err", err.Error()))
	}
	close(billingChan)
	slog.Info("close billingChan.")
	wg.Wait()
	slog.Info("server stopped.")
}

func setupRouter(payGate *gate.Gate, identifier *crawler.Identifier) *chi.Mux {
	router := chi.NewRouter()
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	if cfg.DemoSettings.Enabled {
		demoHandler := &demo.Handler{
			Identifier: identifier,
			Price:      gate.DefaultPrice(cfg),
		}
		limiter := rate.NewLimiter(rate.Every(cfg.DemoSettings.TimeInterval), cfg.DemoSettings.RequestsLimit)
		router.Get("/demo", demoHandler.Page)
		router.Get("/api/test", demo.RateLimit(limiter, demoHandler.Simulate))
	}
	router.Handle("/*", payGate)

	return router
}

func setupLogger() *slog.Logger {
	envLogLevel := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	err := slogLevel.UnmarshalText([]byte(envLogLevel))
	if err != nil {
		log.Printf("encountenred log level: '%s'. The package does not support custom log levels", envLogLevel)
		slogLevel = slog.LevelDebug
	}
	log.Printf("slog level overwritten to '%v'", slogLevel)
	slog.SetLogLoggerLevel(slogLevel)

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
			NoColor: func() bool {
				if cfg.Env == "local" {
					return false
				}
				return true
			}()}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

// loadSignatures returns the crawler signature table. The database is the
// source of truth when enabled; any load failure falls back to the built-in
// table so the gate always starts with a usable signature set.
func loadSignatures() []model.CrawlerSignature {
	if !cfg.DbSettings.Enabled {
		return crawler.DefaultSignatures
	}
	signatures := persistence.NewSignatureRepository(db).GetSignatures()
	if len(signatures) == 0 {
		slog.Warn("no crawler signatures in the database. Use the built-in table.")
		return crawler.DefaultSignatures
	}
	slog.Info("crawler signatures loaded from the database.", slog.Int("size", len(signatures)))

	return signatures
}

func setupDatabase() *sql.DB {
	if !cfg.DbSettings.Enabled {
		slog.Info("database is disabled. The built-in signature table will be used.")
		return nil
	}
	slog.Info("connecting to the database...")
	connStr := fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cfg.DbSettings.User,
		cfg.DbSettings.Password,
		cfg.DbSettings.Host,
		cfg.DbSettings.Port,
		cfg.DbSettings.Name,
	)
	database, err := sql.Open("postgres", connStr)
	if err != nil {
		slog.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		slog.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			slog.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				slog.Error("failed to establish database connection.")
				os.Exit(1)
			}
			slog.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	slog.Info("connected to the database!")

	return database
}

func closeDatabase() {
	if db == nil {
		return
	}
	slog.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		slog.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}

func setupHttpClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.HttpClientSettings.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.HttpClientSettings.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.HttpClientSettings.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.HttpClientSettings.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.HttpClientSettings.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HttpClientSettings.DialTimeout,
			KeepAlive: cfg.HttpClientSettings.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.HttpClientSettings.TlsInsecureSkipVerify,
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.HttpClientSettings.RequestTimeout,
	}
}
