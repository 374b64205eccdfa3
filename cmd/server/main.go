// Command server runs the deals backend: the Gin HTTP API, the Kafka
// persistence worker, the stock reconciler, and the cache rebuild pool,
// all sharing one SQLite database and one Redis instance.
//
// Startup order matters: storage and the pipeline come up before the HTTP
// listener so the first admitted purchase always has a consumer. Shutdown
// reverses it: the listener drains first, then the background components,
// so nothing accepted is dropped.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-deals-backend/internal/cache"
	"github.com/tbourn/go-deals-backend/internal/config"
	httpapi "github.com/tbourn/go-deals-backend/internal/http"
	"github.com/tbourn/go-deals-backend/internal/observability"
	"github.com/tbourn/go-deals-backend/internal/queue"
	"github.com/tbourn/go-deals-backend/internal/repo"
	"github.com/tbourn/go-deals-backend/internal/services"
	"github.com/tbourn/go-deals-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	// Tracing (no-op when disabled).
	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	// Storage.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("gorm tracing plugin")
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
	}

	// Order pipeline: producer for the admission gate, consumer worker that
	// turns queued reservations into durable rows.
	writer := queue.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	pub := queue.NewPublisher(writer)
	src := queue.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	worker := queue.NewWorker(src, db, cfg.WorkerBackoff)
	worker.Start()

	// Background cache rebuilds and the periodic stock sweep.
	pool := cache.NewPool(cfg.CacheWorkers, cfg.CacheDepth)
	reconciler := services.NewReconciler(db, rdb, rdb, cfg.ReconcileInterval, 10*time.Second)
	reconciler.Start()

	// HTTP surface.
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	httpapi.RegisterRoutes(r, db, rdb, pool, pub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Background components after the listener: no new purchases can arrive,
	// so the worker drains what is already queued.
	reconciler.Stop()
	worker.Stop()
	pool.Close()

	if err := src.Close(); err != nil {
		log.Error().Err(err).Msg("close kafka reader")
	}
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("close kafka writer")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("close redis")
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}

	log.Info().Msg("bye")
}
