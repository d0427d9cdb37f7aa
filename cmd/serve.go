package cmd

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"

	"idgate/internal/config"
	"idgate/internal/db"
	"idgate/internal/gate"
	"idgate/internal/http/handlers"
	appmw "idgate/internal/http/middleware"
	"idgate/internal/ratelimit"
	"idgate/internal/storage"
	"idgate/internal/usage"
	"idgate/internal/validator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API gateway",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		logger.WithError(err).Fatal("failed to ensure bootstrap admin")
	}
	if err := db.EnsureDefaultAPIKey(sqlDB, cfg); err != nil {
		logger.WithError(err).Fatal("failed to ensure default API key")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// The gate degrades gracefully without Redis (limiter fails
		// open, result cache misses), so this is not fatal.
		logger.WithError(err).Warn("redis unreachable at startup")
	}

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounterStore(rdb), logger)

	resolver := gate.NewCachingResolver(gate.NewRegistryResolver(sqlDB), cfg.KeyCacheTTL)
	resolver.StartJanitor(context.Background(), cfg.KeyCacheTTL)

	g := gate.New(resolver, limiter, logger, gate.WithExemptPrefixes(
		"/admin",
		"/healthz",
		"/metrics",
		"/api/v1/health",
		"/api/v1/docs",
		"/api/v1/metrics", // self-authenticates via query parameter
	))

	recorder := usage.NewRecorder(sqlDB, logger)

	var archiver storage.LogArchiver
	if cfg.LogArchiveBucket != "" {
		archiver = storage.NewS3Archiver(cfg)
		logger.WithField("bucket", cfg.LogArchiveBucket).Info("call log archival enabled")
	}

	db.StartRetentionWorker(sqlDB, archiver, logger)
	db.StartAggregationWorker(sqlDB, logger)

	handlers.InitPrometheusMetrics()

	resultCache := validator.NewResultCache(rdb, cfg.ResultCacheTTL)

	r := router.New()

	r.GET("/", handlers.RootHandler(cfg))
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler())

	r.GET("/api/v1/health", handlers.HealthHandler(sqlDB, rdb))
	r.GET("/api/v1/docs", handlers.DocsHandler(cfg))
	r.GET("/api/v1/metrics", handlers.KeyMetricsHandler(sqlDB))
	r.POST("/api/v1/validate", handlers.ValidateHandler(resultCache))
	r.POST("/api/v1/validate/bulk", handlers.BulkValidateHandler())

	adminAuth := appmw.AdminAuth(sqlDB)
	r.GET("/admin/apikeys", adminAuth(handlers.ListAPIKeys(sqlDB)))
	r.POST("/admin/apikeys", adminAuth(handlers.CreateAPIKey(sqlDB)))
	r.POST("/admin/apikeys/set-enabled", adminAuth(handlers.SetAPIKeyEnabled(sqlDB)))

	// Outermost first: usage tracking sees the final response of
	// everything below it, including gate and IP-limit denials.
	handler := appmw.UsageTracking(recorder, cfg)(
		appmw.IPRateLimit(cfg)(
			appmw.APIKeyAuth(g, cfg)(r.Handler)))

	logger.WithField("addr", cfg.ListenAddr).Info("idgate listening")
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}
