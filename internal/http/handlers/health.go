package handlers

import (
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"
)

// HealthHandler reports the service status together with the health of
// its two substrates: the registry/log database and the counter store.
func HealthHandler(db *gorm.DB, rdb *redis.Client) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		health := map[string]interface{}{
			"status":   "healthy",
			"version":  "1.0.0",
			"database": "healthy",
			"cache":    "healthy",
		}

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			health["database"] = "error: " + err.Error()
			health["status"] = "degraded"
		}

		if err := rdb.Ping(ctx).Err(); err != nil {
			health["cache"] = "error: " + err.Error()
			health["status"] = "degraded"
		}

		WriteSuccess(ctx, health)
	}
}
