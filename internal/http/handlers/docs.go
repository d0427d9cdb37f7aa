package handlers

import (
	"github.com/valyala/fasthttp"

	"idgate/internal/config"
)

// DocsHandler serves a machine-readable description of the API.
func DocsHandler(cfg *config.Config) fasthttp.RequestHandler {
	docs := map[string]interface{}{
		"title":       "Egyptian National ID Validator API",
		"version":     "1.0.0",
		"description": "API for validating Egyptian National IDs and extracting relevant data",
		"endpoints": map[string]interface{}{
			"POST /api/v1/validate": map[string]interface{}{
				"description": "Validate a single Egyptian National ID",
				"parameters": map[string]string{
					"national_id":     "string (required) - 14-digit Egyptian National ID",
					"include_details": "boolean (optional, default: true) - Include detailed validation info",
				},
			},
			"POST /api/v1/validate/bulk": map[string]interface{}{
				"description": "Validate multiple Egyptian National IDs in bulk",
				"parameters": map[string]string{
					"national_ids":    "array of strings (required) - Up to 100 National IDs",
					"include_details": "boolean (optional, default: false) - Include detailed validation info",
				},
			},
			"GET /api/v1/health": map[string]interface{}{
				"description": "Check service health status",
			},
		},
		"authentication": map[string]string{
			"type":        "API Key",
			"header":      cfg.APIKeyHeader,
			"description": "Include your API key in the " + cfg.APIKeyHeader + " header",
		},
		"rate_limits": "Per API key: per-minute, per-hour and per-day ceilings; check your key settings",
		"response_format": map[string]string{
			"success":            "boolean - Indicates if the request was successful",
			"data":               "object - Response data (null on error)",
			"error":              "object - Error details (null on success)",
			"timestamp":          "string - ISO 8601 timestamp",
			"processing_time_ms": "number - Request processing time in milliseconds",
		},
	}

	return func(ctx *fasthttp.RequestCtx) {
		WriteSuccess(ctx, docs)
	}
}

// RootHandler serves basic API metadata at the root paths.
func RootHandler(cfg *config.Config) fasthttp.RequestHandler {
	info := map[string]interface{}{
		"title":       "Egyptian National ID Validator API",
		"version":     "1.0.0",
		"description": "API for validating Egyptian National IDs and extracting relevant data",
		"endpoints": map[string]string{
			"validate":      "/api/v1/validate",
			"bulk_validate": "/api/v1/validate/bulk",
			"health":        "/api/v1/health",
			"documentation": "/api/v1/docs",
		},
		"authentication": "API Key required (" + cfg.APIKeyHeader + " header)",
	}

	return func(ctx *fasthttp.RequestCtx) {
		WriteSuccess(ctx, info)
	}
}
