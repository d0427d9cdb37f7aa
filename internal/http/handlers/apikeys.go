package handlers

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "idgate/internal/db"
)

type createKeyRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"`
	PerMinute     int    `json:"rate_limit_per_minute"`
	PerHour       int    `json:"rate_limit_per_hour"`
	PerDay        int    `json:"rate_limit_per_day"`
	AllowedIPs    string `json:"allowed_ips"`
	Description   string `json:"description"`
}

type keyResponse struct {
	ID                 string     `json:"id"`
	Key                string     `json:"key,omitempty"` // only returned at creation
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	Enabled            bool       `json:"enabled"`
	ExpiresAt          *time.Time `json:"expires_at"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	RateLimitPerHour   int        `json:"rate_limit_per_hour"`
	RateLimitPerDay    int        `json:"rate_limit_per_day"`
	AllowedIPs         string     `json:"allowed_ips"`
	TotalRequests      int64      `json:"total_requests"`
	LastUsedAt         *time.Time `json:"last_used_at"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toKeyResponse(k *dbpkg.APIKey, includeSecret bool) keyResponse {
	resp := keyResponse{
		ID:                 k.ID,
		Name:               k.Name,
		Status:             k.Status,
		Enabled:            k.Enabled,
		ExpiresAt:          k.ExpiresAt,
		RateLimitPerMinute: k.RateLimitPerMinute,
		RateLimitPerHour:   k.RateLimitPerHour,
		RateLimitPerDay:    k.RateLimitPerDay,
		AllowedIPs:         k.AllowedIPs,
		TotalRequests:      k.TotalRequests,
		LastUsedAt:         k.LastUsedAt,
		CreatedAt:          k.CreatedAt,
	}
	if includeSecret {
		resp.Key = k.Key
	}
	return resp
}

// CreateAPIKey issues a new key. The secret is returned exactly once, in
// this response.
func CreateAPIKey(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req createKeyRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Name == "" {
			WriteError(ctx, fasthttp.StatusBadRequest, "name is required", "ValidationError")
			return
		}

		var expiresAt *time.Time
		if req.ExpiresInDays > 0 {
			t := time.Now().UTC().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
			expiresAt = &t
		}

		key, err := dbpkg.CreateAPIKey(db, dbpkg.NewAPIKeyParams{
			Name:        req.Name,
			ExpiresAt:   expiresAt,
			PerMinute:   req.PerMinute,
			PerHour:     req.PerHour,
			PerDay:      req.PerDay,
			AllowedIPs:  req.AllowedIPs,
			Description: req.Description,
		})
		if err != nil {
			WriteError(ctx, fasthttp.StatusInternalServerError, "failed to create API key", "InternalServerError")
			return
		}

		writeEnvelope(ctx, fasthttp.StatusCreated, Envelope{Success: true, Data: toKeyResponse(key, true)})
	}
}

// ListAPIKeys returns every key without secrets.
func ListAPIKeys(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var keys []dbpkg.APIKey
		if err := db.Order("created_at DESC").Find(&keys).Error; err != nil {
			WriteError(ctx, fasthttp.StatusInternalServerError, "failed to list API keys", "InternalServerError")
			return
		}

		out := make([]keyResponse, 0, len(keys))
		for i := range keys {
			out = append(out, toKeyResponse(&keys[i], false))
		}
		WriteSuccess(ctx, out)
	}
}

type setEnabledRequest struct {
	ID      string `json:"id"`
	Enabled *bool  `json:"enabled"`
}

// SetAPIKeyEnabled flips a key's kill-switch. Keys are never hard-deleted
// while call logs reference them; disabling is the revocation path.
func SetAPIKeyEnabled(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req setEnabledRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.ID == "" || req.Enabled == nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "id and enabled are required", "ValidationError")
			return
		}

		if err := dbpkg.SetAPIKeyEnabled(db, req.ID, *req.Enabled); err != nil {
			if err == gorm.ErrRecordNotFound {
				WriteError(ctx, fasthttp.StatusNotFound, "API key not found", "NotFound")
				return
			}
			WriteError(ctx, fasthttp.StatusInternalServerError, "failed to update API key", "InternalServerError")
			return
		}

		WriteSuccess(ctx, map[string]interface{}{"id": req.ID, "enabled": *req.Enabled})
	}
}
