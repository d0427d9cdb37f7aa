package db

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// API key status values. Status is an administrative classification and is
// independent of the Enabled kill-switch.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// APIKey is the identity and policy record for one issued credential.
// The Key column holds the raw secret presented by callers.
type APIKey struct {
	ID string `gorm:"primaryKey;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Key is the opaque secret itself. Unique across all keys and
	// immutable once issued.
	Key string `gorm:"uniqueIndex;size:64;not null"`

	// Name is a human-friendly label (e.g. "billing-backend").
	Name string `gorm:"size:128;not null"`

	// OwnerID is a weak reference to an owning account. The key stays
	// queryable if the owner row is later removed.
	OwnerID *uint `gorm:"index"`

	Status  string `gorm:"size:20;not null;default:active"`
	Enabled bool   `gorm:"not null;default:true"`

	// ExpiresAt of nil means the key never expires.
	ExpiresAt *time.Time

	RateLimitPerMinute int `gorm:"not null;default:100"`
	RateLimitPerHour   int `gorm:"not null;default:1000"`
	RateLimitPerDay    int `gorm:"not null;default:10000"`

	// AllowedIPs is a comma-separated list of IP literals. Empty means
	// no IP restriction.
	AllowedIPs string `gorm:"size:1024"`

	TotalRequests int64 `gorm:"not null;default:0"`
	LastUsedAt    *time.Time

	Description string
}

// IsValid reports whether the key may authenticate at the given instant:
// enabled, administratively active and not expired.
func (k *APIKey) IsValid(now time.Time) bool {
	if !k.Enabled || k.Status != StatusActive {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}

// IsIPAllowed reports whether the client IP may use this key. An empty
// allow-list admits any address.
func (k *APIKey) IsIPAllowed(ip string) bool {
	if strings.TrimSpace(k.AllowedIPs) == "" {
		return true
	}
	for _, allowed := range strings.Split(k.AllowedIPs, ",") {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}

// RateLimits returns the per-window ceilings in minute, hour, day order.
func (k *APIKey) RateLimits() (minute, hour, day int) {
	return k.RateLimitPerMinute, k.RateLimitPerHour, k.RateLimitPerDay
}

// APICallLog is one immutable record per completed request, created after
// the response is finalized. Retention is handled by the retention worker;
// the request path never mutates or deletes rows.
type APICallLog struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"index"`

	// ExpiresAt is when this row becomes eligible for retention cleanup.
	ExpiresAt *time.Time `gorm:"index"`

	// APIKeyID is nil for exempt or unauthenticated calls.
	APIKeyID *string `gorm:"index;size:36"`

	RequestID string `gorm:"uniqueIndex;size:36;not null"`

	Endpoint    string            `gorm:"size:255;index"`
	Method      string            `gorm:"size:10"`
	Path        string            `gorm:"size:500"`
	QueryParams datatypes.JSONMap `gorm:"type:json"`

	IPAddress string `gorm:"size:45;index"`
	UserAgent string
	Referer   string

	RequestBody      string
	RequestSizeBytes int

	StatusCode        int `gorm:"index"`
	ResponseBody      string
	ResponseSizeBytes int
	ResponseTimeMs    float64

	// ValidationSuccessful is nil when the request carried no decoder
	// outcome (health checks, denials before the handler ran).
	ValidationSuccessful *bool

	// NationalIDCount is the number of IDs processed, >1 for bulk calls.
	NationalIDCount int `gorm:"not null;default:0"`

	CacheHit     bool `gorm:"not null;default:false"`
	ErrorMessage string
}

// DailyUsageSummary is the per-(key, calendar date) rollup maintained by the
// aggregation worker. Never written by request handling.
type DailyUsageSummary struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	APIKeyID string    `gorm:"uniqueIndex:idx_daily_summary_unique,priority:1;size:36;not null"`
	Date     time.Time `gorm:"uniqueIndex:idx_daily_summary_unique,priority:2;not null"` // midnight UTC

	TotalRequests      int64 `gorm:"not null;default:0"`
	SuccessfulRequests int64 `gorm:"not null;default:0"`
	FailedRequests     int64 `gorm:"not null;default:0"`

	TotalValidations      int64 `gorm:"not null;default:0"`
	SuccessfulValidations int64 `gorm:"not null;default:0"`
	FailedValidations     int64 `gorm:"not null;default:0"`

	AvgResponseTimeMs float64
	MinResponseTimeMs float64
	MaxResponseTimeMs float64

	TotalRequestBytes  int64 `gorm:"not null;default:0"`
	TotalResponseBytes int64 `gorm:"not null;default:0"`

	CacheHits   int64 `gorm:"not null;default:0"`
	CacheMisses int64 `gorm:"not null;default:0"`

	// BillableUnits counts successful validations, the unit billing is
	// computed from.
	BillableUnits int64 `gorm:"not null;default:0"`
}

// AdminUser can call the key-management endpoints. The bootstrap admin
// (from env) is created as a row in this table on startup.
type AdminUser struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`
}
