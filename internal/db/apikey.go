package db

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GenerateSecret produces a new high-entropy API key secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "nid_" + base64.URLEncoding.EncodeToString(b), nil
}

// NewAPIKeyParams carries the caller-supplied fields for key creation.
// Zero values fall back to the registry defaults.
type NewAPIKeyParams struct {
	Name        string
	Secret      string // generated when empty
	OwnerID     *uint
	ExpiresAt   *time.Time
	PerMinute   int
	PerHour     int
	PerDay      int
	AllowedIPs  string
	Description string
}

// CreateAPIKey inserts a new key record, assigning the secret if absent.
func CreateAPIKey(db *gorm.DB, p NewAPIKeyParams) (*APIKey, error) {
	secret := p.Secret
	if secret == "" {
		var err error
		if secret, err = GenerateSecret(); err != nil {
			return nil, err
		}
	}

	key := &APIKey{
		ID:                 uuid.NewString(),
		Key:                secret,
		Name:               p.Name,
		OwnerID:            p.OwnerID,
		Status:             StatusActive,
		Enabled:            true,
		ExpiresAt:          p.ExpiresAt,
		RateLimitPerMinute: 100,
		RateLimitPerHour:   1000,
		RateLimitPerDay:    10000,
		AllowedIPs:         p.AllowedIPs,
		Description:        p.Description,
	}
	if p.PerMinute > 0 {
		key.RateLimitPerMinute = p.PerMinute
	}
	if p.PerHour > 0 {
		key.RateLimitPerHour = p.PerHour
	}
	if p.PerDay > 0 {
		key.RateLimitPerDay = p.PerDay
	}

	if err := db.Create(key).Error; err != nil {
		return nil, err
	}
	return key, nil
}

// FindAPIKeyBySecret looks up a key by its raw secret. Returns
// gorm.ErrRecordNotFound when no such key exists.
func FindAPIKeyBySecret(db *gorm.DB, secret string) (*APIKey, error) {
	var key APIKey
	if err := db.Where("key = ?", secret).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// SetAPIKeyEnabled flips the kill-switch on a key.
func SetAPIKeyEnabled(db *gorm.DB, id string, enabled bool) error {
	res := db.Model(&APIKey{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementAPIKeyUsage bumps the usage counter and last-used timestamp.
// Eventually consistent; separate from the rate-limit counters.
func IncrementAPIKeyUsage(db *gorm.DB, id string, now time.Time) error {
	return db.Model(&APIKey{}).Where("id = ?", id).Updates(map[string]interface{}{
		"total_requests": gorm.Expr("total_requests + 1"),
		"last_used_at":   now,
	}).Error
}
