// Package usage persists call logs and per-key usage counters after the
// response is finalized. Recording is best-effort: a failure here is
// reported to operational logging and never changes the response already
// produced.
package usage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "idgate/internal/db"
)

const (
	// maxRequestBodyBytes caps how much of a request body is retained in
	// the call log.
	maxRequestBodyBytes = 10000

	// maxResponseBodyBytes is the size below which successful response
	// bodies are retained in full. Error responses are always retained.
	maxResponseBodyBytes = 1000
)

// CallInfo is everything the recorder needs about one completed request.
type CallInfo struct {
	RequestID string

	// Key is the resolved key, nil for exempt or unauthenticated calls.
	Key *dbpkg.APIKey

	Endpoint    string
	Method      string
	Path        string
	QueryParams map[string]interface{}

	IPAddress string
	UserAgent string
	Referer   string

	RequestBody  []byte
	ResponseBody []byte
	StatusCode   int
	Duration     time.Duration

	ValidationSuccessful *bool
	NationalIDCount      int
	CacheHit             bool
	ErrorMessage         string

	// RetentionDays controls when the retention worker may delete the
	// row. Zero means the row never expires.
	RetentionDays int
}

// Recorder writes call logs and usage counters to the durable store.
type Recorder struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewRecorder(db *gorm.DB, logger *logrus.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: logger.WithField("component", "usage"),
	}
}

// Record appends the call log entry and, when the call resolved to a
// registry-backed key, bumps that key's usage counters. Each side effect
// fails independently and only warns.
func (r *Recorder) Record(ctx context.Context, info CallInfo) {
	now := time.Now().UTC()

	entry := dbpkg.APICallLog{
		CreatedAt:            now,
		RequestID:            info.RequestID,
		Endpoint:             info.Endpoint,
		Method:               info.Method,
		Path:                 info.Path,
		IPAddress:            info.IPAddress,
		UserAgent:            info.UserAgent,
		Referer:              info.Referer,
		RequestBody:          capRequestBody(info.RequestBody),
		RequestSizeBytes:     len(info.RequestBody),
		StatusCode:           info.StatusCode,
		ResponseBody:         capResponseBody(info.ResponseBody, info.StatusCode),
		ResponseSizeBytes:    len(info.ResponseBody),
		ResponseTimeMs:       float64(info.Duration.Microseconds()) / 1000.0,
		ValidationSuccessful: info.ValidationSuccessful,
		NationalIDCount:      info.NationalIDCount,
		CacheHit:             info.CacheHit,
		ErrorMessage:         info.ErrorMessage,
	}

	if info.Key != nil {
		id := info.Key.ID
		entry.APIKeyID = &id
	}
	if len(info.QueryParams) > 0 {
		entry.QueryParams = datatypes.JSONMap(info.QueryParams)
	}
	if info.RetentionDays > 0 {
		t := now.Add(time.Duration(info.RetentionDays) * 24 * time.Hour)
		entry.ExpiresAt = &t
	}

	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.log.WithError(err).WithField("request_id", info.RequestID).Warn("failed to save call log")
	}

	if info.Key != nil {
		if err := dbpkg.IncrementAPIKeyUsage(r.db.WithContext(ctx), info.Key.ID, now); err != nil {
			r.log.WithError(err).WithField("api_key", info.Key.ID).Warn("failed to update key usage")
		}
	}
}

func capRequestBody(body []byte) string {
	if len(body) > maxRequestBodyBytes {
		return string(body[:maxRequestBodyBytes]) + "... [truncated]"
	}
	return string(body)
}

// capResponseBody retains error responses in full so failures stay
// diagnosable, and successful bodies only below the cap.
func capResponseBody(body []byte, status int) string {
	if status >= 400 || len(body) < maxResponseBodyBytes {
		return string(body)
	}
	return ""
}
