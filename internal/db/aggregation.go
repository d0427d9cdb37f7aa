package db

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// daySummary is the folded form of one key's call logs for one date.
type daySummary struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64

	totalValidations      int64
	successfulValidations int64
	failedValidations     int64

	minMs float64
	maxMs float64
	sumMs float64

	requestBytes  int64
	responseBytes int64

	cacheHits   int64
	cacheMisses int64

	billableUnits int64
}

// summarizeCallLogs folds a day's rows for one key into a summary.
// Recomputing from the rows (rather than incrementing a stored summary)
// keeps the upsert idempotent.
func summarizeCallLogs(logs []APICallLog) daySummary {
	var s daySummary
	for _, l := range logs {
		s.totalRequests++
		if l.StatusCode < 400 {
			s.successfulRequests++
		} else {
			s.failedRequests++
		}

		if l.ValidationSuccessful != nil {
			n := int64(l.NationalIDCount)
			if n == 0 {
				n = 1
			}
			s.totalValidations += n
			if *l.ValidationSuccessful {
				s.successfulValidations += n
			} else {
				s.failedValidations += n
			}
		}

		if s.totalRequests == 1 || l.ResponseTimeMs < s.minMs {
			s.minMs = l.ResponseTimeMs
		}
		if l.ResponseTimeMs > s.maxMs {
			s.maxMs = l.ResponseTimeMs
		}
		s.sumMs += l.ResponseTimeMs

		s.requestBytes += int64(l.RequestSizeBytes)
		s.responseBytes += int64(l.ResponseSizeBytes)

		if l.CacheHit {
			s.cacheHits++
		} else {
			s.cacheMisses++
		}
	}

	// Billing counts successfully validated IDs.
	s.billableUnits = s.successfulValidations
	return s
}

func (s daySummary) avgMs() float64 {
	if s.totalRequests == 0 {
		return 0
	}
	return s.sumMs / float64(s.totalRequests)
}

// runDailyAggregationOnce rolls up call logs for the given UTC calendar
// date into DailyUsageSummary rows, one per key that made calls that day.
func runDailyAggregationOnce(db *gorm.DB, date time.Time) error {
	dayStart := date.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var logs []APICallLog
	if err := db.Where("created_at >= ? AND created_at < ? AND api_key_id IS NOT NULL", dayStart, dayEnd).
		Select("api_key_id", "status_code", "response_time_ms", "request_size_bytes",
			"response_size_bytes", "validation_successful", "national_id_count", "cache_hit").
		Find(&logs).Error; err != nil {
		return err
	}

	groups := make(map[string][]APICallLog)
	for _, l := range logs {
		if l.APIKeyID == nil {
			continue
		}
		groups[*l.APIKeyID] = append(groups[*l.APIKeyID], l)
	}

	for keyID, list := range groups {
		s := summarizeCallLogs(list)

		row := DailyUsageSummary{
			APIKeyID:              keyID,
			Date:                  dayStart,
			TotalRequests:         s.totalRequests,
			SuccessfulRequests:    s.successfulRequests,
			FailedRequests:        s.failedRequests,
			TotalValidations:      s.totalValidations,
			SuccessfulValidations: s.successfulValidations,
			FailedValidations:     s.failedValidations,
			AvgResponseTimeMs:     s.avgMs(),
			MinResponseTimeMs:     s.minMs,
			MaxResponseTimeMs:     s.maxMs,
			TotalRequestBytes:     s.requestBytes,
			TotalResponseBytes:    s.responseBytes,
			CacheHits:             s.cacheHits,
			CacheMisses:           s.cacheMisses,
			BillableUnits:         s.billableUnits,
		}

		var existing DailyUsageSummary
		err := db.Where("api_key_id = ? AND date = ?", keyID, dayStart).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			err = db.Create(&row).Error
		} else if err == nil {
			err = db.Model(&existing).Updates(map[string]interface{}{
				"total_requests":         row.TotalRequests,
				"successful_requests":    row.SuccessfulRequests,
				"failed_requests":        row.FailedRequests,
				"total_validations":      row.TotalValidations,
				"successful_validations": row.SuccessfulValidations,
				"failed_validations":     row.FailedValidations,
				"avg_response_time_ms":   row.AvgResponseTimeMs,
				"min_response_time_ms":   row.MinResponseTimeMs,
				"max_response_time_ms":   row.MaxResponseTimeMs,
				"total_request_bytes":    row.TotalRequestBytes,
				"total_response_bytes":   row.TotalResponseBytes,
				"cache_hits":             row.CacheHits,
				"cache_misses":           row.CacheMisses,
				"billable_units":         row.BillableUnits,
			}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartAggregationWorker recomputes yesterday's and today's summaries at
// startup, then re-runs today's every hour. The first run after the UTC
// day rolls over also finalizes the previous date.
func StartAggregationWorker(db *gorm.DB, logger *logrus.Logger) {
	log := logger.WithField("component", "aggregation")

	go func() {
		now := time.Now().UTC()
		for _, date := range []time.Time{now.Add(-24 * time.Hour), now} {
			if err := runDailyAggregationOnce(db, date); err != nil {
				log.WithError(err).WithField("date", date.Format("2006-01-02")).Error("aggregation failed (startup)")
			}
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			now := t.UTC()
			if now.Hour() == 0 {
				if err := runDailyAggregationOnce(db, now.Add(-24*time.Hour)); err != nil {
					log.WithError(err).Error("aggregation failed for previous day")
				}
			}
			if err := runDailyAggregationOnce(db, now); err != nil {
				log.WithError(err).Error("aggregation failed")
			}
		}
	}()
}
