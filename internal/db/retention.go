package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"idgate/internal/storage"
)

// runRetentionOnce performs a single pass of retention cleanup, deleting
// any call logs whose ExpiresAt is in the past. When an archiver is
// configured, the expired rows are first exported per calendar date; an
// archive failure leaves the rows in place for the next pass.
func runRetentionOnce(db *gorm.DB, archiver storage.LogArchiver) error {
	now := time.Now().UTC()

	if archiver != nil {
		var expired []APICallLog
		if err := db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) > 0 {
			byDate := make(map[string][]APICallLog)
			for _, l := range expired {
				date := l.CreatedAt.UTC().Format("2006-01-02")
				byDate[date] = append(byDate[date], l)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			for date, logs := range byDate {
				content, err := json.Marshal(logs)
				if err != nil {
					return err
				}
				key := fmt.Sprintf("call-logs/%s/%d.json", date, now.Unix())
				if err := archiver.Archive(ctx, key, content); err != nil {
					return err
				}
			}
		}
	}

	return db.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&APICallLog{}).Error
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day. archiver may
// be nil, in which case expired rows are simply dropped.
func StartRetentionWorker(db *gorm.DB, archiver storage.LogArchiver, logger *logrus.Logger) {
	log := logger.WithField("component", "retention")

	go func() {
		if err := runRetentionOnce(db, archiver); err != nil {
			log.WithError(err).Error("retention cleanup failed (startup)")
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runRetentionOnce(db, archiver); err != nil {
				log.WithError(err).Error("retention cleanup failed")
			}
		}
	}()
}
