package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

// FailedJobRecord is a job that exhausted its retries. The table is created
// by the migrations.
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	JobType  string    `gorm:"size:255;not null;index" json:"job_type"`
	Payload  string    `gorm:"type:text;not null" json:"payload"`
	Error    string    `gorm:"type:text" json:"error"`
	Attempts int       `gorm:"not null;default:0" json:"attempts"`
	FailedAt time.Time `gorm:"autoCreateTime" json:"failed_at"`
}

func (FailedJobRecord) TableName() string { return "bunkar_failed_jobs" }

var failedJobDB *gorm.DB

// UseDB persists failed jobs to db in addition to the in-memory list.
func UseDB(db *gorm.DB) {
	defaultManager.mu.Lock()
	failedJobDB = db
	defaultManager.mu.Unlock()
}

// StoredFailures lists persisted failures, newest first.
func StoredFailures(ctx context.Context, limit int) ([]FailedJobRecord, error) {
	defaultManager.mu.RLock()
	db := failedJobDB
	defaultManager.mu.RUnlock()
	if db == nil {
		return nil, nil
	}

	var out []FailedJobRecord
	err := db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (m *Manager) persistFailed(ctx context.Context, job Job, typeName string, lastErr error, attempts int) {
	m.mu.Lock()
	m.failed = append(m.failed, FailedJob{
		Job: job, Type: typeName, Err: lastErr, FailedAt: time.Now(), Attempts: attempts,
	})
	db := failedJobDB
	m.mu.Unlock()

	if db == nil {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error": "could not marshal: %v"}`, err))
	}

	errText := ""
	if lastErr != nil {
		errText = lastErr.Error()
	}

	record := FailedJobRecord{
		JobType:  typeName,
		Payload:  string(payload),
		Error:    errText,
		Attempts: attempts,
		FailedAt: time.Now(),
	}

	if err := db.WithContext(context.WithoutCancel(ctx)).Create(&record).Error; err != nil {
		logger.Error("queue: persist failed job", "type", typeName, "error", err)
	}
}
