package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BindingsMap stores a job's variable bindings as JSONB.
type BindingsMap map[string]any

func (b *BindingsMap) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, b)
}

func (b BindingsMap) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// ResultRecord is the persisted form of one job outcome, written by the
// dispatcher as results arrive. JobKey is the job's canonical config
// rendering, which is what the coordinator correlates on.
type ResultRecord struct {
	ID          uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	BatchID     uuid.UUID   `json:"batch_id" gorm:"type:uuid;not null;index"`
	JobID       uuid.UUID   `json:"job_id" gorm:"type:uuid;not null;index"`
	JobKey      string      `json:"job_key" gorm:"not null"`
	WorkerID    string      `json:"worker_id"`
	Bindings    BindingsMap `json:"bindings" gorm:"type:jsonb"`
	Output      []byte      `json:"output"`
	SimError    string      `json:"sim_error"`
	Failure     string      `json:"failure"`
	CompletedAt time.Time   `json:"completed_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

// BeforeCreate hook to generate UUID if not present
func (r *ResultRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// Failed reports whether this record captures a boundary failure rather
// than a produced result.
func (r *ResultRecord) Failed() bool {
	return r.Failure != ""
}
