package models

import "time"

const (
	SyncTypeManual    = "manual"
	SyncTypeScheduled = "scheduled"
)

const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncLog is the audit ledger of CRM sync runs. A row is created with
// status "running" before any network call, finalized exactly once at run
// end, and only ever touched again by the startup crash-recovery pass.
type SyncLog struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	Type        string     `gorm:"size:20;not null" json:"type"`
	Status      string     `gorm:"size:20;not null;index" json:"status"`
	ResultJSON  []byte     `gorm:"type:json" json:"result"`
	StartedAt   time.Time  `gorm:"index;not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	DurationMs  int64      `json:"duration_ms"`
	TriggeredBy *uint      `gorm:"index" json:"triggered_by"`
	Error       string     `gorm:"type:text" json:"error"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
