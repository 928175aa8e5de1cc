package models

import "time"

const (
	SubjectSetSingle = "single"
	SubjectSetChoice = "choice"
)

// Direction is a study direction (specialty), e.g. "Fizika-Matematika".
type Direction struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	CrmId        *int64     `gorm:"uniqueIndex" json:"crm_id"`
	Name         string     `gorm:"index;size:255;not null" json:"name"`
	IsActive     *bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Subjects []DirectionSubject `gorm:"foreignKey:DirectionId" json:"subjects"`
}

// DirectionSubject links a direction to one of its subjects. SetType
// groups the links into "single" (fixed) or "choice" (pick one) sets.
type DirectionSubject struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	DirectionId uint      `gorm:"uniqueIndex:idx_direction_subject,priority:1;not null" json:"direction_id"`
	SubjectId   uint      `gorm:"uniqueIndex:idx_direction_subject,priority:2;not null" json:"subject_id"`
	SetType     string    `gorm:"size:10;not null;default:single" json:"set_type"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
