package models

import "time"

// Group is a class group, e.g. "8-A Tibbiyot". BranchId is required: a
// group whose branch cannot be resolved is skipped by the sync engine
// rather than written with a dangling reference.
type Group struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	CrmId         *int64     `gorm:"uniqueIndex" json:"crm_id"`
	BranchId      uint       `gorm:"index;not null" json:"branch_id"`
	Name          string     `gorm:"index;size:255;not null" json:"name"`
	ClassNumber   int        `gorm:"index;not null" json:"class_number"`
	Letter        string     `gorm:"size:10" json:"letter"`
	TeacherId     *uint      `gorm:"index" json:"teacher_id"`
	DirectionId   *uint      `gorm:"index" json:"direction_id"`
	SubjectId     *uint      `gorm:"index" json:"subject_id"`
	Capacity      int        `gorm:"default:20" json:"capacity"`
	PupilCount    int        `json:"pupil_count"`
	EducationYear string     `gorm:"size:20" json:"education_year"`
	IsActive      *bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
