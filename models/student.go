package models

import "time"

type Student struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	CrmId        *int64     `gorm:"uniqueIndex" json:"crm_id"`
	BranchId     uint       `gorm:"index;not null" json:"branch_id"`
	FullName     string     `gorm:"index;size:255;not null" json:"full_name"`
	FirstName    string     `gorm:"size:100" json:"first_name"`
	LastName     string     `gorm:"size:100" json:"last_name"`
	Patronymic   string     `gorm:"size:100" json:"patronymic"`
	BirthDate    *time.Time `json:"birth_date"`
	Gender       string     `gorm:"size:10" json:"gender"`
	ClassNumber  int        `gorm:"index;not null" json:"class_number"`
	Phone        string     `gorm:"size:20" json:"phone"`
	MotherPhone  string     `gorm:"size:20" json:"mother_phone"`
	DirectionId  *uint      `gorm:"index" json:"direction_id"`
	ProfileToken string     `gorm:"uniqueIndex;size:64;not null" json:"profile_token"`
	IsGraduated  *bool      `gorm:"not null;default:false;index" json:"is_graduated"`
	IsActive     *bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
