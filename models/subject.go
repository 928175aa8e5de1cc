package models

import "time"

type Subject struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	CrmId        *int64     `gorm:"uniqueIndex" json:"crm_id"`
	Name         string     `gorm:"index;size:255;not null" json:"name"`
	IsMandatory  *bool      `gorm:"not null;default:false" json:"is_mandatory"`
	IsActive     *bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
