package models

import "time"

// Branch is a school branch (filial). Branches with a CrmId mirror an
// organization record in the external CRM; rows without one are locally
// authored and never touched by the sync engine.
type Branch struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	CrmId        *int64     `gorm:"uniqueIndex" json:"crm_id"`
	Name         string     `gorm:"index;size:255;not null" json:"name"`
	Location     string     `gorm:"size:255;not null" json:"location"`
	Address      string     `gorm:"type:text" json:"address"`
	Phone        string     `gorm:"size:20" json:"phone"`
	IsActive     *bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
