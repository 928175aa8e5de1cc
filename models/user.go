package models

import "time"

const (
	RoleSuperAdmin = "super_admin"
	RoleFilAdmin   = "fil_admin"
	RoleTeacher    = "teacher"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// User covers admins and teachers. Teacher accounts created by the sync
// engine carry a CrmId and a generated username; their password is a
// hashed default reset through the normal credentials flow.
type User struct {
	ID           uint       `gorm:"primary_key" json:"id"`
	CrmId        *int64     `gorm:"uniqueIndex" json:"crm_id"`
	Username     string     `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password     string     `gorm:"size:255;not null" json:"-"`
	FullName     string     `gorm:"index;size:255;not null" json:"full_name"`
	FirstName    string     `gorm:"size:100" json:"first_name"`
	LastName     string     `gorm:"size:100" json:"last_name"`
	Patronymic   string     `gorm:"size:100" json:"patronymic"`
	Phone        string     `gorm:"size:20" json:"phone"`
	Phone2       string     `gorm:"size:20" json:"phone2"`
	BirthDate    *time.Time `json:"birth_date"`
	Gender       string     `gorm:"size:10" json:"gender"`
	Role         string     `gorm:"size:20;not null;index" json:"role"`
	BranchId     *uint      `gorm:"index" json:"branch_id"`
	TgChatId     string     `gorm:"size:64" json:"tg_chat_id"`
	IsActive     *bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	TeacherSubjects []TeacherSubject `gorm:"foreignKey:UserId" json:"teacher_subjects"`
}

// TeacherSubject links a teacher account to a subject it teaches.
type TeacherSubject struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	UserId    uint      `gorm:"uniqueIndex:idx_teacher_subject,priority:1;not null" json:"user_id"`
	SubjectId uint      `gorm:"uniqueIndex:idx_teacher_subject,priority:2;not null" json:"subject_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
