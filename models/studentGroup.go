package models

import "time"

// StudentGroup is the student<->group membership row. The sync engine
// creates one per observed (student, group) pair and never updates or
// removes it afterwards; the unique pair index rejects duplicates.
type StudentGroup struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	StudentId uint      `gorm:"uniqueIndex:idx_student_group,priority:1;not null" json:"student_id"`
	GroupId   uint      `gorm:"uniqueIndex:idx_student_group,priority:2;not null" json:"group_id"`
	SubjectId *uint     `gorm:"index" json:"subject_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
