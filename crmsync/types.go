package crmsync

import (
	"encoding/json"
	"strings"
	"time"
)

// Payload shapes returned by the external CRM. Field names follow the
// CRM's wire format, not ours.

type CrmPagination struct {
	Total       int `json:"total"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	TotalPages  int `json:"total_pages"`
}

type CrmOrganization struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type CrmSubject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CrmEducationYear struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CrmSpecialtyRef is the short specialty shape embedded in students and
// groups. The CRM emits specialty ids as strings on some endpoints and
// numbers on others, hence json.Number.
type CrmSpecialtyRef struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type CrmTeacherRef struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

type CrmGroupRef struct {
	ID    int64  `json:"id"`
	Level int    `json:"level"`
	Name  string `json:"name"`
}

type CrmStudent struct {
	ID            int64            `json:"id"`
	FullName      string           `json:"full_name"`
	FirstName     string           `json:"first_name"`
	SecondName    string           `json:"second_name"`
	ThirdName     string           `json:"third_name"`
	BirthDate     string           `json:"birth_date"`
	Gender        string           `json:"gender"`
	FatherPhone   string           `json:"father_phone"`
	MotherPhone   string           `json:"mother_phone"`
	Group         *CrmGroupRef     `json:"group"`
	Specialty     *CrmSpecialtyRef `json:"specialty"`
	Organization  *CrmOrganization `json:"organization"`
	EducationYear string           `json:"education_year"`
}

type CrmTeacher struct {
	ID           int64             `json:"id"`
	FullName     string            `json:"full_name"`
	FirstName    string            `json:"first_name"`
	SecondName   string            `json:"second_name"`
	ThirdName    string            `json:"third_name"`
	Phone        string            `json:"phone"`
	Phone2       string            `json:"phone2"`
	BirthDate    string            `json:"birth_date"`
	Gender       string            `json:"gender"`
	IsActive     bool              `json:"is_active"`
	TgChatId     string            `json:"tg_chat_id"`
	Organization *CrmOrganization  `json:"organization"`
	Subjects     []CrmSubject      `json:"subjects"`
	Groups       []CrmTeacherGroup `json:"groups"`
}

type CrmTeacherGroup struct {
	ID      int64       `json:"id"`
	Level   string      `json:"level"`
	Name    string      `json:"name"`
	Subject *CrmSubject `json:"subject"`
}

type CrmGroup struct {
	ID            int64             `json:"id"`
	Level         int               `json:"level"`
	Name          string            `json:"name"`
	FullName      string            `json:"full_name"`
	PupilCount    int               `json:"pupil_count"`
	EducationYear *CrmEducationYear `json:"education_year"`
	Organization  *CrmOrganization  `json:"organization"`
	Specialty     *CrmSpecialtyRef  `json:"specialty"`
	ClassTeacher  *CrmTeacherRef    `json:"class_teacher"`
}

type CrmSpecialty struct {
	ID             json.Number  `json:"id"`
	Name           string       `json:"name"`
	OrganizationId json.Number  `json:"organization_id"`
	Subjects       []CrmSubject `json:"subjects"`
}

// EntityStats is the per-entity-type counter block of one run.
type EntityStats struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
}

// SyncResult is the aggregated statistics block stored on the SyncLog.
type SyncResult struct {
	Branches   EntityStats `json:"branches"`
	Subjects   EntityStats `json:"subjects"`
	Directions EntityStats `json:"directions"`
	Teachers   EntityStats `json:"teachers"`
	Groups     EntityStats `json:"groups"`
	Students   EntityStats `json:"students"`
	DurationMs int64       `json:"duration_ms"`
	SyncErrors []string    `json:"sync_errors"`
}

// parseCrmDate returns nil for the CRM's many spellings of "no date"
// so a bad value never lands in the store as a zero time.
func parseCrmDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "0000-00-00", "null", "none", "undefined":
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
