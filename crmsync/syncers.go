package crmsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/edumatic/school_backend/models"
	"github.com/edumatic/school_backend/utils"
)

// defaultTeacherPassword is the initial credential for teacher accounts
// created by the sync. Teachers change it through the normal flow.
const defaultTeacherPassword = "teacher123"

func crmIDValue(n json.Number) (int64, bool) {
	id, err := n.Int64()
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// idByCrmID resolves the local primary key of a synced row, nil when
// the CRM id is unknown locally.
func idByCrmID(tx *gorm.DB, model interface{}, crmID int64) (*uint, error) {
	var ids []uint
	if err := tx.Model(model).Where("crm_id = ?", crmID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

// subjectIDsByCrmIDs maps CRM subject ids to local subject ids,
// silently dropping unknown ones.
func subjectIDsByCrmIDs(tx *gorm.DB, crmIDs []int64) ([]uint, error) {
	if len(crmIDs) == 0 {
		return nil, nil
	}
	var rows []models.Subject
	if err := tx.Select("id", "crm_id").Where("crm_id IN ?", crmIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	byCrm := make(map[int64]uint, len(rows))
	for _, row := range rows {
		if row.CrmId != nil {
			byCrm[*row.CrmId] = row.ID
		}
	}
	ids := make([]uint, 0, len(crmIDs))
	seen := make(map[uint]struct{}, len(crmIDs))
	for _, crmID := range crmIDs {
		if id, ok := byCrm[crmID]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// generateTeacherUsername builds "first.second_<crmID>" from the
// latinized full name, or "teacher_<crmID>" when the name does not
// yield two usable parts.
func generateTeacherUsername(fullName string, crmID int64) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(fullName)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	parts := strings.Fields(b.String())
	if len(parts) >= 2 {
		return fmt.Sprintf("%s.%s_%d", parts[0], parts[1], crmID)
	}
	return fmt.Sprintf("teacher_%d", crmID)
}

type orgEntry struct {
	ID int64
	CrmOrganization
}

func (s *Service) syncBranches(tx *gorm.DB, orgs map[int64]CrmOrganization, feedComplete bool) (EntityStats, error) {
	entries := make([]orgEntry, 0, len(orgs))
	for id, org := range orgs {
		entries = append(entries, orgEntry{ID: id, CrmOrganization: org})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	syncer := entitySyncer[orgEntry, models.Branch]{
		name:       "branches",
		externalID: func(e orgEntry) (int64, bool) { return e.ID, e.ID != 0 },
		assign: func(tx *gorm.DB, e orgEntry, b *models.Branch) error {
			crmID := e.ID
			b.CrmId = &crmID
			b.Name = strings.TrimSpace(e.Name)
			b.Location = utils.FirstNonEmpty(strings.TrimSpace(e.Address), b.Name)
			b.Address = strings.TrimSpace(e.Address)
			b.Phone = utils.NormalizePhone(e.Phone)
			b.IsActive = utils.NewTrue()
			b.LastSyncedAt = utils.NewTime(time.Now())
			return nil
		},
		deactivate: true,
	}
	stats, err := syncer.run(tx, entries, feedComplete)
	s.logStats("branches", stats)
	return stats, err
}

type subjectEntry struct {
	ID   int64
	Name string
}

func (s *Service) syncSubjects(tx *gorm.DB, subjects map[int64]string) (EntityStats, error) {
	entries := make([]subjectEntry, 0, len(subjects))
	for id, name := range subjects {
		entries = append(entries, subjectEntry{ID: id, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	syncer := entitySyncer[subjectEntry, models.Subject]{
		name:       "subjects",
		externalID: func(e subjectEntry) (int64, bool) { return e.ID, e.ID != 0 },
		// Adopt a same-named locally created subject instead of
		// inserting a duplicate.
		findFallback: func(tx *gorm.DB, e subjectEntry) (*models.Subject, bool, error) {
			var subj models.Subject
			err := tx.Where("crm_id IS NULL AND name = ?", e.Name).Take(&subj).Error
			if err == gorm.ErrRecordNotFound {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			return &subj, true, nil
		},
		assign: func(tx *gorm.DB, e subjectEntry, subj *models.Subject) error {
			crmID := e.ID
			subj.CrmId = &crmID
			subj.Name = e.Name
			subj.IsActive = utils.NewTrue()
			subj.LastSyncedAt = utils.NewTime(time.Now())
			return nil
		},
	}
	stats, err := syncer.run(tx, entries, false)
	s.logStats("subjects", stats)
	return stats, err
}

func (s *Service) syncDirections(tx *gorm.DB, specialties []CrmSpecialty) (EntityStats, error) {
	syncer := entitySyncer[CrmSpecialty, models.Direction]{
		name: "directions",
		externalID: func(sp CrmSpecialty) (int64, bool) {
			return crmIDValue(sp.ID)
		},
		assign: func(tx *gorm.DB, sp CrmSpecialty, dir *models.Direction) error {
			crmID, _ := crmIDValue(sp.ID)
			dir.CrmId = &crmID
			dir.Name = strings.TrimSpace(sp.Name)
			dir.IsActive = utils.NewTrue()
			dir.LastSyncedAt = utils.NewTime(time.Now())
			return nil
		},
		afterSave: func(tx *gorm.DB, sp CrmSpecialty, dir *models.Direction) error {
			crmIDs := make([]int64, 0, len(sp.Subjects))
			for _, subj := range sp.Subjects {
				crmIDs = append(crmIDs, subj.ID)
			}
			subjectIDs, err := subjectIDsByCrmIDs(tx, crmIDs)
			if err != nil {
				return err
			}
			if err := tx.Where("direction_id = ?", dir.ID).Delete(&models.DirectionSubject{}).Error; err != nil {
				return err
			}
			if len(subjectIDs) == 0 {
				return nil
			}
			links := make([]models.DirectionSubject, 0, len(subjectIDs))
			for _, id := range subjectIDs {
				links = append(links, models.DirectionSubject{
					DirectionId: dir.ID,
					SubjectId:   id,
					SetType:     models.SubjectSetSingle,
				})
			}
			return tx.Create(&links).Error
		},
	}
	stats, err := syncer.run(tx, specialties, false)
	s.logStats("directions", stats)
	return stats, err
}

func (s *Service) syncTeachers(tx *gorm.DB, teachers []CrmTeacher) (EntityStats, error) {
	syncer := entitySyncer[CrmTeacher, models.User]{
		name:       "teachers",
		externalID: func(t CrmTeacher) (int64, bool) { return t.ID, t.ID != 0 },
		assign: func(tx *gorm.DB, t CrmTeacher, u *models.User) error {
			crmID := t.ID
			u.CrmId = &crmID
			u.FullName = strings.TrimSpace(t.FullName)
			u.FirstName = strings.TrimSpace(t.FirstName)
			u.LastName = strings.TrimSpace(t.SecondName)
			u.Patronymic = strings.TrimSpace(t.ThirdName)
			u.Phone = utils.NormalizePhone(t.Phone)
			u.Phone2 = utils.NormalizePhone(t.Phone2)
			u.BirthDate = parseCrmDate(t.BirthDate)
			u.Gender = strings.ToLower(strings.TrimSpace(t.Gender))
			u.Role = models.RoleTeacher
			u.TgChatId = strings.TrimSpace(t.TgChatId)
			if t.IsActive {
				u.IsActive = utils.NewTrue()
			} else {
				u.IsActive = utils.NewFalse()
			}
			u.LastSyncedAt = utils.NewTime(time.Now())
			u.BranchId = nil
			if t.Organization != nil {
				branchID, err := idByCrmID(tx, &models.Branch{}, t.Organization.ID)
				if err != nil {
					return err
				}
				u.BranchId = branchID
			}
			return nil
		},
		onCreate: func(tx *gorm.DB, t CrmTeacher, u *models.User) error {
			u.Username = generateTeacherUsername(t.FullName, t.ID)
			hashed, err := utils.HashPassword(defaultTeacherPassword)
			if err != nil {
				return err
			}
			u.Password = string(hashed)
			return nil
		},
		afterSave: func(tx *gorm.DB, t CrmTeacher, u *models.User) error {
			crmIDs := make([]int64, 0, len(t.Subjects)+len(t.Groups))
			for _, subj := range t.Subjects {
				crmIDs = append(crmIDs, subj.ID)
			}
			for _, grp := range t.Groups {
				if grp.Subject != nil {
					crmIDs = append(crmIDs, grp.Subject.ID)
				}
			}
			subjectIDs, err := subjectIDsByCrmIDs(tx, crmIDs)
			if err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", u.ID).Delete(&models.TeacherSubject{}).Error; err != nil {
				return err
			}
			if len(subjectIDs) == 0 {
				return nil
			}
			links := make([]models.TeacherSubject, 0, len(subjectIDs))
			for _, id := range subjectIDs {
				links = append(links, models.TeacherSubject{UserId: u.ID, SubjectId: id})
			}
			return tx.Create(&links).Error
		},
	}
	stats, err := syncer.run(tx, teachers, false)
	s.logStats("teachers", stats)
	return stats, err
}

func (s *Service) syncGroups(tx *gorm.DB, groups []CrmGroup, feedComplete bool) (EntityStats, error) {
	syncer := entitySyncer[CrmGroup, models.Group]{
		name:       "groups",
		externalID: func(g CrmGroup) (int64, bool) { return g.ID, g.ID != 0 },
		assign: func(tx *gorm.DB, g CrmGroup, grp *models.Group) error {
			if g.Organization == nil {
				return errSkipRecord
			}
			branchID, err := idByCrmID(tx, &models.Branch{}, g.Organization.ID)
			if err != nil {
				return err
			}
			if branchID == nil {
				return errSkipRecord
			}
			crmID := g.ID
			grp.CrmId = &crmID
			grp.BranchId = *branchID
			grp.ClassNumber = g.Level
			grp.Letter = strings.TrimSpace(g.Name)
			grp.Name = strings.TrimSpace(g.FullName)
			if grp.Name == "" {
				grp.Name = fmt.Sprintf("%d-%s", g.Level, grp.Letter)
			}
			grp.PupilCount = g.PupilCount
			if g.EducationYear != nil {
				grp.EducationYear = strings.TrimSpace(g.EducationYear.Name)
			}
			grp.TeacherId = nil
			if g.ClassTeacher != nil {
				teacherID, err := idByCrmID(tx, &models.User{}, g.ClassTeacher.ID)
				if err != nil {
					return err
				}
				grp.TeacherId = teacherID
			}
			grp.DirectionId = nil
			if g.Specialty != nil {
				if specID, ok := crmIDValue(g.Specialty.ID); ok {
					directionID, err := idByCrmID(tx, &models.Direction{}, specID)
					if err != nil {
						return err
					}
					grp.DirectionId = directionID
				}
			}
			grp.IsActive = utils.NewTrue()
			grp.LastSyncedAt = utils.NewTime(time.Now())
			return nil
		},
		deactivate: true,
	}
	stats, err := syncer.run(tx, groups, feedComplete)
	s.logStats("groups", stats)
	return stats, err
}

func (s *Service) syncStudents(tx *gorm.DB, students []CrmStudent, feedComplete bool) (EntityStats, error) {
	syncer := entitySyncer[CrmStudent, models.Student]{
		name:       "students",
		externalID: func(st CrmStudent) (int64, bool) { return st.ID, st.ID != 0 },
		assign: func(tx *gorm.DB, st CrmStudent, stu *models.Student) error {
			if st.Organization == nil {
				return errSkipRecord
			}
			branchID, err := idByCrmID(tx, &models.Branch{}, st.Organization.ID)
			if err != nil {
				return err
			}
			if branchID == nil {
				return errSkipRecord
			}
			crmID := st.ID
			stu.CrmId = &crmID
			stu.BranchId = *branchID
			stu.FullName = strings.TrimSpace(st.FullName)
			stu.FirstName = strings.TrimSpace(st.FirstName)
			stu.LastName = strings.TrimSpace(st.SecondName)
			stu.Patronymic = strings.TrimSpace(st.ThirdName)
			stu.BirthDate = parseCrmDate(st.BirthDate)
			stu.Gender = strings.ToLower(strings.TrimSpace(st.Gender))
			stu.Phone = utils.NormalizePhone(st.FatherPhone)
			stu.MotherPhone = utils.NormalizePhone(st.MotherPhone)
			if st.Group != nil && st.Group.Level > 0 {
				stu.ClassNumber = st.Group.Level
			} else if stu.ClassNumber == 0 {
				stu.ClassNumber = 1
			}
			stu.DirectionId = nil
			if st.Specialty != nil && strings.TrimSpace(st.Specialty.Name) != "" {
				var dir models.Direction
				err := tx.Where("name = ?", strings.TrimSpace(st.Specialty.Name)).Take(&dir).Error
				if err != nil && err != gorm.ErrRecordNotFound {
					return err
				}
				if err == nil {
					stu.DirectionId = &dir.ID
				}
			}
			stu.IsActive = utils.NewTrue()
			stu.LastSyncedAt = utils.NewTime(time.Now())
			return nil
		},
		onCreate: func(tx *gorm.DB, st CrmStudent, stu *models.Student) error {
			token, err := utils.GenerateProfileToken()
			if err != nil {
				return err
			}
			stu.ProfileToken = token
			return nil
		},
		afterSave: func(tx *gorm.DB, st CrmStudent, stu *models.Student) error {
			if st.Group == nil {
				return nil
			}
			var group models.Group
			err := tx.Select("id", "subject_id").
				Where("crm_id = ?", st.Group.ID).
				Take(&group).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Model(&models.StudentGroup{}).
				Where("student_id = ? AND group_id = ?", stu.ID, group.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
			// unique pair index rejects a concurrent duplicate
			_ = tx.Create(&models.StudentGroup{
				StudentId: stu.ID,
				GroupId:   group.ID,
				SubjectId: group.SubjectId,
			}).Error
			return nil
		},
		deactivate: true,
	}
	stats, err := syncer.run(tx, students, feedComplete)
	s.logStats("students", stats)
	return stats, err
}
