package crmsync

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/models"
)

const finalClassNumber = 11

// PromoteStudents advances every active student one class up at the
// start of the school year. Students finishing the final class are
// marked graduated instead. Safe to re-run only once per year; the
// scheduler fires it on September 1st.
func (s *Service) PromoteStudents(ctx context.Context) (promoted int64, graduated int64, err error) {
	db := config.GetDB().WithContext(ctx)

	res := db.Model(&models.Student{}).
		Where("is_active = ? AND is_graduated = ? AND class_number >= ?", true, false, finalClassNumber).
		Updates(map[string]interface{}{"is_graduated": true})
	if res.Error != nil {
		return 0, 0, res.Error
	}
	graduated = res.RowsAffected

	res = db.Model(&models.Student{}).
		Where("is_active = ? AND is_graduated = ? AND class_number < ?", true, false, finalClassNumber).
		Update("class_number", gorm.Expr("class_number + 1"))
	if res.Error != nil {
		return 0, graduated, res.Error
	}
	promoted = res.RowsAffected

	s.logger.WithFields(logrus.Fields{"module": "crmsync", "promoted": promoted, "graduated": graduated}).
		Info("student class promotion finished")
	return promoted, graduated, nil
}
