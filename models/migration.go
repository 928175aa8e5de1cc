package models

import (
	"log"

	"github.com/edumatic/school_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Branch{}, &Subject{},
		&Direction{}, &DirectionSubject{},
		&User{}, &TeacherSubject{},
		&Group{},
		&Student{}, &StudentGroup{},
		&SyncLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
