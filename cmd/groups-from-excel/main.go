// groups-from-excel imports a class roster from an Excel sheet into an
// existing group. Students are matched by full name inside the group's
// branch; unmatched rows become locally owned student records (no CRM
// id) with fresh profile tokens.
//
// Usage:
//   go run ./cmd/groups-from-excel -file roster.xlsx -group 12 -name-col B -start-row 2
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/models"
	"github.com/edumatic/school_backend/utils"
)

func main() {
	var (
		file     = flag.String("file", "", "path to the .xlsx roster")
		groupID  = flag.Uint("group", 0, "local group id to import into")
		sheet    = flag.String("sheet", "", "sheet name (default: first sheet)")
		nameCol  = flag.String("name-col", "A", "column holding the student full name")
		startRow = flag.Int("start-row", 2, "first data row (1-based)")
		dryRun   = flag.Bool("dry-run", false, "report what would change without writing")
	)
	flag.Parse()

	if *file == "" || *groupID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	var group models.Group
	if err := db.First(&group, *groupID).Error; err != nil {
		fmt.Fprintf(os.Stderr, "group %d not found: %v\n", *groupID, err)
		os.Exit(1)
	}

	f, err := excelize.OpenFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	sheetName := *sheet
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read sheet %q: %v\n", sheetName, err)
		os.Exit(1)
	}

	nameIdx, err := excelize.ColumnNameToNumber(strings.ToUpper(*nameCol))
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad name column %q: %v\n", *nameCol, err)
		os.Exit(2)
	}
	nameIdx-- // 0-based

	var created, linked, skipped int
	for i := *startRow - 1; i < len(rows); i++ {
		row := rows[i]
		if nameIdx >= len(row) {
			continue
		}
		fullName := strings.Join(strings.Fields(row[nameIdx]), " ")
		if fullName == "" {
			continue
		}

		var student models.Student
		err := db.Where("branch_id = ? AND full_name = ?", group.BranchId, fullName).Take(&student).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			token, tokenErr := utils.GenerateProfileToken()
			if tokenErr != nil {
				fmt.Fprintf(os.Stderr, "row %d: token generation failed: %v\n", i+1, tokenErr)
				os.Exit(1)
			}
			student = models.Student{
				BranchId:     group.BranchId,
				FullName:     fullName,
				ClassNumber:  group.ClassNumber,
				ProfileToken: token,
				IsActive:     utils.NewTrue(),
			}
			if !*dryRun {
				if err := db.Create(&student).Error; err != nil {
					fmt.Fprintf(os.Stderr, "row %d: create student %q: %v\n", i+1, fullName, err)
					os.Exit(1)
				}
			}
			created++
		case err != nil:
			fmt.Fprintf(os.Stderr, "row %d: lookup %q: %v\n", i+1, fullName, err)
			os.Exit(1)
		}

		if *dryRun {
			linked++
			continue
		}

		var count int64
		if err := db.Model(&models.StudentGroup{}).
			Where("student_id = ? AND group_id = ?", student.ID, group.ID).
			Count(&count).Error; err != nil {
			fmt.Fprintf(os.Stderr, "row %d: membership lookup: %v\n", i+1, err)
			os.Exit(1)
		}
		if count > 0 {
			skipped++
			continue
		}
		if err := db.Create(&models.StudentGroup{
			StudentId: student.ID,
			GroupId:   group.ID,
			SubjectId: group.SubjectId,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "row %d: link %q to group: %v\n", i+1, fullName, err)
			os.Exit(1)
		}
		linked++
	}

	fmt.Printf("group %q: %d students created, %d memberships added, %d already present\n",
		group.Name, created, linked, skipped)
}
