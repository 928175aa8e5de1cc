package crmsync

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/models"
)

var testDBSeq int

// openTestDB wires a fresh in-memory database into the config global
// and migrates the schema. Each test gets its own database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:crmsync_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one connection keeps shared-cache sqlite free of lock errors
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	config.SetDB(db)
	models.MigrateTable()
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testCrmConfig(baseURL string) config.CrmConfig {
	return config.CrmConfig{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		BearerToken:     "test-token",
		Enabled:         true,
		Schedule:        "0 3 * * *",
		RequestInterval: 0,
		MaxAttempts:     1,
		PageSize:        200,
	}
}

// fakeCrm serves the four CRM list endpoints from in-memory fixtures,
// one page per feed.
type fakeCrm struct {
	mu          sync.Mutex
	students    []CrmStudent
	teachers    []CrmTeacher
	specialties []CrmSpecialty
	groups      []CrmGroup

	failGroups bool
	// gate, when set, blocks every request until the channel closes
	gate chan struct{}
}

func (f *fakeCrm) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/students-list", func(w http.ResponseWriter, r *http.Request) {
		f.wait()
		f.mu.Lock()
		defer f.mu.Unlock()
		writeFeed(w, "students", f.students, len(f.students))
	})
	mux.HandleFunc("/teachers-list", func(w http.ResponseWriter, r *http.Request) {
		f.wait()
		f.mu.Lock()
		defer f.mu.Unlock()
		writeFeed(w, "teachers", f.teachers, len(f.teachers))
	})
	mux.HandleFunc("/specialty-list", func(w http.ResponseWriter, r *http.Request) {
		f.wait()
		f.mu.Lock()
		defer f.mu.Unlock()
		writeFeed(w, "specialties", f.specialties, len(f.specialties))
	})
	mux.HandleFunc("/groups-list", func(w http.ResponseWriter, r *http.Request) {
		f.wait()
		f.mu.Lock()
		failGroups := f.failGroups
		groups := f.groups
		f.mu.Unlock()
		if failGroups {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeFeed(w, "groups", groups, len(groups))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeCrm) wait() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func writeFeed(w http.ResponseWriter, key string, items interface{}, total int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			key: items,
			"pagination": CrmPagination{
				Total: total, CurrentPage: 1, PerPage: 200, TotalPages: 1,
			},
		},
	})
}

func org(id int64, name string) *CrmOrganization {
	return &CrmOrganization{ID: id, Name: name, Address: name + " street 1", Phone: "+998901112233"}
}

// twoBranchFixture builds a consistent CRM snapshot: two organizations,
// four subjects, one specialty, three teachers, two groups, ten
// students spread over both groups.
func twoBranchFixture() *fakeCrm {
	subjPhysics := CrmSubject{ID: 11, Name: "Fizika"}
	subjMath := CrmSubject{ID: 12, Name: "Matematika"}
	subjEnglish := CrmSubject{ID: 13, Name: "Ingliz tili"}
	subjCS := CrmSubject{ID: 14, Name: "Informatika"}

	f := &fakeCrm{}
	f.specialties = []CrmSpecialty{{
		ID:   json.Number("501"),
		Name: "Fizika-Matematika",
		Subjects: []CrmSubject{subjPhysics, subjMath},
	}}
	f.teachers = []CrmTeacher{
		{ID: 101, FullName: "Aziz Karimov", FirstName: "Aziz", SecondName: "Karimov",
			Phone: "+998900000001", IsActive: true, Organization: org(1, "Yunusobod"),
			Subjects: []CrmSubject{subjPhysics, subjMath}},
		{ID: 102, FullName: "Dilnoza Rashidova", FirstName: "Dilnoza", SecondName: "Rashidova",
			Phone: "+998900000002", IsActive: true, Organization: org(2, "Chilonzor"),
			Subjects: []CrmSubject{subjEnglish},
			Groups:   []CrmTeacherGroup{{ID: 202, Level: "9", Name: "B", Subject: &subjCS}}},
		{ID: 103, FullName: "Botir Tashkentov", FirstName: "Botir", SecondName: "Tashkentov",
			Phone: "+998900000003", IsActive: true, Organization: org(1, "Yunusobod")},
	}
	f.groups = []CrmGroup{
		{ID: 201, Level: 8, Name: "A", FullName: "8-A", PupilCount: 5,
			Organization: org(1, "Yunusobod"),
			Specialty:    &CrmSpecialtyRef{ID: json.Number("501"), Name: "Fizika-Matematika"},
			ClassTeacher: &CrmTeacherRef{ID: 101, FullName: "Aziz Karimov"},
			EducationYear: &CrmEducationYear{ID: 1, Name: "2025-2026"}},
		{ID: 202, Level: 9, Name: "B", FullName: "9-B", PupilCount: 5,
			Organization: org(2, "Chilonzor"),
			ClassTeacher: &CrmTeacherRef{ID: 102, FullName: "Dilnoza Rashidova"},
			EducationYear: &CrmEducationYear{ID: 1, Name: "2025-2026"}},
	}
	for i := 0; i < 10; i++ {
		id := int64(301 + i)
		branch := org(1, "Yunusobod")
		group := &CrmGroupRef{ID: 201, Level: 8, Name: "A"}
		if i >= 5 {
			branch = org(2, "Chilonzor")
			group = &CrmGroupRef{ID: 202, Level: 9, Name: "B"}
		}
		student := CrmStudent{
			ID:           id,
			FullName:     fmt.Sprintf("Student Number%d", i+1),
			FirstName:    "Student",
			SecondName:   fmt.Sprintf("Number%d", i+1),
			BirthDate:    "2011-05-14",
			Gender:       "male",
			FatherPhone:  fmt.Sprintf("+99890111%04d", i),
			Organization: branch,
			Group:        group,
		}
		if i < 5 {
			student.Specialty = &CrmSpecialtyRef{ID: json.Number("501"), Name: "Fizika-Matematika"}
		}
		f.students = append(f.students, student)
	}
	return f
}

func newTestService(t *testing.T, f *fakeCrm) *Service {
	t.Helper()
	srv := f.server(t)
	return NewService(testCrmConfig(srv.URL), testLogger())
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
