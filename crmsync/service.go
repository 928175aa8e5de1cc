package crmsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/models"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already in progress")
	ErrNotConfigured      = errors.New("crm api is not configured")
)

// Service runs the one-way CRM to local sync. At most one run is in
// flight per process; concurrent triggers are rejected, never queued.
type Service struct {
	cfg    config.CrmConfig
	client *crmClient
	logger *logrus.Logger

	mu      sync.Mutex
	running bool
}

func NewService(cfg config.CrmConfig, logger *logrus.Logger) *Service {
	return &Service{
		cfg:    cfg,
		client: newCrmClient(cfg),
		logger: logger,
	}
}

func (s *Service) Config() config.CrmConfig {
	return s.cfg
}

func (s *Service) IsSyncRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// crmFeeds carries the four raw feeds plus a completeness flag per
// feed. A feed that errored mid-pagination keeps its partial items but
// stays marked incomplete, which suppresses deactivation downstream.
type crmFeeds struct {
	students    []CrmStudent
	teachers    []CrmTeacher
	specialties []CrmSpecialty
	groups      []CrmGroup

	studentsComplete    bool
	teachersComplete    bool
	specialtiesComplete bool
	groupsComplete      bool
}

func (s *Service) fetchFeeds(ctx context.Context, result *SyncResult) crmFeeds {
	var feeds crmFeeds
	var errMu sync.Mutex
	fail := func(msg string) {
		errMu.Lock()
		result.SyncErrors = append(result.SyncErrors, msg)
		errMu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		items, err := s.client.FetchAllStudents(ctx, nil)
		feeds.students = items
		if err != nil {
			fail("students fetch failed: " + err.Error())
			return
		}
		feeds.studentsComplete = true
	}()
	go func() {
		defer wg.Done()
		items, err := s.client.FetchAllTeachers(ctx, nil)
		feeds.teachers = items
		if err != nil {
			fail("teachers fetch failed: " + err.Error())
			return
		}
		feeds.teachersComplete = true
	}()
	go func() {
		defer wg.Done()
		items, err := s.client.FetchAllSpecialties(ctx, nil)
		feeds.specialties = items
		if err != nil {
			fail("specialties fetch failed: " + err.Error())
			return
		}
		feeds.specialtiesComplete = true
	}()
	go func() {
		defer wg.Done()
		items, err := s.client.FetchAllGroups(ctx, nil)
		feeds.groups = items
		if err != nil {
			fail("groups fetch failed: " + err.Error())
			return
		}
		feeds.groupsComplete = true
	}()
	wg.Wait()
	return feeds
}

// SyncAll executes one full sync run and records it in the ledger. It
// returns ErrSyncAlreadyRunning without touching the ledger when a run
// is already in flight, and the partial result alongside the error
// when the run failed midway.
func (s *Service) SyncAll(ctx context.Context, triggeredBy *uint, runType string) (*SyncResult, error) {
	if !s.tryAcquire() {
		return nil, ErrSyncAlreadyRunning
	}
	defer s.release()

	if !s.cfg.IsConfigured() {
		return nil, ErrNotConfigured
	}

	db := config.GetDB().WithContext(ctx)
	started := time.Now()

	syncLog := models.SyncLog{
		Type:        runType,
		Status:      models.SyncStatusRunning,
		StartedAt:   started,
		TriggeredBy: triggeredBy,
	}
	if err := db.Create(&syncLog).Error; err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"module": "crmsync", "type": runType, "syncLogId": syncLog.ID}).
		Info("crm sync started")

	result := &SyncResult{SyncErrors: []string{}}
	runErr := s.runPipeline(ctx, db, result)
	result.DurationMs = time.Since(started).Milliseconds()
	if runErr != nil {
		result.SyncErrors = append(result.SyncErrors, "fatal: "+runErr.Error())
	}

	resultJSON, _ := json.Marshal(result)
	updates := map[string]interface{}{
		"result_json":  resultJSON,
		"completed_at": time.Now(),
		"duration_ms":  result.DurationMs,
	}
	if runErr != nil {
		updates["status"] = models.SyncStatusFailed
		updates["error"] = runErr.Error()
	} else {
		updates["status"] = models.SyncStatusCompleted
	}
	if err := db.Model(&models.SyncLog{}).Where("id = ?", syncLog.ID).Updates(updates).Error; err != nil {
		config.LogError(s.logger, "crmsync", "SyncAll", "finalize sync log", syncLog.ID, err)
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		s.logger.WithFields(logrus.Fields{"module": "crmsync", "syncLogId": syncLog.ID, "durationMs": result.DurationMs}).
			WithError(runErr).Error("crm sync failed")
		return result, runErr
	}
	s.logger.WithFields(logrus.Fields{"module": "crmsync", "syncLogId": syncLog.ID, "durationMs": result.DurationMs,
		"branches": result.Branches, "subjects": result.Subjects, "directions": result.Directions,
		"teachers": result.Teachers, "groups": result.Groups, "students": result.Students}).
		Info("crm sync completed")
	return result, nil
}

// runPipeline fetches the feeds and applies the six entity passes in
// dependency order: branches, subjects, directions, teachers, groups,
// students. Branch deactivation needs the full picture, so it only
// runs when every feed referencing organizations came back complete.
func (s *Service) runPipeline(ctx context.Context, db *gorm.DB, result *SyncResult) error {
	feeds := s.fetchFeeds(ctx, result)

	orgs := extractOrganizations(feeds.students, feeds.teachers, feeds.groups)
	subjects := extractSubjects(feeds.teachers, feeds.specialties)
	branchesComplete := feeds.studentsComplete && feeds.teachersComplete && feeds.groupsComplete

	var err error
	if result.Branches, err = s.syncBranches(db, orgs, branchesComplete); err != nil {
		return err
	}
	if result.Subjects, err = s.syncSubjects(db, subjects); err != nil {
		return err
	}
	if result.Directions, err = s.syncDirections(db, feeds.specialties); err != nil {
		return err
	}
	if result.Teachers, err = s.syncTeachers(db, feeds.teachers); err != nil {
		return err
	}
	if result.Groups, err = s.syncGroups(db, feeds.groups, feeds.groupsComplete); err != nil {
		return err
	}
	if result.Students, err = s.syncStudents(db, feeds.students, feeds.studentsComplete); err != nil {
		return err
	}
	return nil
}

func (s *Service) logStats(entity string, stats EntityStats) {
	s.logger.WithFields(logrus.Fields{"module": "crmsync", "entity": entity,
		"created": stats.Created, "updated": stats.Updated, "deactivated": stats.Deactivated}).
		Info("entity pass finished")
}

// CleanupStaleSyncs marks ledger entries left in running state by a
// previous process as failed. Call once on startup, before the
// scheduler starts.
func (s *Service) CleanupStaleSyncs(ctx context.Context) (int64, error) {
	res := config.GetDB().WithContext(ctx).Model(&models.SyncLog{}).
		Where("status = ?", models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.SyncStatusFailed,
			"error":        "server restarted during sync",
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.WithFields(logrus.Fields{"module": "crmsync", "count": res.RowsAffected}).
			Warn("marked stale sync runs as failed")
	}
	return res.RowsAffected, nil
}

// GetLastSync returns the most recent ledger entry, or nil when no run
// was ever recorded.
func (s *Service) GetLastSync(ctx context.Context) (*models.SyncLog, error) {
	var last models.SyncLog
	err := config.GetDB().WithContext(ctx).Order("started_at DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// GetSyncLogs returns one page of ledger entries, most recent first,
// plus the total count.
func (s *Service) GetSyncLogs(ctx context.Context, page, limit int) ([]models.SyncLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	db := config.GetDB().WithContext(ctx)

	var total int64
	if err := db.Model(&models.SyncLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.SyncLog
	err := db.Order("started_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&logs).Error
	return logs, total, err
}
