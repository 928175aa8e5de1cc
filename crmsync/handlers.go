package crmsync

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/middlewares"
	"github.com/edumatic/school_backend/models"
	"github.com/edumatic/school_backend/utils"
)

// RegisterRoutes mounts the sync endpoints under the given group.
// Trigger and status are open to branch admins; the run ledger is
// super admin only.
func RegisterRoutes(rg *gin.RouterGroup, svc *Service, logger *logrus.Logger) {
	admins := middlewares.RequireRoles(models.RoleSuperAdmin, models.RoleFilAdmin)
	rg.POST("/sync", admins, TriggerSyncHandler(svc, logger))
	rg.GET("/sync/status", admins, SyncStatusHandler(svc, logger))
	rg.GET("/sync/logs", middlewares.RequireRoles(models.RoleSuperAdmin), SyncLogsHandler(svc, logger))
}

// TriggerSyncHandler starts a manual sync in the background. Responds
// 409 when a run is already in flight and 400 when the CRM credentials
// are missing.
func TriggerSyncHandler(svc *Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc.IsSyncRunning() {
			c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
			return
		}
		if !svc.Config().IsConfigured() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "crm api is not configured"})
			return
		}

		var triggeredBy *uint
		if userID, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
			triggeredBy = &userID
		}

		go func() {
			if _, err := svc.SyncAll(context.Background(), triggeredBy, models.SyncTypeManual); err != nil {
				config.LogError(logger, "crmsync", "TriggerSyncHandler", "manual sync", triggeredBy, err)
			}
		}()

		c.JSON(http.StatusOK, gin.H{"message": "sync started", "running": true})
	}
}

// SyncStatusHandler reports configuration state, whether a run is in
// flight and the most recent ledger entry.
func SyncStatusHandler(svc *Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		last, err := svc.GetLastSync(c.Request.Context())
		if err != nil {
			config.LogError(logger, "crmsync", "SyncStatusHandler", "load last sync", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync status"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"isConfigured": svc.Config().IsConfigured(),
			"isRunning":    svc.IsSyncRunning(),
			"lastSync":     last,
		})
	}
}

// SyncLogsHandler returns a page of the run ledger, most recent first.
func SyncLogsHandler(svc *Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		logs, total, err := svc.GetSyncLogs(c.Request.Context(), page, limit)
		if err != nil {
			config.LogError(logger, "crmsync", "SyncLogsHandler", "load sync logs", page, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync logs"})
			return
		}
		if limit < 1 || limit > 100 {
			limit = 20
		}
		c.JSON(http.StatusOK, gin.H{
			"logs":       logs,
			"total":      total,
			"page":       page,
			"totalPages": int(math.Ceil(float64(total) / float64(limit))),
		})
	}
}
