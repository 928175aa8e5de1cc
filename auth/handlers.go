package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/edumatic/school_backend/config"
	"github.com/edumatic/school_backend/models"
	"github.com/edumatic/school_backend/utils"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRoutes mounts the credential endpoints. Login is open;
// profile requires a session.
func RegisterRoutes(rg *gin.RouterGroup, logger *logrus.Logger) {
	rg.POST("/login", LoginHandler(logger))
	rg.GET("/me", MeHandler(logger))
}

// LoginHandler exchanges username/password for a JWT. Deactivated
// accounts (including teachers swept by a sync) cannot log in.
func LoginHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}

		var user models.User
		err := config.GetDB().WithContext(c.Request.Context()).
			Where("username = ?", req.Username).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err != nil {
			config.LogError(logger, "auth", "LoginHandler", "lookup user", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if user.IsActive == nil || !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account is inactive"})
			return
		}
		if err := utils.ComparePassword(user.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(user.ID, user.Username, user.Role)
		if err != nil {
			config.LogError(logger, "auth", "LoginHandler", "sign token", user.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

// MeHandler returns the authenticated user's account.
func MeHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		username, _ := utils.GetUsernameFromContext(c.Request.Context())

		var user models.User
		if err := config.GetDB().WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			config.LogError(logger, "auth", "MeHandler", "load user", userID, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "username": username})
	}
}
