package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"fossawork-backend/internal/auth"
	"fossawork-backend/internal/config"
	"fossawork-backend/internal/store"
	"fossawork-backend/middleware"
	"fossawork-backend/models"
	"fossawork-backend/utils"
)

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, st *store.Store, sealer *auth.Sealer, rdb *redis.Client, authMW *middleware.AuthMiddleware) {
	group := router.Group("/auth")

	group.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		user, err := st.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			// Same response for unknown user and wrong password
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		duration, err := time.ParseDuration(cfg.JWTExpiresIn)
		if err != nil {
			duration = 24 * time.Hour
		}
		token, err := utils.GenerateJWT(user.ID, user.Username, cfg.JWTSecret, duration)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to generate token", nil)
			return
		}

		secure := cfg.GinMode == "release"
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("access_token", token, int(duration.Seconds()), "/", "", secure, true)

		c.JSON(http.StatusOK, models.LoginResponse{
			Token:     token,
			ExpiresAt: time.Now().Add(duration),
			User: models.UserInfo{
				ID:       user.ID,
				Username: user.Username,
				Name:     user.Name,
				Email:    user.Email,
			},
		})
	})

	group.POST("/logout", authMW.RequireAuth(), func(c *gin.Context) {
		if claims, exists := c.Get("claims"); exists {
			if cl, ok := claims.(*utils.Claims); ok && cl.ExpiresAt != nil {
				ttl := time.Until(cl.ExpiresAt.Time)
				_ = auth.RevokeToken(c.Request.Context(), rdb, cl.ID, ttl)
			}
		}
		c.SetCookie("access_token", "", -1, "/", "", cfg.GinMode == "release", true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})

	// Portal credentials for the scraper. The password is sealed before
	// it is stored and never returned.
	api := router.Group("/api", authMW.RequireAuth())

	type credentialsRequest struct {
		PortalUsername string `json:"portal_username" binding:"required"`
		PortalPassword string `json:"portal_password" binding:"required"`
	}

	api.PUT("/credentials", func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		sealed, err := sealer.Seal(req.PortalPassword)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to store credentials", nil)
			return
		}

		userID := middleware.GetUserID(c)
		if err := st.SetPortalCredentials(c.Request.Context(), userID, req.PortalUsername, sealed); err != nil {
			utils.RespondWithInternalError(c, "Failed to store credentials", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Portal credentials updated"})
	})

	api.GET("/credentials", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		portalUser, sealed, err := st.GetPortalCredentials(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "User not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load credentials", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"portal_username": portalUser,
			"configured":      portalUser != "" && len(sealed) > 0,
		})
	})
}
