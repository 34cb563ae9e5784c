package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fossawork-backend/internal/config"
	"fossawork-backend/internal/store"
	"fossawork-backend/middleware"
	"fossawork-backend/models"
	"fossawork-backend/utils"
)

func SetupScheduleRoutes(router *gin.Engine, cfg *config.Config, st *store.Store, authMW *middleware.AuthMiddleware) {
	api := router.Group("/api", authMW.RequireAuth())

	api.GET("/schedule", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		sched, err := st.EnsureSchedule(c.Request.Context(), userID, cfg.DefaultIntervalMinutes)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load schedule", nil)
			return
		}
		c.JSON(http.StatusOK, sched)
	})

	api.PUT("/schedule", func(c *gin.Context) {
		var req models.UpdateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		userID := middleware.GetUserID(c)
		if _, err := st.EnsureSchedule(c.Request.Context(), userID, cfg.DefaultIntervalMinutes); err != nil {
			utils.RespondWithInternalError(c, "Failed to load schedule", nil)
			return
		}

		sched, err := st.UpdateSchedule(c.Request.Context(), userID, req)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to update schedule", nil)
			return
		}
		c.JSON(http.StatusOK, sched)
	})
}
