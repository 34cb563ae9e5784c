package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fossawork-backend/internal/scheduler"
	"fossawork-backend/internal/store"
	"fossawork-backend/middleware"
	"fossawork-backend/models"
	"fossawork-backend/utils"
)

func SetupScrapeRoutes(router *gin.Engine, st *store.Store, runner scheduler.Runner, progress *scheduler.Tracker, authMW *middleware.AuthMiddleware) {
	api := router.Group("/api", authMW.RequireAuth())

	// Manual trigger. The run itself is asynchronous; poll the progress
	// endpoint to follow it.
	api.POST("/scrape", func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		if snap, ok := progress.Get(userID); ok && !snap.Done {
			utils.RespondWithConflict(c, "A scrape is already running for this user")
			return
		}

		if err := runner.Dispatch(c.Request.Context(), userID, models.TriggerManual); err != nil {
			utils.RespondWithInternalError(c, "Failed to start scrape", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "Scrape started"})
	})

	api.GET("/scrape/progress", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		snap, ok := progress.Get(userID)
		if !ok {
			utils.RespondWithNotFound(c, "No scrape in progress")
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.GET("/scrape/runs", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		runs, err := st.ListRuns(c.Request.Context(), userID, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load scrape history", nil)
			return
		}
		if runs == nil {
			runs = []models.ScrapeRun{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	})
}
