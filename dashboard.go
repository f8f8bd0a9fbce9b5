package main

import (
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"github.com/gin-gonic/gin"
)

const dashboardCacheTTL = 5 * time.Minute

func dashboardCacheKey(userId int) string {
	return fmt.Sprintf("DashboardSummary:%d", userId)
}

type dashboardSummary struct {
	TotalUploads int                    `json:"total_uploads"`
	TotalRows    int                    `json:"total_rows"`
	TotalFlagged int                    `json:"total_flagged"`
	TotalImpact  string                 `json:"total_impact"`
	UnreadCount  int64                  `json:"unread_notifications"`
	ActiveAlerts int                    `json:"active_alerts"`
	Recent       []*models.UploadRecord `json:"recent_uploads"`
}

// dashboardSummaryHandler aggregates completed uploads for the landing page.
// Totals are cached per user; the cache is dropped on every new upload.
func dashboardSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		cacheKey := dashboardCacheKey(claim.ID)
		var cached dashboardSummary
		if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
			c.JSON(http.StatusOK, gin.H{"data": cached, "cached": true})
			return
		}

		totals, err := models.GetUploadTotals(c.Request.Context(), claim.ID)
		if err != nil {
			config.LogError(logger, "dashboard.go", "dashboardSummaryHandler", "GetUploadTotals", claim.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load dashboard"})
			return
		}

		unread, err := models.UnreadNotificationCount(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load dashboard"})
			return
		}

		rules, err := models.ListActiveAlertRules(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load dashboard"})
			return
		}

		recent, err := models.ListUploads(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load dashboard"})
			return
		}
		if len(recent) > 5 {
			recent = recent[:5]
		}

		summary := dashboardSummary{
			TotalUploads: totals.TotalUploads,
			TotalRows:    totals.TotalRows,
			TotalFlagged: totals.TotalFlagged,
			TotalImpact:  totals.TotalImpact.String(),
			UnreadCount:  unread,
			ActiveAlerts: len(rules),
			Recent:       recent,
		}

		if err := config.SetRedisObject(cacheKey, summary, dashboardCacheTTL); err != nil {
			config.LogWarn(logger, "dashboard.go", "dashboardSummaryHandler", "SetRedisObject", err.Error())
		}

		c.JSON(http.StatusOK, gin.H{"data": summary})
	}
}
