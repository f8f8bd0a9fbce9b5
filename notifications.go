package main

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/gin-gonic/gin"
)

func listNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		unreadOnly := strings.EqualFold(c.Query("unread"), "true")
		notifications, err := models.ListNotifications(c.Request.Context(), claim.ID, unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": notifications})
	}
}

func unreadNotificationCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		count, err := models.UnreadNotificationCount(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not count notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"unread_count": count}})
	}
}

func markNotificationReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		notification, err := models.MarkNotificationRead(c.Request.Context(), claim.ID, c.Param("notificationId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update notification"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": notification})
	}
}

func markAllNotificationsReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		updated, err := models.MarkAllNotificationsRead(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update notifications"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": updated}})
	}
}
