package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/advisor_backend/alerting"
	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/gin-gonic/gin"
)

// alertMetricsHandler lists the metrics a rule can watch, for the rule
// builder dropdown. The catalogue is static per build.
func alertMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": alerting.Catalogue()})
	}
}

func createAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		var input models.NewAlertRule
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !knownMetric(input.Metric) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric: " + input.Metric})
			return
		}

		rule, err := models.CreateAlertRule(c.Request.Context(), claim.ID, &input)
		if err != nil {
			config.LogError(logger, "alerts.go", "createAlertHandler", "CreateAlertRule", input, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create alert"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": rule})
	}
}

func listAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		rules, err := models.ListAlertRules(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list alerts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rules})
	}
}

func getAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		rule, err := models.GetAlertRule(c.Request.Context(), claim.ID, c.Param("alertId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load alert"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rule})
	}
}

func updateAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		var input models.UpdateAlertRuleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if input.Metric != nil && !knownMetric(*input.Metric) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric: " + *input.Metric})
			return
		}

		rule, err := models.UpdateAlertRule(c.Request.Context(), claim.ID, c.Param("alertId"), &input)
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
				return
			}
			config.LogError(logger, "alerts.go", "updateAlertHandler", "UpdateAlertRule", input, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update alert"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rule})
	}
}

func deleteAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		err := models.DeleteAlertRule(c.Request.Context(), claim.ID, c.Param("alertId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete alert"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
	}
}

func knownMetric(metric string) bool {
	for _, info := range alerting.Catalogue() {
		if info.Value == metric {
			return true
		}
	}
	return false
}
