package main

import (
	"fmt"
	"net/http"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/gin-gonic/gin"
)

type createReportRequest struct {
	Title string `json:"title"`
}

func createReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		// Title is optional; an empty or absent body is fine.
		var req createReportRequest
		_ = c.ShouldBindJSON(&req)

		record, err := models.GetUploadByPublicId(c.Request.Context(), claim.ID, c.Param("uploadId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load upload"})
			return
		}

		title := req.Title
		if title == "" {
			title = "Leakage report for " + record.FileName
		}

		report := &models.Report{
			ReportId:       models.NewReportId(),
			UserId:         claim.ID,
			UploadRecordId: record.ID,
			Title:          title,
			FileName:       fmt.Sprintf("leakage-report-%s.xlsx", record.UploadId),
			Format:         "xlsx",
		}
		if err := models.CreateReport(c.Request.Context(), report); err != nil {
			config.LogError(logger, "reports.go", "createReportHandler", "CreateReport", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create report"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": report})
	}
}

func listReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		reports, err := models.ListReports(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list reports"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": reports})
	}
}

// downloadReportHandler rebuilds the workbook from the stored upload and
// streams it. Workbooks are not archived; the upload row and its entries are
// the source of truth.
func downloadReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		report, err := models.GetReport(c.Request.Context(), claim.ID, c.Param("reportId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load report"})
			return
		}

		var record models.UploadRecord
		db := config.GetDB()
		if err := db.WithContext(c.Request.Context()).
			Where("id = ? AND user_id = ?", report.UploadRecordId, claim.ID).
			First(&record).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
			return
		}

		entries, err := models.ListLeakageEntries(c.Request.Context(), record.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load leakage entries"})
			return
		}

		f, err := models.BuildLeakageWorkbook(&record, entries)
		if err != nil {
			config.LogError(logger, "reports.go", "downloadReportHandler", "BuildLeakageWorkbook", report.ReportId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build workbook"})
			return
		}

		c.Writer.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.FileName))
		c.Status(http.StatusOK)
		if err := f.Write(c.Writer); err != nil {
			config.LogError(logger, "reports.go", "downloadReportHandler", "excelize.Write", report.ReportId, err)
		}
	}
}
