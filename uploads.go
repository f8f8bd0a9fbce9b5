package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/alerting"
	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/ingest"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// uploadResponse is what the frontend renders right after an upload.
type uploadResponse struct {
	UploadId        string                  `json:"upload_id"`
	FileName        string                  `json:"file_name"`
	RowsProcessed   int                     `json:"rows_processed"`
	RowsSkipped     int                     `json:"rows_skipped"`
	SelectedSheet   string                  `json:"selected_sheet,omitempty"`
	SheetNames      []string                `json:"sheet_names,omitempty"`
	LeakageEntries  []*models.LeakageEntry  `json:"leakage_entries"`
	SummaryMetrics  map[string]string       `json:"summary_metrics"`
	AlertsTriggered []alerting.Notification `json:"alerts_triggered"`
	Warnings        []string                `json:"warnings,omitempty"`
}

func ingestConfig(settings config.Settings) ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.MaxUploadBytes = settings.MaxUploadBytes
	cfg.AmountCeiling = settings.AmountCeiling
	return cfg
}

// uploadHandler runs the whole pipeline synchronously: parse, detect,
// evaluate alerts, persist. Nothing is written on a failed parse except a
// failed upload record for malformed files.
func uploadHandler(settings config.Settings) gin.HandlerFunc {
	cfg := ingestConfig(settings)

	return func(c *gin.Context) {
		logger := config.GetLogger()
		started := time.Now()

		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		// Tokens outlive account changes; refuse writes for disabled accounts.
		account, err := models.GetUserByID(c.Request.Context(), claim.ID)
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
			return
		}
		if !utils.DereferencePtr(account.IsActive) {
			c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "upload.process")
		defer span.End()

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}

		// The size limit is enforced again inside the parser; rejecting here
		// avoids buffering oversized bodies at all.
		if fileHeader.Size > settings.MaxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{
				"kind":    "too_large",
				"message": fmt.Sprintf("file size %d exceeds the %d byte limit", fileHeader.Size, settings.MaxUploadBytes),
			})
			return
		}

		sheetName := strings.TrimSpace(c.PostForm("sheet_name"))

		var mapping map[string]string
		if raw := strings.TrimSpace(c.PostForm("column_mapping")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "column_mapping must be a JSON object of field to header"})
				return
			}
		}

		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, settings.MaxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}

		fileName := path.Base(fileHeader.Filename)

		result, err := ingest.Parse(data, fileName, sheetName, mapping, cfg)
		if err != nil {
			kind := ingest.ErrorKind(err)
			config.LogError(logger, "uploads.go", "uploadHandler", "ingest.Parse", fileName, err)
			if kind == "malformed" {
				// Keep a trace of broken files in the upload history.
				failed := &models.UploadRecord{
					UploadId:      models.NewUploadId(),
					UserId:        claim.ID,
					FileName:      fileName,
					FileSize:      fileHeader.Size,
					FileType:      strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), "."),
					SelectedSheet: sheetName,
					ColumnMapping: mapping,
					ErrorMessage:  err.Error(),
				}
				if dbErr := models.CreateFailedUpload(ctx, failed); dbErr != nil {
					config.LogError(logger, "uploads.go", "uploadHandler", "CreateFailedUpload", fileName, dbErr)
				}
			}
			c.JSON(http.StatusBadRequest, gin.H{"kind": kind, "message": err.Error()})
			return
		}

		findings, summary := ingest.Detect(result.Rows, cfg)

		entries := make([]*models.LeakageEntry, 0, len(findings))
		for _, f := range findings {
			entries = append(entries, &models.LeakageEntry{
				Rule:        f.Rule,
				Severity:    models.Severity(f.Severity),
				Description: f.Description,
				RowIndex:    f.RowIndex,
				Impact:      f.Impact,
			})
		}

		metrics := alerting.MetricsFromSummary(summary, result.Skipped)

		rules, err := models.ListActiveAlertRules(ctx, claim.ID)
		if err != nil {
			config.LogError(logger, "uploads.go", "uploadHandler", "ListActiveAlertRules", claim.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load alert rules"})
			return
		}

		evalRules := make([]alerting.Rule, 0, len(rules))
		for _, r := range rules {
			evalRules = append(evalRules, alerting.Rule{
				Name:        r.Name,
				Metric:      r.Metric,
				Comparator:  alerting.Comparator(r.Comparator),
				Threshold:   r.Threshold,
				Severity:    string(r.Severity),
				NotifyInApp: utils.DereferencePtr(r.NotifyInApp),
			})
		}

		drafts, advisories := alerting.Evaluate(evalRules, metrics, fileName)
		for _, advisory := range advisories {
			config.LogWarn(logger, "uploads.go", "uploadHandler", "alerting.Evaluate", advisory)
		}

		record := &models.UploadRecord{
			UploadId:      models.NewUploadId(),
			UserId:        claim.ID,
			FileName:      fileName,
			FileSize:      int64(len(data)),
			FileType:      strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), "."),
			SelectedSheet: result.SelectedSheet,
			ColumnMapping: mapping,
			RowCount:      summary.RowsProcessed,
			SkippedCount:  result.Skipped,
			TotalFlagged:  summary.TotalFlagged,
			TotalImpact:   summary.TotalImpact,
			TotalAmount:   summary.TotalAmount,
			RuleBreakdown: summary.ByRule,
			Status:        models.UploadStatusDone,
		}

		notifications := notificationRows(claim.ID, record.UploadId, drafts)

		if err := models.CreateUploadWithResults(ctx, record, entries, notifications); err != nil {
			config.LogError(logger, "uploads.go", "uploadHandler", "CreateUploadWithResults", record.UploadId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save upload"})
			return
		}

		// Dashboard totals are stale now.
		_ = config.RemoveRedisKey(dashboardCacheKey(claim.ID))

		// Archival is best-effort; the analysis result stands regardless.
		objectKey := path.Join(fmt.Sprint(claim.ID), "uploads", record.UploadId+path.Ext(fileName))
		if err := utils.ArchiveObject(ctx, objectKey, data, fileHeader.Header.Get("Content-Type")); err != nil {
			config.LogWarn(logger, "uploads.go", "uploadHandler", "ArchiveObject", err.Error())
		}

		logger.WithFields(logrus.Fields{
			"upload_id":     record.UploadId,
			"user_id":       claim.ID,
			"file_name":     fileName,
			"rows":          summary.RowsProcessed,
			"skipped":       result.Skipped,
			"total_flagged": summary.TotalFlagged,
			"alerts":        len(drafts),
			"duration":      time.Since(started).String(),
		}).Info("[upload.done]")

		c.JSON(http.StatusOK, gin.H{"data": uploadResponse{
			UploadId:        record.UploadId,
			FileName:        fileName,
			RowsProcessed:   summary.RowsProcessed,
			RowsSkipped:     result.Skipped,
			SelectedSheet:   result.SelectedSheet,
			SheetNames:      result.SheetNames,
			LeakageEntries:  entries,
			SummaryMetrics:  renderMetrics(metrics),
			AlertsTriggered: drafts,
			Warnings:        advisories,
		}})
	}
}

// notificationRows materializes the drafts that should be stored. Rules with
// notify_in_app disabled still appear in alerts_triggered but leave no row.
func notificationRows(userId int, uploadId string, drafts []alerting.Notification) []*models.Notification {
	rows := make([]*models.Notification, 0, len(drafts))
	for _, d := range drafts {
		if !d.NotifyInApp {
			continue
		}
		rows = append(rows, &models.Notification{
			NotificationId: models.NewNotificationId(),
			UserId:         userId,
			Title:          d.Title,
			Message:        d.Message,
			Severity:       models.Severity(d.Severity),
			IsRead:         utils.NewFalse(),
			RelatedType:    "upload",
			RelatedId:      uploadId,
		})
	}
	return rows
}

// renderMetrics keeps decimal values exact in the JSON payload.
func renderMetrics(metrics alerting.Metrics) map[string]string {
	out := make(map[string]string, len(metrics))
	for name, value := range metrics {
		out[name] = value.String()
	}
	return out
}

func listUploadsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		records, err := models.ListUploads(c.Request.Context(), claim.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list uploads"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}

func getUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		record, err := models.GetUploadByPublicId(c.Request.Context(), claim.ID, c.Param("uploadId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load upload"})
			return
		}

		entries, err := models.ListLeakageEntries(c.Request.Context(), record.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load leakage entries"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"upload":          record,
			"leakage_entries": entries,
		}})
	}
}

func listUploadLeakagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := sessionClaim(c)
		if claim == nil {
			return
		}

		record, err := models.GetUploadByPublicId(c.Request.Context(), claim.ID, c.Param("uploadId"))
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load upload"})
			return
		}

		entries, err := models.ListLeakageEntries(c.Request.Context(), record.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load leakage entries"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}
