package main

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/advisor_backend/alerting"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func TestSplitAndTrim(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"https://a.example", []string{"https://a.example"}},
		{"https://a.example, https://b.example", []string{"https://a.example", "https://b.example"}},
		{" , https://a.example, ", []string{"https://a.example"}},
	}
	for _, tc := range cases {
		if got := splitAndTrim(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestKnownMetric(t *testing.T) {
	if !knownMetric(alerting.MetricLeakageTotal) {
		t.Errorf("leakage_total should be a known metric")
	}
	if knownMetric("revenue_velocity") {
		t.Errorf("revenue_velocity should not be a known metric")
	}
}

func TestNotificationRows_SkipsMutedRules(t *testing.T) {
	drafts := []alerting.Notification{
		{Title: "HIGH: Large leakage watch", Message: "m1", Severity: "high", NotifyInApp: true},
		{Title: "LOW: Quiet rule", Message: "m2", Severity: "low", NotifyInApp: false},
	}

	rows := notificationRows(42, "UPLOAD-20250412-1a2b3c4d", drafts)

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1; notify_in_app=false must not persist", len(rows))
	}
	row := rows[0]
	if row.Title != "HIGH: Large leakage watch" || row.UserId != 42 {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.RelatedType != "upload" || row.RelatedId != "UPLOAD-20250412-1a2b3c4d" {
		t.Errorf("related = %s %s", row.RelatedType, row.RelatedId)
	}
	if row.IsRead == nil || *row.IsRead {
		t.Errorf("new notifications must start unread")
	}
	if !strings.HasPrefix(row.NotificationId, "NOTIF-") {
		t.Errorf("notification id = %q", row.NotificationId)
	}
}

// No database or Redis is connected in this process, so the gate must hold
// app routes at 503 while both probes keep answering.
func TestReadinessGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(readinessGate)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", readyzHandler)
	r.GET("/api/v1/uploads", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusNoContent, ""},
		{"/readyz", http.StatusServiceUnavailable, "starting"},
		{"/api/v1/uploads", http.StatusServiceUnavailable, ""},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.wantStatus {
			t.Errorf("%s status = %d, want %d", tc.path, w.Code, tc.wantStatus)
		}
		if tc.wantBody != "" && !strings.Contains(w.Body.String(), tc.wantBody) {
			t.Errorf("%s body = %q, want it to contain %q", tc.path, w.Body.String(), tc.wantBody)
		}
	}
}

func TestRenderMetrics(t *testing.T) {
	metrics := alerting.Metrics{
		alerting.MetricRevenueTotal:      decimal.RequireFromString("10700"),
		alerting.MetricLeakagePercentage: decimal.RequireFromString("5.61"),
	}
	got := renderMetrics(metrics)
	if got[alerting.MetricRevenueTotal] != "10700" {
		t.Errorf("revenue_total = %q, want 10700", got[alerting.MetricRevenueTotal])
	}
	if got[alerting.MetricLeakagePercentage] != "5.61" {
		t.Errorf("leakage_percentage = %q, want 5.61", got[alerting.MetricLeakagePercentage])
	}
}
