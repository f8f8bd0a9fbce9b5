package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/shopspring/decimal"
)

// Exercises the whole persistence path for one upload: the transactional
// write, entry ordering, dashboard totals and notification read flow.
func TestUploadLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "advisor_test")

	config.ConnectDatabaseWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	db := config.GetDB()
	user := models.User{Email: "lifecycle@test.local", FullName: "Lifecycle", IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	fetched, err := models.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if fetched.Email != user.Email {
		t.Fatalf("GetUserByID email = %q, want %q", fetched.Email, user.Email)
	}
	if _, err := models.GetUserByID(ctx, user.ID+1000); err != utils.ErrorRecordNotFound {
		t.Fatalf("expected ErrorRecordNotFound for unknown user, got %v", err)
	}

	record := &models.UploadRecord{
		UploadId:     models.NewUploadId(),
		UserId:       user.ID,
		FileName:     "march.csv",
		FileSize:     2048,
		FileType:     "csv",
		RowCount:     5,
		SkippedCount: 1,
		TotalFlagged: 2,
		TotalImpact:  decimal.NewFromInt(600),
		TotalAmount:  decimal.NewFromInt(10700),
		RuleBreakdown: map[string]int{
			"duplicate":         1,
			"anomalous_amount":  1,
			"incomplete_record": 0,
		},
		Status: models.UploadStatusDone,
	}
	entries := []*models.LeakageEntry{
		{Rule: "anomalous_amount", Severity: models.SeverityMedium, RowIndex: 4, Impact: decimal.NewFromInt(500)},
		{Rule: "duplicate", Severity: models.SeverityHigh, RowIndex: 2, Impact: decimal.NewFromInt(100)},
	}
	notifications := []*models.Notification{
		{
			NotificationId: models.NewNotificationId(),
			UserId:         user.ID,
			Title:          "HIGH: Large leakage watch",
			Message:        "Alert \"Large leakage watch\" triggered!",
			Severity:       models.SeverityHigh,
			IsRead:         utils.NewFalse(),
			RelatedType:    "upload",
			RelatedId:      record.UploadId,
		},
	}

	if err := models.CreateUploadWithResults(ctx, record, entries, notifications); err != nil {
		t.Fatalf("CreateUploadWithResults: %v", err)
	}

	got, err := models.GetUploadByPublicId(ctx, user.ID, record.UploadId)
	if err != nil {
		t.Fatalf("GetUploadByPublicId: %v", err)
	}
	if got.RuleBreakdown["duplicate"] != 1 {
		t.Fatalf("rule breakdown not round-tripped: %v", got.RuleBreakdown)
	}

	// A stranger must not see the upload.
	if _, err := models.GetUploadByPublicId(ctx, user.ID+1, record.UploadId); err != utils.ErrorRecordNotFound {
		t.Fatalf("expected ErrorRecordNotFound for other user, got %v", err)
	}

	listed, err := models.ListLeakageEntries(ctx, got.ID)
	if err != nil {
		t.Fatalf("ListLeakageEntries: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(listed))
	}
	if listed[0].RowIndex != 2 || listed[1].RowIndex != 4 {
		t.Fatalf("entries not ordered by row index: %d, %d", listed[0].RowIndex, listed[1].RowIndex)
	}

	totals, err := models.GetUploadTotals(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUploadTotals: %v", err)
	}
	if totals.TotalUploads != 1 || totals.TotalRows != 5 || totals.TotalFlagged != 2 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.TotalImpact.Cmp(decimal.NewFromInt(600)) != 0 {
		t.Fatalf("expected total impact 600, got %s", totals.TotalImpact.String())
	}

	// Failed uploads stay out of the totals.
	failed := &models.UploadRecord{
		UploadId:     models.NewUploadId(),
		UserId:       user.ID,
		FileName:     "broken.csv",
		FileType:     "csv",
		ErrorMessage: "file structure is unreadable",
	}
	if err := models.CreateFailedUpload(ctx, failed); err != nil {
		t.Fatalf("CreateFailedUpload: %v", err)
	}
	totals, err = models.GetUploadTotals(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUploadTotals after failure: %v", err)
	}
	if totals.TotalUploads != 1 {
		t.Fatalf("failed upload leaked into totals: %+v", totals)
	}

	// Notification read flow is monotonic.
	count, err := models.UnreadNotificationCount(ctx, user.ID)
	if err != nil {
		t.Fatalf("UnreadNotificationCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread, got %d", count)
	}
	n, err := models.MarkNotificationRead(ctx, user.ID, notifications[0].NotificationId)
	if err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if n.IsRead == nil || !*n.IsRead {
		t.Fatalf("notification not marked read")
	}
	// Second mark is a no-op, not an error.
	if _, err := models.MarkNotificationRead(ctx, user.ID, notifications[0].NotificationId); err != nil {
		t.Fatalf("second MarkNotificationRead: %v", err)
	}
	count, err = models.UnreadNotificationCount(ctx, user.ID)
	if err != nil {
		t.Fatalf("UnreadNotificationCount after read: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread, got %d", count)
	}
}

func TestAlertRuleCRUD(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "advisor_test")

	config.ConnectDatabaseWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	db := config.GetDB()
	user := models.User{Email: "rules@test.local", IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	rule, err := models.CreateAlertRule(ctx, user.ID, &models.NewAlertRule{
		Name:       "Leakage ceiling",
		Metric:     "leakage_total",
		Comparator: "greater_than",
		Threshold:  decimal.NewFromInt(1000),
		Severity:   models.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("CreateAlertRule: %v", err)
	}
	if !strings.HasPrefix(rule.AlertId, "ALERT-") {
		t.Fatalf("unexpected alert id %q", rule.AlertId)
	}
	if rule.NotifyInApp == nil || !*rule.NotifyInApp {
		t.Fatalf("notify_in_app should default to true")
	}

	deactivate := false
	updated, err := models.UpdateAlertRule(ctx, user.ID, rule.AlertId, &models.UpdateAlertRuleInput{
		IsActive: &deactivate,
	})
	if err != nil {
		t.Fatalf("UpdateAlertRule: %v", err)
	}
	if updated.IsActive == nil || *updated.IsActive {
		t.Fatalf("rule still active after update")
	}

	active, err := models.ListActiveAlertRules(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListActiveAlertRules: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("deactivated rule still listed as active")
	}

	if err := models.DeleteAlertRule(ctx, user.ID, rule.AlertId); err != nil {
		t.Fatalf("DeleteAlertRule: %v", err)
	}
	if err := models.DeleteAlertRule(ctx, user.ID, rule.AlertId); err != utils.ErrorRecordNotFound {
		t.Fatalf("expected ErrorRecordNotFound on second delete, got %v", err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("advisor-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=advisor_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
