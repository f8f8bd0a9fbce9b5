// seed-demo creates or refreshes the demo account plus a starter set of
// alert rules so a fresh environment has something to look at.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/advisor_backend/alerting"
	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	demoEmail   = "demo@advisor.local"
	demoName    = "Demo User"
	demoCompany = "Advisor Demo Co"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	if err := models.MigrateTable(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	var user models.User
	err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", demoEmail).First(&user).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		user = models.User{
			Email:       demoEmail,
			FullName:    demoName,
			CompanyName: demoCompany,
			Role:        "owner",
			IsActive:    utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create demo user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created demo user: email=%q id=%d\n", demoEmail, user.ID)
	} else {
		fmt.Printf("Demo user already present: email=%q id=%d\n", demoEmail, user.ID)
	}

	seedRules := []models.NewAlertRule{
		{
			Name:       "Large leakage watch",
			Metric:     alerting.MetricLeakageTotal,
			Comparator: string(alerting.CompGreaterThan),
			Threshold:  decimal.NewFromInt(5_000),
			Severity:   models.SeverityHigh,
		},
		{
			Name:       "Data quality floor",
			Metric:     alerting.MetricDataQualityScore,
			Comparator: string(alerting.CompLessThan),
			Threshold:  decimal.NewFromInt(90),
			Severity:   models.SeverityMedium,
		},
		{
			Name:       "Duplicate spike",
			Metric:     alerting.MetricDuplicates,
			Comparator: string(alerting.CompGreaterThan),
			Threshold:  decimal.NewFromInt(10),
			Severity:   models.SeverityCritical,
		},
	}

	for _, input := range seedRules {
		var count int64
		db.WithContext(ctx).Model(&models.AlertRule{}).
			Where("user_id = ? AND name = ?", user.ID, input.Name).
			Count(&count)
		if count > 0 {
			continue
		}
		rule, err := models.CreateAlertRule(ctx, user.ID, &input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create alert rule %q: %v\n", input.Name, err)
			os.Exit(1)
		}
		fmt.Printf("Created alert rule: %s (%s)\n", rule.Name, rule.AlertId)
	}

	token, err := utils.JwtGenerate(user.ID, user.Email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint demo token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Demo bearer token:\n%s\n", token)
}
