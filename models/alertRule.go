package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertRule is a user-defined threshold. Inactive rules are kept but never
// evaluated.
type AlertRule struct {
	ID          int             `gorm:"primary_key" json:"id"`
	AlertId     string          `gorm:"size:64;not null;uniqueIndex" json:"alert_id"`
	UserId      int             `gorm:"index;not null" json:"user_id"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Metric      string          `gorm:"size:64;not null" json:"metric"`
	Comparator  string          `gorm:"size:16;not null" json:"comparator"`
	Threshold   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"threshold"`
	Severity    Severity        `gorm:"size:16;not null" json:"severity"`
	NotifyInApp *bool           `gorm:"not null;default:true" json:"notify_in_app"`
	IsActive    *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAlertRule struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Metric      string          `json:"metric" binding:"required"`
	Comparator  string          `json:"comparator" binding:"required,comparator"`
	Threshold   decimal.Decimal `json:"threshold" binding:"required"`
	Severity    Severity        `json:"severity" binding:"required,severity"`
	NotifyInApp *bool           `json:"notify_in_app"`
}

// UpdateAlertRuleInput carries a partial update; nil fields are untouched.
type UpdateAlertRuleInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Metric      *string          `json:"metric"`
	Comparator  *string          `json:"comparator" binding:"omitempty,comparator"`
	Threshold   *decimal.Decimal `json:"threshold"`
	Severity    *Severity        `json:"severity" binding:"omitempty,severity"`
	NotifyInApp *bool            `json:"notify_in_app"`
	IsActive    *bool            `json:"is_active"`
}

func CreateAlertRule(ctx context.Context, userId int, input *NewAlertRule) (*AlertRule, error) {
	db := config.GetDB()
	rule := AlertRule{
		AlertId:     fmt.Sprintf("ALERT-%s", uuid.NewString()[:8]),
		UserId:      userId,
		Name:        input.Name,
		Description: input.Description,
		Metric:      input.Metric,
		Comparator:  input.Comparator,
		Threshold:   input.Threshold,
		Severity:    input.Severity,
		NotifyInApp: input.NotifyInApp,
		IsActive:    utils.NewTrue(),
	}
	if rule.NotifyInApp == nil {
		rule.NotifyInApp = utils.NewTrue()
	}
	if err := db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func UpdateAlertRule(ctx context.Context, userId int, alertId string, input *UpdateAlertRuleInput) (*AlertRule, error) {
	db := config.GetDB()

	rule, err := GetAlertRule(ctx, userId, alertId)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Metric != nil {
		updates["metric"] = *input.Metric
	}
	if input.Comparator != nil {
		updates["comparator"] = *input.Comparator
	}
	if input.Threshold != nil {
		updates["threshold"] = *input.Threshold
	}
	if input.Severity != nil {
		updates["severity"] = *input.Severity
	}
	if input.NotifyInApp != nil {
		updates["notify_in_app"] = *input.NotifyInApp
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return rule, nil
	}

	if err := db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetAlertRule(ctx, userId, alertId)
}

func DeleteAlertRule(ctx context.Context, userId int, alertId string) error {
	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("alert_id = ? AND user_id = ?", alertId, userId).
		Delete(&AlertRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetAlertRule(ctx context.Context, userId int, alertId string) (*AlertRule, error) {
	db := config.GetDB()
	var rule AlertRule
	err := db.WithContext(ctx).
		Where("alert_id = ? AND user_id = ?", alertId, userId).
		First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func ListAlertRules(ctx context.Context, userId int) ([]*AlertRule, error) {
	db := config.GetDB()
	var rules []*AlertRule
	err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&rules).Error
	return rules, err
}

// ListActiveAlertRules returns the rules the evaluator should see for one
// upload event.
func ListActiveAlertRules(ctx context.Context, userId int) ([]*AlertRule, error) {
	db := config.GetDB()
	var rules []*AlertRule
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userId, true).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}
