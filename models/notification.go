package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is an in-app message produced when an alert rule fires.
// The read flag only ever moves from unread to read.
type Notification struct {
	ID             int       `gorm:"primary_key" json:"id"`
	NotificationId string    `gorm:"size:64;not null;uniqueIndex" json:"notification_id"`
	UserId         int       `gorm:"index;not null" json:"user_id"`
	Title          string    `gorm:"size:255;not null" json:"title"`
	Message        string    `gorm:"type:text" json:"message"`
	Severity       Severity  `gorm:"size:16" json:"severity"`
	IsRead         *bool     `gorm:"not null;default:false" json:"is_read"`
	RelatedType    string    `gorm:"size:32" json:"related_type,omitempty"`
	RelatedId      string    `gorm:"size:64" json:"related_id,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func NewNotificationId() string {
	return fmt.Sprintf("NOTIF-%s", uuid.NewString()[:8])
}

// CreateNotifications inserts the drafts on the given handle, which may be an
// open transaction.
func CreateNotifications(ctx context.Context, db *gorm.DB, notifications []*Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&notifications).Error
}

func ListNotifications(ctx context.Context, userId int, unreadOnly bool) ([]*Notification, error) {
	db := config.GetDB()
	var notifications []*Notification
	query := db.WithContext(ctx).Where("user_id = ?", userId)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	err := query.Order("created_at DESC, id DESC").Find(&notifications).Error
	return notifications, err
}

func UnreadNotificationCount(ctx context.Context, userId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userId, false).
		Count(&count).Error
	return count, err
}

// MarkNotificationRead flips one notification to read. Already-read
// notifications are left untouched and reported as not found.
func MarkNotificationRead(ctx context.Context, userId int, notificationId string) (*Notification, error) {
	db := config.GetDB()

	var notification Notification
	err := db.WithContext(ctx).
		Where("notification_id = ? AND user_id = ?", notificationId, userId).
		First(&notification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if notification.IsRead == nil || !*notification.IsRead {
		err = db.WithContext(ctx).Model(&notification).
			Update("is_read", true).Error
		if err != nil {
			return nil, err
		}
		notification.IsRead = utils.NewTrue()
	}
	return &notification, nil
}

func MarkAllNotificationsRead(ctx context.Context, userId int) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userId, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}
