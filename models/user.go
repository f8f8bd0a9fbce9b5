package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"gorm.io/gorm"
)

// User is an account holder. Credential issuance lives outside this service;
// requests arrive with a bearer token that already names the user id.
type User struct {
	ID          int        `gorm:"primary_key" json:"id"`
	Email       string     `gorm:"size:100;not null;unique" json:"email" binding:"required,email"`
	FullName    string     `gorm:"size:100" json:"full_name"`
	CompanyName string     `gorm:"size:100" json:"company_name"`
	Role        string     `gorm:"size:50" json:"role"`
	IsActive    *bool      `gorm:"not null;default:true" json:"is_active"`
	LastLogin   *time.Time `json:"last_login"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetUserByID(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}
