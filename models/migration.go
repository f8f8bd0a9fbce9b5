package models

import "bitbucket.org/mmdatafocus/advisor_backend/config"

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&User{},
		&UploadRecord{},
		&LeakageEntry{},
		&AlertRule{},
		&Notification{},
		&Report{},
	)
}
