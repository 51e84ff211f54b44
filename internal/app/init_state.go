package app

import (
	"fmt"

	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
)

// HasAdminInitialized reports whether at least one enabled admin account exists.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).
		Where("role = ? AND disabled = ?", models.RoleAdmin, false).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
