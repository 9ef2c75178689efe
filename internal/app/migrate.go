package app

import (
	"gorm.io/gorm"

	"github.com/cronosmart/trust-monitor/internal/model"
)

// autoMigrate 建表，orders 为市场后端的表，这里只为
// 本地与测试环境兜底建表
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.AuditLog{},
		&model.AuditAlert{},
		&model.RiskScore{},
		&model.Order{},
	)
}
