package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cronosmart/trust-monitor/internal/model"
)

// AuditLogRepository 审计日志仓储。所有查询都排除保留窗口之外的
// 记录，过期行由定期清理任务物理删除。
type AuditLogRepository struct {
	db        *gorm.DB
	retention time.Duration
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB, retention time.Duration) *AuditLogRepository {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &AuditLogRepository{db: db, retention: retention}
}

// cutoff 保留窗口下界 (毫秒)
func (r *AuditLogRepository) cutoff() int64 {
	return time.Now().Add(-r.retention).UnixMilli()
}

// Create 写入审计日志
func (r *AuditLogRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.CreatedAt == 0 {
		log.CreatedAt = time.Now().UnixMilli()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// LogQuery 日志查询条件
type LogQuery struct {
	Category model.AuditCategory
	Severity model.LogSeverity
}

// List 分页查询审计日志
func (r *AuditLogRepository) List(ctx context.Context, query *LogQuery, pagination *Pagination) ([]*model.AuditLog, int64, error) {
	var logs []*model.AuditLog
	var total int64

	q := r.db.WithContext(ctx).
		Model(&model.AuditLog{}).
		Where("created_at >= ?", r.cutoff())

	if query != nil {
		if query.Category != "" {
			q = q.Where("category = ?", query.Category)
		}
		if query.Severity != "" {
			q = q.Where("severity = ?", query.Severity)
		}
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ListSince 查询指定时间之后的日志 (用于报告统计)
func (r *AuditLogRepository) ListSince(ctx context.Context, since int64) ([]*model.AuditLog, error) {
	cutoff := r.cutoff()
	if since < cutoff {
		since = cutoff
	}

	var logs []*model.AuditLog
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// PurgeExpired 物理删除过期日志，返回删除行数
func (r *AuditLogRepository) PurgeExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", r.cutoff()).
		Delete(&model.AuditLog{})
	return result.RowsAffected, result.Error
}
