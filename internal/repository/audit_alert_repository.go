package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cronosmart/trust-monitor/internal/model"
)

var (
	// ErrAlertNotFound 告警不存在
	ErrAlertNotFound = errors.New("alert not found")
)

// AuditAlertRepository 审计告警仓储
type AuditAlertRepository struct {
	db *gorm.DB
}

// NewAuditAlertRepository 创建审计告警仓储
func NewAuditAlertRepository(db *gorm.DB) *AuditAlertRepository {
	return &AuditAlertRepository{db: db}
}

// Create 创建告警
func (r *AuditAlertRepository) Create(ctx context.Context, alert *model.AuditAlert) error {
	now := time.Now().UnixMilli()
	if alert.CreatedAt == 0 {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	if alert.Status == "" {
		alert.Status = model.AlertStatusOpen
	}
	return r.db.WithContext(ctx).Create(alert).Error
}

// GetByAlertID 按告警 ID 查询
func (r *AuditAlertRepository) GetByAlertID(ctx context.Context, alertID string) (*model.AuditAlert, error) {
	var alert model.AuditAlert
	err := r.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// FindOpenMismatch 查找某订单未处理的状态不一致告警，用于对账去重
func (r *AuditAlertRepository) FindOpenMismatch(ctx context.Context, orderID string) (*model.AuditAlert, error) {
	var alert model.AuditAlert
	err := r.db.WithContext(ctx).
		Where("type = ?", model.AlertTypeMismatch).
		Where("order_id = ?", orderID).
		Where("status IN ?", []model.AlertStatus{model.AlertStatusOpen, model.AlertStatusInvestigating}).
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// FindOpenFraud 查找某钱包未处理的欺诈告警，用于评分去重
func (r *AuditAlertRepository) FindOpenFraud(ctx context.Context, wallet string) (*model.AuditAlert, error) {
	var alert model.AuditAlert
	err := r.db.WithContext(ctx).
		Where("type = ?", model.AlertTypeFraud).
		Where("wallet_address = ?", wallet).
		Where("status IN ?", []model.AlertStatus{model.AlertStatusOpen, model.AlertStatusInvestigating}).
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// AlertQuery 告警查询条件
type AlertQuery struct {
	Status   model.AlertStatus
	Severity model.AlertSeverity
	Limit    int
}

// List 查询告警，按创建时间倒序
func (r *AuditAlertRepository) List(ctx context.Context, query *AlertQuery) ([]*model.AuditAlert, error) {
	limit := 100
	q := r.db.WithContext(ctx).Model(&model.AuditAlert{})

	if query != nil {
		if query.Status != "" {
			q = q.Where("status = ?", query.Status)
		}
		if query.Severity != "" {
			q = q.Where("severity = ?", query.Severity)
		}
		if query.Limit > 0 {
			limit = query.Limit
		}
	}

	var alerts []*model.AuditAlert
	err := q.Order("created_at DESC").Limit(limit).Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// Resolve 流转告警状态
func (r *AuditAlertRepository) Resolve(ctx context.Context, alertID string, status model.AlertStatus, resolvedBy string) (*model.AuditAlert, error) {
	updates := map[string]interface{}{
		"status":      status,
		"resolved_by": resolvedBy,
		"updated_at":  time.Now().UnixMilli(),
	}
	if status == model.AlertStatusResolved || status == model.AlertStatusFalsePositive {
		updates["resolved_at"] = time.Now().UnixMilli()
	}

	result := r.db.WithContext(ctx).
		Model(&model.AuditAlert{}).
		Where("alert_id = ?", alertID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlertNotFound
	}

	return r.GetByAlertID(ctx, alertID)
}

// CountBySeveritySince 按严重级别统计指定时间之后创建的告警
func (r *AuditAlertRepository) CountBySeveritySince(ctx context.Context, since int64) (map[model.AlertSeverity]int64, error) {
	type row struct {
		Severity model.AlertSeverity
		Count    int64
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.AuditAlert{}).
		Select("severity, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.AlertSeverity]int64)
	for _, r := range rows {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}
