package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cronosmart/trust-monitor/internal/model"
)

// RiskScoreRepository 钱包风险评分仓储
type RiskScoreRepository struct {
	db *gorm.DB
}

// NewRiskScoreRepository 创建风险评分仓储
func NewRiskScoreRepository(db *gorm.DB) *RiskScoreRepository {
	return &RiskScoreRepository{db: db}
}

// Upsert 按钱包地址原子写入评分。ON CONFLICT 保证并发周期
// 评到同一钱包时不会丢失更新。
func (r *RiskScoreRepository) Upsert(ctx context.Context, score *model.RiskScore) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "wallet_address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_type", "risk_score", "risk_level",
				"dispute_rate", "refund_rate", "order_count",
				"avg_order_value", "account_age_days", "patterns",
				"flagged", "last_updated",
			}),
		}).
		Create(score).Error
}

// GetByWallet 按钱包地址查询
func (r *RiskScoreRepository) GetByWallet(ctx context.Context, wallet string) (*model.RiskScore, error) {
	var score model.RiskScore
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", wallet).
		First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// ScoreQuery 评分查询条件
type ScoreQuery struct {
	Flagged  *bool
	UserType model.UserType
	Limit    int
}

// List 查询评分，按分数倒序
func (r *RiskScoreRepository) List(ctx context.Context, query *ScoreQuery) ([]*model.RiskScore, error) {
	limit := 100
	q := r.db.WithContext(ctx).Model(&model.RiskScore{})

	if query != nil {
		if query.Flagged != nil {
			q = q.Where("flagged = ?", *query.Flagged)
		}
		if query.UserType != "" {
			q = q.Where("user_type = ?", query.UserType)
		}
		if query.Limit > 0 {
			limit = query.Limit
		}
	}

	var scores []*model.RiskScore
	err := q.Order("risk_score DESC").Limit(limit).Find(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// TopFlagged 查询被标记的高风险钱包
func (r *RiskScoreRepository) TopFlagged(ctx context.Context, limit int) ([]*model.RiskScore, error) {
	flagged := true
	return r.List(ctx, &ScoreQuery{Flagged: &flagged, Limit: limit})
}
