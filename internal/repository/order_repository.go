package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/cronosmart/trust-monitor/internal/model"
)

// OrderRepository 市场订单账本的只读访问
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID 按订单 ID 查询
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListCreatedSince 查询指定时间之后创建的订单
func (r *OrderRepository) ListCreatedSince(ctx context.Context, since int64) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByWallet 查询钱包在指定角色下的全部订单
func (r *OrderRepository) ListByWallet(ctx context.Context, wallet string, userType model.UserType) ([]*model.Order, error) {
	column := "buyer"
	if userType == model.UserTypeSeller {
		column = "seller"
	}

	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where(column+" = ?", wallet).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CountByBuyerSince 统计买家在指定时间之后的订单数
func (r *OrderRepository) CountByBuyerSince(ctx context.Context, buyer string, since int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("buyer = ?", buyer).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}

// WalletAggregate 聚合扫描结果
type WalletAggregate struct {
	Wallet    string  `json:"wallet"`
	Count     int64   `json:"count"`
	AvgMillis float64 `json:"avg_millis"`
}

// WalletsWithDisputes 查找争议订单数达到阈值的买家钱包
func (r *OrderRepository) WalletsWithDisputes(ctx context.Context, minCount int) ([]*WalletAggregate, error) {
	var rows []*WalletAggregate
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("buyer AS wallet, COUNT(*) AS count").
		Where("status = ?", model.OrderStatusDisputed).
		Group("buyer").
		Having("COUNT(*) >= ?", minCount).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WalletsWithRapidRefunds 查找退款次数达到阈值且平均结案时间
// 低于上限的买家钱包
func (r *OrderRepository) WalletsWithRapidRefunds(ctx context.Context, minCount int, maxAvgMillis int64) ([]*WalletAggregate, error) {
	var rows []*WalletAggregate
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("buyer AS wallet, COUNT(*) AS count, AVG(updated_at - created_at) AS avg_millis").
		Where("status = ?", model.OrderStatusRefunded).
		Group("buyer").
		Having("COUNT(*) >= ? AND AVG(updated_at - created_at) < ?", minCount, maxAvgMillis).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
