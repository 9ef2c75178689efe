package model

import "github.com/shopspring/decimal"

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusFunded    OrderStatus = "FUNDED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusDisputed  OrderStatus = "DISPUTED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Order 市场订单的只读视图。监控服务只查询，
// 状态修正由运营通过告警处理完成。
type Order struct {
	ID           string          `gorm:"primaryKey;column:id;type:varchar(100)" json:"id"`
	ChainOrderID string          `gorm:"column:chain_order_id;type:varchar(66);index" json:"chain_order_id"` // 链上 bytes32 orderId (0x...)
	Buyer        string          `gorm:"column:buyer;type:varchar(42);index;not null" json:"buyer"`
	Seller       string          `gorm:"column:seller;type:varchar(42);index;not null" json:"seller"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Status       OrderStatus     `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	CreatedAt    int64           `gorm:"column:created_at;type:bigint;index;not null" json:"created_at"`
	UpdatedAt    int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (Order) TableName() string {
	return "orders"
}

// IsTerminal 是否处于终态
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted ||
		o.Status == OrderStatusDisputed ||
		o.Status == OrderStatusRefunded
}
