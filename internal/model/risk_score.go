package model

import "github.com/shopspring/decimal"

// UserType 用户角色
type UserType string

const (
	UserTypeBuyer  UserType = "buyer"
	UserTypeSeller UserType = "seller"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// FlagThreshold 达到该分数即标记钱包
const FlagThreshold = 70

// RiskScore 钱包风险评分，每个钱包一行，评分时原子 upsert
type RiskScore struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletAddress  string          `gorm:"column:wallet_address;type:varchar(42);uniqueIndex;not null" json:"wallet_address"`
	UserType       UserType        `gorm:"column:user_type;type:varchar(10);not null" json:"user_type"`
	RiskScore      int             `gorm:"column:risk_score;type:int;index;not null" json:"risk_score"`
	RiskLevel      RiskLevel       `gorm:"column:risk_level;type:varchar(10);index;not null" json:"risk_level"`
	DisputeRate    float64         `gorm:"column:dispute_rate;type:decimal(6,4)" json:"dispute_rate"`
	RefundRate     float64         `gorm:"column:refund_rate;type:decimal(6,4)" json:"refund_rate"`
	OrderCount     int             `gorm:"column:order_count;type:int" json:"order_count"`
	AvgOrderValue  decimal.Decimal `gorm:"column:avg_order_value;type:decimal(36,18)" json:"avg_order_value"`
	AccountAgeDays int             `gorm:"column:account_age_days;type:int" json:"account_age_days"`
	Patterns       StringList      `gorm:"column:patterns;type:jsonb" json:"patterns,omitempty"`
	Flagged        bool            `gorm:"column:flagged;index;not null" json:"flagged"`
	LastUpdated    int64           `gorm:"column:last_updated;type:bigint;not null" json:"last_updated"`
}

// TableName 返回表名
func (RiskScore) TableName() string {
	return "trust_risk_scores"
}

// LevelForScore 按分数推导风险等级
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelCritical
	case score >= 60:
		return RiskLevelHigh
	case score >= 40:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}
