package model

// AlertType 告警类型
type AlertType string

const (
	AlertTypeMismatch    AlertType = "mismatch"
	AlertTypeFraud       AlertType = "fraud"
	AlertTypeDowntime    AlertType = "downtime"
	AlertTypePerformance AlertType = "performance"
	AlertTypeSecurity    AlertType = "security"
)

// AlertSeverity 告警严重级别
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertStatus 告警状态
type AlertStatus string

const (
	AlertStatusOpen          AlertStatus = "open"
	AlertStatusInvestigating AlertStatus = "investigating"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// AuditAlert 审计告警，仅通过显式处理流转状态，永不自动删除
type AuditAlert struct {
	ID                int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertID           string        `gorm:"column:alert_id;type:varchar(100);uniqueIndex;not null" json:"alert_id"`
	Type              AlertType     `gorm:"column:type;type:varchar(20);index;not null" json:"type"`
	Title             string        `gorm:"column:title;type:varchar(200);not null" json:"title"`
	Description       string        `gorm:"column:description;type:varchar(1000);not null" json:"description"`
	Severity          AlertSeverity `gorm:"column:severity;type:varchar(10);index;not null" json:"severity"`
	Status            AlertStatus   `gorm:"column:status;type:varchar(20);index;not null;default:open" json:"status"`
	OrderID           string        `gorm:"column:order_id;type:varchar(100);index" json:"order_id,omitempty"`
	WalletAddress     string        `gorm:"column:wallet_address;type:varchar(42);index" json:"wallet_address,omitempty"`
	ContractAddress   string        `gorm:"column:contract_address;type:varchar(42)" json:"contract_address,omitempty"`
	Metadata          JSONMap       `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	RecommendedAction string        `gorm:"column:recommended_action;type:varchar(500)" json:"recommended_action,omitempty"`
	ResolvedAt        *int64        `gorm:"column:resolved_at;type:bigint" json:"resolved_at,omitempty"`
	ResolvedBy        string        `gorm:"column:resolved_by;type:varchar(100)" json:"resolved_by,omitempty"`
	CreatedAt         int64         `gorm:"column:created_at;type:bigint;index;not null" json:"created_at"`
	UpdatedAt         int64         `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (AuditAlert) TableName() string {
	return "trust_audit_alerts"
}

// IsOpen 是否未处理
func (a *AuditAlert) IsOpen() bool {
	return a.Status == AlertStatusOpen || a.Status == AlertStatusInvestigating
}
