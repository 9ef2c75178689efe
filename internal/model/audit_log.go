package model

// AuditCategory 审计日志类别
type AuditCategory string

const (
	CategoryHealthCheck    AuditCategory = "health_check"
	CategoryEndpointTest   AuditCategory = "endpoint_test"
	CategoryContractScan   AuditCategory = "contract_scan"
	CategoryFraudDetection AuditCategory = "fraud_detection"
)

// LogSeverity 日志严重级别
type LogSeverity string

const (
	SeverityInfo     LogSeverity = "info"
	SeverityWarning  LogSeverity = "warning"
	SeverityError    LogSeverity = "error"
	SeverityCritical LogSeverity = "critical"
)

// AuditLog 监控审计日志，只增不改，按保留窗口过期
type AuditLog struct {
	ID              int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Category        AuditCategory `gorm:"column:category;type:varchar(30);index;not null" json:"category"`
	Endpoint        string        `gorm:"column:endpoint;type:varchar(200)" json:"endpoint,omitempty"`
	Method          string        `gorm:"column:method;type:varchar(10)" json:"method,omitempty"`
	StatusCode      int           `gorm:"column:status_code;type:int" json:"status_code,omitempty"`
	LatencyMs       int           `gorm:"column:latency_ms;type:int" json:"latency_ms,omitempty"`
	Error           string        `gorm:"column:error;type:varchar(1000)" json:"error,omitempty"`
	ContractAddress string        `gorm:"column:contract_address;type:varchar(42)" json:"contract_address,omitempty"`
	BlockNumber     int64         `gorm:"column:block_number;type:bigint" json:"block_number,omitempty"`
	EventName       string        `gorm:"column:event_name;type:varchar(50)" json:"event_name,omitempty"`
	Metadata        JSONMap       `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	Severity        LogSeverity   `gorm:"column:severity;type:varchar(10);index;not null" json:"severity"`
	CreatedAt       int64         `gorm:"column:created_at;type:bigint;index;not null" json:"created_at"`
}

// TableName 返回表名
func (AuditLog) TableName() string {
	return "trust_audit_logs"
}

// IsFailure 是否记录了失败或不一致
func (l *AuditLog) IsFailure() bool {
	return l.Severity == SeverityError || l.Severity == SeverityCritical
}
