// Package config 提供信任监控服务配置管理
package config

import (
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 信任监控服务配置
type Config struct {
	Service  ServiceConfig  `yaml:"service" json:"service"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Chain    ChainConfig    `yaml:"chain" json:"chain"`
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`
	Paywall  PaywallConfig  `yaml:"paywall" json:"paywall"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
	Version  string `yaml:"version" json:"version"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	Database               string `yaml:"database" json:"database"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	MaxConnections         int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Brokers  []string `yaml:"brokers" json:"brokers"`
	ClientID string   `yaml:"client_id" json:"client_id"`
}

// ChainConfig 链访问配置
type ChainConfig struct {
	RPCURLs        []string `yaml:"rpc_urls" json:"rpc_urls"`
	EscrowAddress  string   `yaml:"escrow_address" json:"escrow_address"`
	VaultAddress   string   `yaml:"vault_address" json:"vault_address"`
	RPCTimeoutSec  int      `yaml:"rpc_timeout_sec" json:"rpc_timeout_sec"`
	ScanBlocks     int64    `yaml:"scan_blocks" json:"scan_blocks"`           // 事件扫描窗口
	ReconBlocks    int64    `yaml:"recon_blocks" json:"recon_blocks"`         // 对账扫描窗口
	DeepScanBlocks int64    `yaml:"deep_scan_blocks" json:"deep_scan_blocks"` // 深度扫描窗口
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	IntervalSec        int             `yaml:"interval_sec" json:"interval_sec"`                 // 基础巡检周期
	ScanEveryCycles    int             `yaml:"scan_every_cycles" json:"scan_every_cycles"`       // 事件扫描/对账节拍
	FraudEveryCycles   int             `yaml:"fraud_every_cycles" json:"fraud_every_cycles"`     // 欺诈扫描节拍
	ProbeBaseURL       string          `yaml:"probe_base_url" json:"probe_base_url"`
	ProbeEndpoints     []ProbeEndpoint `yaml:"probe_endpoints" json:"probe_endpoints"`
	ProbeTimeoutSec    int             `yaml:"probe_timeout_sec" json:"probe_timeout_sec"`
	RetentionDays      int             `yaml:"retention_days" json:"retention_days"`
	LookbackHours      int             `yaml:"lookback_hours" json:"lookback_hours"`             // 对账回看窗口
	AdminKey           string          `yaml:"admin_key" json:"admin_key"`
	HighValueThreshold string          `yaml:"high_value_threshold" json:"high_value_threshold"` // 高价值订单阈值
}

// ProbeEndpoint 巡检端点
type ProbeEndpoint struct {
	Path   string `yaml:"path" json:"path"`
	Method string `yaml:"method" json:"method"`
	Body   string `yaml:"body" json:"body"` // POST 巡检的请求体
}

// PaywallConfig x402 付费墙配置
type PaywallConfig struct {
	Receiver    string `yaml:"receiver" json:"receiver"`
	Token       string `yaml:"token" json:"token"`
	Price       string `yaml:"price" json:"price"`
	MinValueWei string `yaml:"min_value_wei" json:"min_value_wei"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换
	content := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "trust-monitor"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8090
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = "1.0.0"
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 20
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.ConnMaxLifetimeMinutes == 0 {
		cfg.Postgres.ConnMaxLifetimeMinutes = 60
	}

	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}

	if cfg.Chain.RPCTimeoutSec == 0 {
		cfg.Chain.RPCTimeoutSec = 10
	}
	if cfg.Chain.ScanBlocks == 0 {
		cfg.Chain.ScanBlocks = 1000
	}
	if cfg.Chain.ReconBlocks == 0 {
		cfg.Chain.ReconBlocks = 2000
	}
	if cfg.Chain.DeepScanBlocks == 0 {
		cfg.Chain.DeepScanBlocks = 5000
	}

	if cfg.Monitor.IntervalSec == 0 {
		cfg.Monitor.IntervalSec = 30
	}
	if cfg.Monitor.ScanEveryCycles == 0 {
		cfg.Monitor.ScanEveryCycles = 5
	}
	if cfg.Monitor.FraudEveryCycles == 0 {
		cfg.Monitor.FraudEveryCycles = 15
	}
	if cfg.Monitor.ProbeBaseURL == "" {
		cfg.Monitor.ProbeBaseURL = "http://localhost:8080"
	}
	if len(cfg.Monitor.ProbeEndpoints) == 0 {
		cfg.Monitor.ProbeEndpoints = []ProbeEndpoint{
			{Path: "/health", Method: "GET"},
			{Path: "/api/products", Method: "GET"},
			{Path: "/api/orders", Method: "GET"},
		}
	}
	if cfg.Monitor.ProbeTimeoutSec == 0 {
		cfg.Monitor.ProbeTimeoutSec = 10
	}
	if cfg.Monitor.RetentionDays == 0 {
		cfg.Monitor.RetentionDays = 30
	}
	if cfg.Monitor.LookbackHours == 0 {
		cfg.Monitor.LookbackHours = 24
	}
	if cfg.Monitor.HighValueThreshold == "" {
		cfg.Monitor.HighValueThreshold = "1000"
	}

	if cfg.Paywall.Token == "" {
		cfg.Paywall.Token = "USDC"
	}
	if cfg.Paywall.Price == "" {
		cfg.Paywall.Price = "0.05"
	}
	if cfg.Paywall.MinValueWei == "" {
		cfg.Paywall.MinValueWei = "20000000000000000" // 0.02 native
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Interval 基础巡检周期
func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// ProbeTimeout 巡检超时
func (c *MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}

// Retention 日志保留窗口
func (c *MonitorConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Lookback 对账回看窗口
func (c *MonitorConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// RPCTimeout RPC 超时
func (c *ChainConfig) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSec) * time.Second
}

// MinValue 最低支付金额 (wei)
func (c *PaywallConfig) MinValue() *big.Int {
	v, ok := new(big.Int).SetString(c.MinValueWei, 10)
	if !ok {
		return big.NewInt(20000000000000000)
	}
	return v
}
