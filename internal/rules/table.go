// Package rules 实现钱包风险评分规则表，规则带版本，
// 评分结果可追溯到触发的规则 ID
package rules

import (
	"github.com/shopspring/decimal"
)

// 规则 ID
const (
	HighDisputeRateRuleID     = "HIGH_DISPUTE_RATE"
	ElevatedDisputeRateRuleID = "ELEVATED_DISPUTE_RATE"
	HighRefundRateRuleID      = "HIGH_REFUND_RATE"
	NewAccountRuleID          = "NEW_ACCOUNT"
	HighValueOrdersRuleID     = "HIGH_VALUE_ORDERS"
	RapidOrderingRuleID       = "RAPID_ORDERING"
)

// BaseScore 所有钱包的起始分
const BaseScore = 50

// WalletFactors 从订单账本统计出的评分因子
type WalletFactors struct {
	DisputeRate        float64         // 争议订单占比 [0,1]
	RefundRate         float64         // 退款订单占比 [0,1]
	OrderCount         int             // 总订单数
	OrdersLast7d       int             // 最近 7 天订单数
	AvgOrderValue      decimal.Decimal // 平均订单金额
	AccountAgeDays     int             // 首单至今天数
	HighValueThreshold decimal.Decimal // 大额订单阈值
}

// Rule 单条评分规则
type Rule struct {
	ID      string
	Label   string // 写入 RiskScore.Patterns 的模式标签
	Weight  int
	Applies func(f *WalletFactors) bool
}

// Table 版本化规则表
type Table struct {
	Version string
	Rules   []Rule
}

// Evaluation 评分结果
type Evaluation struct {
	Score    int
	Patterns []string
	RuleIDs  []string
	Version  string
}

// TableV1 当前生效的规则表
func TableV1() *Table {
	return &Table{
		Version: "v1",
		Rules: []Rule{
			{
				ID:     HighDisputeRateRuleID,
				Label:  "high_dispute_rate",
				Weight: 30,
				Applies: func(f *WalletFactors) bool {
					return f.DisputeRate > 0.30
				},
			},
			{
				ID:     ElevatedDisputeRateRuleID,
				Label:  "elevated_dispute_rate",
				Weight: 15,
				Applies: func(f *WalletFactors) bool {
					return f.DisputeRate > 0.10 && f.DisputeRate <= 0.30
				},
			},
			{
				ID:     HighRefundRateRuleID,
				Label:  "high_refund_rate",
				Weight: 25,
				Applies: func(f *WalletFactors) bool {
					return f.RefundRate > 0.20
				},
			},
			{
				ID:     NewAccountRuleID,
				Label:  "new_account",
				Weight: 20,
				Applies: func(f *WalletFactors) bool {
					return f.AccountAgeDays < 7
				},
			},
			{
				ID:     HighValueOrdersRuleID,
				Label:  "high_value_orders",
				Weight: 10,
				Applies: func(f *WalletFactors) bool {
					return f.AvgOrderValue.GreaterThan(f.HighValueThreshold)
				},
			},
			{
				ID:     RapidOrderingRuleID,
				Label:  "rapid_ordering",
				Weight: 15,
				Applies: func(f *WalletFactors) bool {
					return f.OrdersLast7d > 10
				},
			},
		},
	}
}

// Evaluate 对因子求和评分并截断到 [0,100]。
// 没有订单的钱包只有基准分，不触发任何规则。
func (t *Table) Evaluate(f *WalletFactors) *Evaluation {
	eval := &Evaluation{
		Score:   BaseScore,
		Version: t.Version,
	}
	if f == nil || f.OrderCount == 0 {
		return eval
	}

	for _, rule := range t.Rules {
		if rule.Applies(f) {
			eval.Score += rule.Weight
			eval.Patterns = append(eval.Patterns, rule.Label)
			eval.RuleIDs = append(eval.RuleIDs, rule.ID)
		}
	}

	if eval.Score > 100 {
		eval.Score = 100
	}
	if eval.Score < 0 {
		eval.Score = 0
	}
	return eval
}
