package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/pkg/logger"
)

var (
	// ErrInvalidTxHash 交易哈希格式非法
	ErrInvalidTxHash = errors.New("invalid transaction hash")
	// ErrPaymentNotFound 链上找不到支付交易
	ErrPaymentNotFound = errors.New("payment transaction not found")
	// ErrPaymentRejected 支付校验不通过
	ErrPaymentRejected = errors.New("payment rejected")
)

// TxReader 支付校验所需的链读取能力
type TxReader interface {
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

// PaymentRequest x402 支付报价
type PaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Feature   string `json:"feature"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Receiver  string `json:"receiver"`
	Memo      string `json:"memo"`
}

// PaymentService x402 付费墙：生成报价并校验链上支付
type PaymentService struct {
	reader   TxReader
	receiver common.Address
	token    string
	price    string
	minValue *big.Int
}

// NewPaymentService 创建支付服务
func NewPaymentService(reader TxReader, receiver common.Address, token, price string, minValue *big.Int) *PaymentService {
	if minValue == nil {
		minValue = big.NewInt(20000000000000000) // 0.02 native
	}
	return &PaymentService{
		reader:   reader,
		receiver: receiver,
		token:    token,
		price:    price,
		minValue: minValue,
	}
}

// GeneratePaymentRequest 生成付费功能报价
func (s *PaymentService) GeneratePaymentRequest(feature string) *PaymentRequest {
	paymentID := uuid.NewString()
	return &PaymentRequest{
		PaymentID: paymentID,
		Feature:   feature,
		Amount:    s.price,
		Token:     s.token,
		Receiver:  s.receiver.Hex(),
		Memo:      fmt.Sprintf("%s:%s", feature, paymentID),
	}
}

// VerifyPayment 校验链上支付：收款地址匹配 (忽略大小写)
// 且金额不低于配置下限。拒绝原因记 warning 日志。
func (s *PaymentService) VerifyPayment(ctx context.Context, txHash string) error {
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		return fmt.Errorf("%w: %s", ErrInvalidTxHash, txHash)
	}

	tx, pending, err := s.reader.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		logger.Warn("payment lookup failed",
			zap.String("tx", txHash),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
	}
	if pending {
		logger.Warn("payment still pending", zap.String("tx", txHash))
		return fmt.Errorf("%w: transaction pending", ErrPaymentRejected)
	}

	to := tx.To()
	if to == nil || !strings.EqualFold(to.Hex(), s.receiver.Hex()) {
		logger.Warn("payment recipient mismatch",
			zap.String("tx", txHash),
			zap.String("expected", s.receiver.Hex()))
		return fmt.Errorf("%w: recipient mismatch", ErrPaymentRejected)
	}

	if tx.Value().Cmp(s.minValue) < 0 {
		logger.Warn("payment value below minimum",
			zap.String("tx", txHash),
			zap.String("value", tx.Value().String()),
			zap.String("min", s.minValue.String()))
		return fmt.Errorf("%w: value below minimum", ErrPaymentRejected)
	}

	return nil
}
