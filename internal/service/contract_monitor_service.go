package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/metrics"
	"github.com/cronosmart/trust-monitor/internal/model"
	"github.com/cronosmart/trust-monitor/internal/repository"
	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// EventScanner 合约事件扫描能力
type EventScanner interface {
	ScanEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*blockchain.EscrowEvent, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	ContractAddress() common.Address
}

// ContractMonitorService 托管合约事件监控
type ContractMonitorService struct {
	scanner    EventScanner
	logRepo    *repository.AuditLogRepository
	scanBlocks uint64
	vault      common.Address
}

// NewContractMonitorService 创建合约监控服务
func NewContractMonitorService(scanner EventScanner, logRepo *repository.AuditLogRepository, scanBlocks uint64, vault common.Address) *ContractMonitorService {
	if scanBlocks == 0 {
		scanBlocks = 1000
	}
	return &ContractMonitorService{
		scanner:    scanner,
		logRepo:    logRepo,
		scanBlocks: scanBlocks,
		vault:      vault,
	}
}

// ScanRecentEvents 扫描最近区块窗口内的托管事件，
// 每次扫描写入一条 contract_scan 审计日志
func (s *ContractMonitorService) ScanRecentEvents(ctx context.Context) ([]*blockchain.EscrowEvent, error) {
	head, err := s.scanner.LatestBlockNumber(ctx)
	if err != nil {
		s.logScanError(ctx, 0, err)
		return nil, fmt.Errorf("latest block: %w", err)
	}

	from := uint64(0)
	if head > s.scanBlocks {
		from = head - s.scanBlocks
	}

	events, err := s.scanner.ScanEvents(ctx, from, head)
	if err != nil {
		s.logScanError(ctx, head, err)
		return nil, fmt.Errorf("scan events: %w", err)
	}
	for _, ev := range events {
		metrics.EventsScannedTotal.WithLabelValues(ev.EventName).Inc()
	}

	metadata := model.JSONMap{
		"from_block":   from,
		"to_block":     head,
		"events_found": len(events),
	}
	if escrowBal, vaultBal, balErr := s.ContractBalances(ctx); balErr != nil {
		logger.Warn("contract balance lookup failed", zap.Error(balErr))
	} else {
		if escrowBal != nil {
			metadata["escrow_balance_wei"] = escrowBal.String()
		}
		if vaultBal != nil {
			metadata["vault_balance_wei"] = vaultBal.String()
		}
	}

	log := &model.AuditLog{
		Category:        model.CategoryContractScan,
		ContractAddress: s.scanner.ContractAddress().Hex(),
		BlockNumber:     int64(head),
		Severity:        model.SeverityInfo,
		Metadata:        metadata,
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		logger.Warn("contract scan log write failed", zap.Error(err))
	}

	logger.Info("contract scan completed",
		zap.Uint64("from_block", from),
		zap.Uint64("to_block", head),
		zap.Int("events", len(events)))

	return events, nil
}

// logScanError 记录扫描失败
func (s *ContractMonitorService) logScanError(ctx context.Context, head uint64, scanErr error) {
	log := &model.AuditLog{
		Category:        model.CategoryContractScan,
		ContractAddress: s.scanner.ContractAddress().Hex(),
		BlockNumber:     int64(head),
		Error:           scanErr.Error(),
		Severity:        model.SeverityError,
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		logger.Warn("contract scan error log write failed", zap.Error(err))
	}
}

// ContractBalances 托管与金库合约余额 (wei)
func (s *ContractMonitorService) ContractBalances(ctx context.Context) (escrow, vault *big.Int, err error) {
	escrow, err = s.scanner.BalanceOf(ctx, s.scanner.ContractAddress())
	if err != nil {
		return nil, nil, fmt.Errorf("escrow balance: %w", err)
	}

	if s.vault == (common.Address{}) {
		return escrow, nil, nil
	}
	vault, err = s.scanner.BalanceOf(ctx, s.vault)
	if err != nil {
		return nil, nil, fmt.Errorf("vault balance: %w", err)
	}
	return escrow, vault, nil
}
