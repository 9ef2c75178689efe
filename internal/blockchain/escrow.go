package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/cronosmart/trust-monitor/pkg/logger"
)

// 托管合约事件签名
const (
	EventOrderFunded    = "OrderFunded"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventFundsReleased  = "FundsReleased"
	EventDisputed       = "Disputed"
	EventRefunded       = "Refunded"
)

// escrowEventSignatures 事件名到 Solidity 签名的映射，
// topic0 由签名的 Keccak256 得出
var escrowEventSignatures = map[string]string{
	EventOrderFunded:    "OrderFunded(bytes32,address,address,uint256)",
	EventOrderShipped:   "OrderShipped(bytes32)",
	EventOrderDelivered: "OrderDelivered(bytes32)",
	EventFundsReleased:  "FundsReleased(bytes32,address,uint256)",
	EventDisputed:       "Disputed(bytes32,address)",
	EventRefunded:       "Refunded(bytes32,address,uint256)",
}

// EscrowEvent 解析后的托管合约事件
type EscrowEvent struct {
	EventName   string `json:"event_name"`
	OrderID     string `json:"order_id"` // bytes32 orderId 的 0x 十六进制
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	Timestamp   int64  `json:"timestamp"` // 区块时间戳 (毫秒)
}

// EthReader 扫描所需的链读取能力
type EthReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EscrowScanner 托管合约事件扫描器
type EscrowScanner struct {
	reader  EthReader
	escrow  common.Address
	topics  map[string]common.Hash // 事件名 -> topic0
	byTopic map[common.Hash]string // topic0 -> 事件名
}

// NewEscrowScanner 创建扫描器
func NewEscrowScanner(reader EthReader, escrow common.Address) *EscrowScanner {
	topics := make(map[string]common.Hash, len(escrowEventSignatures))
	byTopic := make(map[common.Hash]string, len(escrowEventSignatures))
	for name, sig := range escrowEventSignatures {
		topic := crypto.Keccak256Hash([]byte(sig))
		topics[name] = topic
		byTopic[topic] = name
	}
	return &EscrowScanner{
		reader:  reader,
		escrow:  escrow,
		topics:  topics,
		byTopic: byTopic,
	}
}

// ContractAddress 托管合约地址
func (s *EscrowScanner) ContractAddress() common.Address {
	return s.escrow
}

// LatestBlockNumber 最新区块号
func (s *EscrowScanner) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return s.reader.BlockNumber(ctx)
}

// BalanceOf 查询地址余额 (wei)
func (s *EscrowScanner) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return s.reader.BalanceAt(ctx, account, nil)
}

// ScanEvents 扫描区间内的全部托管事件，按区块号升序返回。
// 单个签名查询失败只跳过该签名，不中断整次扫描。
func (s *EscrowScanner) ScanEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*EscrowEvent, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid block range: %d > %d", fromBlock, toBlock)
	}

	headerCache := make(map[uint64]int64)
	var events []*EscrowEvent

	for name, topic := range s.topics {
		logs, err := s.reader.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{s.escrow},
			Topics:    [][]common.Hash{{topic}},
		})
		if err != nil {
			logger.Warn("escrow event filter failed",
				zap.String("event", name),
				zap.Error(err))
			continue
		}

		for _, lg := range logs {
			ev, err := s.parseLog(ctx, name, lg, headerCache)
			if err != nil {
				logger.Warn("escrow event parse failed",
					zap.String("event", name),
					zap.String("tx", lg.TxHash.Hex()),
					zap.Error(err))
				continue
			}
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].TxHash < events[j].TxHash
	})
	return events, nil
}

// parseLog 解析单条日志，orderId 取第一个 indexed topic
func (s *EscrowScanner) parseLog(ctx context.Context, name string, lg types.Log, headerCache map[uint64]int64) (*EscrowEvent, error) {
	if len(lg.Topics) < 2 {
		return nil, fmt.Errorf("missing orderId topic")
	}

	ts, ok := headerCache[lg.BlockNumber]
	if !ok {
		header, err := s.reader.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
		if err != nil {
			return nil, err
		}
		ts = int64(header.Time) * 1000
		headerCache[lg.BlockNumber] = ts
	}

	return &EscrowEvent{
		EventName:   name,
		OrderID:     lg.Topics[1].Hex(),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		Timestamp:   ts,
	}, nil
}

// TopicFor 返回事件的 topic0，未知事件返回零值
func (s *EscrowScanner) TopicFor(name string) common.Hash {
	return s.topics[name]
}
