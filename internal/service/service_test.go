package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cronosmart/trust-monitor/internal/blockchain"
	"github.com/cronosmart/trust-monitor/internal/model"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.AuditLog{},
		&model.AuditAlert{},
		&model.RiskScore{},
		&model.Order{},
	))
	return db
}

type fakeScanner struct {
	head    uint64
	events  []*blockchain.EscrowEvent
	scanErr error
	headErr error
	balance *big.Int
	escrow  common.Address
}

func (f *fakeScanner) ScanEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*blockchain.EscrowEvent, error) {
	return f.events, f.scanErr
}

func (f *fakeScanner) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeScanner) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeScanner) ContractAddress() common.Address {
	return f.escrow
}

type capturedAlerts struct {
	alerts []*model.AuditAlert
}

func (c *capturedAlerts) PublishAlert(ctx context.Context, alert *model.AuditAlert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}
