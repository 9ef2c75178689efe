package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

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

func TestAuditLogRepository_RetentionWindow(t *testing.T) {
	db := setupDB(t)
	repo := NewAuditLogRepository(db, 30*24*time.Hour)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	fresh := &model.AuditLog{
		Category:  model.CategoryHealthCheck,
		Severity:  model.SeverityInfo,
		CreatedAt: now,
	}
	stale := &model.AuditLog{
		Category:  model.CategoryHealthCheck,
		Severity:  model.SeverityInfo,
		CreatedAt: now - 31*24*time.Hour.Milliseconds(),
	}
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, repo.Create(ctx, stale))

	logs, total, err := repo.List(ctx, nil, &Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, fresh.ID, logs[0].ID)

	// ListSince 也不能越过保留窗口下界
	logs, err = repo.ListSince(ctx, now-60*24*time.Hour.Milliseconds())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, fresh.ID, logs[0].ID)

	purged, err := repo.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestAuditLogRepository_Filters(t *testing.T) {
	db := setupDB(t)
	repo := NewAuditLogRepository(db, 30*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.AuditLog{
		Category: model.CategoryContractScan,
		Severity: model.SeverityInfo,
	}))
	require.NoError(t, repo.Create(ctx, &model.AuditLog{
		Category: model.CategoryContractScan,
		Severity: model.SeverityError,
		Error:    "rpc unreachable",
	}))
	require.NoError(t, repo.Create(ctx, &model.AuditLog{
		Category: model.CategoryFraudDetection,
		Severity: model.SeverityWarning,
	}))

	logs, total, err := repo.List(ctx, &LogQuery{Category: model.CategoryContractScan}, &Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, logs, 2)

	logs, total, err = repo.List(ctx, &LogQuery{Severity: model.SeverityError}, &Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].IsFailure())
}

func TestAuditAlertRepository_Lifecycle(t *testing.T) {
	db := setupDB(t)
	repo := NewAuditAlertRepository(db)
	ctx := context.Background()

	alert := &model.AuditAlert{
		AlertID:     "alert-001",
		Type:        model.AlertTypeMismatch,
		Title:       "Order state mismatch",
		Description: "off-chain COMPLETED but chain shows Refunded",
		Severity:    model.AlertSeverityHigh,
		OrderID:     "order-1",
	}
	require.NoError(t, repo.Create(ctx, alert))
	assert.Equal(t, model.AlertStatusOpen, alert.Status)
	assert.NotZero(t, alert.CreatedAt)

	got, err := repo.GetByAlertID(ctx, "alert-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsOpen())

	dup, err := repo.FindOpenMismatch(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "alert-001", dup.AlertID)

	resolved, err := repo.Resolve(ctx, "alert-001", model.AlertStatusResolved, "ops")
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "ops", resolved.ResolvedBy)

	// 已处理告警不再参与去重
	dup, err = repo.FindOpenMismatch(ctx, "order-1")
	require.NoError(t, err)
	assert.Nil(t, dup)

	_, err = repo.Resolve(ctx, "no-such-alert", model.AlertStatusResolved, "ops")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAuditAlertRepository_FindOpenFraud(t *testing.T) {
	db := setupDB(t)
	repo := NewAuditAlertRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.AuditAlert{
		AlertID:       "fraud-1",
		Type:          model.AlertTypeFraud,
		Title:         "High risk wallet",
		Description:   "score 85",
		Severity:      model.AlertSeverityCritical,
		WalletAddress: "0xabc",
		Status:        model.AlertStatusInvestigating,
	}))

	got, err := repo.FindOpenFraud(ctx, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fraud-1", got.AlertID)

	got, err = repo.FindOpenFraud(ctx, "0xdef")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAuditAlertRepository_CountBySeveritySince(t *testing.T) {
	db := setupDB(t)
	repo := NewAuditAlertRepository(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	for i, sev := range []model.AlertSeverity{
		model.AlertSeverityHigh, model.AlertSeverityHigh, model.AlertSeverityLow,
	} {
		require.NoError(t, repo.Create(ctx, &model.AuditAlert{
			AlertID:     "sev-" + string(rune('a'+i)),
			Type:        model.AlertTypeMismatch,
			Title:       "t",
			Description: "d",
			Severity:    sev,
			CreatedAt:   now,
		}))
	}
	// 窗口之外的不计入
	require.NoError(t, repo.Create(ctx, &model.AuditAlert{
		AlertID:     "old",
		Type:        model.AlertTypeMismatch,
		Title:       "t",
		Description: "d",
		Severity:    model.AlertSeverityHigh,
		CreatedAt:   now - 48*time.Hour.Milliseconds(),
	}))

	counts, err := repo.CountBySeveritySince(ctx, now-24*time.Hour.Milliseconds())
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.AlertSeverityHigh])
	assert.Equal(t, int64(1), counts[model.AlertSeverityLow])
}

func TestRiskScoreRepository_Upsert(t *testing.T) {
	db := setupDB(t)
	repo := NewRiskScoreRepository(db)
	ctx := context.Background()

	first := &model.RiskScore{
		WalletAddress: "0x1111",
		UserType:      model.UserTypeBuyer,
		RiskScore:     55,
		RiskLevel:     model.RiskLevelMedium,
		OrderCount:    4,
		AvgOrderValue: decimal.NewFromInt(120),
		LastUpdated:   time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &model.RiskScore{
		WalletAddress: "0x1111",
		UserType:      model.UserTypeBuyer,
		RiskScore:     85,
		RiskLevel:     model.RiskLevelCritical,
		OrderCount:    6,
		AvgOrderValue: decimal.NewFromInt(300),
		Patterns:      model.StringList{"multiple_disputes"},
		Flagged:       true,
		LastUpdated:   time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Upsert(ctx, second))

	got, err := repo.GetByWallet(ctx, "0x1111")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 85, got.RiskScore)
	assert.Equal(t, model.RiskLevelCritical, got.RiskLevel)
	assert.True(t, got.Flagged)
	assert.Equal(t, model.StringList{"multiple_disputes"}, got.Patterns)

	var count int64
	require.NoError(t, db.Model(&model.RiskScore{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRiskScoreRepository_List(t *testing.T) {
	db := setupDB(t)
	repo := NewRiskScoreRepository(db)
	ctx := context.Background()

	scores := []*model.RiskScore{
		{WalletAddress: "0xa", UserType: model.UserTypeBuyer, RiskScore: 90, RiskLevel: model.RiskLevelCritical, Flagged: true, LastUpdated: 1},
		{WalletAddress: "0xb", UserType: model.UserTypeSeller, RiskScore: 45, RiskLevel: model.RiskLevelMedium, LastUpdated: 1},
		{WalletAddress: "0xc", UserType: model.UserTypeBuyer, RiskScore: 75, RiskLevel: model.RiskLevelHigh, Flagged: true, LastUpdated: 1},
	}
	for _, s := range scores {
		require.NoError(t, repo.Upsert(ctx, s))
	}

	flagged, err := repo.TopFlagged(ctx, 10)
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, "0xa", flagged[0].WalletAddress)
	assert.Equal(t, "0xc", flagged[1].WalletAddress)

	sellers, err := repo.List(ctx, &ScoreQuery{UserType: model.UserTypeSeller})
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, "0xb", sellers[0].WalletAddress)
}

func TestOrderRepository_Queries(t *testing.T) {
	db := setupDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	day := 24 * time.Hour.Milliseconds()
	orders := []*model.Order{
		{ID: "o1", ChainOrderID: "0x01", Buyer: "0xb1", Seller: "0xs1", Amount: decimal.NewFromInt(100), Status: model.OrderStatusCompleted, CreatedAt: now - 2*day, UpdatedAt: now - day},
		{ID: "o2", ChainOrderID: "0x02", Buyer: "0xb1", Seller: "0xs1", Amount: decimal.NewFromInt(50), Status: model.OrderStatusDisputed, CreatedAt: now - day, UpdatedAt: now},
		{ID: "o3", ChainOrderID: "0x03", Buyer: "0xb2", Seller: "0xs1", Amount: decimal.NewFromInt(10), Status: model.OrderStatusFunded, CreatedAt: now - 30*day, UpdatedAt: now - 30*day},
	}
	for _, o := range orders {
		require.NoError(t, db.Create(o).Error)
	}

	got, err := repo.GetByID(ctx, "o2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.OrderStatusDisputed, got.Status)
	assert.True(t, got.IsTerminal())

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	recent, err := repo.ListCreatedSince(ctx, now-3*day)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	byBuyer, err := repo.ListByWallet(ctx, "0xb1", model.UserTypeBuyer)
	require.NoError(t, err)
	assert.Len(t, byBuyer, 2)

	bySeller, err := repo.ListByWallet(ctx, "0xs1", model.UserTypeSeller)
	require.NoError(t, err)
	assert.Len(t, bySeller, 3)

	count, err := repo.CountByBuyerSince(ctx, "0xb1", now-3*day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestOrderRepository_FraudAggregates(t *testing.T) {
	db := setupDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	hour := time.Hour.Milliseconds()
	day := 24 * hour

	// 0xb1: 3 笔争议; 0xb2: 2 笔快速退款 (平均 1 小时结案); 0xb3: 退款慢
	orders := []*model.Order{
		{ID: "d1", Buyer: "0xb1", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusDisputed, CreatedAt: now, UpdatedAt: now},
		{ID: "d2", Buyer: "0xb1", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusDisputed, CreatedAt: now, UpdatedAt: now},
		{ID: "d3", Buyer: "0xb1", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusDisputed, CreatedAt: now, UpdatedAt: now},
		{ID: "r1", Buyer: "0xb2", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusRefunded, CreatedAt: now - hour, UpdatedAt: now},
		{ID: "r2", Buyer: "0xb2", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusRefunded, CreatedAt: now - hour, UpdatedAt: now},
		{ID: "r3", Buyer: "0xb3", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusRefunded, CreatedAt: now - 10*day, UpdatedAt: now},
		{ID: "r4", Buyer: "0xb3", Seller: "0xs", Amount: decimal.NewFromInt(1), Status: model.OrderStatusRefunded, CreatedAt: now - 10*day, UpdatedAt: now},
	}
	for _, o := range orders {
		require.NoError(t, db.Create(o).Error)
	}

	disputed, err := repo.WalletsWithDisputes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, disputed, 1)
	assert.Equal(t, "0xb1", disputed[0].Wallet)
	assert.Equal(t, int64(3), disputed[0].Count)

	rapid, err := repo.WalletsWithRapidRefunds(ctx, 2, 2*day)
	require.NoError(t, err)
	require.Len(t, rapid, 1)
	assert.Equal(t, "0xb2", rapid[0].Wallet)
}
