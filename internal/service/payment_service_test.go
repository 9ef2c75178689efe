package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTxReader struct {
	txs     map[common.Hash]*types.Transaction
	pending bool
}

func (f *fakeTxReader) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[txHash]
	if !ok {
		return nil, false, ErrPaymentNotFound
	}
	return tx, f.pending, nil
}

func legacyTx(to common.Address, value *big.Int) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
}

func TestPaymentService_GeneratePaymentRequest(t *testing.T) {
	receiver := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	svc := NewPaymentService(&fakeTxReader{}, receiver, "USDC", "0.05", big.NewInt(100))

	req := svc.GeneratePaymentRequest("deep-scan")
	assert.NotEmpty(t, req.PaymentID)
	assert.Equal(t, "deep-scan", req.Feature)
	assert.Equal(t, "0.05", req.Amount)
	assert.Equal(t, "USDC", req.Token)
	assert.Equal(t, receiver.Hex(), req.Receiver)
	assert.Contains(t, req.Memo, req.PaymentID)

	// paymentId 每次唯一
	again := svc.GeneratePaymentRequest("deep-scan")
	assert.NotEqual(t, req.PaymentID, again.PaymentID)
}

func TestPaymentService_VerifyPayment(t *testing.T) {
	receiver := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	goodHash := common.HexToHash("0x01")
	wrongRecipientHash := common.HexToHash("0x02")
	lowValueHash := common.HexToHash("0x03")

	reader := &fakeTxReader{txs: map[common.Hash]*types.Transaction{
		goodHash:           legacyTx(receiver, big.NewInt(200)),
		wrongRecipientHash: legacyTx(other, big.NewInt(200)),
		lowValueHash:       legacyTx(receiver, big.NewInt(50)),
	}}
	svc := NewPaymentService(reader, receiver, "USDC", "0.05", big.NewInt(100))
	ctx := context.Background()

	require.NoError(t, svc.VerifyPayment(ctx, goodHash.Hex()))

	err := svc.VerifyPayment(ctx, wrongRecipientHash.Hex())
	assert.ErrorIs(t, err, ErrPaymentRejected)

	err = svc.VerifyPayment(ctx, lowValueHash.Hex())
	assert.ErrorIs(t, err, ErrPaymentRejected)

	err = svc.VerifyPayment(ctx, common.HexToHash("0x99").Hex())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentService_VerifyPayment_InvalidHash(t *testing.T) {
	svc := NewPaymentService(&fakeTxReader{}, common.HexToAddress("0xaa"), "USDC", "0.05", nil)

	assert.ErrorIs(t, svc.VerifyPayment(context.Background(), "nope"), ErrInvalidTxHash)
	assert.ErrorIs(t, svc.VerifyPayment(context.Background(), "0x123"), ErrInvalidTxHash)
}

func TestPaymentService_VerifyPayment_Pending(t *testing.T) {
	receiver := common.HexToAddress("0xaa")
	hash := common.HexToHash("0x01")
	reader := &fakeTxReader{
		txs:     map[common.Hash]*types.Transaction{hash: legacyTx(receiver, big.NewInt(200))},
		pending: true,
	}
	svc := NewPaymentService(reader, receiver, "USDC", "0.05", big.NewInt(100))

	assert.ErrorIs(t, svc.VerifyPayment(context.Background(), hash.Hex()), ErrPaymentRejected)
}

func TestPaymentService_VerifyPayment_CaseInsensitiveRecipient(t *testing.T) {
	// 配置里常见小写地址，链上返回校验和地址
	receiver := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	hash := common.HexToHash("0x01")
	reader := &fakeTxReader{txs: map[common.Hash]*types.Transaction{
		hash: legacyTx(receiver, big.NewInt(200)),
	}}
	svc := NewPaymentService(reader, receiver, "USDC", "0.05", big.NewInt(100))

	assert.NoError(t, svc.VerifyPayment(context.Background(), hash.Hex()))
}
