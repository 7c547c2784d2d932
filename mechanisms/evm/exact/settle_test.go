package exact

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known hardhat test key, never used on a real network.
const settlerKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type mockBackend struct {
	mu sync.Mutex

	authUsed    bool
	callErr     error
	estimate    uint64
	estimateErr error
	gasPrice    *big.Int
	nonce       uint64
	sendErr     error
	sent        []*ethtypes.Transaction

	receiptStatus uint64
	noReceipt     bool
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		estimate:      100000,
		gasPrice:      big.NewInt(1_000_000_000),
		nonce:         7,
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
}

func (m *mockBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	if m.callErr != nil {
		return nil, m.callErr
	}

	word := make([]byte, 32)
	if m.authUsed {
		word[31] = 1
	}
	return word, nil
}

func (m *mockBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonce, nil
}

func (m *mockBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return m.gasPrice, nil
}

func (m *mockBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return m.estimate, nil
}

func (m *mockBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, tx)
	m.nonce++
	return nil
}

func (m *mockBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if m.noReceipt {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{
		Status:      m.receiptStatus,
		TxHash:      txHash,
		BlockNumber: big.NewInt(12345),
		GasUsed:     84000,
	}, nil
}

func newTestSettler(t *testing.T, backend ChainBackend, maxGasPriceGwei int64) *Settler {
	t.Helper()
	settler, err := NewSettler(backend, big.NewInt(84532), settlerKey, maxGasPriceGwei)
	require.NoError(t, err)
	return settler
}

func TestSettleSuccess(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, time.Second)
	assert.True(t, response.Success)
	assert.Empty(t, response.Error)
	assert.NotEmpty(t, response.TxHash)
	assert.Equal(t, requirements.Network, response.NetworkID)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, common.HexToAddress(requirements.Asset), *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120000), tx.Gas())
}

func TestSettleNonceAlreadyUsed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	backend.authUsed = true
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, time.Second)
	assert.False(t, response.Success)
	assert.Equal(t, "Authorization nonce already used", response.Error)
	assert.Empty(t, response.TxHash)
	assert.Empty(t, backend.sent)
}

func TestSettleNonceCheckIsAdvisory(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	backend.callErr = fmt.Errorf("execution reverted")
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, time.Second)
	assert.True(t, response.Success)
	require.Len(t, backend.sent, 1)
}

func TestSettleGasEstimationFailureIsFatal(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	backend.estimateErr = fmt.Errorf("execution reverted: invalid signature")
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, time.Second)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "Gas estimation failed")
	assert.Empty(t, backend.sent)
}

func TestSettleGasPriceCap(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	backend.gasPrice = big.NewInt(5_000_000_000)
	settler := newTestSettler(t, backend, 2)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, time.Second)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "Gas price too high")
	assert.Empty(t, backend.sent)
}

func TestSettleReverted(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	backend.receiptStatus = ethtypes.ReceiptStatusFailed
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, time.Second)
	assert.False(t, response.Success)
	assert.Equal(t, "Transaction reverted", response.Error)
	assert.NotEmpty(t, response.TxHash)
}

func TestSettleConfirmationTimeout(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	backend := newMockBackend()
	backend.noReceipt = true
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), signedHeader(t, key, requirements, nil), requirements, 50*time.Millisecond)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "Transaction confirmation timeout")
	assert.NotEmpty(t, response.TxHash)
}

func TestSettleInvalidHeader(t *testing.T) {
	backend := newMockBackend()
	settler := newTestSettler(t, backend, 0)
	requirements := testRequirements()

	response := settler.Settle(context.Background(), "!!garbage!!", requirements, time.Second)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "Invalid payment header")
}

func TestTransactionStatus(t *testing.T) {
	backend := newMockBackend()
	settler := newTestSettler(t, backend, 0)

	t.Run("confirmed success", func(t *testing.T) {
		status := settler.TransactionStatus(context.Background(), "0xabc")
		assert.True(t, status.Confirmed)
		assert.Equal(t, "success", status.Status)
		assert.Equal(t, uint64(12345), status.BlockNumber)
		assert.Equal(t, uint64(84000), status.GasUsed)
	})

	t.Run("confirmed failed", func(t *testing.T) {
		backend.receiptStatus = ethtypes.ReceiptStatusFailed
		status := settler.TransactionStatus(context.Background(), "0xabc")
		assert.True(t, status.Confirmed)
		assert.Equal(t, "failed", status.Status)
	})

	t.Run("pending", func(t *testing.T) {
		backend.noReceipt = true
		status := settler.TransactionStatus(context.Background(), "0xabc")
		assert.False(t, status.Confirmed)
		assert.Equal(t, "pending", status.Status)
	})
}
