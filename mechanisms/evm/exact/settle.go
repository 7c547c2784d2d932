package exact

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/x402labs/x402-go/mechanisms/evm"
	"github.com/x402labs/x402-go/pkg/types"
)

// DefaultSettleTimeout bounds how long a settlement waits for its receipt.
const DefaultSettleTimeout = 120 * time.Second

const receiptPollInterval = 2 * time.Second

// ChainBackend is the slice of the Ethereum RPC surface the settler needs.
// *ethclient.Client satisfies it.
type ChainBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Settler submits verified authorizations on-chain via
// transferWithAuthorization, paying gas from its own account.
type Settler struct {
	backend     ChainBackend
	chainID     *big.Int
	privateKey  *ecdsa.PrivateKey
	address     common.Address
	contractABI abi.ABI

	// maxGasPrice caps the suggested gas price, in wei. Nil disables the cap.
	maxGasPrice *big.Int

	// mu serializes nonce fetch through send for the submitter account, so
	// concurrent settlements never race on the account nonce.
	mu sync.Mutex
}

// NewSettler parses the submitter key and the EIP-3009 ABI fragment.
// maxGasPriceGwei <= 0 disables the gas price cap.
func NewSettler(backend ChainBackend, chainID *big.Int, privateKeyHex string, maxGasPriceGwei int64) (*Settler, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settler private key: %w", err)
	}

	contractABI, err := abi.JSON(strings.NewReader(evm.EIP3009ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EIP-3009 ABI: %w", err)
	}

	settler := &Settler{
		backend:     backend,
		chainID:     chainID,
		privateKey:  privateKey,
		address:     crypto.PubkeyToAddress(privateKey.PublicKey),
		contractABI: contractABI,
	}

	if maxGasPriceGwei > 0 {
		settler.maxGasPrice = evm.GweiToWei(maxGasPriceGwei)
	}

	return settler, nil
}

// Address returns the submitter account that pays gas for settlements.
func (s *Settler) Address() common.Address {
	return s.address
}

func fail(format string, args ...any) *types.SettlementResponse {
	return &types.SettlementResponse{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
	}
}

// Settle decodes the X-PAYMENT header and executes the authorization
// on-chain, waiting up to timeout for the receipt. Every failure is reported
// as data in the response; TxHash is populated whenever a transaction was
// submitted, including reverted and timed-out attempts.
func (s *Settler) Settle(ctx context.Context, paymentHeader string, requirements *types.PaymentRequirements, timeout time.Duration) *types.SettlementResponse {
	payload, err := types.DecodePaymentPayloadFromBase64(paymentHeader)
	if err != nil {
		return fail("Invalid payment header: %v", err)
	}

	if payload.Scheme != types.SchemeExact {
		return fail("Unsupported payment scheme: %s", payload.Scheme)
	}

	exact, err := payload.ExactPayload()
	if err != nil {
		return fail("Exact scheme settlement error: %v", err)
	}

	auth, err := evm.AuthorizationFromPayload(exact)
	if err != nil {
		return fail("Exact scheme settlement error: %v", err)
	}

	sig, err := evm.SignatureFromPayload(exact)
	if err != nil {
		return fail("Exact scheme settlement error: %v", err)
	}

	if !common.IsHexAddress(requirements.Asset) {
		return fail("Exact scheme settlement error: invalid asset address %q", requirements.Asset)
	}
	token := common.HexToAddress(requirements.Asset)

	if timeout <= 0 {
		timeout = DefaultSettleTimeout
	}

	response := s.settle(ctx, token, auth, sig, timeout)
	if response.Success {
		response.NetworkID = requirements.Network
	}
	return response
}

func (s *Settler) settle(ctx context.Context, token common.Address, auth *evm.Authorization, sig *evm.Signature, timeout time.Duration) *types.SettlementResponse {
	// Nonce pre-check is advisory: some tokens do not expose
	// authorizationState, and a revert here must not block settlement.
	if used, err := s.authorizationUsed(ctx, token, auth); err == nil && used {
		return fail("Authorization nonce already used")
	}

	calldata, err := s.contractABI.Pack(
		"transferWithAuthorization",
		auth.From,
		auth.To,
		auth.Value,
		auth.ValidAfter,
		auth.ValidBefore,
		auth.Nonce,
		sig.V,
		sig.R,
		sig.S,
	)
	if err != nil {
		return fail("Exact scheme settlement error: %v", err)
	}

	msg := ethereum.CallMsg{
		From: s.address,
		To:   &token,
		Data: calldata,
	}

	estimated, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		return fail("Gas estimation failed: %v", err)
	}
	gasLimit := estimated + estimated/5

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fail("Settlement error: %v", err)
	}

	if s.maxGasPrice != nil && gasPrice.Cmp(s.maxGasPrice) > 0 {
		gwei := new(big.Float).Quo(
			new(big.Float).SetInt(gasPrice),
			new(big.Float).SetInt(big.NewInt(params.GWei)),
		)
		return fail("Gas price too high: %s Gwei", gwei.Text('f', 2))
	}

	tx, err := s.submit(ctx, token, gasLimit, gasPrice, calldata)
	if err != nil {
		return fail("Settlement error: %v", err)
	}
	txHash := tx.Hash()

	receipt, err := s.waitForReceipt(ctx, txHash, timeout)
	if err != nil {
		return &types.SettlementResponse{
			Success: false,
			Error:   fmt.Sprintf("Transaction confirmation timeout: %v", err),
			TxHash:  txHash.Hex(),
		}
	}

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return &types.SettlementResponse{
			Success: false,
			Error:   "Transaction reverted",
			TxHash:  txHash.Hex(),
		}
	}

	return &types.SettlementResponse{
		Success: true,
		TxHash:  txHash.Hex(),
	}
}

func (s *Settler) authorizationUsed(ctx context.Context, token common.Address, auth *evm.Authorization) (bool, error) {
	calldata, err := s.contractABI.Pack("authorizationState", auth.From, auth.Nonce)
	if err != nil {
		return false, err
	}

	result, err := s.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: calldata}, nil)
	if err != nil {
		return false, err
	}

	values, err := s.contractABI.Unpack("authorizationState", result)
	if err != nil {
		return false, err
	}

	used, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type %T", values[0])
	}

	return used, nil
}

// submit holds the account mutex from nonce fetch through send.
func (s *Settler) submit(ctx context.Context, token common.Address, gasLimit uint64, gasPrice *big.Int, calldata []byte) (*ethtypes.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account nonce: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signed, nil
}

func (s *Settler) waitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no receipt for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// TransactionStatus reports the current state of a settlement transaction.
type TransactionStatus struct {
	Confirmed   bool   `json:"confirmed"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TransactionStatus looks up the receipt for a previously submitted
// settlement. An unmined transaction reports as pending, not as an error.
func (s *Settler) TransactionStatus(ctx context.Context, txHash string) *TransactionStatus {
	receipt, err := s.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil || receipt == nil {
		status := &TransactionStatus{
			Confirmed: false,
			Status:    evm.TxStatusPending,
		}
		if err != nil {
			status.Error = err.Error()
		}
		return status
	}

	status := evm.TxStatusSuccess
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		status = evm.TxStatusFailed
	}

	return &TransactionStatus{
		Confirmed:   true,
		Status:      status,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
}
