package stewardd

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const vaultABIJSON = `[
    {"name":"executePayout","type":"function","stateMutability":"nonpayable","inputs":[
        {"name":"programId","type":"uint256"},
        {"name":"recipient","type":"address"},
        {"name":"amount","type":"uint256"},
        {"name":"reason","type":"string"}
    ],"outputs":[]}
]`

// EVMBackend is the subset of the Ethereum RPC the vault wallet uses. It is
// satisfied by *ethclient.Client.
type EVMBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

// VaultWallet broadcasts executePayout transactions from the treasury signing
// wallet and waits for confirmations. Calls must stay sequential: the wallet's
// nonce sequence is the shared resource and the loop's ordering is the only
// discipline protecting it.
type VaultWallet struct {
	client        EVMBackend
	key           *ecdsa.PrivateKey
	from          common.Address
	address       common.Address
	chainID       *big.Int
	abi           abi.ABI
	confirmations int
	pollInterval  time.Duration
}

// NewVaultWallet constructs a wallet for the vault contract.
func NewVaultWallet(client EVMBackend, address string, signerKeyHex string, chainID int64, confirmations int, pollInterval time.Duration) (*VaultWallet, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid vault address %q", address)
	}
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(signerKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	if confirmations <= 0 {
		confirmations = 1
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &VaultWallet{
		client:        client,
		key:           key,
		from:          gethcrypto.PubkeyToAddress(key.PublicKey),
		address:       common.HexToAddress(address),
		chainID:       big.NewInt(chainID),
		abi:           parsed,
		confirmations: confirmations,
		pollInterval:  pollInterval,
	}, nil
}

// ExecutePayout broadcasts one payout and blocks until it reaches the
// configured confirmation depth, returning the transaction hash.
func (w *VaultWallet) ExecutePayout(ctx context.Context, programID uint64, recipient string, amount *big.Int, reason string) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("payout amount must be positive")
	}
	data, err := w.abi.Pack("executePayout", new(big.Int).SetUint64(programID), common.HexToAddress(recipient), amount, reason)
	if err != nil {
		return "", fmt.Errorf("pack executePayout: %w", err)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{From: w.from, To: &w.address, Data: data})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := gethtypes.NewTransaction(nonce, w.address, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}

	hash := signed.Hash()
	if err := w.waitForConfirmations(ctx, hash); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (w *VaultWallet) waitForConfirmations(ctx context.Context, txHash common.Hash) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := w.client.TransactionReceipt(ctx, txHash)
		switch {
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("fetch receipt: %w", err)
		case receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			confirmed, err := w.confirmationDepth(ctx, receipt)
			if err != nil {
				return err
			}
			if confirmed >= int64(w.confirmations) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *VaultWallet) confirmationDepth(ctx context.Context, receipt *gethtypes.Receipt) (int64, error) {
	header, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch head: %w", err)
	}
	if header == nil || header.Number == nil || receipt.BlockNumber == nil {
		return 0, fmt.Errorf("block metadata unavailable")
	}
	depth := new(big.Int).Sub(header.Number, receipt.BlockNumber)
	depth.Add(depth, big.NewInt(1))
	return depth.Int64(), nil
}
