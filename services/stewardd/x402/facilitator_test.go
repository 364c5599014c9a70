package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testDomain() TokenDomain {
	return TokenDomain{
		Name:              "devUSDC.e",
		Version:           "1",
		ChainID:           big.NewInt(338),
		VerifyingContract: "0x3333333333333333333333333333333333333333",
	}
}

func fixedClock(t *testing.T) func() time.Time {
	t.Helper()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestMockSettleShape(t *testing.T) {
	client := New(Config{Network: "cronos-testnet", Mock: true}, WithClock(fixedClock(t)))
	result, session, err := client.Settle(context.Background(), PayoutRequest{
		Recipient: "0x4444444444444444444444444444444444444444",
		Amount:    big.NewInt(150_000000),
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.True(t, strings.HasPrefix(result.TxHash, MockHashPrefix), "hash %q", result.TxHash)
	require.True(t, strings.HasPrefix(result.FacilitatorReference, "ref_mock_"))
	require.Equal(t, "cronos-testnet", result.Network)
	require.Equal(t, StateSettled, session.State)
}

func TestMockSettleDeterministicForFixedClock(t *testing.T) {
	client := New(Config{Network: "cronos-testnet", Mock: true}, WithClock(fixedClock(t)))
	first, _, err := client.Settle(context.Background(), PayoutRequest{Recipient: "0xabc", Amount: big.NewInt(1)})
	require.NoError(t, err)
	second, _, err := client.Settle(context.Background(), PayoutRequest{Recipient: "0xabc", Amount: big.NewInt(1)})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSettleFullFlow(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	var verifyBody verifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&verifyBody))
			_ = json.NewEncoder(w).Encode(verifyResponse{IsValid: true, ReferenceID: "ref_123"})
		case "/settle":
			_ = json.NewEncoder(w).Encode(settleResponse{TxHash: "0xsettled"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(Config{
		BaseURL: server.URL,
		Network: "cronos-testnet",
		Signer:  key,
		Domain:  testDomain(),
	}, WithClock(fixedClock(t)))

	result, session, err := client.Settle(context.Background(), PayoutRequest{
		Recipient:   "0x4444444444444444444444444444444444444444",
		Amount:      big.NewInt(150_000000),
		Description: "rank 1 payout",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "0xsettled", result.TxHash)
	require.Equal(t, "ref_123", result.FacilitatorReference)
	require.Equal(t, StateSettled, session.State)

	// The header is a base64 JSON envelope carrying an expiring authorization.
	raw, err := base64.StdEncoding.DecodeString(verifyBody.PaymentHeader)
	require.NoError(t, err)
	var envelope headerEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, "exact", envelope.Scheme)
	require.Equal(t, "150000000", envelope.Payload.Authorization.Value)
	wantExpiry := fixedClock(t)().Add(AuthorizationValidity).Unix()
	require.Equal(t, big.NewInt(wantExpiry).String(), envelope.Payload.Authorization.ValidBefore)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), envelope.Payload.Authorization.From)
	require.Equal(t, "150000000", verifyBody.PaymentRequirements.MaxAmountRequired)
}

func TestSettleMissingSignerIsHeaderFailure(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:0", Network: "cronos-testnet"})
	_, session, err := client.Settle(context.Background(), PayoutRequest{Recipient: "0xabc", Amount: big.NewInt(1)})
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, StepHeader, stepErr.Step)
	require.Equal(t, StateFailed, session.State)
	require.Equal(t, StepHeader, session.FailedStep)
}

func TestSettleVerifyRejection(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyResponse{IsValid: false, Reason: "insufficient balance"})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Network: "cronos-testnet", Signer: key, Domain: testDomain()})
	_, session, err := client.Settle(context.Background(), PayoutRequest{Recipient: "0x4444444444444444444444444444444444444444", Amount: big.NewInt(1)})
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, StepVerify, stepErr.Step)
	require.Contains(t, err.Error(), "insufficient balance")
	require.Equal(t, StateFailed, session.State)
}

func TestSettleSettlementFailure(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/verify" {
			_ = json.NewEncoder(w).Encode(verifyResponse{IsValid: true})
			return
		}
		http.Error(w, "execution reverted", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Network: "cronos-testnet", Signer: key, Domain: testDomain()})
	result, session, err := client.Settle(context.Background(), PayoutRequest{Recipient: "0x4444444444444444444444444444444444444444", Amount: big.NewInt(1)})
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, StepSettle, stepErr.Step)
	require.False(t, result.Success)
	require.Equal(t, StateFailed, session.State)
	require.Equal(t, StepSettle, session.FailedStep)
}

func TestSettleRejectsMalformedInput(t *testing.T) {
	client := New(Config{Network: "cronos-testnet", Mock: true})
	_, _, err := client.Settle(context.Background(), PayoutRequest{Recipient: "", Amount: big.NewInt(1)})
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, StepRequirements, stepErr.Step)

	_, _, err = client.Settle(context.Background(), PayoutRequest{Recipient: "0xabc", Amount: big.NewInt(0)})
	require.Error(t, err)
}
