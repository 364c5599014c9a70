package x402

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// PaymentRequirements describes what the facilitator must collect for a payout.
type PaymentRequirements struct {
	PayTo             string `json:"payTo"`
	Description       string `json:"description"`
	MaxAmountRequired string `json:"maxAmountRequired"`
}

// PayoutRequest is one cross-chain settlement to perform.
type PayoutRequest struct {
	Recipient   string
	Amount      *big.Int
	Description string
}

// Result is the normalized settlement outcome. Mock and real modes return the
// same shape so callers never branch on mode.
type Result struct {
	Success              bool   `json:"success"`
	TxHash               string `json:"txHash"`
	FacilitatorReference string `json:"facilitatorReference,omitempty"`
	Network              string `json:"network"`
}

type verifyRequest struct {
	Version             int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid     bool   `json:"isValid"`
	Reason      string `json:"reason,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"`
}

type settleResponse struct {
	TxHash string `json:"txHash"`
}

// Config captures the facilitator client settings.
type Config struct {
	BaseURL string
	Network string
	Mock    bool
	Signer  *ecdsa.PrivateKey
	Domain  TokenDomain
}

// Facilitator drives the four-step gasless settlement protocol: requirements,
// signed header, verify, settle. It keeps no state across payouts and never
// retries; retry policy belongs to the orchestrator.
type Facilitator struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

// Option customises the facilitator client.
type Option func(*Facilitator)

// WithHTTPClient overrides the HTTP client used for verify and settle calls.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Facilitator) { f.http = client }
}

// WithClock sets the time source used for header validity and mock hashes.
func WithClock(clock func() time.Time) Option {
	return func(f *Facilitator) { f.now = clock }
}

// New constructs a facilitator client.
func New(cfg Config, opts ...Option) *Facilitator {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	f := &Facilitator{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Mock reports whether the client fabricates responses instead of calling the
// facilitator service.
func (f *Facilitator) Mock() bool { return f.cfg.Mock }

// Network returns the configured settlement network label.
func (f *Facilitator) Network() string { return f.cfg.Network }

// Settle executes the full protocol for one payout and returns the normalized
// result. On failure the session records the step that failed; verify and
// settle failures abandon the payout without affecting others.
func (f *Facilitator) Settle(ctx context.Context, req PayoutRequest) (Result, *Session, error) {
	session := &Session{State: StateIdle}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return Result{Network: f.cfg.Network}, session, session.fail(StepRequirements, fmt.Errorf("amount must be positive"))
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return Result{Network: f.cfg.Network}, session, session.fail(StepRequirements, fmt.Errorf("recipient required"))
	}
	description := req.Description
	if description == "" {
		description = "Steward payout via x402"
	}

	if f.cfg.Mock {
		return f.settleMock(session, req)
	}

	// 1. Requirements: a local construction, cannot fail past input checks.
	session.Requirements = PaymentRequirements{
		PayTo:             req.Recipient,
		Description:       description,
		MaxAmountRequired: req.Amount.String(),
	}
	session.advance(StateRequirementsBuilt)

	// 2. Header: needs the funding wallet key. Missing signer is fatal.
	header, err := signHeader(f.cfg.Signer, f.cfg.Domain, f.cfg.Network, req.Recipient, req.Amount, f.now())
	if err != nil {
		return Result{Network: f.cfg.Network}, session, session.fail(StepHeader, err)
	}
	session.Header = header
	session.advance(StateHeaderSigned)

	payload := verifyRequest{
		Version:             1,
		PaymentHeader:       header,
		PaymentRequirements: session.Requirements,
	}

	// 3. Verify: the facilitator checks the authorization.
	var verdict verifyResponse
	if err := f.post(ctx, "/verify", payload, &verdict); err != nil {
		return Result{Network: f.cfg.Network}, session, session.fail(StepVerify, err)
	}
	if !verdict.IsValid {
		reason := verdict.Reason
		if reason == "" {
			reason = "unknown reason"
		}
		return Result{Network: f.cfg.Network}, session, session.fail(StepVerify, fmt.Errorf("authorization rejected: %s", reason))
	}
	session.advance(StateVerified)

	// 4. Settle: the facilitator broadcasts on-chain.
	var settled settleResponse
	if err := f.post(ctx, "/settle", payload, &settled); err != nil {
		return Result{Network: f.cfg.Network}, session, session.fail(StepSettle, err)
	}
	session.TxHash = settled.TxHash
	session.advance(StateSettled)

	return Result{
		Success:              true,
		TxHash:               settled.TxHash,
		FacilitatorReference: verdict.ReferenceID,
		Network:              f.cfg.Network,
	}, session, nil
}

// MockHashPrefix precedes every fabricated settlement hash.
const MockHashPrefix = "0xmock_"

func (f *Facilitator) settleMock(session *Session, req PayoutRequest) (Result, *Session, error) {
	session.Requirements = PaymentRequirements{
		PayTo:             req.Recipient,
		Description:       req.Description,
		MaxAmountRequired: req.Amount.String(),
	}
	session.advance(StateRequirementsBuilt)
	session.advance(StateHeaderSigned)
	session.advance(StateVerified)

	stamp := f.now().UnixMilli()
	millis := fmt.Sprintf("%d", stamp)
	if len(millis) > 12 {
		millis = millis[len(millis)-12:]
	}
	session.TxHash = MockHashPrefix + millis
	session.advance(StateSettled)

	return Result{
		Success:              true,
		TxHash:               session.TxHash,
		FacilitatorReference: fmt.Sprintf("ref_mock_%d", stamp),
		Network:              f.cfg.Network,
	}, session, nil
}

func (f *Facilitator) post(ctx context.Context, path string, payload, out interface{}) error {
	if f.cfg.BaseURL == "" {
		return fmt.Errorf("facilitator endpoint not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("facilitator %s failed: status=%d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
