package stewardd

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"cronosquity/native/steward"
	"cronosquity/observability"
	"cronosquity/services/stewardd/audit"
	"cronosquity/services/stewardd/x402"
)

// ProgramSource supplies the funding programs to evaluate each cycle.
type ProgramSource interface {
	ActivePrograms(ctx context.Context) ([]steward.Program, error)
}

// ScoreSource supplies ranked submissions for a program.
type ScoreSource interface {
	Scores(ctx context.Context, programID uint64) ([]steward.ScoreEntry, error)
}

// Vault broadcasts a payout transaction and waits for its confirmation,
// returning the transaction hash.
type Vault interface {
	ExecutePayout(ctx context.Context, programID uint64, recipient string, amount *big.Int, reason string) (string, error)
}

// Bridge settles a payout through the gasless facilitator protocol.
type Bridge interface {
	Settle(ctx context.Context, req x402.PayoutRequest) (x402.Result, *x402.Session, error)
	Mock() bool
}

// DefaultPolicy is the conservative constraint set substituted when a program
// policy does not parse and fallback is enabled.
func DefaultPolicy() steward.Policy {
	maxTotal, _ := steward.ParseUnits("10000")
	maxPer, _ := steward.ParseUnits("2000")
	return steward.Policy{
		MaxTotalBudget:       maxTotal,
		MaxPerRecipient:      maxPer,
		MinRecipients:        1,
		MaxRecipients:        5,
		RequireUniqueWallets: true,
	}
}

// The settlement token carries 6 decimals on the bridge side while the vault
// accounts in 18; amounts are truncated across the gap.
var bridgeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

func bridgeUnits(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Quo(amount, bridgeScale)
}

// Steward runs the orchestration loop: Ingest, Plan, Verify, Explain, and —
// when enabled — Execute. Processing is strictly sequential; the shared
// signing wallet tolerates no concurrent broadcasts.
type Steward struct {
	programs ProgramSource
	scores   ScoreSource
	vault    Vault
	bridge   Bridge
	sink     audit.Sink
	log      *slog.Logger
	metrics  *observability.StewardMetrics

	autoExecute     bool
	allowFallback   bool
	bridgeThreshold *big.Int
	defaultPolicy   steward.Policy
	now             func() time.Time

	mu     sync.Mutex
	paused bool
	cycles uint64
}

// StewardOption customises the steward instance.
type StewardOption func(*Steward)

// WithVault supplies the on-chain payout executor.
func WithVault(v Vault) StewardOption {
	return func(s *Steward) { s.vault = v }
}

// WithBridge supplies the cross-chain settlement client.
func WithBridge(b Bridge) StewardOption {
	return func(s *Steward) { s.bridge = b }
}

// WithAuditSink overrides the audit trail destination.
func WithAuditSink(sink audit.Sink) StewardOption {
	return func(s *Steward) { s.sink = sink }
}

// WithLogger overrides the structured logger.
func WithLogger(log *slog.Logger) StewardOption {
	return func(s *Steward) { s.log = log }
}

// WithMetrics overrides the metrics registry.
func WithMetrics(m *observability.StewardMetrics) StewardOption {
	return func(s *Steward) { s.metrics = m }
}

// WithAutoExecute enables broadcast and settlement; the default is dry-run.
func WithAutoExecute(enabled bool) StewardOption {
	return func(s *Steward) { s.autoExecute = enabled }
}

// WithPolicyFallback opts in to the default-policy substitution for malformed
// policy documents.
func WithPolicyFallback(enabled bool) StewardOption {
	return func(s *Steward) { s.allowFallback = enabled }
}

// WithBridgeThreshold sets the amount above which confirmed payouts are also
// routed through the bridge. Base units.
func WithBridgeThreshold(threshold *big.Int) StewardOption {
	return func(s *Steward) {
		if threshold != nil {
			s.bridgeThreshold = new(big.Int).Set(threshold)
		}
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) StewardOption {
	return func(s *Steward) { s.now = clock }
}

// NewSteward constructs the orchestration loop over the supplied sources.
func NewSteward(programs ProgramSource, scores ScoreSource, opts ...StewardOption) *Steward {
	threshold, _ := steward.ParseUnits("100")
	s := &Steward{
		programs:        programs,
		scores:          scores,
		sink:            audit.NewMemorySink(),
		log:             slog.Default(),
		metrics:         observability.Steward(),
		bridgeThreshold: threshold,
		defaultPolicy:   DefaultPolicy(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pause halts plan execution; cycles still compute and verify.
func (s *Steward) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables plan execution.
func (s *Steward) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Status summarises the loop state for administrative endpoints.
type Status struct {
	Paused      bool   `json:"paused"`
	AutoExecute bool   `json:"auto_execute"`
	Cycles      uint64 `json:"cycles"`
}

// Status reports a snapshot of the loop state.
func (s *Steward) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Paused: s.paused, AutoExecute: s.autoExecute, Cycles: s.cycles}
}

// Run executes one cycle immediately and then one per interval until the
// context is cancelled. A failed cycle is logged and the loop waits for the
// next tick.
func (s *Steward) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	if err := s.RunCycle(ctx); err != nil {
		s.log.Error("cycle failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.log.Error("cycle failed", "error", err)
			}
		}
	}
}

// RunCycle performs one full pass over the active programs.
func (s *Steward) RunCycle(ctx context.Context) error {
	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()
	s.metrics.RecordCycle()

	s.audit(audit.Entry{
		ProgramID:   audit.SystemProgramID,
		Type:        audit.TypeInfo,
		Message:     "Steward cycle started",
		Description: "Scanning for active programs and evaluating submissions.",
	})

	programs, err := s.programs.ActivePrograms(ctx)
	if err != nil {
		s.audit(audit.Entry{
			ProgramID:   audit.SystemProgramID,
			Type:        audit.TypeError,
			Message:     "Ingest failed",
			Description: err.Error(),
		})
		return fmt.Errorf("load programs: %w", err)
	}
	if len(programs) == 0 {
		s.log.Info("no active programs, skipping cycle")
		return nil
	}
	s.log.Info("ingested programs", "count", len(programs))

	for _, program := range programs {
		s.processProgram(ctx, program)
	}
	return nil
}

func (s *Steward) processProgram(ctx context.Context, program steward.Program) {
	log := s.log.With("program_id", program.ID, "program_type", program.Type.String())

	policy, ok := s.loadPolicy(program, log)
	if !ok {
		s.metrics.RecordProgram("skipped")
		return
	}

	scores, err := s.scores.Scores(ctx, program.ID)
	if err != nil {
		// Score reads are tolerated failures; the program simply has no
		// submissions this cycle.
		log.Warn("score load failed, treating as empty", "error", err)
		scores = nil
	}
	if len(scores) == 0 {
		log.Info("no submissions, skipping program")
		s.audit(audit.Entry{
			ProgramID: int64(program.ID),
			Type:      audit.TypeInfo,
			Message:   "No submissions",
		})
		s.metrics.RecordProgram("skipped")
		return
	}

	plan := steward.ComputePlan(program, policy, scores)
	if len(plan) == 0 {
		log.Info("empty plan, skipping program")
		s.metrics.RecordProgram("skipped")
		return
	}
	log.Info("plan computed", "entries", len(plan))

	verification := steward.VerifyPlan(plan, policy)
	if !verification.IsValid {
		log.Warn("plan rejected", "failures", verification.Failures)
		for _, failure := range verification.Failures {
			code, _, _ := strings.Cut(failure, ":")
			s.metrics.RecordRejection(code)
		}
		s.audit(audit.Entry{
			ProgramID:   int64(program.ID),
			Type:        audit.TypeWarning,
			Message:     "Policy Violation",
			Description: "Plan rejected: " + strings.Join(verification.Failures, ", "),
		})
		s.metrics.RecordProgram("rejected")
		return
	}

	s.recordBudgetRemaining(program, plan)

	explanation := steward.Explain(plan, program.Type.String())
	log.Info("plan verified", "explanation", explanation)
	s.audit(audit.Entry{
		ProgramID:   int64(program.ID),
		Type:        audit.TypeDecision,
		Message:     fmt.Sprintf("Processed %s payouts", program.Type.String()),
		Description: explanation,
	})

	if !s.executionEnabled() {
		log.Info("dry run, payouts not broadcast")
		s.audit(audit.Entry{
			ProgramID:   int64(program.ID),
			Type:        audit.TypeInfo,
			Message:     "Dry run completed",
			Description: "Payouts calculated and verified but not broadcast to chain.",
		})
		s.metrics.RecordProgram("dry_run")
		return
	}

	s.executePlan(ctx, program, plan, log)
	s.metrics.RecordProgram("executed")
}

func (s *Steward) executionEnabled() bool {
	if !s.autoExecute {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.paused
}

// executePlan broadcasts each verified entry in ranked order. Entry failures
// are isolated: a failing recipient never blocks the remainder.
func (s *Steward) executePlan(ctx context.Context, program steward.Program, plan []steward.PlanEntry, log *slog.Logger) {
	for _, entry := range plan {
		s.executeEntry(ctx, program, entry, log)
	}
}

func (s *Steward) executeEntry(ctx context.Context, program steward.Program, entry steward.PlanEntry, log *slog.Logger) {
	if s.vault == nil {
		log.Error("vault not configured, skipping execution", "recipient", entry.Recipient)
		s.metrics.RecordPayout("error", 0)
		return
	}
	start := s.now()
	txHash, err := s.vault.ExecutePayout(ctx, program.ID, entry.Recipient, entry.Amount, entry.Reason)
	if err != nil {
		log.Error("payout broadcast failed", "recipient", entry.Recipient, "error", err)
		s.audit(audit.Entry{
			ProgramID:   int64(program.ID),
			Type:        audit.TypeError,
			Message:     "Payout failed for " + shortAddress(entry.Recipient),
			Description: err.Error(),
		})
		s.metrics.RecordPayout("error", 0)
		return
	}
	log.Info("payout confirmed", "recipient", entry.Recipient, "amount", entry.AmountTokens(), "tx", txHash)
	s.audit(audit.Entry{
		ProgramID:   int64(program.ID),
		Type:        audit.TypeSuccess,
		Message:     "Payout executed for " + shortAddress(entry.Recipient),
		Description: entry.Reason,
		TxHash:      txHash,
	})
	s.metrics.RecordPayout("success", s.now().Sub(start))

	if s.bridge == nil || entry.Amount == nil || entry.Amount.Cmp(s.bridgeThreshold) <= 0 {
		return
	}
	s.settleEntry(ctx, program, entry, log)
}

func (s *Steward) settleEntry(ctx context.Context, program steward.Program, entry steward.PlanEntry, log *slog.Logger) {
	mode := "real"
	if s.bridge.Mock() {
		mode = "mock"
	}
	result, session, err := s.bridge.Settle(ctx, x402.PayoutRequest{
		Recipient:   entry.Recipient,
		Amount:      bridgeUnits(entry.Amount),
		Description: entry.Reason,
	})
	if err != nil {
		// The on-chain payout already settled; the bridge leg is independent
		// and its failure leaves funds moved but not bridged. The interface
		// does not promise a session on error.
		failedStep := x402.StepSettle
		if session != nil && session.FailedStep != "" {
			failedStep = session.FailedStep
		}
		log.Warn("bridge settlement failed after confirmed payout",
			"recipient", entry.Recipient, "step", string(failedStep), "error", err)
		s.audit(audit.Entry{
			ProgramID:   int64(program.ID),
			Type:        audit.TypeWarning,
			Message:     "Bridge settlement failed for " + shortAddress(entry.Recipient),
			Description: fmt.Sprintf("On-chain payout confirmed but %s step failed: %v", failedStep, err),
		})
		s.metrics.RecordSettlement(mode, "error")
		return
	}
	log.Info("bridge settlement complete", "recipient", entry.Recipient, "tx", result.TxHash, "network", result.Network)
	s.audit(audit.Entry{
		ProgramID:   int64(program.ID),
		Type:        audit.TypeSuccess,
		Message:     "Cross-chain settlement for " + shortAddress(entry.Recipient),
		Description: "Settled via facilitator on " + result.Network,
		TxHash:      result.TxHash,
	})
	s.metrics.RecordSettlement(mode, "success")
}

func (s *Steward) recordBudgetRemaining(program steward.Program, plan []steward.PlanEntry) {
	if program.Budget == nil {
		return
	}
	remaining := new(big.Int).Sub(program.Budget, steward.SumAmounts(plan))
	tokens, _ := new(big.Float).Quo(new(big.Float).SetInt(remaining), new(big.Float).SetInt(unitFloatScale)).Float64()
	s.metrics.SetBudgetRemaining(strconv.FormatUint(program.ID, 10), tokens)
}

var unitFloatScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(steward.TokenDecimals), nil)

func (s *Steward) loadPolicy(program steward.Program, log *slog.Logger) (steward.Policy, bool) {
	policy, err := ParsePolicy(program.PolicyURI)
	if err == nil {
		return policy, true
	}
	if s.allowFallback {
		log.Warn("policy parse failed, using conservative default", "error", err)
		s.audit(audit.Entry{
			ProgramID:   int64(program.ID),
			Type:        audit.TypeWarning,
			Message:     "Policy fallback engaged",
			Description: "Policy document did not parse; conservative default applied: " + err.Error(),
		})
		return s.defaultPolicy, true
	}
	log.Error("policy parse failed, skipping program", "error", err)
	s.audit(audit.Entry{
		ProgramID:   int64(program.ID),
		Type:        audit.TypeError,
		Message:     "Policy unreadable",
		Description: err.Error(),
	})
	return steward.Policy{}, false
}

func (s *Steward) audit(entry audit.Entry) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Append(entry); err != nil {
		s.log.Error("audit append failed", "error", err)
	}
}

// AuditTrail exposes the recent audit entries for the admin API.
func (s *Steward) AuditTrail(limit int) ([]audit.Entry, error) {
	if s.sink == nil {
		return nil, nil
	}
	return s.sink.Recent(limit)
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "..."
}
