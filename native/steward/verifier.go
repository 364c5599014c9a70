package steward

import (
	"fmt"
	"math/big"
	"strings"
)

// Verification failure codes surfaced to operators.
const (
	CodeBudgetExceeded        = "BUDGET_EXCEEDED"
	CodeMinRecipientsNotMet   = "MIN_RECIPIENTS_NOT_MET"
	CodeMaxRecipientsExceeded = "MAX_RECIPIENTS_EXCEEDED"
	CodeRecipientCapViolation = "RECIPIENT_CAP_VIOLATION"
	CodeSybilDetected         = "SYBIL_DETECTED"

	// ViolationPerRecipientCap marks a single entry rejected by VerifyEntry.
	ViolationPerRecipientCap = "EXCEEDS_PER_RECIPIENT_CAP"
)

// Verification is the verdict for a whole plan. Failures accumulate across all
// checks so one pass reports every applicable violation.
type Verification struct {
	IsValid  bool
	Failures []string
}

// VerifyPlan validates a proposed payout plan against the policy. All four
// checks run unconditionally; the plan is valid only when none of them fail.
func VerifyPlan(plan []PlanEntry, policy Policy) Verification {
	var failures []string

	total := SumAmounts(plan)
	budgetLimit := limitOrZero(policy.MaxTotalBudget)
	if total.Cmp(budgetLimit) > 0 {
		failures = append(failures, fmt.Sprintf("%s: Proposed %s exceeds limit of %s",
			CodeBudgetExceeded, FormatUnits(total), FormatUnits(budgetLimit)))
	}

	if len(plan) < policy.MinRecipients {
		failures = append(failures, fmt.Sprintf("%s: Required %d, found %d",
			CodeMinRecipientsNotMet, policy.MinRecipients, len(plan)))
	}
	if len(plan) > policy.MaxRecipients {
		failures = append(failures, fmt.Sprintf("%s: Allowed %d, found %d",
			CodeMaxRecipientsExceeded, policy.MaxRecipients, len(plan)))
	}

	recipientCap := limitOrZero(policy.MaxPerRecipient)
	for _, entry := range plan {
		if entry.Amount != nil && entry.Amount.Cmp(recipientCap) > 0 {
			failures = append(failures, fmt.Sprintf("%s: %s proposed %s > limit %s",
				CodeRecipientCapViolation, entry.Recipient, FormatUnits(entry.Amount), FormatUnits(recipientCap)))
		}
	}

	if policy.RequireUniqueWallets {
		seen := make(map[string]struct{}, len(plan))
		for _, entry := range plan {
			seen[strings.ToLower(entry.Recipient)] = struct{}{}
		}
		if len(seen) != len(plan) {
			failures = append(failures, fmt.Sprintf("%s: Duplicate wallet addresses found in payout plan", CodeSybilDetected))
		}
	}

	return Verification{IsValid: len(failures) == 0, Failures: failures}
}

// VerifyEntry applies the per-recipient cap to a single entry. It backs
// individual status marking in downstream consumers; VerifyPlan remains the
// authority for execution decisions.
func VerifyEntry(entry PlanEntry, policy Policy) (status, violation string) {
	if entry.Amount != nil && entry.Amount.Cmp(limitOrZero(policy.MaxPerRecipient)) > 0 {
		return EntryStatusInvalid, ViolationPerRecipientCap
	}
	return EntryStatusValid, ""
}

// limitOrZero treats an absent monetary limit as zero, so a policy that never
// stated a limit admits nothing rather than everything.
func limitOrZero(limit *big.Int) *big.Int {
	if limit == nil {
		return new(big.Int)
	}
	return limit
}
