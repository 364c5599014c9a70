package steward

import "fmt"

// Explain renders a human readable rationale for a verified plan. It is
// cosmetic output for the audit trail and cannot fail: an empty plan yields a
// fixed sentence, anything else a deterministic template substitution.
func Explain(plan []PlanEntry, programType string) string {
	if len(plan) == 0 {
		return "No payouts proposed: Either 0 submissions found or budget exhausted."
	}
	total := SumAmounts(plan)
	return fmt.Sprintf(
		"Processed the %s iteration. Evaluating %d recipients for a total of %s USDC.e. All selections verified against encoded policy rules for fraud and duplicate entries.",
		programType, len(plan), FormatUnitsFixed(total, 2))
}
