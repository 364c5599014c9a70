package steward

import (
	"fmt"
	"math/big"
	"sort"
)

// Deployable budget is 90% of the program budget; the remainder absorbs
// rounding dust and fee slippage.
var (
	deployableNumerator   = big.NewInt(90)
	deployableDenominator = big.NewInt(100)
)

// ComputePlan produces the proposed distribution for one program iteration.
// The result is deterministic for identical inputs: scores are ordered
// descending with ties resolved by input position, the deployable budget is
// split equally across the top maxRecipients submissions, and each share is
// clamped to the per-recipient cap. An empty score list yields an empty plan.
//
// Entries are emitted with a provisional VALID status; VerifyPlan is the
// authority on whether the plan may execute.
func ComputePlan(program Program, policy Policy, scores []ScoreEntry) []PlanEntry {
	if len(scores) == 0 {
		return nil
	}

	ranked := make([]ScoreEntry, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	winnerCount := len(ranked)
	if winnerCount > policy.MaxRecipients {
		winnerCount = policy.MaxRecipients
	}
	// maxRecipients bounds the winner count strictly: a policy admitting zero
	// recipients produces an empty plan rather than an unbounded one.
	if winnerCount <= 0 {
		return nil
	}
	winners := ranked[:winnerCount]

	budget := program.Budget
	if budget == nil {
		budget = new(big.Int)
	}
	deployable := new(big.Int).Mul(budget, deployableNumerator)
	deployable.Quo(deployable, deployableDenominator)

	share := new(big.Int).Quo(deployable, big.NewInt(int64(winnerCount)))
	if policy.MaxPerRecipient != nil && share.Cmp(policy.MaxPerRecipient) > 0 {
		share = new(big.Int).Set(policy.MaxPerRecipient)
	}

	plan := make([]PlanEntry, 0, winnerCount)
	for rank, winner := range winners {
		plan = append(plan, PlanEntry{
			Recipient:   winner.Address,
			Amount:      new(big.Int).Set(share),
			Reason:      fmt.Sprintf("Ranked %d of %d winners with score %g", rank+1, winnerCount, winner.Score),
			PolicyCheck: PolicyCheckPending,
			Status:      EntryStatusValid,
		})
	}
	return plan
}
