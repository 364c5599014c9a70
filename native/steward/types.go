package steward

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// ProgramType enumerates the funding initiative categories tracked by the registry.
type ProgramType uint8

const (
	ProgramTypeHackathon ProgramType = iota
	ProgramTypeBounty
	ProgramTypeGrant
	ProgramTypePayroll
)

// String returns the human readable label used in explanations and logs.
func (t ProgramType) String() string {
	switch t {
	case ProgramTypeHackathon:
		return "Hackathon"
	case ProgramTypeBounty:
		return "Bounty"
	case ProgramTypeGrant:
		return "Grant"
	case ProgramTypePayroll:
		return "Payroll"
	default:
		return "Unknown"
	}
}

// ProgramStatus mirrors the on-chain lifecycle enum.
type ProgramStatus uint8

const (
	ProgramStatusActive ProgramStatus = iota
	ProgramStatusClosed
)

// String renders the status for operator-facing output.
func (s ProgramStatus) String() string {
	switch s {
	case ProgramStatusActive:
		return "Active"
	case ProgramStatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Program describes a funding initiative as read from the registry. The steward
// never mutates a program; the registry and vault own its lifecycle.
type Program struct {
	ID          uint64
	Owner       string
	Type        ProgramType
	Token       string
	MetadataURI string
	PolicyURI   string
	Budget      *big.Int
	Status      ProgramStatus
}

// Policy captures the deterministic constraint set a payout plan must satisfy.
// Monetary limits are held in base token units; UnmarshalJSON accepts the
// human-denominated numbers the policy documents carry.
type Policy struct {
	MaxTotalBudget      *big.Int
	MaxPerRecipient     *big.Int
	MinRecipients       int
	MaxRecipients       int
	RequireUniqueWallets bool
	MonthlyCap          *big.Int
}

type policyJSON struct {
	MaxTotalBudget       json.Number `json:"maxTotalBudget"`
	MaxPerRecipient      json.Number `json:"maxPerRecipient"`
	MinRecipients        int         `json:"minRecipients"`
	MaxRecipients        int         `json:"maxRecipients"`
	RequireUniqueWallets bool        `json:"requireUniqueWallets"`
	MonthlyCap           json.Number `json:"usdCapPerMonth"`
}

// UnmarshalJSON decodes the documented policy shape, converting decimal token
// amounts into base units.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw policyJSON
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	maxTotal, err := amountFromNumber(raw.MaxTotalBudget, "maxTotalBudget")
	if err != nil {
		return err
	}
	maxPer, err := amountFromNumber(raw.MaxPerRecipient, "maxPerRecipient")
	if err != nil {
		return err
	}
	monthly, err := amountFromNumber(raw.MonthlyCap, "usdCapPerMonth")
	if err != nil {
		return err
	}
	// A document missing its constraint fields would otherwise decode into a
	// policy with no effective limits; treasury constraints must be explicit.
	if maxTotal == nil {
		return fmt.Errorf("policy maxTotalBudget required")
	}
	if maxPer == nil {
		return fmt.Errorf("policy maxPerRecipient required")
	}
	if raw.MaxRecipients < 1 {
		return fmt.Errorf("policy maxRecipients must be at least 1")
	}
	if raw.MinRecipients < 0 || raw.MinRecipients > raw.MaxRecipients {
		return fmt.Errorf("policy minRecipients %d out of range for maxRecipients %d", raw.MinRecipients, raw.MaxRecipients)
	}
	p.MaxTotalBudget = maxTotal
	p.MaxPerRecipient = maxPer
	p.MinRecipients = raw.MinRecipients
	p.MaxRecipients = raw.MaxRecipients
	p.RequireUniqueWallets = raw.RequireUniqueWallets
	p.MonthlyCap = monthly
	return nil
}

func amountFromNumber(num json.Number, field string) (*big.Int, error) {
	raw := strings.TrimSpace(num.String())
	if raw == "" {
		return nil, nil
	}
	value, err := ParseUnits(raw)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", field, err)
	}
	return value, nil
}

// ScoreEntry is one ranked submission for a program. Higher scores rank first.
type ScoreEntry struct {
	Address  string `json:"address"`
	Score    float64 `json:"score"`
	Metadata string `json:"metadata,omitempty"`
}

// Plan entry statuses. The planner emits provisional Valid entries; the
// verifier has the final word.
const (
	EntryStatusValid   = "VALID"
	EntryStatusInvalid = "INVALID"
)

// PolicyCheckPending marks entries that have not yet passed the verifier.
const PolicyCheckPending = "PENDING_VERIFICATION"

// PlanEntry is the planner's output unit: one proposed transfer to one
// recipient. Amounts are base token units.
type PlanEntry struct {
	Recipient   string
	Amount      *big.Int
	Reason      string
	PolicyCheck string
	Status      string
	Violation   string
}

// AmountTokens renders the entry amount as a decimal token string.
func (e PlanEntry) AmountTokens() string {
	return FormatUnits(e.Amount)
}
