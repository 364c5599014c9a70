package steward

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the base-unit precision of the settlement token.
const TokenDecimals = 18

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// ParseUnits converts a decimal token amount such as "1000" or "12.5" into
// base units. Negative amounts and excess precision are rejected.
func ParseUnits(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > TokenDecimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", raw, TokenDecimals)
	}
	value, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	value.Mul(value, unitScale)
	if frac != "" {
		fracValue, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", raw)
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(TokenDecimals-len(frac))), nil)
		value.Add(value, fracValue.Mul(fracValue, scale))
	}
	return value, nil
}

// FormatUnits renders a base-unit amount as a decimal token string with
// trailing zeros trimmed.
func FormatUnits(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(amount, unitScale, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*s", TokenDecimals, rem.String()), "0")
	return quo.String() + "." + frac
}

// FormatUnitsFixed renders a base-unit amount with exactly the requested number
// of decimal places, rounding half up at the last place.
func FormatUnitsFixed(amount *big.Int, places int) string {
	if amount == nil {
		amount = new(big.Int)
	}
	if places < 0 {
		places = 0
	}
	rounded := new(big.Int).Set(amount)
	if places < TokenDecimals {
		step := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(TokenDecimals-places)), nil)
		rounded.Add(rounded, step.Quo(step, big.NewInt(2)))
	}
	quo, rem := new(big.Int).QuoRem(rounded, unitScale, new(big.Int))
	if places == 0 {
		return quo.String()
	}
	frac := fmt.Sprintf("%0*s", TokenDecimals, rem.String())
	return quo.String() + "." + frac[:places]
}

// SumAmounts totals the plan's proposed amounts in base units.
func SumAmounts(plan []PlanEntry) *big.Int {
	total := new(big.Int)
	for _, entry := range plan {
		if entry.Amount != nil {
			total.Add(total, entry.Amount)
		}
	}
	return total
}
