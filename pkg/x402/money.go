package x402

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseMoney converts a human price ("$0.01", "1.5") into atomic token units
// as a decimal string, using string arithmetic so no precision is lost to
// floating point.
func ParseMoney(amount string, decimals int) (string, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(amount), "$"))
	if trimmed == "" {
		return "", fmt.Errorf("empty amount")
	}

	whole := trimmed
	frac := ""
	if dot := strings.IndexByte(trimmed, '.'); dot >= 0 {
		whole, frac = trimmed[:dot], trimmed[dot+1:]
	}
	if whole == "" {
		whole = "0"
	}

	if len(frac) > decimals {
		return "", fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	atomic, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || atomic.Sign() < 0 {
		return "", fmt.Errorf("invalid amount: %q", amount)
	}

	return atomic.String(), nil
}
