package currency

import (
	"math/big"
	"strings"
)

// FormatUnits converts a raw integer token amount into an exact decimal
// string using the given precision, e.g. (1500000000000000000, 18) -> "1.5".
// Whole amounts keep a single fractional digit ("1.0"). No floating point is
// involved, so 18-decimal amounts never lose precision.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0.0"
	}

	abs := new(big.Int).Abs(raw)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	quo, rem := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	var sb strings.Builder
	if raw.Sign() < 0 {
		sb.WriteByte('-')
	}
	sb.WriteString(quo.String())
	sb.WriteByte('.')

	if rem.Sign() == 0 {
		sb.WriteByte('0')
		return sb.String()
	}

	frac := rem.String()
	// Left-pad the fraction to the full precision, then trim trailing zeros.
	if pad := int(decimals) - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	sb.WriteString(strings.TrimRight(frac, "0"))

	return sb.String()
}
