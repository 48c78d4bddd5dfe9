// Package amount converts token amounts between base units and decimal strings.
//
// All arithmetic is exact big.Int work. Token amounts routinely exceed float64
// precision, so nothing here ever round-trips through floating point.
package amount

import (
	"fmt"
	"math/big"
	"strings"
)

// DefaultDecimals is the decimal count assumed when a token doesn't specify one.
const DefaultDecimals = 18

var ten = big.NewInt(10)

// FormatUnits converts a base-unit integer string (e.g. wei) to a human-readable
// decimal string. Trailing zeros in the fraction are trimmed; a zero fraction
// yields just the whole part.
//
//	FormatUnits("1500000000000000000", 18) == "1.5"
//	FormatUnits("10000000", 6) == "10"
func FormatUnits(raw string, decimals int) (string, error) {
	if decimals < 0 {
		return "", fmt.Errorf("negative decimals %d", decimals)
	}

	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 || strings.ContainsAny(raw, "+-") {
		return "", fmt.Errorf("malformed base-unit amount %q", raw)
	}

	scale := new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(v, scale, new(big.Int))

	if frac.Sign() == 0 {
		return whole.String(), nil
	}

	fracStr := frac.String()
	if pad := decimals - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")

	return whole.String() + "." + fracStr, nil
}

// ParseUnits converts a decimal string back to a base-unit integer. It is the
// exact inverse of FormatUnits: ParseUnits(FormatUnits(v, d), d) == v.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("negative decimals %d", decimals)
	}

	whole := s
	frac := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok || w.Sign() < 0 || strings.ContainsAny(s, "+-") {
		return nil, fmt.Errorf("malformed decimal amount %q", s)
	}

	scale := new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
	w.Mul(w, scale)

	if frac != "" {
		f, ok := new(big.Int).SetString(frac, 10)
		if !ok || f.Sign() < 0 {
			return nil, fmt.Errorf("malformed decimal amount %q", s)
		}
		// pad the fraction out to full precision
		f.Mul(f, new(big.Int).Exp(ten, big.NewInt(int64(decimals-len(frac))), nil))
		w.Add(w, f)
	}

	return w, nil
}

// BaseUnits parses a base-unit integer string into a big.Int.
func BaseUnits(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 || strings.ContainsAny(raw, "+-") {
		return nil, fmt.Errorf("malformed base-unit amount %q", raw)
	}
	return v, nil
}
