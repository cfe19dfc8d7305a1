package format

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// XLM amounts are denominated with 7 fractional digits on the ledger.
const AmountDecimals = 7

// ParseAmount parses a user-supplied decimal amount string and validates
// that it is a strictly positive, finite number.
func ParseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount %q is not a finite number", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %q", s)
	}
	return v, nil
}

// Amount formats a value as a decimal string with 7 fractional digits,
// the form Horizon expects for native-asset amounts.
func Amount(v float64) string {
	return strconv.FormatFloat(v, 'f', AmountDecimals, 64)
}

// TruncateAddress shortens an account address for display,
// e.g. "GABCDE...XYZ123". Short inputs are returned unchanged.
func TruncateAddress(addr string, start, end int) string {
	if addr == "" {
		return ""
	}
	if len(addr) <= start+end {
		return addr
	}
	return addr[:start] + "..." + addr[len(addr)-end:]
}

// ExplorerTxURL builds the block-explorer URL for a transaction hash.
func ExplorerTxURL(baseURL, hash string) string {
	return strings.TrimSuffix(baseURL, "/") + "/tx/" + hash
}

// FriendbotURL builds the faucet request URL for an address.
func FriendbotURL(baseURL, address string) string {
	return strings.TrimSuffix(baseURL, "/") + "?addr=" + url.QueryEscape(address)
}
