package domain

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

// orderNumberPattern matches ORD-YYYYMMDD-NNNN.
var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

// GenerateOrderNumber produces a human-readable order number of the form
// ORD-YYYYMMDD-NNNN. The numeric suffix is random; uniqueness per
// organization is enforced by the store, and callers regenerate on collision.
func GenerateOrderNumber(now time.Time) string {
	suffix := rand.IntN(10000) // #nosec G404 -- non-cryptographic suffix, uniqueness enforced by constraint
	return fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("20060102"), suffix)
}

// IsValidOrderNumber reports whether the string is a well-formed order number.
func IsValidOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}
