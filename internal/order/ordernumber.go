package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

var suffixRange = big.NewInt(1_000_000)

// NewOrderNumber builds a human-readable order number: a date-coded
// prefix plus a random six-digit suffix, e.g. ORD-20250131-048213.
// Uniqueness is overwhelmingly likely but not guaranteed; the orderer
// retries on a unique-constraint collision.
func NewOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, suffixRange)
	if err != nil {
		return "", fmt.Errorf("failed to generate order number suffix: %w", err)
	}

	return fmt.Sprintf("ORD-%s-%06d", now.UTC().Format("20060102"), n.Int64()), nil
}
