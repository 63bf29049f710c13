package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderNumberPrefix = "BK"

func randomDigits(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

// generateOrderNumber returns a customer-facing reference like BK-261019-482913.
func generateOrderNumber(now time.Time) (string, error) {
	digits, err := randomDigits(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.UTC().Format("060102"), digits), nil
}

// generateCollectionCode returns the code a customer shows at pickup, e.g. COL-0427.
func generateCollectionCode() (string, error) {
	digits, err := randomDigits(4)
	if err != nil {
		return "", err
	}
	return "COL-" + digits, nil
}
