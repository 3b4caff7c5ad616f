package orders

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const (
	numberTimeLayout = "20060102150405"
	numberSuffixLen  = 6
	// 32 symbols without 0/O and 1/I so a byte maps onto it without bias.
	numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NumberGenerator produces a candidate order number. Uniqueness is enforced by
// the database; the service regenerates on collision.
type NumberGenerator func(now time.Time) (string, error)

// RandomNumbers builds order numbers like OH20250301120000-7KQ2MX.
func RandomNumbers(prefix string) NumberGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	return func(now time.Time) (string, error) {
		suffix, err := randomSuffix(numberSuffixLen)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s%s-%s", prefix, now.UTC().Format(numberTimeLayout), suffix), nil
	}
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return string(buf), nil
}
