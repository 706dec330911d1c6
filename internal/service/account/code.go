package account

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/josh-kwaku/valorpoint/internal/domain"
)

const referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateReferralCode draws domain.ReferralCodeLength characters from
// [A-Z0-9] using crypto/rand.
func GenerateReferralCode() (string, error) {
	code := make([]byte, domain.ReferralCodeLength)
	max := big.NewInt(int64(len(referralAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("GenerateReferralCode: %w", err)
		}
		code[i] = referralAlphabet[n.Int64()]
	}
	return string(code), nil
}
