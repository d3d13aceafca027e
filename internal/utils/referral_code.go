package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// ReferralCodeLength is the length of generated referral codes
	ReferralCodeLength = 8
)

// GenerateReferralCode creates a random uppercase alphanumeric referral code
func GenerateReferralCode() (string, error) {
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	code := make([]byte, ReferralCodeLength)

	for i := range code {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		code[i] = referralCodeAlphabet[idx.Int64()]
	}

	return string(code), nil
}
