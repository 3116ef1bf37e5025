package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTxnRef builds the merchant transaction reference sent to the gateway:
// <user>_<event>_<unix seconds>_<random>. It is unique per payment attempt.
func GenerateTxnRef(userID string, eventID int64, now time.Time) string {
	randomNum, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return fmt.Sprintf("%s_%d_%d", userID, eventID, now.UnixNano())
	}
	return fmt.Sprintf("%s_%d_%d_%06d", userID, eventID, now.Unix(), randomNum.Int64())
}
