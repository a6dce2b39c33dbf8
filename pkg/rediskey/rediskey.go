package rediskey

import (
	"fmt"
	"strconv"
)

// Key prefixes shared by the API and the worker.
const (
	SettlementLockPrefix = "lock:settlement:payment"
	LeaderboardPrefix    = "leaderboard:top"
	ReceiptSeqPrefix     = "seq:receipt"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSettlementLockKey returns "lock:settlement:payment:{paymentID}"
func BuildSettlementLockKey(paymentID string) string {
	return NamespaceKey(SettlementLockPrefix, paymentID)
}

// BuildLeaderboardKey returns "leaderboard:top:{limit}"
func BuildLeaderboardKey(limit int) string {
	return NamespaceKey(LeaderboardPrefix, strconv.Itoa(limit))
}

// BuildReceiptSeqKey returns "seq:receipt:{yymmdd}"
func BuildReceiptSeqKey(day string) string {
	return NamespaceKey(ReceiptSeqPrefix, day)
}
