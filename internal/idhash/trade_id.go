package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeDailyResultID computes a deterministic daily result id using SHA256.
// Formula: SHA256(run_id|bot_id|day)
// Returns hex-encoded hash (64 characters).
func ComputeDailyResultID(runID, botID string, day time.Time) string {
	return hash(fmt.Sprintf("%s|%s|%s", runID, botID, day.UTC().Format("2006-01-02")))
}

// ComputeTickResultID computes a deterministic tick result id.
// Formula: SHA256(run_id|bot_id|symbol|timestamp_ns)
func ComputeTickResultID(runID, botID, symbol string, ts time.Time) string {
	return hash(fmt.Sprintf("%s|%s|%s|%d", runID, botID, symbol, ts.UTC().UnixNano()))
}

// ComputeOrderID computes a deterministic order id from its owner and sequence.
// Formula: SHA256(owner|bot_id|seq)
func ComputeOrderID(owner, botID string, seq int64) string {
	return hash(fmt.Sprintf("%s|%s|order|%d", owner, botID, seq))
}

// ComputeLotID computes a deterministic lot id from its owning ledger and sequence.
// Formula: SHA256(owner|symbol|seq)
func ComputeLotID(owner, symbol string, seq int64) string {
	return hash(fmt.Sprintf("%s|%s|lot|%d", owner, symbol, seq))
}

func hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
