package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"kalshi-trader/internal/domain"
)

// ComputeSignalID computes a deterministic signal id using SHA256.
// Formula: SHA256(kind|ticker|created_at_unix_ms)
// Returns hex-encoded hash (64 characters).
func ComputeSignalID(kind domain.SignalKind, ticker string, createdAt time.Time) string {
	data := fmt.Sprintf("%s|%s|%d", string(kind), ticker, createdAt.UnixMilli())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePositionID computes a deterministic position id using SHA256.
// Formula: SHA256(kind|ticker|order_id|entry_time_unix_ms)
// Returns the first 16 bytes hex-encoded (32 characters).
func ComputePositionID(kind domain.SignalKind, ticker, orderID string, entryTime time.Time) string {
	data := fmt.Sprintf("%s|%s|%s|%d", string(kind), ticker, orderID, entryTime.UnixMilli())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
