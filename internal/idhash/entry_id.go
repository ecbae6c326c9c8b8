// Package idhash derives deterministic identifiers for persisted records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID returns a random identifier for one process run. Cycle ids
// restart at 1 per process, so mirror rows are keyed by session as well.
func NewSessionID() string {
	return uuid.NewString()
}

// ComputeEntryID computes a deterministic entry_id using SHA256.
// Formula: SHA256(session_id|cycle_id|token_address)
// Returns hex-encoded hash (64 characters).
func ComputeEntryID(sessionID string, cycleID uint64, tokenAddress string) string {
	data := fmt.Sprintf("%s|%d|%s", sessionID, cycleID, tokenAddress)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
