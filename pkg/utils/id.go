// Package utils holds small helpers shared across layers.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRecordID generates a UUID for persisted session and metric rows.
func GenerateRecordID() string {
	return uuid.NewString()
}

// GenerateRequestID generates an ID for correlating log lines of one HTTP
// request. The timestamp prefix keeps IDs sortable in log output.
func GenerateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
