package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const ServerSeedBytes = 32

// GenerateOpeningID returns a time-ordered UUIDv7 with a random tail, so ids
// from concurrent requests do not collide and sort by creation time.
func GenerateOpeningID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "op_" + uuid.NewString()
	}
	return "op_" + id.String()
}

// GenerateServerSeed draws 256 bits from crypto/rand, hex encoded without prefix.
func GenerateServerSeed() (string, error) {
	bytes := make([]byte, ServerSeedBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}

func (r *RewardQuoteRequest) Validate() error {
	var missing []string
	if r.CaseTypeID == "" {
		missing = append(missing, "caseTypeId")
	}
	if strings.TrimSpace(r.TxHash) == "" {
		missing = append(missing, "txHash")
	}
	if strings.TrimSpace(r.ClientSeed) == "" {
		missing = append(missing, "clientSeed")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func WithHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

func TrimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
