package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/casevault/reward-service/internal/models"
)

// ComputeCommitment hashes serverSeed:clientSeed:txHash with SHA-256 and
// returns bare lowercase hex. The server seed is used without any 0x prefix;
// the client seed and tx hash are hashed exactly as supplied.
func ComputeCommitment(serverSeed, clientSeed, txHash string) string {
	sum := sha256.Sum256([]byte(models.TrimHexPrefix(serverSeed) + ":" + clientSeed + ":" + txHash))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment recomputes the digest from revealed material and compares
// it with the published commitment. Both 0x-prefixed and bare hex are accepted
// for serverSeed and commitment.
func VerifyCommitment(serverSeed, clientSeed, txHash, commitment string) (bool, string) {
	computed := ComputeCommitment(serverSeed, clientSeed, txHash)
	want := strings.ToLower(models.TrimHexPrefix(strings.TrimSpace(commitment)))

	ok := subtle.ConstantTimeCompare([]byte(computed), []byte(want)) == 1
	return ok, models.WithHexPrefix(computed)
}
