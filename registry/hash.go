package registry

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// HashPlanID maps a human-readable plan id to its fixed-size on-chain key:
// 0x-prefixed hex of keccak256 over the UTF-8 plan id.
func HashPlanID(planID string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(planID))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
