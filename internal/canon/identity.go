package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// AnchorHash computes the deterministic conversation id described in §3:
// a SHA-256 digest over model, user hint, and the first non-scaffolding
// user utterance, separated by the byte 0x1f (ASCII unit separator). The
// inputs are not checked for that byte, so two input combinations that
// differ only in where a 0x1f falls hash to the same id.
func AnchorHash(model, userHint, firstUtterance string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0x1f})
	h.Write([]byte(userHint))
	h.Write([]byte{0x1f})
	h.Write([]byte(firstUtterance))
	return hex.EncodeToString(h.Sum(nil))
}
