package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// keyVersion prefixes every synthesis key so a change to the key scheme can
// never resurrect audio produced under an older layout.
const keyVersion = "v1"

// Key derives the content address for one synthesized chunk. Two requests
// share a key only when every input matches exactly; hashing the chunk text
// itself guards against upstream re-chunking shifting indices onto stale
// audio.
func Key(bookID, chapterID, voiceID string, rate float64, chunkIndex int, text string) string {
	input := fmt.Sprintf("%s|%s|%s|%.2f|%d|%s", bookID, chapterID, voiceID, rate, chunkIndex, text)
	sum := sha256.Sum256([]byte(input))
	return keyVersion + "_" + hex.EncodeToString(sum[:])
}
