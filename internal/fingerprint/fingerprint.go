// Package fingerprint derives the deterministic cache key for a synthesis
// request. The caller is responsible for normalizing text exactly once before
// calling Build; the builder never re-normalizes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Params are the synthesis knobs that participate in the cache key. Any
// change to any field yields a different fingerprint.
type Params struct {
	Stability    float64
	Similarity   float64
	Style        float64
	SpeakerBoost bool
	OptLatency   int
}

// Build returns a 64-char hex sha256 over the normalized inputs. tenantKey is
// included only when non-empty (tenant-scoped caching); pass "" for a cache
// shared across tenants. Floats are serialized with the shortest exact
// representation so the key never depends on formatting defaults.
func Build(tenantKey, text, voiceID, modelID string, p Params) string {
	h := sha256.New()
	h.Write([]byte(text))
	fmt.Fprintf(h, "|%s|%s|%s|%s|%s|%t|%d",
		voiceID,
		modelID,
		formatFloat(p.Stability),
		formatFloat(p.Similarity),
		formatFloat(p.Style),
		p.SpeakerBoost,
		p.OptLatency,
	)
	if tenantKey != "" {
		fmt.Fprintf(h, "|tenant=%s", tenantKey)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
