package fsstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeChecksum hashes the canonical JSON form of v and returns the first
// 16 hex characters of the SHA-256 digest. Canonical form is obtained by
// re-marshalling through a generic value, which sorts all object keys and
// strips formatting, so logically equal documents hash identically.
func ComputeChecksum(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

// CanonicalJSON renders v as deterministic compact JSON with sorted keys.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for checksum: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("roundtrip for checksum: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return canonical, nil
}
