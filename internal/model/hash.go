package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainMutation separates mutation keys from any other hash in the system.
const DomainMutation = "eventcore/mutation/v1"

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MutationKey computes the content-addressed identity of a client mutation.
// The same logical request (kind, event, subject, payload) always yields the
// same key, so a retried or double-submitted mutation is recognizable.
//
// The payload is hashed through encoding/json (sorted map keys) because
// evaluation payloads may carry floats, which canonical JSON forbids.
func MutationKey(kind, eventID, subject string, payload any) (string, error) {
	obj := map[string]any{
		"kind":    kind,
		"event":   eventID,
		"subject": subject,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("MutationKey: marshal payload: %w", err)
		}
		sum := sha256.Sum256(raw)
		obj["payload"] = hex.EncodeToString(sum[:])
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MutationKey: %w", err)
	}
	return hashWithDomain(DomainMutation, canonical), nil
}
