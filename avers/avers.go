// Package avers stamps an aggregate's schema version the way the teacher's
// mig.Version content-hashed a domain node's name and contents: here the
// "contents" are an aggregate type's registered set of event types, so
// evolving that set (adding a new event type) changes the stamp without
// anyone having to hand-maintain a version constant.
package avers

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Compute returns a stable version for aggregateType given its full set of
// registered event types. The set is sorted before hashing so registration
// order never affects the result.
func Compute(aggregateType string, eventTypes []string) int32 {
	sorted := make([]string, len(eventTypes))
	copy(sorted, eventTypes)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(aggregateType))
	for _, et := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(et))
	}
	sum := h.Sum(nil)
	// Fold to a positive int32: versions are meant to be a short, stable
	// fingerprint recorded on every event, not a cryptographic digest.
	v := int32(binary.BigEndian.Uint32(sum[:4]) & 0x7fffffff)
	if v == 0 {
		v = 1
	}
	return v
}
