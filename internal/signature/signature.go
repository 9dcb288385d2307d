// Package signature provides the structured authorization record attached to
// elevated actions. A ledger row always carries a signature value: the
// canonical empty payload for unsigned actions, or a well-formed payload with
// an integrity hash for signed ones.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"
)

// Validation errors for signature payloads.
var (
	ErrMissingActor     = errors.New("signature actor id is required")
	ErrMissingRole      = errors.New("signature claimed role is required")
	ErrMissingAction    = errors.New("signature action is required")
	ErrMissingEntities  = errors.New("signature must reference at least one entity")
	ErrMissingHash      = errors.New("signature content hash is required")
	ErrHashMismatch     = errors.New("signature content hash does not match signed content")
	ErrMissingTimestamp = errors.New("signature timestamp is required")
)

// Payload is the structured authorization record for a signed action. Actor
// fields are copied by value so the record survives identity-system changes.
type Payload struct {
	ActorID     string    `json:"actor_id"`
	ClaimedRole string    `json:"claimed_role"`
	Action      string    `json:"action"`
	EntityRefs  []string  `json:"entity_refs"`
	ContentHash string    `json:"content_hash"`
	SignedAt    time.Time `json:"signed_at"`
}

// Empty returns the canonical empty payload used for unsigned actions.
// A zero Payload and Empty() are interchangeable.
func Empty() Payload {
	return Payload{}
}

// IsEmpty reports whether the payload is the canonical empty value.
func (p Payload) IsEmpty() bool {
	return p.ActorID == "" && p.ClaimedRole == "" && p.Action == "" &&
		len(p.EntityRefs) == 0 && p.ContentHash == "" && p.SignedAt.IsZero()
}

// Validate checks the payload for structural completeness. The empty payload
// is valid; a partially filled payload is not.
func (p Payload) Validate() error {
	if p.IsEmpty() {
		return nil
	}
	if p.ActorID == "" {
		return ErrMissingActor
	}
	if p.ClaimedRole == "" {
		return ErrMissingRole
	}
	if p.Action == "" {
		return ErrMissingAction
	}
	if len(p.EntityRefs) == 0 {
		return ErrMissingEntities
	}
	if p.ContentHash == "" {
		return ErrMissingHash
	}
	if p.SignedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// ContentHash computes the SHA-256 integrity hash over the signed content:
// action name, actor, claimed role, and the sorted entity references.
func ContentHash(action, actorID, claimedRole string, entityRefs []string) string {
	refs := make([]string, len(entityRefs))
	copy(refs, entityRefs)
	sort.Strings(refs)

	h := sha256.New()
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(actorID))
	h.Write([]byte{0})
	h.Write([]byte(claimedRole))
	for _, ref := range refs {
		h.Write([]byte{0})
		h.Write([]byte(ref))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// New creates a signed payload for the given action at the current time,
// computing the content hash over the inputs.
func New(action, actorID, claimedRole string, entityRefs []string) Payload {
	refs := make([]string, len(entityRefs))
	copy(refs, entityRefs)

	return Payload{
		ActorID:     actorID,
		ClaimedRole: claimedRole,
		Action:      action,
		EntityRefs:  refs,
		ContentHash: ContentHash(action, actorID, claimedRole, entityRefs),
		SignedAt:    time.Now().UTC(),
	}
}

// VerifyHash recomputes the content hash and compares it against the payload.
// Returns ErrHashMismatch if the signed content was altered.
func (p Payload) VerifyHash() error {
	if p.IsEmpty() {
		return nil
	}
	want := ContentHash(p.Action, p.ActorID, p.ClaimedRole, p.EntityRefs)
	if p.ContentHash != want {
		return ErrHashMismatch
	}
	return nil
}
