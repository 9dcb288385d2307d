// Package ledger provides the append-only audit record of executed actions.
// One row is written per successful state-changing action; rows are never
// updated or deleted, and every row carries a signature value — canonical
// empty for unsigned actions, a structured payload for signed ones. The
// invariant is enforced at the Append boundary, not trusted from callers.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/signature"
)

// Validation errors enforced by Append.
var (
	ErrMissingTenant    = errors.New("ledger entry tenant id is required")
	ErrMissingEntity    = errors.New("ledger entry entity reference is required")
	ErrMissingAction    = errors.New("ledger entry action is required")
	ErrMissingActor     = errors.New("ledger entry actor is required")
	ErrInvalidSignature = errors.New("ledger entry signature is malformed")
)

// Entry is one immutable audit row. Actor fields are copied by value so the
// ledger survives identity-system changes.
type Entry struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenant_id"`
	Family   entity.Family `json:"family"`
	EntityID string        `json:"entity_id"`
	Action   string        `json:"action"`

	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	ActorRole string `json:"actor_role"`

	Before *entity.Entity `json:"before,omitempty"`
	After  *entity.Entity `json:"after"`

	Signature signature.Payload `json:"signature"`

	// Request metadata: correlation id and network origin.
	RequestID string `json:"request_id,omitempty"`
	Origin    string `json:"origin,omitempty"`

	// Hash chains entries for tamper evidence. PrevHash is the Hash of the
	// tenant's previous entry, empty for the first.
	PrevHash string `json:"prev_hash,omitempty"`
	Hash     string `json:"hash"`

	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the entity reference the entry concerns.
func (e *Entry) Ref() entity.Ref {
	return entity.Ref{Family: e.Family, ID: e.EntityID}
}

// Signed reports whether the entry carries a non-empty signature.
func (e *Entry) Signed() bool {
	return !e.Signature.IsEmpty()
}

// Validate checks the invariants every appended row must satisfy.
func (e *Entry) Validate() error {
	if e.TenantID == "" {
		return ErrMissingTenant
	}
	if e.Family == "" || e.EntityID == "" {
		return ErrMissingEntity
	}
	if e.Action == "" {
		return ErrMissingAction
	}
	if e.ActorID == "" {
		return ErrMissingActor
	}
	// The signature is never absent: it must be the canonical empty value or
	// a fully formed payload. A partial payload is a defect upstream.
	if err := e.Signature.Validate(); err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	return nil
}

// ComputeHash derives the tamper-evidence hash for the entry, covering the
// previous hash and the entry's identifying content.
func ComputeHash(e *Entry) string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte{0})
	h.Write([]byte(e.ID))
	h.Write([]byte{0})
	h.Write([]byte(e.TenantID))
	h.Write([]byte{0})
	h.Write([]byte(e.Family))
	h.Write([]byte{0})
	h.Write([]byte(e.EntityID))
	h.Write([]byte{0})
	h.Write([]byte(e.Action))
	h.Write([]byte{0})
	h.Write([]byte(e.ActorID))
	h.Write([]byte{0})
	h.Write([]byte(e.CreatedAt.UTC().Format(time.RFC3339Nano)))
	if sig, err := json.Marshal(e.Signature); err == nil {
		h.Write([]byte{0})
		h.Write(sig)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain checks a tenant's entries, oldest first, against the hash
// chain. Returns the index of the first broken link, or -1 if intact.
func VerifyChain(entries []*Entry) int {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return i
		}
		if ComputeHash(e) != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}
