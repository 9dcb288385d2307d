// Package entity provides the generic maintenance-record model shared by all
// entity families, and the stores that persist it. One engine, one record
// shape; the families differ only in their state machines and action schemas.
package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for entity operations.
var (
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("entity already exists")
)

// Family identifies an entity family. Each family has its own table and its
// own state machine.
type Family string

const (
	FamilyFault       Family = "fault"
	FamilyWorkOrder   Family = "workorder"
	FamilyInventory   Family = "inventory"
	FamilyHandover    Family = "handover"
	FamilyCertificate Family = "certificate"
)

// Families lists every known family in a stable order.
func Families() []Family {
	return []Family{FamilyFault, FamilyWorkOrder, FamilyInventory, FamilyHandover, FamilyCertificate}
}

// ValidFamily reports whether f is a known family.
func ValidFamily(f Family) bool {
	switch f {
	case FamilyFault, FamilyWorkOrder, FamilyInventory, FamilyHandover, FamilyCertificate:
		return true
	}
	return false
}

// Status is an entity lifecycle state, drawn from the closed enum of the
// entity's family.
type Status string

// Ref identifies one entity across families.
type Ref struct {
	Family Family `json:"family"`
	ID     string `json:"id"`
}

// String renders the ref as "family/id", the form used in ledger rows and
// signature payloads.
func (r Ref) String() string {
	return string(r.Family) + "/" + r.ID
}

// Entity is a tenant-scoped maintenance record. Records under the retention
// doctrine are never physically deleted; DeletedAt marks administrative
// removal for the few families that allow it.
type Entity struct {
	ID       string            `json:"id"`
	TenantID string            `json:"tenant_id"`
	Family   Family            `json:"family"`
	Status   Status            `json:"status"`
	Refs     []Ref             `json:"refs,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`

	CreatedBy string     `json:"created_by"`
	UpdatedBy string     `json:"updated_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Ref returns the entity's own reference.
func (e *Entity) Ref() Ref {
	return Ref{Family: e.Family, ID: e.ID}
}

// New creates an entity in the given initial status, owned by tenantID and
// created by actorID.
func New(family Family, tenantID string, status Status, actorID string, fields map[string]string) *Entity {
	now := time.Now().UTC()
	if fields == nil {
		fields = make(map[string]string)
	}
	return &Entity{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Family:    family,
		Status:    status,
		Fields:    fields,
		CreatedBy: actorID,
		UpdatedBy: actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy, used for before/after ledger snapshots so later
// mutation cannot alter what was recorded.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Refs = append([]Ref(nil), e.Refs...)
	c.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Touch updates the modification stamp. Called by the executor before a write.
func (e *Entity) Touch(actorID string) {
	e.UpdatedBy = actorID
	e.UpdatedAt = time.Now().UTC()
}

// AddRef links another entity (e.g. the work order spawned from a fault).
// Duplicate refs are ignored.
func (e *Entity) AddRef(ref Ref) {
	for _, r := range e.Refs {
		if r == ref {
			return
		}
	}
	e.Refs = append(e.Refs, ref)
}
