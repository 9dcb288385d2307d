package entity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryStore_TenantIsolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	e := New(FamilyFault, "tenant-a", "open", "actor-1", map[string]string{"title": "bilge pump leak"})
	store.Put(e)

	got, err := store.GetByID(ctx, "tenant-a", FamilyFault, e.ID)
	if err != nil {
		t.Fatalf("GetByID() owner error = %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("GetByID() = %q, want %q", got.ID, e.ID)
	}

	// Another tenant sees absence, not denial.
	if _, err := store.GetByID(ctx, "tenant-b", FamilyFault, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() cross-tenant error = %v, want ErrNotFound", err)
	}

	list, err := store.List(ctx, "tenant-b", FamilyFault, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() cross-tenant returned %d records, want 0", len(list))
	}
}

func TestInMemoryStore_GetByID_WrongFamily(t *testing.T) {
	store := NewInMemoryStore()
	e := New(FamilyFault, "tenant-a", "open", "actor-1", nil)
	store.Put(e)

	if _, err := store.GetByID(context.Background(), "tenant-a", FamilyWorkOrder, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() wrong family error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryStore_ListFiltersAndOrder(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	first := New(FamilyFault, "tenant-a", "open", "actor-1", nil)
	second := New(FamilyFault, "tenant-a", "closed", "actor-1", nil)
	third := New(FamilyFault, "tenant-a", "open", "actor-1", nil)
	store.Put(first)
	store.Put(second)
	store.Put(third)

	open, err := store.List(ctx, "tenant-a", FamilyFault, Filter{Status: "open"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("List(status=open) = %d records, want 2", len(open))
	}
	// Newest first.
	if open[0].ID != third.ID {
		t.Errorf("List() first = %q, want newest %q", open[0].ID, third.ID)
	}

	limited, err := store.List(ctx, "tenant-a", FamilyFault, Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("List(limit=1) = %d records, want 1", len(limited))
	}
}

func TestInMemoryStore_DeletedRecordsAreAbsent(t *testing.T) {
	store := NewInMemoryStore()
	e := New(FamilyFault, "tenant-a", "open", "actor-1", nil)
	now := time.Now().UTC()
	e.DeletedAt = &now
	store.Put(e)

	if _, err := store.GetByID(context.Background(), "tenant-a", FamilyFault, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() removed record error = %v, want ErrNotFound", err)
	}
}

func TestClone_IsDeep(t *testing.T) {
	e := New(FamilyFault, "tenant-a", "open", "actor-1", map[string]string{"title": "gyro drift"})
	e.AddRef(Ref{Family: FamilyWorkOrder, ID: "wo-1"})

	c := e.Clone()
	c.Fields["title"] = "changed"
	c.Refs[0].ID = "wo-2"
	c.Status = "closed"

	if e.Fields["title"] != "gyro drift" {
		t.Error("Clone() shares the fields map")
	}
	if e.Refs[0].ID != "wo-1" {
		t.Error("Clone() shares the refs slice")
	}
	if e.Status != "open" {
		t.Error("Clone() shares status")
	}
}

func TestAddRef_Deduplicates(t *testing.T) {
	e := New(FamilyFault, "tenant-a", "open", "actor-1", nil)
	ref := Ref{Family: FamilyWorkOrder, ID: "wo-1"}
	e.AddRef(ref)
	e.AddRef(ref)

	if len(e.Refs) != 1 {
		t.Errorf("AddRef() twice produced %d refs, want 1", len(e.Refs))
	}
}

func TestRef_String(t *testing.T) {
	ref := Ref{Family: FamilyFault, ID: "f-1"}
	if got := ref.String(); got != "fault/f-1" {
		t.Errorf("Ref.String() = %q, want %q", got, "fault/f-1")
	}
}
