package state

import (
	"fmt"

	"github.com/oceanworks/deckhand/internal/entity"
)

// Fault statuses.
const (
	FaultOpen          entity.Status = "open"
	FaultInvestigating entity.Status = "investigating"
	FaultWorkOrdered   entity.Status = "work_ordered"
	FaultResolved      entity.Status = "resolved"
	FaultClosed        entity.Status = "closed"
	FaultFalseAlarm    entity.Status = "false_alarm"
)

// Work order statuses.
const (
	WorkOrderPlanned    entity.Status = "planned"
	WorkOrderInProgress entity.Status = "in_progress"
	WorkOrderCompleted  entity.Status = "completed"
	WorkOrderVerified   entity.Status = "verified"
	WorkOrderCancelled  entity.Status = "cancelled"
)

// Inventory statuses.
const (
	InventoryAvailable   entity.Status = "available"
	InventoryReserved    entity.Status = "reserved"
	InventoryConsumed    entity.Status = "consumed"
	InventoryQuarantined entity.Status = "quarantined"
)

// Handover statuses.
const (
	HandoverDraft     entity.Status = "draft"
	HandoverSubmitted entity.Status = "submitted"
	HandoverAccepted  entity.Status = "accepted"
)

// Certificate statuses.
const (
	CertificateActive    entity.Status = "active"
	CertificateExpiring  entity.Status = "expiring"
	CertificateExpired   entity.Status = "expired"
	CertificateWithdrawn entity.Status = "withdrawn"
)

// Machines holds the state machine for every entity family.
type Machines struct {
	byFamily map[entity.Family]*Machine
}

// ForFamily returns the machine for the given family.
func (ms *Machines) ForFamily(f entity.Family) (*Machine, error) {
	m, ok := ms.byFamily[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, f)
	}
	return m, nil
}

// NewMachines builds the fixed machines for all families. Called once at
// process start; a config error here aborts startup.
func NewMachines() (*Machines, error) {
	configs := []Config{
		{
			Family:   entity.FamilyFault,
			Initial:  FaultOpen,
			Statuses: []entity.Status{FaultOpen, FaultInvestigating, FaultWorkOrdered, FaultResolved, FaultClosed, FaultFalseAlarm},
			// false_alarm is intentionally terminal with no exit; the
			// reopen edge applies to closed only.
			Terminal: []entity.Status{FaultClosed, FaultFalseAlarm},
			Transitions: []Transition{
				{Action: "acknowledgeFault", From: []entity.Status{FaultOpen}, To: FaultInvestigating},
				{Action: "markFalseAlarm", From: []entity.Status{FaultOpen}, To: FaultFalseAlarm},
				{Action: "createWorkOrderFromFault", From: []entity.Status{FaultInvestigating}, To: FaultWorkOrdered},
				{Action: "resolveFault", From: []entity.Status{FaultInvestigating, FaultWorkOrdered}, To: FaultResolved},
				{Action: "closeFault", From: []entity.Status{FaultResolved}, To: FaultClosed},
				{Action: "reopenFault", From: []entity.Status{FaultClosed}, To: FaultOpen},
			},
			ExceptionEdges: []string{"reopenFault"},
		},
		{
			Family:   entity.FamilyWorkOrder,
			Initial:  WorkOrderPlanned,
			Statuses: []entity.Status{WorkOrderPlanned, WorkOrderInProgress, WorkOrderCompleted, WorkOrderVerified, WorkOrderCancelled},
			Terminal: []entity.Status{WorkOrderVerified, WorkOrderCancelled},
			Transitions: []Transition{
				{Action: "startWorkOrder", From: []entity.Status{WorkOrderPlanned}, To: WorkOrderInProgress},
				{Action: "completeWorkOrder", From: []entity.Status{WorkOrderInProgress}, To: WorkOrderCompleted},
				{Action: "verifyWorkOrder", From: []entity.Status{WorkOrderCompleted}, To: WorkOrderVerified},
				{Action: "cancelWorkOrder", From: []entity.Status{WorkOrderPlanned, WorkOrderInProgress}, To: WorkOrderCancelled},
			},
		},
		{
			Family:   entity.FamilyInventory,
			Initial:  InventoryAvailable,
			Statuses: []entity.Status{InventoryAvailable, InventoryReserved, InventoryConsumed, InventoryQuarantined},
			Terminal: []entity.Status{InventoryConsumed, InventoryQuarantined},
			Transitions: []Transition{
				{Action: "reserveSparePart", From: []entity.Status{InventoryAvailable}, To: InventoryReserved},
				{Action: "releaseSparePart", From: []entity.Status{InventoryReserved}, To: InventoryAvailable},
				{Action: "consumeSparePart", From: []entity.Status{InventoryReserved}, To: InventoryConsumed},
				{Action: "quarantineSparePart", From: []entity.Status{InventoryAvailable}, To: InventoryQuarantined},
			},
		},
		{
			Family:   entity.FamilyHandover,
			Initial:  HandoverDraft,
			Statuses: []entity.Status{HandoverDraft, HandoverSubmitted, HandoverAccepted},
			Terminal: []entity.Status{HandoverAccepted},
			Transitions: []Transition{
				{Action: "submitHandover", From: []entity.Status{HandoverDraft}, To: HandoverSubmitted},
				{Action: "returnHandover", From: []entity.Status{HandoverSubmitted}, To: HandoverDraft},
				{Action: "acceptHandover", From: []entity.Status{HandoverSubmitted}, To: HandoverAccepted},
			},
		},
		{
			Family:   entity.FamilyCertificate,
			Initial:  CertificateActive,
			Statuses: []entity.Status{CertificateActive, CertificateExpiring, CertificateExpired, CertificateWithdrawn},
			Terminal: []entity.Status{CertificateExpired, CertificateWithdrawn},
			Transitions: []Transition{
				{Action: "flagCertificateExpiring", From: []entity.Status{CertificateActive}, To: CertificateExpiring},
				{Action: "expireCertificate", From: []entity.Status{CertificateExpiring}, To: CertificateExpired},
				{Action: "renewCertificate", From: []entity.Status{CertificateExpired}, To: CertificateActive},
				{Action: "withdrawCertificate", From: []entity.Status{CertificateActive, CertificateExpiring}, To: CertificateWithdrawn},
			},
			ExceptionEdges: []string{"renewCertificate"},
		},
	}

	ms := &Machines{byFamily: make(map[entity.Family]*Machine, len(configs))}
	for _, cfg := range configs {
		m, err := NewMachine(cfg)
		if err != nil {
			return nil, err
		}
		ms.byFamily[cfg.Family] = m
	}
	return ms, nil
}
