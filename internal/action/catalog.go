package action

import (
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// Shared field specs. Free-text fields carry length bounds so the gate can
// reject oversized payloads before any business logic runs.
var (
	fieldTitle       = FieldSpec{Name: "title", Type: FieldString, MinLen: 3, MaxLen: 200}
	fieldDescription = FieldSpec{Name: "description", Type: FieldString, MinLen: 10, MaxLen: 2000}
	fieldNote        = FieldSpec{Name: "note", Type: FieldString, MaxLen: 1000}
	fieldReason      = FieldSpec{Name: "reason", Type: FieldString, MinLen: 5, MaxLen: 500}
)

// NewRegistry builds the full action catalog, validated against the family
// state machines.
func NewRegistry(machines *state.Machines) (*Registry, error) {
	defs := []*Definition{
		// Fault family.
		{
			Name:    "reportFault",
			Family:  entity.FamilyFault,
			Creates: true,
			Required: []FieldSpec{
				fieldTitle,
				fieldDescription,
				{Name: "equipment", Type: FieldString, MinLen: 2, MaxLen: 120},
			},
			Optional: []FieldSpec{
				{Name: "location", Type: FieldString, MaxLen: 120},
				{Name: "severity", Type: FieldString, MaxLen: 20},
			},
			AllowedRoles: []tenant.Role{tenant.RoleCrew, tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "acknowledgeFault",
			Family:       entity.FamilyFault,
			TargetField:  "fault_id",
			Required:     []FieldSpec{{Name: "fault_id", Type: FieldUUID}},
			Optional:     []FieldSpec{fieldNote},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:              "markFalseAlarm",
			Family:            entity.FamilyFault,
			TargetField:       "fault_id",
			Required:          []FieldSpec{{Name: "fault_id", Type: FieldUUID}, fieldReason},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
		},
		{
			Name:        "createWorkOrderFromFault",
			Family:      entity.FamilyFault,
			TargetField: "fault_id",
			Required: []FieldSpec{
				{Name: "fault_id", Type: FieldUUID},
				fieldTitle,
				fieldDescription,
			},
			Optional:          []FieldSpec{{Name: "due_date", Type: FieldTimestamp}},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
			Spawns: &SpawnSpec{
				Family:     entity.FamilyWorkOrder,
				CopyFields: []string{"title", "description", "due_date"},
			},
		},
		{
			Name:         "resolveFault",
			Family:       entity.FamilyFault,
			TargetField:  "fault_id",
			Required:     []FieldSpec{{Name: "fault_id", Type: FieldUUID}, {Name: "resolution", Type: FieldString, MinLen: 5, MaxLen: 2000}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
			Capability:   tenant.CapabilityEngineerQualified,
		},
		{
			Name:         "closeFault",
			Family:       entity.FamilyFault,
			TargetField:  "fault_id",
			Required:     []FieldSpec{{Name: "fault_id", Type: FieldUUID}},
			Optional:     []FieldSpec{fieldNote},
			AllowedRoles: []tenant.Role{tenant.RoleHOD},
		},
		{
			Name:              "reopenFault",
			Family:            entity.FamilyFault,
			TargetField:       "fault_id",
			Required:          []FieldSpec{{Name: "fault_id", Type: FieldUUID}, fieldReason},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
		},

		// Work order family.
		{
			Name:         "createWorkOrder",
			Family:       entity.FamilyWorkOrder,
			Creates:      true,
			Required:     []FieldSpec{fieldTitle, fieldDescription},
			Optional:     []FieldSpec{{Name: "due_date", Type: FieldTimestamp}},
			AllowedRoles: []tenant.Role{tenant.RoleHOD},
		},
		{
			Name:         "startWorkOrder",
			Family:       entity.FamilyWorkOrder,
			TargetField:  "work_order_id",
			Required:     []FieldSpec{{Name: "work_order_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "completeWorkOrder",
			Family:       entity.FamilyWorkOrder,
			TargetField:  "work_order_id",
			Required:     []FieldSpec{{Name: "work_order_id", Type: FieldUUID}, {Name: "summary", Type: FieldString, MinLen: 5, MaxLen: 2000}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
			Capability:   tenant.CapabilityEngineerQualified,
		},
		{
			Name:              "verifyWorkOrder",
			Family:            entity.FamilyWorkOrder,
			TargetField:       "work_order_id",
			Required:          []FieldSpec{{Name: "work_order_id", Type: FieldUUID}},
			Optional:          []FieldSpec{fieldNote},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
		},
		{
			Name:              "cancelWorkOrder",
			Family:            entity.FamilyWorkOrder,
			TargetField:       "work_order_id",
			Required:          []FieldSpec{{Name: "work_order_id", Type: FieldUUID}, fieldReason},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
		},

		// Inventory family.
		{
			Name:    "registerSparePart",
			Family:  entity.FamilyInventory,
			Creates: true,
			Required: []FieldSpec{
				{Name: "part_number", Type: FieldString, MinLen: 2, MaxLen: 80},
				{Name: "name", Type: FieldString, MinLen: 2, MaxLen: 200},
				{Name: "quantity", Type: FieldInt},
			},
			Optional:     []FieldSpec{{Name: "location", Type: FieldString, MaxLen: 120}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "reserveSparePart",
			Family:       entity.FamilyInventory,
			TargetField:  "part_id",
			Required:     []FieldSpec{{Name: "part_id", Type: FieldUUID}},
			Optional:     []FieldSpec{{Name: "work_order_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "releaseSparePart",
			Family:       entity.FamilyInventory,
			TargetField:  "part_id",
			Required:     []FieldSpec{{Name: "part_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "consumeSparePart",
			Family:       entity.FamilyInventory,
			TargetField:  "part_id",
			Required:     []FieldSpec{{Name: "part_id", Type: FieldUUID}},
			Optional:     []FieldSpec{{Name: "work_order_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:              "quarantineSparePart",
			Family:            entity.FamilyInventory,
			TargetField:       "part_id",
			Required:          []FieldSpec{{Name: "part_id", Type: FieldUUID}, fieldReason},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
		},

		// Handover family.
		{
			Name:         "draftHandover",
			Family:       entity.FamilyHandover,
			Creates:      true,
			Required:     []FieldSpec{{Name: "department", Type: FieldString, MinLen: 2, MaxLen: 80}, {Name: "summary", Type: FieldString, MinLen: 10, MaxLen: 4000}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "submitHandover",
			Family:       entity.FamilyHandover,
			TargetField:  "handover_id",
			Required:     []FieldSpec{{Name: "handover_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD},
		},
		{
			Name:         "returnHandover",
			Family:       entity.FamilyHandover,
			TargetField:  "handover_id",
			Required:     []FieldSpec{{Name: "handover_id", Type: FieldUUID}, fieldReason},
			AllowedRoles: []tenant.Role{tenant.RoleHOD},
		},
		{
			Name:              "acceptHandover",
			Family:            entity.FamilyHandover,
			TargetField:       "handover_id",
			Required:          []FieldSpec{{Name: "handover_id", Type: FieldUUID}},
			Optional:          []FieldSpec{fieldNote},
			AllowedRoles:      []tenant.Role{tenant.RoleHOD},
			RequiresSignature: true,
		},

		// Certificate family.
		{
			Name:    "registerCertificate",
			Family:  entity.FamilyCertificate,
			Creates: true,
			Required: []FieldSpec{
				{Name: "name", Type: FieldString, MinLen: 2, MaxLen: 200},
				{Name: "issuer", Type: FieldString, MinLen: 2, MaxLen: 200},
				{Name: "expires_at", Type: FieldTimestamp},
			},
			AllowedRoles: []tenant.Role{tenant.RoleHOD, tenant.RoleMaster},
		},
		{
			Name:         "flagCertificateExpiring",
			Family:       entity.FamilyCertificate,
			TargetField:  "certificate_id",
			Required:     []FieldSpec{{Name: "certificate_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleEngineer, tenant.RoleHOD, tenant.RoleMaster},
		},
		{
			Name:         "expireCertificate",
			Family:       entity.FamilyCertificate,
			TargetField:  "certificate_id",
			Required:     []FieldSpec{{Name: "certificate_id", Type: FieldUUID}},
			AllowedRoles: []tenant.Role{tenant.RoleHOD, tenant.RoleMaster},
		},
		{
			Name:              "renewCertificate",
			Family:            entity.FamilyCertificate,
			TargetField:       "certificate_id",
			Required:          []FieldSpec{{Name: "certificate_id", Type: FieldUUID}, {Name: "expires_at", Type: FieldTimestamp}},
			AllowedRoles:      []tenant.Role{tenant.RoleMaster},
			RequiresSignature: true,
		},
		{
			Name:              "withdrawCertificate",
			Family:            entity.FamilyCertificate,
			TargetField:       "certificate_id",
			Required:          []FieldSpec{{Name: "certificate_id", Type: FieldUUID}, fieldReason},
			AllowedRoles:      []tenant.Role{tenant.RoleMaster},
			RequiresSignature: true,
		},
	}

	return build(defs, machines)
}
