// Package store defines the persistence collaborator: atomic
// get/put-with-version-check for definitions, instances, tasks, and
// approvals, plus append-only inserts for audit events. Any storage
// satisfying these primitives can back the engine.
package store

import (
	"context"
	"time"

	"github.com/procesio/procesio/model"
)

// DefinitionStore persists process definition versions.
type DefinitionStore interface {
	// CreateDefinition persists a new definition version.
	CreateDefinition(ctx context.Context, def model.ProcessDefinition) error

	// GetDefinition retrieves a definition version by record ID, scoped to
	// a tenant. Returns NOT_FOUND if absent or owned by another tenant.
	GetDefinition(ctx context.Context, tenantID, id string) (model.ProcessDefinition, error)

	// UpdateDefinition persists a lifecycle change with optimistic locking
	// on RecordVersion. Returns CONFLICT when the record has moved on.
	// Step lists are immutable after creation; only status and metadata
	// may change.
	UpdateDefinition(ctx context.Context, def model.ProcessDefinition) error

	// ListDefinitions returns definition versions for a tenant.
	ListDefinitions(ctx context.Context, tenantID string, filters DefinitionFilters) ([]model.ProcessDefinition, error)

	// ResolveActive returns the highest Active version within a family.
	// Returns NOT_FOUND when the family has no active version.
	ResolveActive(ctx context.Context, tenantID, familyID string) (model.ProcessDefinition, error)

	// LatestVersion returns the highest version number within a family,
	// regardless of status. Returns 0 when the family is unknown.
	LatestVersion(ctx context.Context, tenantID, familyID string) (int, error)
}

// DefinitionFilters are optional filters for listing definitions.
type DefinitionFilters struct {
	FamilyID string
	Status   model.DefinitionStatus
	Category string
}

// InstanceStore persists process instances.
type InstanceStore interface {
	// CreateInstance persists a new instance.
	CreateInstance(ctx context.Context, inst model.ProcessInstance) error

	// GetInstance retrieves an instance by ID, scoped to a tenant.
	GetInstance(ctx context.Context, tenantID, id string) (model.ProcessInstance, error)

	// UpdateInstance persists an updated instance with optimistic locking
	// on Version. Returns CONFLICT when the stored version differs; the
	// caller re-reads and retries.
	UpdateInstance(ctx context.Context, inst model.ProcessInstance) error

	// ListInstances returns instances for a tenant, newest first.
	ListInstances(ctx context.Context, tenantID string, filters InstanceFilters) ([]model.ProcessInstance, error)

	// FindOverdueInstances returns running instances whose due date is
	// before the cutoff, ordered by due date ascending.
	FindOverdueInstances(ctx context.Context, cutoff time.Time) ([]model.ProcessInstance, error)
}

// InstanceFilters are optional filters for listing instances.
type InstanceFilters struct {
	DefinitionID string
	Status       model.InstanceStatus
	InitiatedBy  string
	Limit        int
	Offset       int
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task model.Task) error
	GetTask(ctx context.Context, tenantID, id string) (model.Task, error)

	// UpdateTask persists an updated task with optimistic locking on
	// Version.
	UpdateTask(ctx context.Context, task model.Task) error

	// ListTasksByInstance returns all tasks belonging to an instance.
	ListTasksByInstance(ctx context.Context, tenantID, instanceID string) ([]model.Task, error)

	// ListPendingTasks returns the non-terminal tasks assigned to an
	// actor, ordered by due date ascending (tasks without a due date
	// last), ties broken by creation order. The ordering is part of the
	// task manager's contract.
	ListPendingTasks(ctx context.Context, tenantID, assignee string) ([]model.Task, error)
}

// ApprovalStore persists approval records.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, appr model.Approval) error
	GetApproval(ctx context.Context, tenantID, id string) (model.Approval, error)

	// UpdateApproval persists an updated approval with optimistic locking
	// on Version.
	UpdateApproval(ctx context.Context, appr model.Approval) error

	// ListApprovalsByInstance returns all approvals belonging to an
	// instance.
	ListApprovalsByInstance(ctx context.Context, tenantID, instanceID string) ([]model.Approval, error)

	// ListPendingApprovals returns the open approvals awaiting an actor,
	// ordered by due date ascending.
	ListPendingApprovals(ctx context.Context, tenantID, approver string) ([]model.Approval, error)

	// FindOverdueApprovals returns open approvals whose due date is
	// before the cutoff, across all tenants, ordered by due date
	// ascending. Used by the escalation sweep.
	FindOverdueApprovals(ctx context.Context, cutoff time.Time) ([]model.Approval, error)
}

// AuditStore persists audit events. Append-only: events are never
// mutated or deleted.
type AuditStore interface {
	AppendEvent(ctx context.Context, event model.AuditEvent) error

	// ListEventsBySubject returns events whose subject is the given ID,
	// or which are correlated to it as their instance, ordered by
	// timestamp ascending. Offset and limit page through the trail.
	ListEventsBySubject(ctx context.Context, tenantID, subjectID string, offset, limit int) ([]model.AuditEvent, error)
}

// Stores bundles all persistence interfaces behind one wiring point.
type Stores struct {
	Definitions DefinitionStore
	Instances   InstanceStore
	Tasks       TaskStore
	Approvals   ApprovalStore
	Audit       AuditStore
}
