package model

import "time"

// SubjectType identifies the kind of entity an audit event describes.
type SubjectType string

// Audit subject types.
const (
	SubjectDefinition SubjectType = "definition"
	SubjectInstance   SubjectType = "instance"
	SubjectTask       SubjectType = "task"
	SubjectApproval   SubjectType = "approval"
)

// EventType enumerates the recorded state changes.
type EventType string

// Audit event types.
const (
	EventCreated           EventType = "created"
	EventAdvanced          EventType = "advanced"
	EventTaskAssigned      EventType = "task_assigned"
	EventTaskCompleted     EventType = "task_completed"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalDecided   EventType = "approval_decided"
	EventCancelled         EventType = "cancelled"
	EventFailed            EventType = "failed"
)

// AuditEvent is an immutable record of a single state change. Events are
// append-only, never mutated or deleted, and ordered by creation timestamp
// within a subject. They are the sole source of historical truth.
type AuditEvent struct {
	ID          string      `json:"id"`
	SubjectType SubjectType `json:"subject_type"`
	SubjectID   string      `json:"subject_id"`

	// InstanceID correlates task and approval events with the instance
	// they belong to, so an instance trail includes its work items.
	// Empty for definition events.
	InstanceID string `json:"instance_id,omitempty"`

	TenantID  string         `json:"tenant_id"`
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
