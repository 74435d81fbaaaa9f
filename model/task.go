package model

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task lifecycle states. Completed and Cancelled are terminal; a terminal
// task is immutable.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Task is a unit of assignable work tied to an instance's current step.
type Task struct {
	ID           string     `json:"id"`
	InstanceID   string     `json:"instance_id"`
	TenantID     string     `json:"tenant_id"`
	StepNumber   int        `json:"step_number"`
	Name         string     `json:"name"`
	Assignee     string     `json:"assignee,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	Priority     string     `json:"priority"`
	Status       TaskStatus `json:"status"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CompletedBy  string     `json:"completed_by,omitempty"`

	// Version is the optimistic concurrency token used by the store.
	Version int `json:"version"`
}

// ApprovalStatus is the lifecycle state of an approval record.
type ApprovalStatus string

// Approval lifecycle states. Pending and Escalated are open (decidable);
// all others are terminal. A rejected step spawns a new Approval if
// retried; the same record is never re-decided.
const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusEscalated ApprovalStatus = "escalated"
	ApprovalStatusExpired   ApprovalStatus = "expired"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// Open reports whether the approval still awaits a decision.
func (s ApprovalStatus) Open() bool {
	return s == ApprovalStatusPending || s == ApprovalStatusEscalated
}

// Decision is the outcome submitted when resolving an approval.
type Decision string

// Approval decisions.
const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Approval is a single sign-off record within a serial chain gating step
// advancement. ChainLevel is 1-based; level N+1 is created only after
// level N resolves Approved.
type Approval struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"`
	TenantID     string         `json:"tenant_id"`
	StepNumber   int            `json:"step_number"`
	Requester    string         `json:"requester"`
	Approver     string         `json:"approver"`
	ApproverName string         `json:"approver_name,omitempty"`
	ChainLevel   int            `json:"chain_level"`
	ChainLength  int            `json:"chain_length"`
	Status       ApprovalStatus `json:"status"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	Comments     string         `json:"comments,omitempty"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Version is the optimistic concurrency token used by the store.
	Version int `json:"version"`
}
