package model

import "time"

// DefinitionStatus is the lifecycle state of a process definition version.
type DefinitionStatus string

// Definition lifecycle states. A Draft may be published, an Active version
// may be retired. Retired definitions accept no new instances.
const (
	DefinitionStatusDraft   DefinitionStatus = "draft"
	DefinitionStatusActive  DefinitionStatus = "active"
	DefinitionStatusRetired DefinitionStatus = "retired"
)

// ProcessDefinition is one immutable version of a reusable process
// template. Versions of the same logical process share a FamilyID;
// revising a published definition creates a new record with Version+1
// rather than mutating existing steps, so in-flight instances stay
// bound to the version active at their start time.
type ProcessDefinition struct {
	ID          string           `json:"id"`
	FamilyID    string           `json:"family_id"`
	TenantID    string           `json:"tenant_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Version     int              `json:"version"`
	Status      DefinitionStatus `json:"status"`
	Steps       []StepSpec       `json:"steps"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	// RecordVersion is the optimistic concurrency token used by the store.
	RecordVersion int `json:"-"`
}

// StepSpec describes one unit of work within a definition version.
// Step numbers are unique and strictly ascending within a version,
// starting at 1.
type StepSpec struct {
	Number           int           `json:"number"`
	Name             string        `json:"name"`
	ExpectedDuration time.Duration `json:"expected_duration"`
	Required         bool          `json:"required"`

	// Assignees lists the actors that each receive a task when the step
	// is entered. Empty means a single unassigned task, claimable via
	// reassignment.
	Assignees []string `json:"assignees,omitempty"`

	// Approvers, when non-empty, marks the step approval-gated: a serial
	// sign-off chain is routed through the listed actors instead of
	// materializing tasks.
	Approvers []string `json:"approvers,omitempty"`

	Priority string `json:"priority,omitempty"`
}

// ApprovalRequired reports whether entering the step routes an approval
// chain rather than tasks.
func (s StepSpec) ApprovalRequired() bool {
	return len(s.Approvers) > 0
}

// StepByNumber returns the step spec with the given number, or nil.
func (d *ProcessDefinition) StepByNumber(n int) *StepSpec {
	for i := range d.Steps {
		if d.Steps[i].Number == n {
			return &d.Steps[i]
		}
	}
	return nil
}

// NextStep returns the step following the given step number, or nil if it
// is the last.
func (d *ProcessDefinition) NextStep(after int) *StepSpec {
	for i := range d.Steps {
		if d.Steps[i].Number > after {
			return &d.Steps[i]
		}
	}
	return nil
}

// LastStepNumber returns the highest step number, or 0 for an empty
// definition.
func (d *ProcessDefinition) LastStepNumber() int {
	if len(d.Steps) == 0 {
		return 0
	}
	return d.Steps[len(d.Steps)-1].Number
}

// EstimatedDuration is the sum of all step expected durations. It seeds
// the due date of new instances.
func (d *ProcessDefinition) EstimatedDuration() time.Duration {
	var total time.Duration
	for _, s := range d.Steps {
		total += s.ExpectedDuration
	}
	return total
}

// InstanceStatus is the lifecycle state of a process instance.
type InstanceStatus string

// Instance lifecycle states. Running is the only non-terminal state; no
// terminal instance ever re-enters Running.
const (
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
	InstanceStatusFailed    InstanceStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s != InstanceStatusRunning
}

// ProcessInstance is one execution of a process definition, pinned to the
// definition id and version that were active when it started. Instances
// are never physically deleted; terminal instances are retained for audit.
type ProcessInstance struct {
	ID                string         `json:"id"`
	DefinitionID      string         `json:"definition_id"`
	DefinitionVersion int            `json:"definition_version"`
	TenantID          string         `json:"tenant_id"`
	InitiatedBy       string         `json:"initiated_by"`
	InitiatorName     string         `json:"initiator_name,omitempty"`
	Status            InstanceStatus `json:"status"`

	// CurrentStep never decreases over the instance's lifetime.
	CurrentStep int `json:"current_step"`

	Input       map[string]any `json:"input,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Version is the optimistic concurrency token; every store update
	// checks and increments it, serializing transitions per instance.
	Version int `json:"version"`
}

// ProgressAgainst derives completion percentage from the pinned
// definition: completed required steps over total required steps.
func (i *ProcessInstance) ProgressAgainst(def *ProcessDefinition) int {
	totalRequired := 0
	doneRequired := 0
	for _, s := range def.Steps {
		if !s.Required {
			continue
		}
		totalRequired++
		if i.Status == InstanceStatusCompleted || s.Number < i.CurrentStep {
			doneRequired++
		}
	}
	if totalRequired == 0 {
		if i.Status == InstanceStatusCompleted {
			return 100
		}
		return 0
	}
	return doneRequired * 100 / totalRequired
}
