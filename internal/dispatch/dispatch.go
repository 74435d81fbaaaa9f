// Package dispatch decides what kind of work a step materializes:
// an approval chain when the step names approvers, plain tasks
// otherwise. It is the engine's StepMaterializer.
package dispatch

import (
	"context"

	"github.com/procesio/procesio/internal/approval"
	"github.com/procesio/procesio/internal/task"
	"github.com/procesio/procesio/model"
)

// Dispatcher routes step materialization between the task manager and
// the approval router.
type Dispatcher struct {
	tasks     *task.Manager
	approvals *approval.Router
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(tasks *task.Manager, approvals *approval.Router) *Dispatcher {
	return &Dispatcher{tasks: tasks, approvals: approvals}
}

// Materialize opens the work for a step: an approval chain for
// approval-gated steps, tasks for everything else.
func (d *Dispatcher) Materialize(ctx context.Context, inst model.ProcessInstance, def model.ProcessDefinition, step model.StepSpec) error {
	if step.ApprovalRequired() {
		return d.approvals.Request(ctx, inst, def, step)
	}
	return d.tasks.CreateForStep(ctx, inst, def, step)
}

// CancelOpen cancels every open task and approval of an instance.
func (d *Dispatcher) CancelOpen(ctx context.Context, inst model.ProcessInstance, reason string) error {
	if err := d.tasks.CancelOpenForInstance(ctx, inst, reason); err != nil {
		return err
	}
	return d.approvals.CancelOpenForInstance(ctx, inst, reason)
}
