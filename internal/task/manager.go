// Package task creates and resolves the human work items tied to an
// instance's current step. Completing the last open task for a step
// signals the engine to advance.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/directory"
	"github.com/procesio/procesio/internal/notify"
	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

// Advancer receives step completion signals. Implemented by the
// engine; declared here to avoid a dependency cycle.
type Advancer interface {
	Advance(ctx context.Context, tenantID, actor, instanceID string, completedStep int) (model.ProcessInstance, error)
}

// Options tune task creation.
type Options struct {
	// DefaultDuration backs steps with no expected duration when
	// computing task due dates.
	DefaultDuration time.Duration
}

// Manager owns the task lifecycle.
type Manager struct {
	tasks     store.TaskStore
	instances store.InstanceStore
	recorder  *audit.Recorder
	advancer  Advancer
	directory directory.Resolver
	notifier  notify.Notifier
	metrics   *observability.Metrics
	opts      Options
}

// NewManager creates a task manager. The advancer is set after
// construction because the engine and the manager reference each
// other through the dispatch layer.
func NewManager(
	tasks store.TaskStore,
	instances store.InstanceStore,
	recorder *audit.Recorder,
	resolver directory.Resolver,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	opts Options,
) *Manager {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 24 * time.Hour
	}
	return &Manager{
		tasks:     tasks,
		instances: instances,
		recorder:  recorder,
		directory: resolver,
		notifier:  notifier,
		metrics:   metrics,
		opts:      opts,
	}
}

// SetAdvancer wires the completion signal target.
func (m *Manager) SetAdvancer(a Advancer) {
	m.advancer = a
}

// CreateForStep materializes one Pending task per step assignee, or a
// single task for the initiator when the step names none. Parallel
// assignees form a join: the step is satisfied only when every task
// is terminal.
func (m *Manager) CreateForStep(ctx context.Context, inst model.ProcessInstance, def model.ProcessDefinition, step model.StepSpec) error {
	assignees := step.Assignees
	if len(assignees) == 0 {
		assignees = []string{inst.InitiatedBy}
	}

	now := time.Now().UTC()
	duration := step.ExpectedDuration
	if duration <= 0 {
		duration = m.opts.DefaultDuration
	}
	due := now.Add(duration)

	priority := step.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}

	for _, assignee := range assignees {
		actor := m.directory.Resolve(ctx, assignee)
		task := model.Task{
			ID:           uuid.NewString(),
			InstanceID:   inst.ID,
			TenantID:     inst.TenantID,
			StepNumber:   step.Number,
			Name:         step.Name,
			Assignee:     assignee,
			AssigneeName: actor.Name,
			Priority:     priority,
			Status:       model.TaskStatusPending,
			DueDate:      &due,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := m.tasks.CreateTask(ctx, task); err != nil {
			return err
		}

		if err := m.recorder.Record(ctx, model.AuditEvent{
			SubjectType: model.SubjectTask,
			SubjectID:   task.ID,
			InstanceID:  inst.ID,
			TenantID:    inst.TenantID,
			Type:        model.EventTaskAssigned,
			Actor:       "system",
			Detail: map[string]any{
				"step_number": step.Number,
				"assignee":    assignee,
			},
		}); err != nil {
			return err
		}

		if m.metrics != nil {
			m.metrics.RecordTaskCreated(def.ID)
		}
		if m.notifier != nil {
			m.notifier.Notify(ctx, notify.Notification{
				Kind:       notify.KindTaskAssigned,
				TenantID:   inst.TenantID,
				Recipient:  assignee,
				InstanceID: inst.ID,
				Subject:    step.Name,
				Detail:     map[string]any{"due_date": due},
			})
		}
		observability.LoggerFrom(ctx).Info("task created",
			zap.String("task_id", task.ID),
			zap.String("instance_id", inst.ID),
			zap.Int("step_number", step.Number),
			zap.String("assignee", assignee),
		)
	}
	return nil
}

// Start claims a Pending task, moving it to InProgress. Only the
// assignee may claim.
func (m *Manager) Start(ctx context.Context, tenantID, actor, taskID string) (model.Task, error) {
	task, err := m.tasks.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Assignee != actor {
		return model.Task{}, model.NewForbiddenError(
			fmt.Sprintf("task %q is assigned to %q", taskID, task.Assignee),
		)
	}
	if task.Status != model.TaskStatusPending {
		return model.Task{}, model.NewInvalidStateError(
			fmt.Sprintf("task %q is %s, only pending tasks can be started", taskID, task.Status),
		)
	}

	task.Status = model.TaskStatusInProgress
	task.UpdatedAt = time.Now().UTC()
	if err := m.tasks.UpdateTask(ctx, task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// Complete resolves a task with an outcome and, when it was the last
// open task of its step, signals the engine to advance. The advance
// itself is idempotent, so a duplicate completion signal downstream is
// harmless.
func (m *Manager) Complete(ctx context.Context, tenantID, actor, taskID, outcome, comments string) (model.Task, error) {
	task, err := m.tasks.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status.Terminal() {
		return model.Task{}, model.NewInvalidStateError(
			fmt.Sprintf("task %q is already %s", taskID, task.Status),
		)
	}

	inst, err := m.instances.GetInstance(ctx, tenantID, task.InstanceID)
	if err != nil {
		return model.Task{}, err
	}
	if inst.Status.Terminal() {
		return model.Task{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %q is %s, its tasks cannot be completed", inst.ID, inst.Status),
		)
	}

	now := time.Now().UTC()
	task.Status = model.TaskStatusCompleted
	task.Outcome = outcome
	task.Comments = comments
	task.CompletedAt = &now
	task.CompletedBy = actor
	task.UpdatedAt = now
	if err := m.tasks.UpdateTask(ctx, task); err != nil {
		return model.Task{}, err
	}

	if err := m.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectTask,
		SubjectID:   task.ID,
		InstanceID:  task.InstanceID,
		TenantID:    tenantID,
		Type:        model.EventTaskCompleted,
		Actor:       actor,
		Detail: map[string]any{
			"step_number": task.StepNumber,
			"outcome":     outcome,
		},
	}); err != nil {
		return model.Task{}, err
	}

	if m.metrics != nil {
		m.metrics.RecordTaskResolved(inst.DefinitionID, string(task.Status))
	}
	observability.LoggerFrom(ctx).Info("task completed",
		zap.String("task_id", task.ID),
		zap.String("instance_id", task.InstanceID),
		zap.Int("step_number", task.StepNumber),
	)

	satisfied, err := m.stepSatisfied(ctx, tenantID, task.InstanceID, task.StepNumber)
	if err != nil {
		return model.Task{}, err
	}
	if satisfied {
		if _, err := m.advancer.Advance(ctx, tenantID, actor, task.InstanceID, task.StepNumber); err != nil {
			// A sibling task's completion can be advancing the instance
			// at the same moment. Advancement is idempotent, so a lost
			// race is a redundant signal, not a failed completion.
			if model.IsCode(err, model.ErrConflict) {
				observability.LoggerFrom(ctx).Info("advance signal superseded by concurrent transition",
					zap.String("instance_id", task.InstanceID),
					zap.Int("step_number", task.StepNumber),
				)
				return task, nil
			}
			return model.Task{}, err
		}
	}
	return task, nil
}

// Reassign moves an open task to a new assignee.
func (m *Manager) Reassign(ctx context.Context, tenantID, actor, taskID, newAssignee string) (model.Task, error) {
	task, err := m.tasks.GetTask(ctx, tenantID, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status.Terminal() {
		return model.Task{}, model.NewInvalidStateError(
			fmt.Sprintf("task %q is %s, only open tasks can be reassigned", taskID, task.Status),
		)
	}

	resolved := m.directory.Resolve(ctx, newAssignee)
	task.Assignee = newAssignee
	task.AssigneeName = resolved.Name
	task.UpdatedAt = time.Now().UTC()
	if err := m.tasks.UpdateTask(ctx, task); err != nil {
		return model.Task{}, err
	}

	if m.notifier != nil {
		m.notifier.Notify(ctx, notify.Notification{
			Kind:       notify.KindTaskAssigned,
			TenantID:   tenantID,
			Recipient:  newAssignee,
			InstanceID: task.InstanceID,
			Subject:    task.Name,
		})
	}
	observability.LoggerFrom(ctx).Info("task reassigned",
		zap.String("task_id", task.ID),
		zap.String("assignee", newAssignee),
		zap.String("by", actor),
	)
	return task, nil
}

// Get returns one task.
func (m *Manager) Get(ctx context.Context, tenantID, taskID string) (model.Task, error) {
	return m.tasks.GetTask(ctx, tenantID, taskID)
}

// ListPending returns an actor's open tasks ordered by due date
// ascending, ties by creation order.
func (m *Manager) ListPending(ctx context.Context, tenantID, actor string) ([]model.Task, error) {
	return m.tasks.ListPendingTasks(ctx, tenantID, actor)
}

// CancelOpenForInstance cancels all non-terminal tasks of an instance.
// Called during instance termination; must leave zero open tasks.
func (m *Manager) CancelOpenForInstance(ctx context.Context, inst model.ProcessInstance, reason string) error {
	tasks, err := m.tasks.ListTasksByInstance(ctx, inst.TenantID, inst.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, task := range tasks {
		if task.Status.Terminal() {
			continue
		}
		task.Status = model.TaskStatusCancelled
		task.Comments = reason
		task.UpdatedAt = now
		if err := m.tasks.UpdateTask(ctx, task); err != nil {
			return err
		}
		if err := m.recorder.Record(ctx, model.AuditEvent{
			SubjectType: model.SubjectTask,
			SubjectID:   task.ID,
			InstanceID:  inst.ID,
			TenantID:    inst.TenantID,
			Type:        model.EventCancelled,
			Actor:       "system",
			Detail:      map[string]any{"reason": reason},
		}); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.RecordTaskResolved(inst.DefinitionID, string(model.TaskStatusCancelled))
		}
	}
	return nil
}

// stepSatisfied reports whether every task of the (instance, step)
// pair is terminal. Parallel fan-out joins here: all tasks must
// resolve before the step counts as done.
func (m *Manager) stepSatisfied(ctx context.Context, tenantID, instanceID string, stepNumber int) (bool, error) {
	tasks, err := m.tasks.ListTasksByInstance(ctx, tenantID, instanceID)
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.StepNumber == stepNumber && !t.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}
