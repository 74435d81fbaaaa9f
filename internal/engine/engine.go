// Package engine owns the process instance state machine. Instances
// advance only when explicitly signaled by a completed task or a
// resolved approval chain; the engine never polls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/lock"
	"github.com/procesio/procesio/internal/notify"
	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

// StepMaterializer turns a step spec into open work (tasks or an
// approval chain) and cancels open work on instance termination.
// Implemented by the dispatch layer to avoid a dependency cycle with
// the task and approval packages.
type StepMaterializer interface {
	Materialize(ctx context.Context, inst model.ProcessInstance, def model.ProcessDefinition, step model.StepSpec) error
	CancelOpen(ctx context.Context, inst model.ProcessInstance, reason string) error
}

// Options tune engine behavior.
type Options struct {
	// LockTTL bounds how long one transition may hold an instance lock.
	LockTTL time.Duration
	// DefaultStepDuration backs steps with no expected duration when
	// computing instance due dates.
	DefaultStepDuration time.Duration
}

// Engine creates and advances process instances.
type Engine struct {
	definitions store.DefinitionStore
	instances   store.InstanceStore
	recorder    *audit.Recorder
	materialize StepMaterializer
	locks       lock.InstanceLock
	notifier    notify.Notifier
	metrics     *observability.Metrics
	opts        Options
}

// NewEngine creates a process engine.
func NewEngine(
	definitions store.DefinitionStore,
	instances store.InstanceStore,
	recorder *audit.Recorder,
	materializer StepMaterializer,
	locks lock.InstanceLock,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	opts Options,
) *Engine {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.DefaultStepDuration <= 0 {
		opts.DefaultStepDuration = 24 * time.Hour
	}
	return &Engine{
		definitions: definitions,
		instances:   instances,
		recorder:    recorder,
		materialize: materializer,
		locks:       locks,
		notifier:    notifier,
		metrics:     metrics,
		opts:        opts,
	}
}

// Start creates an instance of an Active definition at its first step
// and materializes that step's work.
func (e *Engine) Start(
	ctx context.Context,
	tenantID, actor, actorName, definitionID string,
	input map[string]any,
) (model.ProcessInstance, error) {
	ctx, span := observability.StartSpan(ctx, "engine.Start")
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	// 1. Resolve the definition. The instance pins this exact version.
	def, err := e.definitions.GetDefinition(ctx, tenantID, definitionID)
	if err != nil {
		return model.ProcessInstance{}, err
	}
	if def.Status != model.DefinitionStatusActive {
		err = model.NewInvalidStateError(
			fmt.Sprintf("definition %q is %s, only active definitions can be started", definitionID, def.Status),
		)
		return model.ProcessInstance{}, err
	}
	if len(def.Steps) == 0 {
		err = model.NewInvalidStateError(fmt.Sprintf("definition %q has no steps", definitionID))
		return model.ProcessInstance{}, err
	}

	// 2. Due date from the definition's estimated total duration.
	now := time.Now().UTC()
	due := now.Add(e.estimatedDuration(&def))

	first := def.Steps[0]
	inst := model.ProcessInstance{
		ID:                uuid.NewString(),
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		TenantID:          tenantID,
		InitiatedBy:       actor,
		InitiatorName:     actorName,
		Status:            model.InstanceStatusRunning,
		CurrentStep:       first.Number,
		Input:             input,
		StartedAt:         now,
		DueDate:           &due,
		UpdatedAt:         now,
	}

	// 3. Persist before materializing: the step work references the
	// instance id.
	if err = e.instances.CreateInstance(ctx, inst); err != nil {
		return model.ProcessInstance{}, err
	}

	if err = e.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectInstance,
		SubjectID:   inst.ID,
		InstanceID:  inst.ID,
		TenantID:    tenantID,
		Type:        model.EventCreated,
		Actor:       actor,
		Detail: map[string]any{
			"definition_id":      def.ID,
			"definition_version": def.Version,
			"current_step":       first.Number,
		},
	}); err != nil {
		return model.ProcessInstance{}, err
	}

	// 4. Materialize step-1 work.
	if err = e.materialize.Materialize(ctx, inst, def, first); err != nil {
		return model.ProcessInstance{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordInstanceStart(def.ID)
	}
	observability.LoggerFrom(ctx).Info("instance started",
		zap.String("instance_id", inst.ID),
		zap.String("definition_id", def.ID),
		zap.Int("definition_version", def.Version),
		zap.Int("current_step", first.Number),
	)
	return inst, nil
}

// Advance moves an instance forward after all obligations of
// completedStep are satisfied. At-most-once per step: a stale signal
// for an already-passed step is a no-op, a signal for a future step is
// INVALID_STATE, and a concurrent transition surfaces CONFLICT for the
// caller to retry.
func (e *Engine) Advance(ctx context.Context, tenantID, actor, instanceID string, completedStep int) (model.ProcessInstance, error) {
	ctx, span := observability.StartSpan(ctx, "engine.Advance")
	var out model.ProcessInstance
	err := e.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		var err error
		out, err = e.advance(ctx, tenantID, actor, instanceID, completedStep)
		return err
	})
	observability.EndSpanWithError(span, err)
	return out, err
}

func (e *Engine) advance(ctx context.Context, tenantID, actor, instanceID string, completedStep int) (model.ProcessInstance, error) {
	inst, err := e.instances.GetInstance(ctx, tenantID, instanceID)
	if err != nil {
		return model.ProcessInstance{}, err
	}

	if inst.Status.Terminal() {
		return model.ProcessInstance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %q is %s, cannot advance", instanceID, inst.Status),
		)
	}
	if completedStep < inst.CurrentStep {
		// Stale or duplicate signal; the instance already moved on.
		observability.LoggerFrom(ctx).Debug("stale advancement signal ignored",
			zap.String("instance_id", instanceID),
			zap.Int("completed_step", completedStep),
			zap.Int("current_step", inst.CurrentStep),
		)
		return inst, nil
	}
	if completedStep > inst.CurrentStep {
		return model.ProcessInstance{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %q is at step %d, cannot complete future step %d", instanceID, inst.CurrentStep, completedStep),
		)
	}

	def, err := e.definitions.GetDefinition(ctx, tenantID, inst.DefinitionID)
	if err != nil {
		return model.ProcessInstance{}, err
	}

	stepStarted := inst.UpdatedAt
	now := time.Now().UTC()
	next := def.NextStep(completedStep)

	if next == nil {
		// Last step satisfied: the instance completes.
		inst.Status = model.InstanceStatusCompleted
		inst.CompletedAt = &now
		inst.UpdatedAt = now
		if err := e.instances.UpdateInstance(ctx, inst); err != nil {
			return model.ProcessInstance{}, err
		}
		if err := e.recorder.Record(ctx, model.AuditEvent{
			SubjectType: model.SubjectInstance,
			SubjectID:   inst.ID,
			InstanceID:  inst.ID,
			TenantID:    tenantID,
			Type:        model.EventAdvanced,
			Actor:       actor,
			Detail: map[string]any{
				"from_step": completedStep,
				"to_step":   completedStep,
				"completed": true,
			},
		}); err != nil {
			return model.ProcessInstance{}, err
		}

		e.recordAdvanceMetrics(inst.DefinitionID, completedStep, stepStarted, now)
		if e.metrics != nil {
			e.metrics.RecordInstanceTerminal(inst.DefinitionID, string(inst.Status))
		}
		e.notifyFinished(ctx, inst)
		observability.LoggerFrom(ctx).Info("instance completed",
			zap.String("instance_id", inst.ID),
			zap.Int("final_step", completedStep),
		)
		return inst, nil
	}

	inst.CurrentStep = next.Number
	inst.UpdatedAt = now
	if err := e.instances.UpdateInstance(ctx, inst); err != nil {
		return model.ProcessInstance{}, err
	}
	if err := e.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectInstance,
		SubjectID:   inst.ID,
		InstanceID:  inst.ID,
		TenantID:    tenantID,
		Type:        model.EventAdvanced,
		Actor:       actor,
		Detail: map[string]any{
			"from_step": completedStep,
			"to_step":   next.Number,
		},
	}); err != nil {
		return model.ProcessInstance{}, err
	}

	if err := e.materialize.Materialize(ctx, inst, def, *next); err != nil {
		return model.ProcessInstance{}, err
	}

	e.recordAdvanceMetrics(inst.DefinitionID, completedStep, stepStarted, now)
	observability.LoggerFrom(ctx).Info("instance advanced",
		zap.String("instance_id", inst.ID),
		zap.Int("from_step", completedStep),
		zap.Int("to_step", next.Number),
	)
	return inst, nil
}

// Cancel terminates a running instance and synchronously cancels all
// of its open tasks and approvals.
func (e *Engine) Cancel(ctx context.Context, tenantID, actor, instanceID, reason string) (model.ProcessInstance, error) {
	return e.terminate(ctx, tenantID, actor, instanceID, reason, model.InstanceStatusCancelled, model.EventCancelled)
}

// Fail is the system-triggered terminal transition, with the same
// guard and cleanup as Cancel.
func (e *Engine) Fail(ctx context.Context, tenantID, instanceID, reason string) (model.ProcessInstance, error) {
	return e.terminate(ctx, tenantID, "system", instanceID, reason, model.InstanceStatusFailed, model.EventFailed)
}

func (e *Engine) terminate(
	ctx context.Context,
	tenantID, actor, instanceID, reason string,
	status model.InstanceStatus,
	event model.EventType,
) (model.ProcessInstance, error) {
	ctx, span := observability.StartSpan(ctx, "engine.terminate")
	var out model.ProcessInstance
	err := e.withInstanceLock(ctx, instanceID, func(ctx context.Context) error {
		inst, err := e.instances.GetInstance(ctx, tenantID, instanceID)
		if err != nil {
			return err
		}
		if inst.Status.Terminal() {
			return model.NewInvalidStateError(
				fmt.Sprintf("instance %q is already %s", instanceID, inst.Status),
			)
		}

		// Open work is closed before the terminal status is written. A
		// cleanup failure leaves the instance non-terminal so the caller
		// can retry; the retry re-sweeps what was already cancelled.
		if err := e.materialize.CancelOpen(ctx, inst, reason); err != nil {
			return err
		}

		now := time.Now().UTC()
		inst.Status = status
		inst.Reason = reason
		inst.CompletedAt = &now
		inst.UpdatedAt = now
		if err := e.instances.UpdateInstance(ctx, inst); err != nil {
			return err
		}

		if err := e.recorder.Record(ctx, model.AuditEvent{
			SubjectType: model.SubjectInstance,
			SubjectID:   inst.ID,
			InstanceID:  inst.ID,
			TenantID:    tenantID,
			Type:        event,
			Actor:       actor,
			Detail:      map[string]any{"reason": reason},
		}); err != nil {
			return err
		}

		if e.metrics != nil {
			e.metrics.RecordInstanceTerminal(inst.DefinitionID, string(status))
		}
		e.notifyFinished(ctx, inst)
		observability.LoggerFrom(ctx).Info("instance terminated",
			zap.String("instance_id", inst.ID),
			zap.String("status", string(status)),
			zap.String("reason", reason),
		)
		out = inst
		return nil
	})
	observability.EndSpanWithError(span, err)
	return out, err
}

// Get returns one instance.
func (e *Engine) Get(ctx context.Context, tenantID, instanceID string) (model.ProcessInstance, error) {
	return e.instances.GetInstance(ctx, tenantID, instanceID)
}

// List returns instances for a tenant, newest first.
func (e *Engine) List(ctx context.Context, tenantID string, filters store.InstanceFilters) ([]model.ProcessInstance, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return e.instances.ListInstances(ctx, tenantID, filters)
}

// Progress computes an instance's completion percentage against its
// pinned definition version.
func (e *Engine) Progress(ctx context.Context, tenantID, instanceID string) (int, error) {
	inst, err := e.instances.GetInstance(ctx, tenantID, instanceID)
	if err != nil {
		return 0, err
	}
	def, err := e.definitions.GetDefinition(ctx, tenantID, inst.DefinitionID)
	if err != nil {
		return 0, err
	}
	return inst.ProgressAgainst(&def), nil
}

// ProcessOverdue fails running instances whose due date has passed.
// Called by the background sweeper; failures on one instance never
// stop the sweep.
func (e *Engine) ProcessOverdue(ctx context.Context) error {
	overdue, err := e.instances.FindOverdueInstances(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("find overdue instances: %w", err)
	}

	for _, inst := range overdue {
		if _, err := e.Fail(ctx, inst.TenantID, inst.ID, "due date exceeded"); err != nil {
			observability.LoggerFrom(ctx).Warn("overdue instance not failed",
				zap.String("instance_id", inst.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// withInstanceLock serializes transitions per instance. A held lock
// maps to CONFLICT so callers retry the same way they would an
// optimistic version miss.
func (e *Engine) withInstanceLock(ctx context.Context, instanceID string, fn func(context.Context) error) error {
	err := e.locks.WithLock(ctx, "instance:"+instanceID, e.opts.LockTTL, fn)
	if errors.Is(err, lock.ErrLockHeld) {
		return model.NewConflictError(
			fmt.Sprintf("instance %q is being modified concurrently", instanceID),
		)
	}
	return err
}

func (e *Engine) estimatedDuration(def *model.ProcessDefinition) time.Duration {
	total := def.EstimatedDuration()
	for _, step := range def.Steps {
		if step.ExpectedDuration <= 0 {
			total += e.opts.DefaultStepDuration
		}
	}
	return total
}

func (e *Engine) recordAdvanceMetrics(definitionID string, step int, started, ended time.Time) {
	if e.metrics == nil {
		return
	}
	var inStep time.Duration
	if !started.IsZero() && ended.After(started) {
		inStep = ended.Sub(started)
	}
	e.metrics.RecordInstanceAdvance(definitionID, strconv.Itoa(step), inStep)
}

func (e *Engine) notifyFinished(ctx context.Context, inst model.ProcessInstance) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, notify.Notification{
		Kind:       notify.KindInstanceFinished,
		TenantID:   inst.TenantID,
		Recipient:  inst.InitiatedBy,
		InstanceID: inst.ID,
		Subject:    fmt.Sprintf("process %s", inst.Status),
		Detail:     map[string]any{"reason": inst.Reason},
	})
}
