// Package approval routes multi-party sign-off chains. Chains are
// serial: the level-N+1 approval record exists only after level N
// resolves Approved. A rejection anywhere resolves the whole chain as
// Rejected and leaves the instance parked at its current step.
package approval

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

// Options tune routing behavior.
type Options struct {
	// FallbackApprover receives escalated approvals.
	FallbackApprover string
	// EscalationGrace is the new response window after escalation.
	EscalationGrace time.Duration
	// DefaultDuration backs steps with no expected duration when
	// computing approval due dates.
	DefaultDuration time.Duration
}

// Router owns the approval lifecycle.
type Router struct {
	approvals   store.ApprovalStore
	instances   store.InstanceStore
	definitions store.DefinitionStore
	recorder    *audit.Recorder
	advancer    Advancer
	directory   directory.Resolver
	notifier    notify.Notifier
	metrics     *observability.Metrics
	opts        Options
}

// NewRouter creates an approval router.
func NewRouter(
	approvals store.ApprovalStore,
	instances store.InstanceStore,
	definitions store.DefinitionStore,
	recorder *audit.Recorder,
	resolver directory.Resolver,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	opts Options,
) *Router {
	if opts.EscalationGrace <= 0 {
		opts.EscalationGrace = 24 * time.Hour
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 48 * time.Hour
	}
	return &Router{
		approvals:   approvals,
		instances:   instances,
		definitions: definitions,
		recorder:    recorder,
		directory:   resolver,
		notifier:    notifier,
		metrics:     metrics,
		opts:        opts,
	}
}

// SetAdvancer wires the completion signal target.
func (r *Router) SetAdvancer(a Advancer) {
	r.advancer = a
}

// Request opens the first level of a step's approval chain.
func (r *Router) Request(ctx context.Context, inst model.ProcessInstance, def model.ProcessDefinition, step model.StepSpec) error {
	if len(step.Approvers) == 0 {
		return model.NewInvalidStateError(
			fmt.Sprintf("step %d of definition %q has no approvers", step.Number, def.ID),
		)
	}
	_, err := r.createLevel(ctx, inst, def, step, 1)
	return err
}

// Decide resolves an open approval. Approved on a non-final level
// opens the next level; Approved on the final level signals the
// engine to advance. Rejected resolves the chain and leaves the
// instance at its current step for administrative retry.
func (r *Router) Decide(ctx context.Context, tenantID, actor, approvalID string, decision model.Decision, comments string) (model.Approval, error) {
	appr, err := r.approvals.GetApproval(ctx, tenantID, approvalID)
	if err != nil {
		return model.Approval{}, err
	}
	if !appr.Status.Open() {
		return model.Approval{}, model.NewInvalidStateError(
			fmt.Sprintf("approval %q is %s, already resolved", approvalID, appr.Status),
		)
	}
	if appr.Approver != actor {
		return model.Approval{}, model.NewForbiddenError(
			fmt.Sprintf("approval %q awaits %q", approvalID, appr.Approver),
		)
	}

	inst, err := r.instances.GetInstance(ctx, tenantID, appr.InstanceID)
	if err != nil {
		return model.Approval{}, err
	}
	if inst.Status.Terminal() {
		return model.Approval{}, model.NewInvalidStateError(
			fmt.Sprintf("instance %q is %s, its approvals cannot be decided", inst.ID, inst.Status),
		)
	}

	now := time.Now().UTC()
	switch decision {
	case model.DecisionApproved:
		appr.Status = model.ApprovalStatusApproved
	case model.DecisionRejected:
		appr.Status = model.ApprovalStatusRejected
	default:
		return model.Approval{}, model.NewBadRequestError(fmt.Sprintf("unknown decision %q", decision))
	}
	appr.Comments = comments
	appr.DecidedAt = &now
	appr.UpdatedAt = now
	if err := r.approvals.UpdateApproval(ctx, appr); err != nil {
		return model.Approval{}, err
	}

	if err := r.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectApproval,
		SubjectID:   appr.ID,
		InstanceID:  appr.InstanceID,
		TenantID:    tenantID,
		Type:        model.EventApprovalDecided,
		Actor:       actor,
		Detail: map[string]any{
			"step_number": appr.StepNumber,
			"chain_level": appr.ChainLevel,
			"decision":    string(decision),
		},
	}); err != nil {
		return model.Approval{}, err
	}

	if r.metrics != nil {
		r.metrics.RecordApprovalDecision(inst.DefinitionID, string(decision))
	}
	observability.LoggerFrom(ctx).Info("approval decided",
		zap.String("approval_id", appr.ID),
		zap.String("instance_id", appr.InstanceID),
		zap.String("decision", string(decision)),
		zap.Int("chain_level", appr.ChainLevel),
	)

	if decision == model.DecisionRejected {
		// Chain resolved as rejected: the step stays unsatisfied and a
		// new chain must be opened to retry it.
		return appr, nil
	}

	if appr.ChainLevel < appr.ChainLength {
		def, err := r.definitions.GetDefinition(ctx, tenantID, inst.DefinitionID)
		if err != nil {
			return model.Approval{}, err
		}
		step := def.StepByNumber(appr.StepNumber)
		if step == nil {
			return model.Approval{}, model.NewInvalidStateError(
				fmt.Sprintf("step %d no longer present in definition %q", appr.StepNumber, def.ID),
			)
		}
		if _, err := r.createLevel(ctx, inst, def, *step, appr.ChainLevel+1); err != nil {
			return model.Approval{}, err
		}
		return appr, nil
	}

	// Final level approved: the step is satisfied.
	if _, err := r.advancer.Advance(ctx, tenantID, actor, appr.InstanceID, appr.StepNumber); err != nil {
		return model.Approval{}, err
	}
	return appr, nil
}

// Escalate reassigns a Pending approval past its due date to the
// fallback approver and resets the response window. Triggered by the
// background sweep, never automatically on read.
func (r *Router) Escalate(ctx context.Context, tenantID, approvalID string) (model.Approval, error) {
	appr, err := r.approvals.GetApproval(ctx, tenantID, approvalID)
	if err != nil {
		return model.Approval{}, err
	}
	if appr.Status != model.ApprovalStatusPending {
		return model.Approval{}, model.NewInvalidStateError(
			fmt.Sprintf("approval %q is %s, only pending approvals escalate", approvalID, appr.Status),
		)
	}
	if appr.DueDate == nil || appr.DueDate.After(time.Now().UTC()) {
		return model.Approval{}, model.NewInvalidStateError(
			fmt.Sprintf("approval %q is not past its due date", approvalID),
		)
	}

	now := time.Now().UTC()
	newDue := now.Add(r.opts.EscalationGrace)
	fallback := r.directory.Resolve(ctx, r.opts.FallbackApprover)

	previous := appr.Approver
	appr.Status = model.ApprovalStatusEscalated
	appr.Approver = r.opts.FallbackApprover
	appr.ApproverName = fallback.Name
	appr.DueDate = &newDue
	appr.UpdatedAt = now
	if err := r.approvals.UpdateApproval(ctx, appr); err != nil {
		return model.Approval{}, err
	}

	if err := r.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectApproval,
		SubjectID:   appr.ID,
		InstanceID:  appr.InstanceID,
		TenantID:    tenantID,
		Type:        model.EventApprovalRequested,
		Actor:       "system",
		Detail: map[string]any{
			"step_number":       appr.StepNumber,
			"escalated":         true,
			"previous_approver": previous,
			"approver":          appr.Approver,
		},
	}); err != nil {
		return model.Approval{}, err
	}

	if r.metrics != nil {
		inst, err := r.instances.GetInstance(ctx, tenantID, appr.InstanceID)
		if err == nil {
			r.metrics.RecordApprovalEscalation(inst.DefinitionID)
		}
	}
	if r.notifier != nil {
		r.notifier.Notify(ctx, notify.Notification{
			Kind:       notify.KindApprovalEscalated,
			TenantID:   tenantID,
			Recipient:  appr.Approver,
			InstanceID: appr.InstanceID,
			Subject:    fmt.Sprintf("escalated approval for step %d", appr.StepNumber),
		})
	}
	observability.LoggerFrom(ctx).Info("approval escalated",
		zap.String("approval_id", appr.ID),
		zap.String("previous_approver", previous),
		zap.String("approver", appr.Approver),
	)
	return appr, nil
}

// ProcessEscalations escalates every Pending approval past its due
// date. Failures on one approval never stop the sweep.
func (r *Router) ProcessEscalations(ctx context.Context) error {
	overdue, err := r.approvals.FindOverdueApprovals(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("find overdue approvals: %w", err)
	}

	for _, appr := range overdue {
		if appr.Status != model.ApprovalStatusPending {
			// Already escalated once; the fallback approver keeps it.
			continue
		}
		if _, err := r.Escalate(ctx, appr.TenantID, appr.ID); err != nil {
			observability.LoggerFrom(ctx).Warn("escalation failed",
				zap.String("approval_id", appr.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Get returns one approval.
func (r *Router) Get(ctx context.Context, tenantID, approvalID string) (model.Approval, error) {
	return r.approvals.GetApproval(ctx, tenantID, approvalID)
}

// ListPending returns the open approvals awaiting an approver.
func (r *Router) ListPending(ctx context.Context, tenantID, approver string) ([]model.Approval, error) {
	return r.approvals.ListPendingApprovals(ctx, tenantID, approver)
}

// CancelOpenForInstance cancels all open approvals of an instance.
// Called during instance termination; must leave zero open approvals.
func (r *Router) CancelOpenForInstance(ctx context.Context, inst model.ProcessInstance, reason string) error {
	approvals, err := r.approvals.ListApprovalsByInstance(ctx, inst.TenantID, inst.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, appr := range approvals {
		if !appr.Status.Open() {
			continue
		}
		appr.Status = model.ApprovalStatusCancelled
		appr.Comments = reason
		appr.UpdatedAt = now
		if err := r.approvals.UpdateApproval(ctx, appr); err != nil {
			return err
		}
		if err := r.recorder.Record(ctx, model.AuditEvent{
			SubjectType: model.SubjectApproval,
			SubjectID:   appr.ID,
			InstanceID:  inst.ID,
			TenantID:    inst.TenantID,
			Type:        model.EventCancelled,
			Actor:       "system",
			Detail:      map[string]any{"reason": reason},
		}); err != nil {
			return err
		}
	}
	return nil
}

// createLevel opens one chain level as a fresh Pending approval.
func (r *Router) createLevel(ctx context.Context, inst model.ProcessInstance, def model.ProcessDefinition, step model.StepSpec, level int) (model.Approval, error) {
	if level > len(step.Approvers) {
		return model.Approval{}, model.NewInvalidStateError(
			fmt.Sprintf("step %d has %d approvers, no level %d", step.Number, len(step.Approvers), level),
		)
	}

	now := time.Now().UTC()
	duration := step.ExpectedDuration
	if duration <= 0 {
		duration = r.opts.DefaultDuration
	}
	due := now.Add(duration)

	approver := step.Approvers[level-1]
	resolved := r.directory.Resolve(ctx, approver)

	appr := model.Approval{
		ID:           uuid.NewString(),
		InstanceID:   inst.ID,
		TenantID:     inst.TenantID,
		StepNumber:   step.Number,
		Requester:    inst.InitiatedBy,
		Approver:     approver,
		ApproverName: resolved.Name,
		ChainLevel:   level,
		ChainLength:  len(step.Approvers),
		Status:       model.ApprovalStatusPending,
		DueDate:      &due,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.approvals.CreateApproval(ctx, appr); err != nil {
		return model.Approval{}, err
	}

	if err := r.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectApproval,
		SubjectID:   appr.ID,
		InstanceID:  inst.ID,
		TenantID:    inst.TenantID,
		Type:        model.EventApprovalRequested,
		Actor:       "system",
		Detail: map[string]any{
			"step_number": step.Number,
			"chain_level": level,
			"approver":    approver,
		},
	}); err != nil {
		return model.Approval{}, err
	}

	if r.metrics != nil {
		r.metrics.RecordApprovalRequested(def.ID)
	}
	if r.notifier != nil {
		r.notifier.Notify(ctx, notify.Notification{
			Kind:       notify.KindApprovalRequested,
			TenantID:   inst.TenantID,
			Recipient:  approver,
			InstanceID: inst.ID,
			Subject:    step.Name,
			Detail:     map[string]any{"chain_level": level, "due_date": due},
		})
	}
	observability.LoggerFrom(ctx).Info("approval requested",
		zap.String("approval_id", appr.ID),
		zap.String("instance_id", inst.ID),
		zap.Int("step_number", step.Number),
		zap.Int("chain_level", level),
		zap.String("approver", approver),
	)
	return appr, nil
}
