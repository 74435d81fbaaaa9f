// Package definition manages versioned process definitions. A
// definition is immutable once created; edits produce a new version in
// the same family so in-flight instances keep the steps they started
// with.
package definition

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

// Service implements the definition lifecycle: Draft on create,
// Publish to Active, Retire to stop new starts. Revisions create a new
// Draft version in the same family.
type Service struct {
	store    store.DefinitionStore
	recorder *audit.Recorder
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewService creates a definition service.
func NewService(defStore store.DefinitionStore, recorder *audit.Recorder, metrics *observability.Metrics) *Service {
	return &Service{
		store:    defStore,
		recorder: recorder,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// CreateRequest is the payload for creating a definition.
type CreateRequest struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=2000"`
	Category    string      `json:"category" validate:"max=100"`
	Steps       []StepInput `json:"steps" validate:"required,min=1,dive"`
}

// ReviseRequest is the payload for revising a definition's steps.
type ReviseRequest struct {
	Steps []StepInput `json:"steps" validate:"required,min=1,dive"`
}

// StepInput is one step in a create or revise request.
type StepInput struct {
	Number           int           `json:"number" validate:"min=1"`
	Name             string        `json:"name" validate:"required,max=200"`
	ExpectedDuration time.Duration `json:"expected_duration" validate:"min=0"`
	Required         bool          `json:"required"`
	Assignees        []string      `json:"assignees"`
	Approvers        []string      `json:"approvers"`
	Priority         string        `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// Create validates the step sequence and persists a new Draft
// definition at version 1 in a fresh family.
func (s *Service) Create(ctx context.Context, tenantID, actor string, req CreateRequest) (model.ProcessDefinition, error) {
	if err := s.validateSteps(req.Steps, s.validate.Struct(req)); err != nil {
		return model.ProcessDefinition{}, err
	}

	now := time.Now().UTC()
	def := model.ProcessDefinition{
		ID:          uuid.NewString(),
		FamilyID:    uuid.NewString(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Version:     1,
		Status:      model.DefinitionStatusDraft,
		Steps:       stepsFromInputs(req.Steps),
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateDefinition(ctx, def); err != nil {
		return model.ProcessDefinition{}, err
	}

	s.recordEvent(ctx, def, actor, model.EventCreated, map[string]any{
		"version": def.Version,
		"steps":   len(def.Steps),
	})
	if s.metrics != nil {
		s.metrics.RecordDefinitionVersion(string(model.DefinitionStatusDraft))
	}
	observability.LoggerFrom(ctx).Info("definition created",
		zap.String("definition_id", def.ID),
		zap.String("family_id", def.FamilyID),
		zap.Int("steps", len(def.Steps)),
	)
	return def, nil
}

// Publish transitions a Draft definition to Active, making it
// eligible for new instance starts.
func (s *Service) Publish(ctx context.Context, tenantID, actor, id string) (model.ProcessDefinition, error) {
	def, err := s.store.GetDefinition(ctx, tenantID, id)
	if err != nil {
		return model.ProcessDefinition{}, err
	}
	if def.Status != model.DefinitionStatusDraft {
		return model.ProcessDefinition{}, model.NewInvalidStateError(
			fmt.Sprintf("definition %q is %s, only drafts can be published", id, def.Status),
		)
	}

	def.Status = model.DefinitionStatusActive
	def.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateDefinition(ctx, def); err != nil {
		return model.ProcessDefinition{}, err
	}

	s.recordEvent(ctx, def, actor, model.EventAdvanced, map[string]any{"status": string(def.Status)})
	observability.LoggerFrom(ctx).Info("definition published",
		zap.String("definition_id", def.ID),
		zap.Int("version", def.Version),
	)
	return def, nil
}

// ReviseVersion creates a new Draft version in the definition's
// family. The existing version keeps its status and its in-flight
// instances.
func (s *Service) ReviseVersion(ctx context.Context, tenantID, actor, id string, steps []StepInput) (model.ProcessDefinition, error) {
	base, err := s.store.GetDefinition(ctx, tenantID, id)
	if err != nil {
		return model.ProcessDefinition{}, err
	}
	revision := ReviseRequest{Steps: steps}
	if err := s.validateSteps(steps, s.validate.Struct(revision)); err != nil {
		return model.ProcessDefinition{}, err
	}

	highest, err := s.store.LatestVersion(ctx, tenantID, base.FamilyID)
	if err != nil {
		return model.ProcessDefinition{}, err
	}

	now := time.Now().UTC()
	revised := model.ProcessDefinition{
		ID:          uuid.NewString(),
		FamilyID:    base.FamilyID,
		TenantID:    tenantID,
		Name:        base.Name,
		Description: base.Description,
		Category:    base.Category,
		Version:     highest + 1,
		Status:      model.DefinitionStatusDraft,
		Steps:       stepsFromInputs(steps),
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateDefinition(ctx, revised); err != nil {
		return model.ProcessDefinition{}, err
	}

	s.recordEvent(ctx, revised, actor, model.EventCreated, map[string]any{
		"version":     revised.Version,
		"revised_from": base.ID,
	})
	if s.metrics != nil {
		s.metrics.RecordDefinitionVersion(string(model.DefinitionStatusDraft))
	}
	observability.LoggerFrom(ctx).Info("definition revised",
		zap.String("definition_id", revised.ID),
		zap.String("family_id", revised.FamilyID),
		zap.Int("version", revised.Version),
	)
	return revised, nil
}

// Retire transitions an Active definition to Retired. New starts are
// blocked; running instances are unaffected.
func (s *Service) Retire(ctx context.Context, tenantID, actor, id string) (model.ProcessDefinition, error) {
	def, err := s.store.GetDefinition(ctx, tenantID, id)
	if err != nil {
		return model.ProcessDefinition{}, err
	}
	if def.Status != model.DefinitionStatusActive {
		return model.ProcessDefinition{}, model.NewInvalidStateError(
			fmt.Sprintf("definition %q is %s, only active definitions can be retired", id, def.Status),
		)
	}

	def.Status = model.DefinitionStatusRetired
	def.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateDefinition(ctx, def); err != nil {
		return model.ProcessDefinition{}, err
	}

	s.recordEvent(ctx, def, actor, model.EventAdvanced, map[string]any{"status": string(def.Status)})
	observability.LoggerFrom(ctx).Info("definition retired",
		zap.String("definition_id", def.ID),
		zap.Int("version", def.Version),
	)
	return def, nil
}

// Get returns one definition version.
func (s *Service) Get(ctx context.Context, tenantID, id string) (model.ProcessDefinition, error) {
	return s.store.GetDefinition(ctx, tenantID, id)
}

// List returns definition versions matching the filters.
func (s *Service) List(ctx context.Context, tenantID string, filters store.DefinitionFilters) ([]model.ProcessDefinition, error) {
	return s.store.ListDefinitions(ctx, tenantID, filters)
}

// ResolveActive returns the current definition for a family: the
// highest Active version.
func (s *Service) ResolveActive(ctx context.Context, tenantID, familyID string) (model.ProcessDefinition, error) {
	return s.store.ResolveActive(ctx, tenantID, familyID)
}

// validateSteps combines struct tag validation with the step sequence
// invariant: numbers unique, strictly ascending, starting at 1.
func (s *Service) validateSteps(steps []StepInput, tagErr error) error {
	var details []model.FieldError

	if tagErr != nil {
		if verrs, ok := tagErr.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				details = append(details, model.FieldError{
					Field:   fe.Namespace(),
					Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
				})
			}
		} else {
			return model.NewBadRequestError(tagErr.Error())
		}
	}

	if len(steps) > 0 && steps[0].Number != 1 {
		details = append(details, model.FieldError{
			Field:   "steps[0].number",
			Message: "step numbering must start at 1",
		})
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Number <= steps[i-1].Number {
			details = append(details, model.FieldError{
				Field:   fmt.Sprintf("steps[%d].number", i),
				Message: fmt.Sprintf("step numbers must be strictly ascending, got %d after %d", steps[i].Number, steps[i-1].Number),
			})
		}
	}

	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, def model.ProcessDefinition, actor string, typ model.EventType, detail map[string]any) {
	// Definition events are advisory: a trail gap is preferable to a
	// failed lifecycle change after the write already happened.
	_ = s.recorder.Record(ctx, model.AuditEvent{
		SubjectType: model.SubjectDefinition,
		SubjectID:   def.ID,
		TenantID:    def.TenantID,
		Type:        typ,
		Actor:       actor,
		Detail:      detail,
	})
}

func stepsFromInputs(inputs []StepInput) []model.StepSpec {
	steps := make([]model.StepSpec, len(inputs))
	for i, in := range inputs {
		priority := in.Priority
		if priority == "" {
			priority = model.PriorityNormal
		}
		steps[i] = model.StepSpec{
			Number:           in.Number,
			Name:             in.Name,
			ExpectedDuration: in.ExpectedDuration,
			Required:         in.Required,
			Assignees:        append([]string(nil), in.Assignees...),
			Approvers:        append([]string(nil), in.Approvers...),
			Priority:         priority,
		}
	}
	return steps
}
