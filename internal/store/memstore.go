package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/procesio/procesio/model"
)

// MemoryStores is an in-memory implementation of all store interfaces,
// suitable for development and tests. Records are copied on the way in
// and out so callers never share memory with the store.
type MemoryStores struct {
	mu          sync.RWMutex
	definitions map[string]model.ProcessDefinition
	instances   map[string]model.ProcessInstance
	tasks       map[string]model.Task
	approvals   map[string]model.Approval
	events      []model.AuditEvent

	// taskOrder preserves creation order for pending-task tie breaks.
	taskOrder map[string]uint64
	taskSeq   uint64
}

// NewMemoryStores returns an empty in-memory store set.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		definitions: make(map[string]model.ProcessDefinition),
		instances:   make(map[string]model.ProcessInstance),
		tasks:       make(map[string]model.Task),
		approvals:   make(map[string]model.Approval),
		taskOrder:   make(map[string]uint64),
	}
}

// Stores returns the bundle view of this store set.
func (m *MemoryStores) Stores() Stores {
	return Stores{
		Definitions: m,
		Instances:   m,
		Tasks:       m,
		Approvals:   m,
		Audit:       m,
	}
}

// Ping reports the store as healthy. Satisfies the readiness checker.
func (m *MemoryStores) Ping(ctx context.Context) error {
	return nil
}

// --- definitions ---

func (m *MemoryStores) CreateDefinition(ctx context.Context, def model.ProcessDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.definitions[def.ID]; exists {
		return model.NewConflictError("definition already exists: " + def.ID)
	}
	// Version numbers are unique per family so ResolveActive and the
	// monotonic version sequence stay well defined.
	for _, existing := range m.definitions {
		if existing.TenantID == def.TenantID && existing.FamilyID == def.FamilyID && existing.Version == def.Version {
			return model.NewConflictError(fmt.Sprintf(
				"version %d already exists in family %s", def.Version, def.FamilyID,
			))
		}
	}
	def.RecordVersion = 1
	m.definitions[def.ID] = cloneDefinition(def)
	return nil
}

func (m *MemoryStores) GetDefinition(ctx context.Context, tenantID, id string) (model.ProcessDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.definitions[id]
	if !ok || def.TenantID != tenantID {
		return model.ProcessDefinition{}, model.NewNotFoundError("definition not found: " + id)
	}
	return cloneDefinition(def), nil
}

func (m *MemoryStores) UpdateDefinition(ctx context.Context, def model.ProcessDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.definitions[def.ID]
	if !ok || current.TenantID != def.TenantID {
		return model.NewNotFoundError("definition not found: " + def.ID)
	}
	if current.RecordVersion != def.RecordVersion {
		return model.NewConflictError("definition modified concurrently: " + def.ID)
	}
	def.RecordVersion++
	m.definitions[def.ID] = cloneDefinition(def)
	return nil
}

func (m *MemoryStores) ListDefinitions(ctx context.Context, tenantID string, filters DefinitionFilters) ([]model.ProcessDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ProcessDefinition
	for _, def := range m.definitions {
		if def.TenantID != tenantID {
			continue
		}
		if filters.FamilyID != "" && def.FamilyID != filters.FamilyID {
			continue
		}
		if filters.Status != "" && def.Status != filters.Status {
			continue
		}
		if filters.Category != "" && !strings.EqualFold(def.Category, filters.Category) {
			continue
		}
		out = append(out, cloneDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FamilyID != out[j].FamilyID {
			return out[i].FamilyID < out[j].FamilyID
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (m *MemoryStores) ResolveActive(ctx context.Context, tenantID, familyID string) (model.ProcessDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best model.ProcessDefinition
	found := false
	for _, def := range m.definitions {
		if def.TenantID != tenantID || def.FamilyID != familyID || def.Status != model.DefinitionStatusActive {
			continue
		}
		if !found || def.Version > best.Version {
			best = def
			found = true
		}
	}
	if !found {
		return model.ProcessDefinition{}, model.NewNotFoundError("no active definition in family: " + familyID)
	}
	return cloneDefinition(best), nil
}

func (m *MemoryStores) LatestVersion(ctx context.Context, tenantID, familyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	highest := 0
	for _, def := range m.definitions {
		if def.TenantID != tenantID || def.FamilyID != familyID {
			continue
		}
		if def.Version > highest {
			highest = def.Version
		}
	}
	return highest, nil
}

// --- instances ---

func (m *MemoryStores) CreateInstance(ctx context.Context, inst model.ProcessInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[inst.ID]; exists {
		return model.NewConflictError("instance already exists: " + inst.ID)
	}
	inst.Version = 1
	m.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (m *MemoryStores) GetInstance(ctx context.Context, tenantID, id string) (model.ProcessInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[id]
	if !ok || inst.TenantID != tenantID {
		return model.ProcessInstance{}, model.NewNotFoundError("instance not found: " + id)
	}
	return cloneInstance(inst), nil
}

func (m *MemoryStores) UpdateInstance(ctx context.Context, inst model.ProcessInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.instances[inst.ID]
	if !ok || current.TenantID != inst.TenantID {
		return model.NewNotFoundError("instance not found: " + inst.ID)
	}
	if current.Version != inst.Version {
		return model.NewConflictError("instance modified concurrently: " + inst.ID)
	}
	inst.Version++
	m.instances[inst.ID] = cloneInstance(inst)
	return nil
}

func (m *MemoryStores) ListInstances(ctx context.Context, tenantID string, filters InstanceFilters) ([]model.ProcessInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ProcessInstance
	for _, inst := range m.instances {
		if inst.TenantID != tenantID {
			continue
		}
		if filters.DefinitionID != "" && inst.DefinitionID != filters.DefinitionID {
			continue
		}
		if filters.Status != "" && inst.Status != filters.Status {
			continue
		}
		if filters.InitiatedBy != "" && inst.InitiatedBy != filters.InitiatedBy {
			continue
		}
		out = append(out, cloneInstance(inst))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	out = page(out, filters.Offset, filters.Limit)
	return out, nil
}

func (m *MemoryStores) FindOverdueInstances(ctx context.Context, cutoff time.Time) ([]model.ProcessInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ProcessInstance
	for _, inst := range m.instances {
		if inst.Status != model.InstanceStatusRunning || inst.DueDate == nil {
			continue
		}
		if inst.DueDate.Before(cutoff) {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out, nil
}

// --- tasks ---

func (m *MemoryStores) CreateTask(ctx context.Context, task model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return model.NewConflictError("task already exists: " + task.ID)
	}
	task.Version = 1
	m.taskSeq++
	m.taskOrder[task.ID] = m.taskSeq
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStores) GetTask(ctx context.Context, tenantID, id string) (model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok || task.TenantID != tenantID {
		return model.Task{}, model.NewNotFoundError("task not found: " + id)
	}
	return cloneTask(task), nil
}

func (m *MemoryStores) UpdateTask(ctx context.Context, task model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tasks[task.ID]
	if !ok || current.TenantID != task.TenantID {
		return model.NewNotFoundError("task not found: " + task.ID)
	}
	if current.Version != task.Version {
		return model.NewConflictError("task modified concurrently: " + task.ID)
	}
	task.Version++
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStores) ListTasksByInstance(ctx context.Context, tenantID, instanceID string) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Task
	for _, task := range m.tasks {
		if task.TenantID != tenantID || task.InstanceID != instanceID {
			continue
		}
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool {
		return m.taskOrder[out[i].ID] < m.taskOrder[out[j].ID]
	})
	return out, nil
}

func (m *MemoryStores) ListPendingTasks(ctx context.Context, tenantID, assignee string) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Task
	for _, task := range m.tasks {
		if task.TenantID != tenantID || task.Assignee != assignee || task.Status.Terminal() {
			continue
		}
		out = append(out, cloneTask(task))
	}
	m.sortTasksByDue(out)
	return out, nil
}

// --- approvals ---

func (m *MemoryStores) CreateApproval(ctx context.Context, appr model.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.approvals[appr.ID]; exists {
		return model.NewConflictError("approval already exists: " + appr.ID)
	}
	appr.Version = 1
	m.approvals[appr.ID] = cloneApproval(appr)
	return nil
}

func (m *MemoryStores) GetApproval(ctx context.Context, tenantID, id string) (model.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	appr, ok := m.approvals[id]
	if !ok || appr.TenantID != tenantID {
		return model.Approval{}, model.NewNotFoundError("approval not found: " + id)
	}
	return cloneApproval(appr), nil
}

func (m *MemoryStores) UpdateApproval(ctx context.Context, appr model.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.approvals[appr.ID]
	if !ok || current.TenantID != appr.TenantID {
		return model.NewNotFoundError("approval not found: " + appr.ID)
	}
	if current.Version != appr.Version {
		return model.NewConflictError("approval modified concurrently: " + appr.ID)
	}
	appr.Version++
	m.approvals[appr.ID] = cloneApproval(appr)
	return nil
}

func (m *MemoryStores) ListApprovalsByInstance(ctx context.Context, tenantID, instanceID string) ([]model.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Approval
	for _, appr := range m.approvals {
		if appr.TenantID != tenantID || appr.InstanceID != instanceID {
			continue
		}
		out = append(out, cloneApproval(appr))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepNumber != out[j].StepNumber {
			return out[i].StepNumber < out[j].StepNumber
		}
		return out[i].ChainLevel < out[j].ChainLevel
	})
	return out, nil
}

func (m *MemoryStores) ListPendingApprovals(ctx context.Context, tenantID, approver string) ([]model.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Approval
	for _, appr := range m.approvals {
		if appr.TenantID != tenantID || appr.Approver != approver || !appr.Status.Open() {
			continue
		}
		out = append(out, cloneApproval(appr))
	}
	sortApprovalsByDue(out)
	return out, nil
}

func (m *MemoryStores) FindOverdueApprovals(ctx context.Context, cutoff time.Time) ([]model.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Approval
	for _, appr := range m.approvals {
		if !appr.Status.Open() || appr.DueDate == nil {
			continue
		}
		if appr.DueDate.Before(cutoff) {
			out = append(out, cloneApproval(appr))
		}
	}
	sortApprovalsByDue(out)
	return out, nil
}

// --- audit ---

func (m *MemoryStores) AppendEvent(ctx context.Context, event model.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, cloneEvent(event))
	return nil
}

func (m *MemoryStores) ListEventsBySubject(ctx context.Context, tenantID, subjectID string, offset, limit int) ([]model.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.AuditEvent
	for _, ev := range m.events {
		if ev.TenantID != tenantID {
			continue
		}
		if ev.SubjectID != subjectID && ev.InstanceID != subjectID {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return page(out, offset, limit), nil
}

// --- helpers ---

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (m *MemoryStores) sortTasksByDue(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate == nil:
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		case !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return m.taskOrder[a.ID] < m.taskOrder[b.ID]
	})
}

func sortApprovalsByDue(approvals []model.Approval) {
	sort.Slice(approvals, func(i, j int) bool {
		a, b := approvals[i], approvals[j]
		switch {
		case a.DueDate == nil && b.DueDate == nil:
		case a.DueDate == nil:
			return false
		case b.DueDate == nil:
			return true
		case !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func cloneDefinition(def model.ProcessDefinition) model.ProcessDefinition {
	out := def
	if def.Steps != nil {
		out.Steps = make([]model.StepSpec, len(def.Steps))
		for i, step := range def.Steps {
			out.Steps[i] = step
			out.Steps[i].Assignees = append([]string(nil), step.Assignees...)
			out.Steps[i].Approvers = append([]string(nil), step.Approvers...)
		}
	}
	return out
}

func cloneInstance(inst model.ProcessInstance) model.ProcessInstance {
	out := inst
	if inst.Input != nil {
		out.Input = make(map[string]any, len(inst.Input))
		for k, v := range inst.Input {
			out.Input[k] = v
		}
	}
	out.CompletedAt = cloneTimePtr(inst.CompletedAt)
	out.DueDate = cloneTimePtr(inst.DueDate)
	return out
}

func cloneTask(task model.Task) model.Task {
	out := task
	out.DueDate = cloneTimePtr(task.DueDate)
	out.CompletedAt = cloneTimePtr(task.CompletedAt)
	return out
}

func cloneApproval(appr model.Approval) model.Approval {
	out := appr
	out.DueDate = cloneTimePtr(appr.DueDate)
	out.DecidedAt = cloneTimePtr(appr.DecidedAt)
	return out
}

func cloneEvent(ev model.AuditEvent) model.AuditEvent {
	out := ev
	if ev.Detail != nil {
		out.Detail = make(map[string]any, len(ev.Detail))
		for k, v := range ev.Detail {
			out.Detail[k] = v
		}
	}
	return out
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
