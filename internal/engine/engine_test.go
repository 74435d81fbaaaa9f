package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/procesio/procesio/internal/approval"
	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/directory"
	"github.com/procesio/procesio/internal/dispatch"
	"github.com/procesio/procesio/internal/engine"
	"github.com/procesio/procesio/internal/lock"
	"github.com/procesio/procesio/internal/notify"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/internal/task"
	"github.com/procesio/procesio/model"
)

// world wires the engine, task manager, and approval router over
// in-memory stores the way main does.
type world struct {
	stores    *store.MemoryStores
	recorder  *audit.Recorder
	engine    *engine.Engine
	tasks     *task.Manager
	approvals *approval.Router
}

func newWorld(t *testing.T) *world {
	t.Helper()

	mem := store.NewMemoryStores()
	recorder := audit.NewRecorder(mem, nil)
	resolver := directory.NewStaticResolver(map[string]string{
		"user-alice": "Alice Jones",
		"user-bob":   "Bob Smith",
		"user-mgr":   "Mary Manager",
		"user-boss":  "Bella Boss",
	})
	notifier := notify.NewLogNotifier()

	tasks := task.NewManager(mem, mem, recorder, resolver, notifier, nil, task.Options{})
	approvals := approval.NewRouter(mem, mem, mem, recorder, resolver, notifier, nil, approval.Options{
		FallbackApprover: "user-boss",
		EscalationGrace:  24 * time.Hour,
	})
	dispatcher := dispatch.NewDispatcher(tasks, approvals)

	eng := engine.NewEngine(mem, mem, recorder, dispatcher, lock.NewLocalLock(), notifier, nil, engine.Options{})
	tasks.SetAdvancer(eng)
	approvals.SetAdvancer(eng)

	return &world{stores: mem, recorder: recorder, engine: eng, tasks: tasks, approvals: approvals}
}

// twoStepDefinition is the canonical fixture: step 1 a task for
// user-bob, step 2 a single-approver sign-off by user-mgr.
func (w *world) twoStepDefinition(t *testing.T) model.ProcessDefinition {
	t.Helper()
	def := model.ProcessDefinition{
		ID:       uuid.NewString(),
		FamilyID: uuid.NewString(),
		TenantID: "tenant-1",
		Name:     "Expense Claim",
		Version:  1,
		Status:   model.DefinitionStatusActive,
		Steps: []model.StepSpec{
			{Number: 1, Name: "Submit claim", ExpectedDuration: 24 * time.Hour, Required: true, Assignees: []string{"user-bob"}},
			{Number: 2, Name: "Manager review", ExpectedDuration: 48 * time.Hour, Required: true, Approvers: []string{"user-mgr"}},
		},
		CreatedBy: "user-alice",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := w.stores.CreateDefinition(context.Background(), def); err != nil {
		t.Fatalf("CreateDefinition error: %v", err)
	}
	return def
}

func (w *world) pendingTasks(t *testing.T, assignee string) []model.Task {
	t.Helper()
	tasks, err := w.tasks.ListPending(context.Background(), "tenant-1", assignee)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	return tasks
}

func (w *world) pendingApprovals(t *testing.T, approver string) []model.Approval {
	t.Helper()
	approvals, err := w.approvals.ListPending(context.Background(), "tenant-1", approver)
	if err != nil {
		t.Fatalf("ListPending approvals error: %v", err)
	}
	return approvals
}

// --- Start ---

func TestEngine_Start(t *testing.T) {
	w := newWorld(t)
	def := w.twoStepDefinition(t)

	inst, err := w.engine.Start(context.Background(), "tenant-1", "user-alice", "Alice Jones", def.ID, map[string]any{"amount": 42})
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if inst.Status != model.InstanceStatusRunning {
		t.Errorf("Status = %s, want running", inst.Status)
	}
	if inst.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want 1", inst.CurrentStep)
	}
	if inst.DefinitionVersion != 1 {
		t.Errorf("DefinitionVersion = %d, want 1", inst.DefinitionVersion)
	}
	if inst.DueDate == nil {
		t.Error("DueDate not derived")
	}

	tasks := w.pendingTasks(t, "user-bob")
	if len(tasks) != 1 || tasks[0].StepNumber != 1 {
		t.Fatalf("pending tasks = %+v, want one for step 1", tasks)
	}
	if tasks[0].AssigneeName != "Bob Smith" {
		t.Errorf("AssigneeName = %q, directory snapshot missing", tasks[0].AssigneeName)
	}
}

func TestEngine_Start_definitionNotActive(t *testing.T) {
	w := newWorld(t)
	def := w.twoStepDefinition(t)

	draft := def
	draft.ID = uuid.NewString()
	draft.FamilyID = uuid.NewString()
	draft.Status = model.DefinitionStatusDraft
	_ = w.stores.CreateDefinition(context.Background(), draft)

	_, err := w.engine.Start(context.Background(), "tenant-1", "user-alice", "", draft.ID, nil)
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("Start draft error = %v, want INVALID_STATE", err)
	}

	_, err = w.engine.Start(context.Background(), "tenant-1", "user-alice", "", "no-such-definition", nil)
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("Start missing error = %v, want NOT_FOUND", err)
	}
}

// --- scenario: 2-step task + approval flow ---

func TestEngine_Scenario_taskThenApproval(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, err := w.engine.Start(ctx, "tenant-1", "user-alice", "Alice Jones", def.ID, nil)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// Step 1: one pending task for user-bob.
	tasks := w.pendingTasks(t, "user-bob")
	if len(tasks) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(tasks))
	}

	if _, err := w.tasks.Complete(ctx, "tenant-1", "user-bob", tasks[0].ID, "submitted", ""); err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	// Instance advanced to step 2 with one pending approval.
	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.CurrentStep != 2 {
		t.Fatalf("CurrentStep = %d, want 2", inst.CurrentStep)
	}
	approvals := w.pendingApprovals(t, "user-mgr")
	if len(approvals) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(approvals))
	}

	if _, err := w.approvals.Decide(ctx, "tenant-1", "user-mgr", approvals[0].ID, model.DecisionApproved, "lgtm"); err != nil {
		t.Fatalf("Decide error: %v", err)
	}

	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.Status != model.InstanceStatusCompleted {
		t.Errorf("Status = %s, want completed", inst.Status)
	}
	if inst.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if got := inst.ProgressAgainst(&def); got != 100 {
		t.Errorf("progress = %d, want 100", got)
	}
}

// --- scenario: cancel before completion ---

func TestEngine_Scenario_cancelBeforeCompletion(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)

	cancelled, err := w.engine.Cancel(ctx, "tenant-1", "user-alice", inst.ID, "no longer needed")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if cancelled.Status != model.InstanceStatusCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.Reason != "no longer needed" {
		t.Errorf("Reason = %q", cancelled.Reason)
	}

	// No orphaned open work.
	all, _ := w.stores.ListTasksByInstance(ctx, "tenant-1", inst.ID)
	for _, task := range all {
		if !task.Status.Terminal() {
			t.Errorf("task %s still %s after cancel", task.ID, task.Status)
		}
	}

	// The trail holds no Advanced events.
	for ev, err := range w.recorder.TrailFor(ctx, "tenant-1", inst.ID) {
		if err != nil {
			t.Fatalf("trail error: %v", err)
		}
		if ev.Type == model.EventAdvanced {
			t.Errorf("unexpected advanced event in trail")
		}
	}

	// Cancelling again is invalid.
	_, err = w.engine.Cancel(ctx, "tenant-1", "user-alice", inst.ID, "again")
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("second Cancel error = %v, want INVALID_STATE", err)
	}
}

// flakyCleanup fails the first CancelOpen calls, then delegates.
type flakyCleanup struct {
	engine.StepMaterializer
	failures int
}

func (f *flakyCleanup) CancelOpen(ctx context.Context, inst model.ProcessInstance, reason string) error {
	if f.failures > 0 {
		f.failures--
		return model.NewStorageError("cancel open work", errors.New("connection reset"))
	}
	return f.StepMaterializer.CancelOpen(ctx, inst, reason)
}

func TestEngine_Cancel_cleanupFailureLeavesInstanceRetryable(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStores()
	recorder := audit.NewRecorder(mem, nil)
	resolver := directory.NewStaticResolver(map[string]string{"user-bob": "Bob Smith"})
	notifier := notify.NewLogNotifier()

	tasks := task.NewManager(mem, mem, recorder, resolver, notifier, nil, task.Options{})
	approvals := approval.NewRouter(mem, mem, mem, recorder, resolver, notifier, nil, approval.Options{
		FallbackApprover: "user-boss",
		EscalationGrace:  24 * time.Hour,
	})
	flaky := &flakyCleanup{StepMaterializer: dispatch.NewDispatcher(tasks, approvals), failures: 1}
	eng := engine.NewEngine(mem, mem, recorder, flaky, lock.NewLocalLock(), notifier, nil, engine.Options{})
	tasks.SetAdvancer(eng)
	approvals.SetAdvancer(eng)

	w := &world{stores: mem, recorder: recorder, engine: eng, tasks: tasks, approvals: approvals}
	def := w.twoStepDefinition(t)
	inst, _ := eng.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)

	// Cleanup fails: the instance must not be left terminal with open work.
	_, err := eng.Cancel(ctx, "tenant-1", "user-alice", inst.ID, "no longer needed")
	if !model.IsCode(err, model.ErrStorage) {
		t.Fatalf("Cancel error = %v, want STORAGE_ERROR", err)
	}
	got, _ := eng.Get(ctx, "tenant-1", inst.ID)
	if got.Status != model.InstanceStatusRunning {
		t.Fatalf("Status after failed cleanup = %s, want running", got.Status)
	}

	// The retry completes the cancellation and closes the open work.
	cancelled, err := eng.Cancel(ctx, "tenant-1", "user-alice", inst.ID, "no longer needed")
	if err != nil {
		t.Fatalf("retried Cancel error: %v", err)
	}
	if cancelled.Status != model.InstanceStatusCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}
	all, _ := mem.ListTasksByInstance(ctx, "tenant-1", inst.ID)
	for _, tk := range all {
		if !tk.Status.Terminal() {
			t.Errorf("task %s still %s after retried cancel", tk.ID, tk.Status)
		}
	}
}

// --- scenario: mid-flight revision isolation ---

func TestEngine_Scenario_midFlightRevision(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)

	// Revise the family to three steps; new version becomes current.
	revised := model.ProcessDefinition{
		ID:       uuid.NewString(),
		FamilyID: def.FamilyID,
		TenantID: "tenant-1",
		Name:     def.Name,
		Version:  2,
		Status:   model.DefinitionStatusActive,
		Steps: []model.StepSpec{
			{Number: 1, Name: "Submit claim", Required: true, Assignees: []string{"user-bob"}},
			{Number: 2, Name: "Manager review", Required: true, Approvers: []string{"user-mgr"}},
			{Number: 3, Name: "Finance payout", Required: true, Assignees: []string{"user-alice"}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := w.stores.CreateDefinition(ctx, revised); err != nil {
		t.Fatalf("CreateDefinition error: %v", err)
	}

	// The in-flight instance still completes against its 2-step version.
	tasks := w.pendingTasks(t, "user-bob")
	_, _ = w.tasks.Complete(ctx, "tenant-1", "user-bob", tasks[0].ID, "done", "")
	approvals := w.pendingApprovals(t, "user-mgr")
	_, _ = w.approvals.Decide(ctx, "tenant-1", "user-mgr", approvals[0].ID, model.DecisionApproved, "")

	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.Status != model.InstanceStatusCompleted {
		t.Fatalf("old-version instance status = %s, want completed", inst.Status)
	}
	if inst.DefinitionVersion != 1 {
		t.Errorf("DefinitionVersion = %d, want pinned 1", inst.DefinitionVersion)
	}

	// New starts resolve the 3-step version.
	current, err := w.stores.ResolveActive(ctx, "tenant-1", def.FamilyID)
	if err != nil {
		t.Fatalf("ResolveActive error: %v", err)
	}
	fresh, err := w.engine.Start(ctx, "tenant-1", "user-alice", "", current.ID, nil)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if fresh.DefinitionVersion != 2 {
		t.Errorf("fresh DefinitionVersion = %d, want 2", fresh.DefinitionVersion)
	}
}

// --- advance guards ---

func TestEngine_Advance_staleSignalIsNoOp(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)
	tasks := w.pendingTasks(t, "user-bob")
	_, _ = w.tasks.Complete(ctx, "tenant-1", "user-bob", tasks[0].ID, "done", "")

	// Instance is now at step 2; a duplicate completion signal for
	// step 1 must be a no-op, twice.
	for i := 0; i < 2; i++ {
		got, err := w.engine.Advance(ctx, "tenant-1", "user-bob", inst.ID, 1)
		if err != nil {
			t.Fatalf("stale Advance #%d error: %v", i+1, err)
		}
		if got.CurrentStep != 2 {
			t.Errorf("stale Advance #%d moved instance to step %d", i+1, got.CurrentStep)
		}
	}

	// Exactly one approval materialized for step 2.
	if n := len(w.pendingApprovals(t, "user-mgr")); n != 1 {
		t.Errorf("pending approvals = %d, want 1", n)
	}
}

func TestEngine_Advance_futureStep(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)

	_, err := w.engine.Advance(ctx, "tenant-1", "user-bob", inst.ID, 2)
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("future Advance error = %v, want INVALID_STATE", err)
	}
}

func TestEngine_Advance_terminalInstance(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)
	_, _ = w.engine.Cancel(ctx, "tenant-1", "user-alice", inst.ID, "stop")

	_, err := w.engine.Advance(ctx, "tenant-1", "user-bob", inst.ID, 1)
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("terminal Advance error = %v, want INVALID_STATE", err)
	}
}

// --- rejection ---

func TestEngine_rejectedApprovalDoesNotAdvance(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)
	tasks := w.pendingTasks(t, "user-bob")
	_, _ = w.tasks.Complete(ctx, "tenant-1", "user-bob", tasks[0].ID, "done", "")

	approvals := w.pendingApprovals(t, "user-mgr")
	if _, err := w.approvals.Decide(ctx, "tenant-1", "user-mgr", approvals[0].ID, model.DecisionRejected, "missing receipts"); err != nil {
		t.Fatalf("Decide error: %v", err)
	}

	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.Status != model.InstanceStatusRunning {
		t.Errorf("Status = %s, want running (parked at step)", inst.Status)
	}
	if inst.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, want 2", inst.CurrentStep)
	}

	// The rejected record is terminal; deciding it again is invalid.
	_, err := w.approvals.Decide(ctx, "tenant-1", "user-mgr", approvals[0].ID, model.DecisionApproved, "")
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("re-decide error = %v, want INVALID_STATE", err)
	}
}

// --- serial chain ---

func TestEngine_serialApprovalChain(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	def := model.ProcessDefinition{
		ID:       uuid.NewString(),
		FamilyID: uuid.NewString(),
		TenantID: "tenant-1",
		Name:     "Capex Request",
		Version:  1,
		Status:   model.DefinitionStatusActive,
		Steps: []model.StepSpec{
			{Number: 1, Name: "Dual sign-off", Required: true, Approvers: []string{"user-mgr", "user-boss"}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_ = w.stores.CreateDefinition(ctx, def)

	inst, err := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// Level 2 does not exist until level 1 approves.
	if n := len(w.pendingApprovals(t, "user-boss")); n != 0 {
		t.Fatalf("level-2 approvals before level 1 resolved = %d", n)
	}

	level1 := w.pendingApprovals(t, "user-mgr")
	if len(level1) != 1 || level1[0].ChainLevel != 1 || level1[0].ChainLength != 2 {
		t.Fatalf("level-1 approvals = %+v", level1)
	}
	_, _ = w.approvals.Decide(ctx, "tenant-1", "user-mgr", level1[0].ID, model.DecisionApproved, "")

	// Still running: the chain has one more level.
	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.Status != model.InstanceStatusRunning {
		t.Fatalf("Status after level 1 = %s, want running", inst.Status)
	}

	level2 := w.pendingApprovals(t, "user-boss")
	if len(level2) != 1 || level2[0].ChainLevel != 2 {
		t.Fatalf("level-2 approvals = %+v", level2)
	}
	_, _ = w.approvals.Decide(ctx, "tenant-1", "user-boss", level2[0].ID, model.DecisionApproved, "")

	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.Status != model.InstanceStatusCompleted {
		t.Errorf("Status after full chain = %s, want completed", inst.Status)
	}
}

// --- parallel fan-out join ---

func TestEngine_parallelTasksJoinBeforeAdvance(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	def := model.ProcessDefinition{
		ID:       uuid.NewString(),
		FamilyID: uuid.NewString(),
		TenantID: "tenant-1",
		Name:     "Joint Review",
		Version:  1,
		Status:   model.DefinitionStatusActive,
		Steps: []model.StepSpec{
			{Number: 1, Name: "Parallel review", Required: true, Assignees: []string{"user-bob", "user-mgr"}},
			{Number: 2, Name: "Wrap up", Required: true, Assignees: []string{"user-alice"}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_ = w.stores.CreateDefinition(ctx, def)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)

	bobTasks := w.pendingTasks(t, "user-bob")
	mgrTasks := w.pendingTasks(t, "user-mgr")
	if len(bobTasks) != 1 || len(mgrTasks) != 1 {
		t.Fatalf("fan-out tasks = %d + %d, want 1 + 1", len(bobTasks), len(mgrTasks))
	}

	_, _ = w.tasks.Complete(ctx, "tenant-1", "user-bob", bobTasks[0].ID, "ok", "")
	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.CurrentStep != 1 {
		t.Fatalf("advanced before join: CurrentStep = %d", inst.CurrentStep)
	}

	_, _ = w.tasks.Complete(ctx, "tenant-1", "user-mgr", mgrTasks[0].ID, "ok", "")
	inst, _ = w.engine.Get(ctx, "tenant-1", inst.ID)
	if inst.CurrentStep != 2 {
		t.Errorf("CurrentStep after join = %d, want 2", inst.CurrentStep)
	}
}

// --- overdue sweep ---

func TestEngine_ProcessOverdue(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)

	// Force the due date into the past.
	stored, _ := w.stores.GetInstance(ctx, "tenant-1", inst.ID)
	past := time.Now().UTC().Add(-time.Hour)
	stored.DueDate = &past
	if err := w.stores.UpdateInstance(ctx, stored); err != nil {
		t.Fatalf("UpdateInstance error: %v", err)
	}

	if err := w.engine.ProcessOverdue(ctx); err != nil {
		t.Fatalf("ProcessOverdue error: %v", err)
	}

	got, _ := w.engine.Get(ctx, "tenant-1", inst.ID)
	if got.Status != model.InstanceStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.Reason != "due date exceeded" {
		t.Errorf("Reason = %q", got.Reason)
	}

	// Open step-1 work cancelled with the instance.
	all, _ := w.stores.ListTasksByInstance(ctx, "tenant-1", inst.ID)
	for _, task := range all {
		if !task.Status.Terminal() {
			t.Errorf("task %s still %s after overdue failure", task.ID, task.Status)
		}
	}
}

// --- trail round-trip ---

func TestEngine_trailReplayReconstructsInstance(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	def := w.twoStepDefinition(t)

	inst, _ := w.engine.Start(ctx, "tenant-1", "user-alice", "", def.ID, nil)
	tasks := w.pendingTasks(t, "user-bob")
	_, _ = w.tasks.Complete(ctx, "tenant-1", "user-bob", tasks[0].ID, "done", "")
	approvals := w.pendingApprovals(t, "user-mgr")
	_, _ = w.approvals.Decide(ctx, "tenant-1", "user-mgr", approvals[0].ID, model.DecisionApproved, "")

	final, _ := w.engine.Get(ctx, "tenant-1", inst.ID)

	replay, err := w.recorder.ReplayInstance(ctx, "tenant-1", inst.ID)
	if err != nil {
		t.Fatalf("ReplayInstance error: %v", err)
	}
	if replay.Status != final.Status {
		t.Errorf("replayed status = %s, stored %s", replay.Status, final.Status)
	}
	if replay.CurrentStep != final.CurrentStep {
		t.Errorf("replayed step = %d, stored %d", replay.CurrentStep, final.CurrentStep)
	}
}
