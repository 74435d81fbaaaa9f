package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/procesio/procesio/internal/approval"
	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/directory"
	"github.com/procesio/procesio/internal/notify"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

type advanceCall struct {
	instanceID    string
	completedStep int
}

type stubAdvancer struct {
	calls []advanceCall
}

func (s *stubAdvancer) Advance(ctx context.Context, tenantID, actor, instanceID string, completedStep int) (model.ProcessInstance, error) {
	s.calls = append(s.calls, advanceCall{instanceID: instanceID, completedStep: completedStep})
	return model.ProcessInstance{}, nil
}

type fixture struct {
	stores   *store.MemoryStores
	router   *approval.Router
	advancer *stubAdvancer
	inst     model.ProcessInstance
	def      model.ProcessDefinition
}

// newFixture seeds a running instance at a single approval step with a
// two-approver serial chain.
func newFixture(t *testing.T, approvers ...string) *fixture {
	t.Helper()
	if len(approvers) == 0 {
		approvers = []string{"user-mgr", "user-vp"}
	}

	mem := store.NewMemoryStores()
	recorder := audit.NewRecorder(mem, nil)
	resolver := directory.NewStaticResolver(map[string]string{
		"user-mgr":  "Mary Manager",
		"user-vp":   "Vik President",
		"user-boss": "Bella Boss",
	})
	adv := &stubAdvancer{}

	router := approval.NewRouter(mem, mem, mem, recorder, resolver, notify.NewLogNotifier(), nil, approval.Options{
		FallbackApprover: "user-boss",
		EscalationGrace:  24 * time.Hour,
	})
	router.SetAdvancer(adv)

	now := time.Now().UTC()
	def := model.ProcessDefinition{
		ID:       uuid.NewString(),
		FamilyID: uuid.NewString(),
		TenantID: "tenant-1",
		Name:     "Budget Sign-off",
		Version:  1,
		Status:   model.DefinitionStatusActive,
		Steps: []model.StepSpec{
			{Number: 1, Name: "Sign-off", ExpectedDuration: 8 * time.Hour, Required: true, Approvers: approvers},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	inst := model.ProcessInstance{
		ID:                uuid.NewString(),
		DefinitionID:      def.ID,
		DefinitionVersion: 1,
		TenantID:          "tenant-1",
		InitiatedBy:       "user-alice",
		Status:            model.InstanceStatusRunning,
		CurrentStep:       1,
		StartedAt:         now,
		UpdatedAt:         now,
	}
	if err := mem.CreateDefinition(context.Background(), def); err != nil {
		t.Fatalf("CreateDefinition error: %v", err)
	}
	if err := mem.CreateInstance(context.Background(), inst); err != nil {
		t.Fatalf("CreateInstance error: %v", err)
	}
	return &fixture{stores: mem, router: router, advancer: adv, inst: inst, def: def}
}

func (f *fixture) request(t *testing.T) model.Approval {
	t.Helper()
	if err := f.router.Request(context.Background(), f.inst, f.def, f.def.Steps[0]); err != nil {
		t.Fatalf("Request error: %v", err)
	}
	approvals, err := f.stores.ListApprovalsByInstance(context.Background(), "tenant-1", f.inst.ID)
	if err != nil {
		t.Fatalf("ListApprovalsByInstance error: %v", err)
	}
	if len(approvals) == 0 {
		t.Fatal("no approval materialized")
	}
	return approvals[len(approvals)-1]
}

func TestRouter_Request(t *testing.T) {
	f := newFixture(t)
	appr := f.request(t)

	if appr.Approver != "user-mgr" {
		t.Errorf("Approver = %q, want chain head", appr.Approver)
	}
	if appr.ApproverName != "Mary Manager" {
		t.Errorf("ApproverName = %q", appr.ApproverName)
	}
	if appr.ChainLevel != 1 || appr.ChainLength != 2 {
		t.Errorf("chain position = %d/%d, want 1/2", appr.ChainLevel, appr.ChainLength)
	}
	if appr.Status != model.ApprovalStatusPending {
		t.Errorf("Status = %s, want pending", appr.Status)
	}
	if appr.DueDate == nil {
		t.Error("DueDate not derived from step duration")
	}
}

func TestRouter_Request_noApprovers(t *testing.T) {
	f := newFixture(t)

	step := model.StepSpec{Number: 1, Name: "Sign-off", Required: true}
	err := f.router.Request(context.Background(), f.inst, f.def, step)
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("Request without approvers error = %v, want INVALID_STATE", err)
	}
}

func TestRouter_Decide_approveMovesChain(t *testing.T) {
	f := newFixture(t)
	first := f.request(t)

	decided, err := f.router.Decide(context.Background(), "tenant-1", "user-mgr", first.ID, model.DecisionApproved, "fine by me")
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if decided.Status != model.ApprovalStatusApproved {
		t.Errorf("Status = %s, want approved", decided.Status)
	}
	if decided.DecidedAt == nil {
		t.Error("DecidedAt not set")
	}

	// Mid-chain approval creates the next level, no advance yet.
	if len(f.advancer.calls) != 0 {
		t.Fatalf("advance calls = %d after level 1 of 2", len(f.advancer.calls))
	}
	pending, _ := f.router.ListPending(context.Background(), "tenant-1", "user-vp")
	if len(pending) != 1 || pending[0].ChainLevel != 2 {
		t.Fatalf("level-2 pending = %+v", pending)
	}

	// Final approval signals the engine.
	if _, err := f.router.Decide(context.Background(), "tenant-1", "user-vp", pending[0].ID, model.DecisionApproved, ""); err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if len(f.advancer.calls) != 1 {
		t.Fatalf("advance calls = %d, want 1", len(f.advancer.calls))
	}
	if call := f.advancer.calls[0]; call.instanceID != f.inst.ID || call.completedStep != 1 {
		t.Errorf("advance call = %+v", call)
	}
}

func TestRouter_Decide_rejectStopsChain(t *testing.T) {
	f := newFixture(t)
	first := f.request(t)

	decided, err := f.router.Decide(context.Background(), "tenant-1", "user-mgr", first.ID, model.DecisionRejected, "over budget")
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if decided.Status != model.ApprovalStatusRejected {
		t.Errorf("Status = %s, want rejected", decided.Status)
	}

	// No level 2, no advance.
	all, _ := f.stores.ListApprovalsByInstance(context.Background(), "tenant-1", f.inst.ID)
	if len(all) != 1 {
		t.Errorf("approvals = %d, want 1 (chain stopped)", len(all))
	}
	if len(f.advancer.calls) != 0 {
		t.Errorf("advance calls = %d, want 0", len(f.advancer.calls))
	}
}

func TestRouter_Decide_guards(t *testing.T) {
	f := newFixture(t)
	appr := f.request(t)

	// Only the assigned approver decides.
	_, err := f.router.Decide(context.Background(), "tenant-1", "user-vp", appr.ID, model.DecisionApproved, "")
	if !model.IsCode(err, model.ErrForbidden) {
		t.Errorf("foreign Decide error = %v, want FORBIDDEN", err)
	}

	// Unknown decision value.
	_, err = f.router.Decide(context.Background(), "tenant-1", "user-mgr", appr.ID, model.Decision("maybe"), "")
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Errorf("bad decision error = %v, want BAD_REQUEST", err)
	}

	// Terminal records are never re-decided.
	if _, err := f.router.Decide(context.Background(), "tenant-1", "user-mgr", appr.ID, model.DecisionRejected, ""); err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	_, err = f.router.Decide(context.Background(), "tenant-1", "user-mgr", appr.ID, model.DecisionApproved, "")
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Errorf("re-Decide error = %v, want INVALID_STATE", err)
	}
}

func TestRouter_Decide_terminalInstance(t *testing.T) {
	f := newFixture(t)
	appr := f.request(t)

	inst, _ := f.stores.GetInstance(context.Background(), "tenant-1", f.inst.ID)
	now := time.Now().UTC()
	inst.Status = model.InstanceStatusCancelled
	inst.CompletedAt = &now
	if err := f.stores.UpdateInstance(context.Background(), inst); err != nil {
		t.Fatalf("UpdateInstance error: %v", err)
	}

	_, err := f.router.Decide(context.Background(), "tenant-1", "user-mgr", appr.ID, model.DecisionApproved, "")
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("Decide on cancelled instance error = %v, want INVALID_STATE", err)
	}
}

func TestRouter_Escalate(t *testing.T) {
	f := newFixture(t)
	appr := f.request(t)

	// Not yet past due.
	_, err := f.router.Escalate(context.Background(), "tenant-1", appr.ID)
	if !model.IsCode(err, model.ErrInvalidState) {
		t.Fatalf("early Escalate error = %v, want INVALID_STATE", err)
	}

	// Push the due date into the past.
	stored, _ := f.stores.GetApproval(context.Background(), "tenant-1", appr.ID)
	past := time.Now().UTC().Add(-time.Hour)
	stored.DueDate = &past
	if err := f.stores.UpdateApproval(context.Background(), stored); err != nil {
		t.Fatalf("UpdateApproval error: %v", err)
	}

	escalated, err := f.router.Escalate(context.Background(), "tenant-1", appr.ID)
	if err != nil {
		t.Fatalf("Escalate error: %v", err)
	}
	if escalated.Status != model.ApprovalStatusEscalated {
		t.Errorf("Status = %s, want escalated", escalated.Status)
	}
	if escalated.Approver != "user-boss" || escalated.ApproverName != "Bella Boss" {
		t.Errorf("fallback approver = %q (%q)", escalated.Approver, escalated.ApproverName)
	}
	if escalated.DueDate == nil || !escalated.DueDate.After(time.Now().UTC()) {
		t.Errorf("DueDate not reset into the future: %v", escalated.DueDate)
	}

	// An escalated approval stays decidable by the fallback.
	if _, err := f.router.Decide(context.Background(), "tenant-1", "user-boss", escalated.ID, model.DecisionApproved, ""); err != nil {
		t.Fatalf("Decide after escalation error: %v", err)
	}
}

func TestRouter_ProcessEscalations(t *testing.T) {
	f := newFixture(t)
	appr := f.request(t)

	stored, _ := f.stores.GetApproval(context.Background(), "tenant-1", appr.ID)
	past := time.Now().UTC().Add(-time.Hour)
	stored.DueDate = &past
	_ = f.stores.UpdateApproval(context.Background(), stored)

	if err := f.router.ProcessEscalations(context.Background()); err != nil {
		t.Fatalf("ProcessEscalations error: %v", err)
	}
	got, _ := f.stores.GetApproval(context.Background(), "tenant-1", appr.ID)
	if got.Status != model.ApprovalStatusEscalated {
		t.Fatalf("Status = %s, want escalated", got.Status)
	}

	// A repeat sweep leaves the escalated record with the fallback.
	got.DueDate = &past
	_ = f.stores.UpdateApproval(context.Background(), got)
	if err := f.router.ProcessEscalations(context.Background()); err != nil {
		t.Fatalf("ProcessEscalations error: %v", err)
	}
	again, _ := f.stores.GetApproval(context.Background(), "tenant-1", appr.ID)
	if again.Status != model.ApprovalStatusEscalated || again.Approver != "user-boss" {
		t.Errorf("re-sweep mutated approval: %s by %q", again.Status, again.Approver)
	}
}

func TestRouter_CancelOpenForInstance(t *testing.T) {
	f := newFixture(t)
	appr := f.request(t)

	if err := f.router.CancelOpenForInstance(context.Background(), f.inst, "instance cancelled"); err != nil {
		t.Fatalf("CancelOpenForInstance error: %v", err)
	}
	got, _ := f.stores.GetApproval(context.Background(), "tenant-1", appr.ID)
	if got.Status != model.ApprovalStatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
}
