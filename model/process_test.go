package model

import (
	"testing"
	"time"
)

func testDefinition() *ProcessDefinition {
	return &ProcessDefinition{
		ID:      "def-1",
		Version: 1,
		Status:  DefinitionStatusActive,
		Steps: []StepSpec{
			{Number: 1, Name: "Prepare", ExpectedDuration: 24 * time.Hour, Required: true},
			{Number: 2, Name: "Review", ExpectedDuration: 48 * time.Hour, Required: true, Approvers: []string{"mgr-1"}},
			{Number: 3, Name: "Archive", ExpectedDuration: time.Hour, Required: false},
		},
	}
}

func TestProcessDefinition_StepByNumber(t *testing.T) {
	def := testDefinition()
	if s := def.StepByNumber(2); s == nil || s.Name != "Review" {
		t.Errorf("StepByNumber(2) = %+v, want Review", s)
	}
	if s := def.StepByNumber(9); s != nil {
		t.Errorf("StepByNumber(9) = %+v, want nil", s)
	}
}

func TestProcessDefinition_NextStep(t *testing.T) {
	def := testDefinition()
	if s := def.NextStep(1); s == nil || s.Number != 2 {
		t.Errorf("NextStep(1) = %+v, want step 2", s)
	}
	if s := def.NextStep(3); s != nil {
		t.Errorf("NextStep(3) = %+v, want nil", s)
	}
}

func TestProcessDefinition_EstimatedDuration(t *testing.T) {
	def := testDefinition()
	want := 73 * time.Hour
	if got := def.EstimatedDuration(); got != want {
		t.Errorf("EstimatedDuration() = %v, want %v", got, want)
	}
}

func TestStepSpec_ApprovalRequired(t *testing.T) {
	def := testDefinition()
	if def.Steps[0].ApprovalRequired() {
		t.Error("step 1 should not require approval")
	}
	if !def.Steps[1].ApprovalRequired() {
		t.Error("step 2 should require approval")
	}
}

func TestProcessInstance_ProgressAgainst(t *testing.T) {
	def := testDefinition()
	tests := []struct {
		name string
		inst ProcessInstance
		want int
	}{
		{"at first step", ProcessInstance{Status: InstanceStatusRunning, CurrentStep: 1}, 0},
		{"past first required step", ProcessInstance{Status: InstanceStatusRunning, CurrentStep: 2}, 50},
		{"completed", ProcessInstance{Status: InstanceStatusCompleted, CurrentStep: 3}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inst.ProgressAgainst(def); got != tt.want {
				t.Errorf("ProgressAgainst() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstanceStatus_Terminal(t *testing.T) {
	if InstanceStatusRunning.Terminal() {
		t.Error("running should not be terminal")
	}
	for _, s := range []InstanceStatus{InstanceStatusCompleted, InstanceStatusCancelled, InstanceStatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestApprovalStatus_Open(t *testing.T) {
	if !ApprovalStatusPending.Open() || !ApprovalStatusEscalated.Open() {
		t.Error("pending and escalated are open")
	}
	for _, s := range []ApprovalStatus{ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusExpired, ApprovalStatusCancelled} {
		if s.Open() {
			t.Errorf("%s should not be open", s)
		}
	}
}
