package model

import (
	"errors"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "instance missing"}
	want := "NOT_FOUND: instance missing"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewNotFoundError(t *testing.T) {
	e := NewNotFoundError("resource missing")
	if e.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", e.Code, ErrNotFound)
	}
	if e.Message != "resource missing" {
		t.Errorf("Message = %q, want %q", e.Message, "resource missing")
	}
}

func TestNewInvalidStateError(t *testing.T) {
	e := NewInvalidStateError("task already completed")
	if e.Code != ErrInvalidState {
		t.Errorf("Code = %q, want %q", e.Code, ErrInvalidState)
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "steps", Code: "ASCENDING", Message: "step numbers must ascend"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidation)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "steps" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "steps")
	}
}

func TestNewStorageError(t *testing.T) {
	e := NewStorageError("insert audit event", errors.New("connection refused"))
	if e.Code != ErrStorage {
		t.Errorf("Code = %q, want %q", e.Code, ErrStorage)
	}
}

func TestIsCode(t *testing.T) {
	if !IsCode(NewConflictError("version mismatch"), ErrConflict) {
		t.Error("IsCode should match CONFLICT envelope")
	}
	if IsCode(errors.New("plain"), ErrConflict) {
		t.Error("IsCode should not match plain errors")
	}
	if IsCode(nil, ErrConflict) {
		t.Error("IsCode should not match nil")
	}
}
