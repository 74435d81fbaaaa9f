// Package audit records every state change as an append-only event
// trail and reconstructs instance histories from it.
package audit

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

// trailPageSize is how many events TrailFor loads per store round trip.
const trailPageSize = 100

// Recorder appends audit events and serves trails. Events are never
// mutated or deleted once written.
type Recorder struct {
	store   store.AuditStore
	metrics *observability.Metrics
}

// NewRecorder creates an audit recorder over the given store.
func NewRecorder(auditStore store.AuditStore, metrics *observability.Metrics) *Recorder {
	return &Recorder{store: auditStore, metrics: metrics}
}

// Record appends one event to the trail. ID and Timestamp are filled
// in when absent. A storage failure surfaces as STORAGE_ERROR; the
// caller decides whether the surrounding operation can proceed.
func (r *Recorder) Record(ctx context.Context, event model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := r.store.AppendEvent(ctx, event); err != nil {
		observability.LoggerFrom(ctx).Error("audit append failed",
			zap.String("subject_id", event.SubjectID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		return model.NewStorageError("audit append", err)
	}

	if r.metrics != nil {
		r.metrics.RecordAuditEvent(string(event.SubjectType), string(event.Type))
	}
	observability.LoggerFrom(ctx).Debug("audit event recorded",
		zap.String("subject_type", string(event.SubjectType)),
		zap.String("subject_id", event.SubjectID),
		zap.String("event_type", string(event.Type)),
		zap.String("actor", event.Actor),
	)
	return nil
}

// TrailFor returns the chronological event trail for a subject. For an
// instance the trail includes correlated task and approval events. The
// sequence is lazy: pages are fetched from the store as the caller
// iterates, and the sequence can be ranged over more than once.
func (r *Recorder) TrailFor(ctx context.Context, tenantID, subjectID string) iter.Seq2[model.AuditEvent, error] {
	return func(yield func(model.AuditEvent, error) bool) {
		offset := 0
		for {
			events, err := r.store.ListEventsBySubject(ctx, tenantID, subjectID, offset, trailPageSize)
			if err != nil {
				yield(model.AuditEvent{}, model.NewStorageError("audit trail", err))
				return
			}
			for _, ev := range events {
				if !yield(ev, nil) {
					return
				}
			}
			if len(events) < trailPageSize {
				return
			}
			offset += len(events)
		}
	}
}

// InstanceReplay is the end state reconstructed from a trail.
type InstanceReplay struct {
	InstanceID  string               `json:"instance_id"`
	Status      model.InstanceStatus `json:"status"`
	CurrentStep int                  `json:"current_step"`
	EventCount  int                  `json:"event_count"`
	StartedAt   time.Time            `json:"started_at"`
	EndedAt     *time.Time           `json:"ended_at,omitempty"`
	Steps       []StepTransition     `json:"steps"`
	Events      []model.AuditEvent   `json:"events,omitempty"`
}

// StepTransition is one advancement observed in a trail.
type StepTransition struct {
	FromStep int       `json:"from_step"`
	ToStep   int       `json:"to_step"`
	Actor    string    `json:"actor"`
	At       time.Time `json:"at"`
}

// ReplayInstance folds an instance trail back into its final status
// and step position. Used by compliance reporting to verify that the
// stored instance matches what the trail implies.
func (r *Recorder) ReplayInstance(ctx context.Context, tenantID, instanceID string) (InstanceReplay, error) {
	replay := InstanceReplay{InstanceID: instanceID}

	for ev, err := range r.TrailFor(ctx, tenantID, instanceID) {
		if err != nil {
			return InstanceReplay{}, err
		}
		replay.EventCount++
		replay.Events = append(replay.Events, ev)

		if ev.SubjectType != model.SubjectInstance || ev.SubjectID != instanceID {
			continue
		}
		switch ev.Type {
		case model.EventCreated:
			replay.Status = model.InstanceStatusRunning
			replay.CurrentStep = detailInt(ev.Detail, "current_step", 1)
			replay.StartedAt = ev.Timestamp
		case model.EventAdvanced:
			from := replay.CurrentStep
			to := detailInt(ev.Detail, "to_step", from+1)
			replay.Steps = append(replay.Steps, StepTransition{
				FromStep: from, ToStep: to, Actor: ev.Actor, At: ev.Timestamp,
			})
			replay.CurrentStep = to
		case model.EventCancelled:
			replay.Status = model.InstanceStatusCancelled
			at := ev.Timestamp
			replay.EndedAt = &at
		case model.EventFailed:
			replay.Status = model.InstanceStatusFailed
			at := ev.Timestamp
			replay.EndedAt = &at
		}
	}

	if replay.EventCount == 0 {
		return InstanceReplay{}, model.NewNotFoundError("no trail for instance: " + instanceID)
	}

	// A trail ending with an advance past the last step means the
	// instance completed; the advance event carries the marker.
	for _, ev := range replay.Events {
		if ev.Type == model.EventAdvanced && detailBool(ev.Detail, "completed") {
			replay.Status = model.InstanceStatusCompleted
			at := ev.Timestamp
			replay.EndedAt = &at
		}
	}
	return replay, nil
}

func detailInt(detail map[string]any, key string, fallback int) int {
	if detail == nil {
		return fallback
	}
	switch v := detail[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func detailBool(detail map[string]any, key string) bool {
	if detail == nil {
		return false
	}
	v, _ := detail[key].(bool)
	return v
}
