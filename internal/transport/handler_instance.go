package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/engine"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

func handleInstanceStart(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			DefinitionID string         `json:"definition_id"`
			Input        map[string]any `json:"input"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if body.DefinitionID == "" {
			WriteBadRequest(w, "definition_id is required")
			return
		}

		actorName := claimString(rctx.Claims, "name")
		inst, err := eng.Start(r.Context(), rctx.TenantID, rctx.SubjectID, actorName, body.DefinitionID, body.Input)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, inst)
	}
}

// instanceResponse embeds the instance with its derived progress.
type instanceResponse struct {
	model.ProcessInstance
	Progress int `json:"progress"`
}

func handleInstanceGet(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())
		id := chi.URLParam(r, "id")

		inst, err := eng.Get(r.Context(), rctx.TenantID, id)
		if err != nil {
			WriteError(w, err)
			return
		}
		progress, err := eng.Progress(r.Context(), rctx.TenantID, id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, instanceResponse{ProcessInstance: inst, Progress: progress})
	}
}

func handleInstanceList(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		filters := store.InstanceFilters{
			DefinitionID: r.URL.Query().Get("definition_id"),
			Status:       model.InstanceStatus(r.URL.Query().Get("status")),
			InitiatedBy:  r.URL.Query().Get("initiated_by"),
			Limit:        queryInt(r, "limit", 20),
			Offset:       queryInt(r, "offset", 0),
		}
		instances, err := eng.List(r.Context(), rctx.TenantID, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, instances)
	}
}

func handleInstanceCancel(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		inst, err := eng.Cancel(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"), body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceTrail(recorder *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var events []model.AuditEvent
		for ev, err := range recorder.TrailFor(r.Context(), rctx.TenantID, chi.URLParam(r, "id")) {
			if err != nil {
				WriteError(w, err)
				return
			}
			events = append(events, ev)
		}
		if len(events) == 0 {
			WriteError(w, model.NewNotFoundError("no trail for instance"))
			return
		}
		writeList(w, events)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
