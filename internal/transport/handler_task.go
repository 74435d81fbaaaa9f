package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procesio/procesio/internal/task"
	"github.com/procesio/procesio/model"
)

func handleTaskListPending(mgr *task.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		tasks, err := mgr.ListPending(r.Context(), rctx.TenantID, rctx.SubjectID)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, tasks)
	}
}

func handleTaskStart(mgr *task.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		started, err := mgr.Start(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, started)
	}
}

func handleTaskComplete(mgr *task.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			Outcome  string `json:"outcome"`
			Comments string `json:"comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		done, err := mgr.Complete(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"), body.Outcome, body.Comments)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, done)
	}
}

func handleTaskReassign(mgr *task.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			Assignee string `json:"assignee"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if body.Assignee == "" {
			WriteBadRequest(w, "assignee is required")
			return
		}

		moved, err := mgr.Reassign(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"), body.Assignee)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, moved)
	}
}
