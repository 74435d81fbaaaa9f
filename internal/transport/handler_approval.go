package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procesio/procesio/internal/advisor"
	"github.com/procesio/procesio/internal/approval"
	"github.com/procesio/procesio/model"
)

func handleApprovalListPending(router *approval.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		approvals, err := router.ListPending(r.Context(), rctx.TenantID, rctx.SubjectID)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, approvals)
	}
}

func handleApprovalDecide(router *approval.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			Decision string `json:"decision"`
			Comments string `json:"comments"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		decided, err := router.Decide(r.Context(), rctx.TenantID, rctx.SubjectID,
			chi.URLParam(r, "id"), model.Decision(body.Decision), body.Comments)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, decided)
	}
}

func handleOptimizationReport(adv *advisor.Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		definitionID := r.URL.Query().Get("definition_id")
		if definitionID == "" {
			WriteBadRequest(w, "definition_id is required")
			return
		}

		report, err := adv.Report(r.Context(), rctx.TenantID, definitionID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}
