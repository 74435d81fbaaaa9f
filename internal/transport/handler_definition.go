package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procesio/procesio/internal/definition"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

func handleDefinitionCreate(svc *definition.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var req definition.CreateRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}

		def, err := svc.Create(r.Context(), rctx.TenantID, rctx.SubjectID, req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, def)
	}
}

func handleDefinitionPublish(svc *definition.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		def, err := svc.Publish(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleDefinitionRevise(svc *definition.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var req definition.ReviseRequest
		if err := decodeBody(r, &req); err != nil {
			WriteError(w, err)
			return
		}

		def, err := svc.ReviseVersion(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"), req.Steps)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, def)
	}
}

func handleDefinitionRetire(svc *definition.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		def, err := svc.Retire(r.Context(), rctx.TenantID, rctx.SubjectID, chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleDefinitionGet(svc *definition.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		def, err := svc.Get(r.Context(), rctx.TenantID, chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}

func handleDefinitionList(svc *definition.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		filters := store.DefinitionFilters{
			FamilyID: r.URL.Query().Get("family_id"),
			Status:   model.DefinitionStatus(r.URL.Query().Get("status")),
			Category: r.URL.Query().Get("category"),
		}
		defs, err := svc.List(r.Context(), rctx.TenantID, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeList(w, defs)
	}
}
