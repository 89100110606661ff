package documents

import (
	"encoding/json"
	"errors"
	"net/http"
	"sparkpad-server/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	DocumentCreateRequest struct {
		ProjectID string `json:"projectId"`
		Title     string `json:"title"`
		Content   string `json:"content"`
	}

	DocumentCreateResponse struct {
		ID string `json:"id"`
	}

	DocumentUpdateRequest struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
)

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// storeError maps a store failure onto an HTTP status.
func storeError(w http.ResponseWriter, r *http.Request, err error, id string) {
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Document not found")
		return
	}
	logrus.WithError(err).WithField("document_id", id).Error("Document store failed")
	writeError(w, r, http.StatusInternalServerError, "Internal server error")
}

// HandleCreate stores a new document and returns its id.
func HandleCreate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DocumentCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode document")
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		id, err := store.Create(r.Context(), &core.Document{
			ProjectID: req.ProjectID,
			Title:     req.Title,
			Content:   req.Content,
		})
		if err != nil {
			storeError(w, r, err, "")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, DocumentCreateResponse{ID: id})
	}
}

func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		doc, err := store.FindID(r.Context(), id)
		if err != nil {
			storeError(w, r, err, id)
			return
		}
		render.JSON(w, r, doc)
	}
}

// HandleUpdate replaces title and content; the previous state becomes a
// revision.
func HandleUpdate(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req DocumentUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		doc := &core.Document{ID: id, Title: req.Title, Content: req.Content}
		if err := store.Update(r.Context(), doc); err != nil {
			storeError(w, r, err, id)
			return
		}
		render.JSON(w, r, doc)
	}
}

func HandleHistory(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		revs, err := store.History(r.Context(), id)
		if err != nil {
			storeError(w, r, err, id)
			return
		}
		if revs == nil {
			revs = []core.Revision{}
		}
		render.JSON(w, r, revs)
	}
}
