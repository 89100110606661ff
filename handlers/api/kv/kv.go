package kv

import (
	"errors"
	"io"
	"net/http"
	"sparkpad-server/core"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// maxValueSize bounds a single stored value.
const maxValueSize = 10 << 20

// Modes selects a blob store per request: "disk" is the configured durable
// store, "memory" a volatile process-local one.
type Modes struct {
	Disk   core.BlobStore
	Memory core.BlobStore
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// resolve picks the store and key of a request, answering 400 itself when
// either is unusable.
func (m Modes) resolve(w http.ResponseWriter, r *http.Request) (core.BlobStore, string, bool) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		writeError(w, r, http.StatusBadRequest, "Key is required")
		return nil, "", false
	}

	switch q.Get("mode") {
	case "", "disk":
		return m.Disk, key, true
	case "memory":
		return m.Memory, key, true
	}
	writeError(w, r, http.StatusBadRequest, "Unknown storage mode")
	return nil, "", false
}

func storeError(w http.ResponseWriter, r *http.Request, err error, key string) {
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Key not found")
		return
	}
	logrus.WithFields(logrus.Fields{
		"error": err,
		"key":   key,
	}).Error("Blob store failed")
	writeError(w, r, http.StatusInternalServerError, "Internal server error")
}

// HandleGet returns the raw stored value.
func HandleGet(modes Modes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, key, ok := modes.resolve(w, r)
		if !ok {
			return
		}

		value, err := store.Get(r.Context(), key)
		if err != nil {
			storeError(w, r, err, key)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(value)
	}
}

func HandlePut(modes Modes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, key, ok := modes.resolve(w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err,
				"key":   key,
			}).Warn("Failed to read request body")
			writeError(w, r, http.StatusBadRequest, "Failed to read request body")
			return
		}

		if err := store.Put(r.Context(), key, body); err != nil {
			storeError(w, r, err, key)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleDelete(modes Modes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, key, ok := modes.resolve(w, r)
		if !ok {
			return
		}

		if err := store.Delete(r.Context(), key); err != nil {
			storeError(w, r, err, key)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
