package rooms

import (
	"context"
	"net/http"
	"sparkpad-server/relay"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// Lister reports the rooms that currently have members.
type Lister interface {
	Rooms(ctx context.Context) ([]relay.RoomInfo, error)
}

// HandleList returns the active rooms, most populated first.
func HandleList(lister Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := lister.Rooms(r.Context())
		if err != nil {
			logrus.WithError(err).Warn("failed to list rooms")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"error": "Rooms unavailable"})
			return
		}
		if rooms == nil {
			rooms = []relay.RoomInfo{}
		}
		render.JSON(w, r, rooms)
	}
}
