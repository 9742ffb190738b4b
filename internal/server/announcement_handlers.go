package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/repository"
)

const announcementListLimit = 50

// HandleListAnnouncements returns dashboard announcements, newest first.
func HandleListAnnouncements(announcements repository.AnnouncementRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := announcements.List(r.Context(), announcementListLimit)
		if err != nil {
			log.Error().Err(err).Msg("announcement listing failed")
			writeError(w, http.StatusInternalServerError, "failed to list announcements")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": list})
	}
}

// HandleGetAnnouncement returns a single announcement by slug.
func HandleGetAnnouncement(announcements repository.AnnouncementRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		a, err := announcements.GetBySlug(r.Context(), slug)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusNotFound, "announcement not found")
				return
			}
			log.Error().Err(err).Str("slug", slug).Msg("announcement lookup failed")
			writeError(w, http.StatusInternalServerError, "failed to load announcement")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
