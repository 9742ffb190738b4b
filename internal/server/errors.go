package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hlab-io/openconsole/internal/iam"
	"github.com/hlab-io/openconsole/internal/session"
)

// writeJSON writes the payload with the given status. Encoding failures are
// logged; by then the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes the common error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeProviderError maps upstream failures onto the console's status ladder:
// credential problems surface as 401, everything else from the provider as a
// 500 with a stable message. Provider response bodies never reach the client.
func writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrRefreshFailed), errors.Is(err, session.ErrSessionRevoked):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, iam.ErrNoCredential):
		writeError(w, http.StatusUnauthorized, "no credential for provider call")
	default:
		var provErr *iam.ProviderError
		if errors.As(err, &provErr) {
			log.Error().Int("status", provErr.StatusCode).Str("op", provErr.Op).Msg("provider call failed")
		} else {
			log.Error().Err(err).Msg("provider call failed")
		}
		writeError(w, http.StatusInternalServerError, "provider request failed")
	}
}
