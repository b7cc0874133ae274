package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/httputil"
	"github.com/edulive/session-knowledge/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// sessionIDParam reads {id} and rejects anything that is not a UUID before it
// reaches Postgres.
func sessionIDParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", apperrors.MissingRequired("id")
	}
	if !util.IsValidUUID(id) {
		return "", apperrors.InvalidInput("id", "must be a UUID")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ValidationError("Invalid JSON body")
	}
	return nil
}
