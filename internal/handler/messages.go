package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/watsumi/gentle-review/internal/settings"
)

// Messages answers getSettings and updateSettings requests through router.
func Messages(router *settings.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg settings.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		resp, err := router.Handle(r.Context(), msg)
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case errors.Is(err, settings.ErrUnknownMessage):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
				writeError(w, http.StatusBadRequest, "invalid settings")
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
