package httpapi

import (
	"errors"
	"net/http"

	"github.com/rafflehub/rewards/internal/app/services/ledger"
	"github.com/rafflehub/rewards/internal/app/services/raffle"
	"github.com/rafflehub/rewards/internal/app/services/users"
	"github.com/rafflehub/rewards/internal/app/storage"
	apperrors "github.com/rafflehub/rewards/internal/errors"
	"github.com/rafflehub/rewards/internal/httputil"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return httputil.DecodeJSON(w, r, dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteErrorResponse(w, status, code, message, nil)
}

func writeInvalidInput(w http.ResponseWriter, err error) {
	writeErrorBody(w, http.StatusBadRequest, string(apperrors.CodeInvalidInput), err.Error())
}

// respondError maps domain and storage errors onto the error taxonomy. The
// conflict family keeps its specific message so clients can distinguish a
// replayed decision from an exhausted balance.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteError(w, apperrors.NotFound("resource not found"))
	case errors.Is(err, storage.ErrAlreadyDecided):
		httputil.WriteError(w, apperrors.Conflict("token already decided"))
	case errors.Is(err, storage.ErrInsufficientBalance):
		httputil.WriteError(w, apperrors.Conflict("insufficient balance"))
	case errors.Is(err, storage.ErrAlreadyBound):
		httputil.WriteError(w, apperrors.Conflict("referrer already bound"))
	case errors.Is(err, storage.ErrAlreadyMigrated):
		httputil.WriteError(w, apperrors.Conflict("legacy transaction already migrated"))
	case errors.Is(err, raffle.ErrOpenRoundBusy):
		httputil.WriteError(w, apperrors.Conflict("an open round already exists"))
	case errors.Is(err, users.ErrSelfReferral),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, raffle.ErrNoOpenRound),
		errors.Is(err, raffle.ErrNoEntries):
		httputil.WriteError(w, apperrors.InvalidInput(err.Error()))
	default:
		httputil.WriteError(w, err)
	}
}
