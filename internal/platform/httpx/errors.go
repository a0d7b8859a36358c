package httpx

import (
	"errors"
	"net/http"

	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

// Problem type namespace; the suffix is the stable machine-checkable kind.
const kindPrefix = "urn:foundry:"

// ProblemKind sends an RFC7807 response carrying a stable error kind in the
// Type field so callers can branch without parsing the detail text.
func ProblemKind(w http.ResponseWriter, status int, kind, title, detail string) {
	JSON(w, status, ProblemDetail{
		Type:   kindPrefix + kind,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// RespondError maps cross-module errors to HTTP responses. Module handlers
// map their own sentinels first and fall back to this for the shared ones.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		ProblemKind(w, http.StatusNotFound, "not-found", "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateCode):
		ProblemKind(w, http.StatusConflict, "duplicate-code", "Duplicate Code", err.Error())
	case errors.Is(err, statemachine.ErrInvalidTransition):
		ProblemKind(w, http.StatusConflict, "invalid-transition", "Invalid Transition", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
