package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/woodchain/internal/accounts"
	"github.com/ariefcatur/woodchain/internal/catalog"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "VALIDATION"})
}

// classify maps domain errors onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	var (
		mirror   *pipeline.LedgerMirrorError
		invalid  *pipeline.ValidationError
		notFound *pipeline.NotFoundError
		ident    *pipeline.IdentityResolutionError
		local    *pipeline.LocalCommitError
		signup   *accounts.SignupError
	)
	switch {
	case errors.As(err, &mirror):
		return http.StatusBadGateway, "LEDGER_MIRROR_FAILED"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "VALIDATION"
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Kind.String()
	case errors.As(err, &ident):
		return http.StatusServiceUnavailable, "IDENTITY_UNRESOLVED"
	case errors.As(err, &local):
		return http.StatusInternalServerError, "LOCAL_COMMIT_FAILED"
	case errors.As(err, &signup):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, accounts.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN"
	case errors.Is(err, accounts.ErrInvalidCredentials), errors.Is(err, accounts.ErrNoSession):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code, name := classify(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg, Code: name})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
