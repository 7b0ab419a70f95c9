package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
)

// httpError is a failure with a fixed status and machine-readable code.
type httpError struct {
	Status int
	Code   string
	Detail string
}

func (h httpError) Error() string {
	if h.Detail != "" {
		return fmt.Sprintf("%s: %s", h.Code, h.Detail)
	}
	return h.Code
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// toHTTPError maps service sentinels onto statuses. Store and unknown
// failures get a generic detail; the cause is logged by the service.
func toHTTPError(err error) httpError {
	var he httpError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, common.ErrorUnauthorized):
		return httpError{Status: http.StatusUnauthorized, Code: "unauthorized", Detail: "invalid credentials or token"}
	case errors.Is(err, common.ErrorForbidden):
		return httpError{Status: http.StatusForbidden, Code: "forbidden", Detail: "access denied"}
	case errors.Is(err, common.ErrorNotFound):
		return httpError{Status: http.StatusNotFound, Code: "not_found", Detail: "not found"}
	case errors.Is(err, common.ErrVersionConflict):
		return httpError{Status: http.StatusConflict, Code: "version_conflict", Detail: "document changed, fetch the latest version and retry"}
	case errors.Is(err, common.ErrorAlreadyExists):
		return httpError{Status: http.StatusBadRequest, Code: "already_exists", Detail: "username already taken"}
	case errors.Is(err, common.ErrorBadRequest):
		return httpError{Status: http.StatusBadRequest, Code: "bad_request", Detail: "invalid request"}
	case errors.Is(err, common.ErrorStore):
		return httpError{Status: http.StatusInternalServerError, Code: "store_error", Detail: "storage unavailable"}
	default:
		return httpError{Status: http.StatusInternalServerError, Code: "internal_error", Detail: "internal server error"}
	}
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	log := logging.FromContext(ctx, h.log)
	if he.Status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", "status", he.Status, "code", he.Code, "error", err)
	} else {
		log.Debug(ctx, "request rejected", "status", he.Status, "code", he.Code)
	}
	writeJSON(w, he.Status, errorResponse{Error: he.Code, Detail: he.Detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
