package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/leasekeeper/internal/common"
	"github.com/dmitrijs2005/leasekeeper/internal/logging"
	"github.com/dmitrijs2005/leasekeeper/internal/server/auth"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ctxKey string

const identityKey ctxKey = "identity"

func contextWithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// identityFromContext is only valid behind authenticate.
func identityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument tags the request with an id, attaches a request-scoped
// logger and records latency per route template.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := strings.TrimSpace(r.Header.Get(common.RequestIDHeaderName))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(common.RequestIDHeaderName, reqID)

		log := h.log.With("request_id", reqID, "method", r.Method, "path", r.URL.Path)
		ctx := logging.ContextWithLogger(r.Context(), log)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		h.metrics.ObserveRequest(route, r.Method, strconv.Itoa(rec.status), elapsed.Seconds())
		log.Debug(ctx, "request served", "status", rec.status, "duration", elapsed)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	v := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(v, common.BearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(v, common.BearerPrefix))
	return tok, tok != ""
}

// authenticate rejects requests without a valid bearer token.
func (h *Handler) authenticate(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tok, ok := bearerToken(r)
		if !ok {
			return common.ErrorUnauthorized
		}
		id, err := h.svc.Users.Authenticate(tok)
		if err != nil {
			return common.ErrorUnauthorized
		}

		ctx := contextWithIdentity(r.Context(), id)
		log := logging.FromContext(ctx, h.log).With("user_id", id.UserID)
		ctx = logging.ContextWithLogger(ctx, log)

		return next(w, r.WithContext(ctx))
	}
}

func (h *Handler) requireAdmin(next handlerFunc) handlerFunc {
	return h.authenticate(func(w http.ResponseWriter, r *http.Request) error {
		if !identityFromContext(r.Context()).Role.IsAdmin() {
			return common.ErrorForbidden
		}
		return next(w, r)
	})
}
