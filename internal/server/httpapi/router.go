package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/leasekeeper/internal/server/metrics"
	"github.com/gorilla/mux"
)

// Router mounts the API under the configured prefix. Health and metrics
// stay at the root so probes do not depend on the prefix.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(h.instrument)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	if h.registry != nil {
		r.Handle("/metrics", metrics.Handler(h.registry)).Methods(http.MethodGet)
	}

	api := r
	if h.prefix != "" {
		api = r.PathPrefix(h.prefix).Subrouter()
	}

	api.HandleFunc("/login", h.wrap(h.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/me", h.wrap(h.authenticate(h.handleMe))).Methods(http.MethodGet)

	api.HandleFunc("/account/occupy", h.wrap(h.authenticate(h.handleOccupy))).Methods(http.MethodPost)
	api.HandleFunc("/heartbeat", h.wrap(h.authenticate(h.handleHeartbeat))).Methods(http.MethodPost)

	api.HandleFunc("/sync", h.wrap(h.authenticate(h.handleSyncGet))).Methods(http.MethodGet)
	api.HandleFunc("/sync", h.wrap(h.authenticate(h.handleSyncPut))).Methods(http.MethodPost)
	api.HandleFunc("/sync/account", h.wrap(h.authenticate(h.handleSyncDeleteItem))).Methods(http.MethodDelete)

	api.HandleFunc("/users", h.wrap(h.requireAdmin(h.handleListUsers))).Methods(http.MethodGet)
	api.HandleFunc("/users", h.wrap(h.requireAdmin(h.handleCreateUser))).Methods(http.MethodPost)
	api.HandleFunc("/users/{id:[0-9]+}", h.wrap(h.requireAdmin(h.handleUpdateUser))).Methods(http.MethodPut)
	api.HandleFunc("/users/{id:[0-9]+}", h.wrap(h.requireAdmin(h.handleDeleteUser))).Methods(http.MethodDelete)

	return r
}
