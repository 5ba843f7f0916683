package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthcheckRouter sets up the liveness route. The database ping doubles as
// a readiness signal.
func HealthcheckRouter(db *sql.DB) http.Handler {
	routes := &healthcheckRoutes{db: db}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	db *sql.DB
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
