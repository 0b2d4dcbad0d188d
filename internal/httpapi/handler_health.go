package httpapi

import (
	"net/http"

	"github.com/mcare/mcare-backend/pkg/dbx"
	"github.com/mcare/mcare-backend/pkg/messaging"
)

type healthHandler struct {
	db  *dbx.DB
	rmq *messaging.RabbitMQ
}

func newHealthHandler(db *dbx.DB, rmq *messaging.RabbitMQ) *healthHandler {
	return &healthHandler{db: db, rmq: rmq}
}

// Live handles GET /health/live: process liveness, no dependency checks.
func (h *healthHandler) Live(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "live"})
}

// Ready handles GET /health/ready: DB and RabbitMQ reachability, since the
// usage-event pipeline depends on both.
func (h *healthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	dbStatus := h.db.Health(r.Context())
	rmqStatus := h.rmq.Health()

	out := map[string]interface{}{"database": dbStatus, "rabbitmq": rmqStatus}
	if dbStatus["status"] != "up" || rmqStatus["status"] != "up" {
		Respond(w, http.StatusServiceUnavailable, out)
		return
	}
	Respond(w, http.StatusOK, out)
}
