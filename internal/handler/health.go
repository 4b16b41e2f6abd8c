package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/segyhp/peer-lending/pkg/response"

	log "github.com/sirupsen/logrus"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a plain function, e.g. a redis client's Ping, to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	db      Pinger
	redis   Pinger
	timeout time.Duration
}

func NewHealthHandler(db, redis Pinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		timeout: timeout,
	}
}

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health performs a basic health check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, "", response.Payload{
		"health": HealthStatus{Status: "ok", Checks: map[string]string{}},
	})
}

// Ready performs readiness check including database and redis connectivity
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]string),
	}

	h.check(r.Context(), &status, "database", h.db)
	h.check(r.Context(), &status, "redis", h.redis)

	if status.Status == "error" {
		response.JSON(w, http.StatusServiceUnavailable, "Service not ready", response.Payload{"health": status})
		return
	}

	response.Success(w, "", response.Payload{"health": status})
}

func (h *HealthHandler) check(parent context.Context, status *HealthStatus, name string, p Pinger) {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	if err := p.PingContext(ctx); err != nil {
		log.WithError(err).WithField("dependency", name).Warn("readiness check failed")
		status.Status = "error"
		status.Checks[name] = "failed"
		return
	}
	status.Checks[name] = "ok"
}
