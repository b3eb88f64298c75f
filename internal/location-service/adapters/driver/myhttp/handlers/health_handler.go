package handlers

import (
	"context"
	"net/http"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/ports/driven"
)

const healthTimeout = 2 * time.Second

type HealthHandler struct {
	store  driven.PositionStore
	broker driven.IEventBroker
	now    func() time.Time
}

// NewHealthHandler reports store and broker liveness. broker may be nil
// when the event mirror is disabled.
func NewHealthHandler(store driven.PositionStore, broker driven.IEventBroker) *HealthHandler {
	return &HealthHandler{
		store:  store,
		broker: broker,
		now:    time.Now,
	}
}

func (h *HealthHandler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := dto.HealthResponse{
			Status:    "ok",
			Store:     "up",
			Broker:    "disabled",
			Timestamp: h.now().UTC(),
		}
		code := http.StatusOK

		if err := h.store.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Store = "down"
			code = http.StatusServiceUnavailable
		}
		if h.broker != nil {
			resp.Broker = "up"
			if !h.broker.IsAlive() {
				resp.Broker = "down"
				if code == http.StatusOK {
					resp.Status = "degraded"
				}
			}
		}
		jsonResponse(w, code, resp)
	}
}
