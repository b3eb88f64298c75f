package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driver"
)

type EventHandle func(ctx context.Context, c *Client, e websocketdto.Event) error

type EventHandler struct {
	hub    *Hub
	ingest driver.IIngestService
	query  driver.IQueryService
	now    func() time.Time
}

func NewEventHandler(hub *Hub, ingest driver.IIngestService, query driver.IQueryService, now func() time.Time) *EventHandler {
	return &EventHandler{
		hub:    hub,
		ingest: ingest,
		query:  query,
		now:    now,
	}
}

func (eh *EventHandler) Handlers() map[string]EventHandle {
	return map[string]EventHandle{
		websocketdto.EventAuthenticate:       eh.AlreadyAuthenticated,
		websocketdto.EventLocationUpdate:     eh.LocationUpdate,
		websocketdto.EventTripStatusUpdate:   eh.TripStatusUpdate,
		websocketdto.EventSubscribeToBus:     eh.SubscribeToBus,
		websocketdto.EventUnsubscribeFromBus: eh.UnsubscribeFromBus,
		websocketdto.EventGetActiveBuses:     eh.GetActiveBuses,
		websocketdto.EventEmergencyAlert:     eh.EmergencyAlert,
		websocketdto.EventPing:               eh.Ping,
	}
}

func (eh *EventHandler) AlreadyAuthenticated(ctx context.Context, c *Client, e websocketdto.Event) error {
	c.send(websocketdto.EventAuthenticated, websocketdto.Authenticated{
		UserID:   c.identity.UserID,
		Name:     c.identity.Name,
		Role:     c.identity.Role,
		Channels: eh.hub.Channels(c.id),
	})
	return nil
}

func (eh *EventHandler) LocationUpdate(ctx context.Context, c *Client, e websocketdto.Event) error {
	var req dto.LocationUpdateRequest
	if err := decode(e.Data, &req); err != nil {
		return err
	}

	view, err := eh.ingest.ReportPosition(ctx, c.identity, req)
	if err != nil {
		return err
	}
	c.send(websocketdto.EventLocationUpdateAck, websocketdto.Ack{
		Success:   true,
		Message:   "Location updated successfully",
		Timestamp: view.LastUpdated,
	})
	return nil
}

func (eh *EventHandler) TripStatusUpdate(ctx context.Context, c *Client, e websocketdto.Event) error {
	var req dto.TripStatusRequest
	if err := decode(e.Data, &req); err != nil {
		return err
	}

	view, err := eh.ingest.ReportTripStatus(ctx, c.identity, req)
	if err != nil {
		return err
	}
	c.send(websocketdto.EventTripStatusUpdateAck, websocketdto.Ack{
		Success:   true,
		Message:   "Trip status updated successfully",
		Timestamp: view.LastUpdated,
	})
	return nil
}

func (eh *EventHandler) SubscribeToBus(ctx context.Context, c *Client, e websocketdto.Event) error {
	tripID, err := subscriptionTripID(e.Data)
	if err != nil {
		return err
	}
	eh.hub.Join(c.id, model.TripChannel(tripID))
	c.send(websocketdto.EventSubscribed, websocketdto.SubscriptionAck{
		TripID:  tripID,
		Message: "Subscribed to bus updates",
	})
	return nil
}

func (eh *EventHandler) UnsubscribeFromBus(ctx context.Context, c *Client, e websocketdto.Event) error {
	tripID, err := subscriptionTripID(e.Data)
	if err != nil {
		return err
	}
	eh.hub.Leave(c.id, model.TripChannel(tripID))
	c.send(websocketdto.EventUnsubscribed, websocketdto.SubscriptionAck{
		TripID:  tripID,
		Message: "Unsubscribed from bus updates",
	})
	return nil
}

func (eh *EventHandler) GetActiveBuses(ctx context.Context, c *Client, e websocketdto.Event) error {
	views, err := eh.query.ActiveBuses(ctx)
	if err != nil {
		return err
	}
	c.send(websocketdto.EventActiveBuses, views)
	return nil
}

func (eh *EventHandler) EmergencyAlert(ctx context.Context, c *Client, e websocketdto.Event) error {
	var req dto.EmergencyAlertRequest
	if err := decode(e.Data, &req); err != nil {
		return err
	}

	alert, err := eh.ingest.RaiseEmergency(ctx, c.identity, req)
	if err != nil {
		return err
	}
	c.send(websocketdto.EventEmergencyAlertAck, websocketdto.Ack{
		Success:   true,
		Message:   "Emergency alert sent successfully",
		Timestamp: alert.Timestamp,
	})
	return nil
}

func (eh *EventHandler) Ping(ctx context.Context, c *Client, e websocketdto.Event) error {
	c.send(websocketdto.EventPong, websocketdto.Pong{Timestamp: eh.now().UTC()})
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return myerrors.NewValidationError(map[string]string{"data": "is required"})
	}
	if err := json.Unmarshal(data, v); err != nil {
		return myerrors.NewValidationError(map[string]string{"data": "must be a valid JSON object"})
	}
	return nil
}

// subscriptionTripID accepts {"tripId": "..."} or a bare JSON string.
func subscriptionTripID(data json.RawMessage) (string, error) {
	var tripID string
	if err := json.Unmarshal(data, &tripID); err != nil {
		var sub websocketdto.BusSubscription
		if err := json.Unmarshal(data, &sub); err != nil {
			return "", myerrors.NewValidationError(map[string]string{"tripId": "is required"})
		}
		tripID = sub.TripID
	}
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return "", myerrors.NewValidationError(map[string]string{"tripId": "is required"})
	}
	return tripID, nil
}
