package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/geo"
)

// DriverService drives one bus along a straight line, reporting over the
// websocket and falling back to REST when the socket is unavailable.
type DriverService struct {
	cfg        SimConfig
	current    Location
	sequence   int64
	httpClient *HTTPClient
	wsClient   *WebSocketClient
	wsUp       atomic.Bool
	logger     *Logger
	ctx        context.Context
}

func NewDriverService(ctx context.Context, cfg SimConfig, logger *Logger) *DriverService {
	return &DriverService{
		cfg:        cfg,
		current:    cfg.Start,
		httpClient: NewHTTPClient(logger),
		wsClient:   NewWebSocketClient(ctx, logger),
		logger:     logger,
		ctx:        ctx,
	}
}

func (d *DriverService) Connect() {
	if d.cfg.RESTOnly {
		return
	}

	url := strings.Replace(d.cfg.ServerURL, "http", "ws", 1) + WSPath
	if err := d.wsClient.Connect(url, d.cfg.Token); err != nil {
		d.logger.Warn("websocket unavailable, using REST: %v", err)
		return
	}
	d.wsUp.Store(true)

	go func() {
		err := d.wsClient.ReadEvents(d.handleEvent)
		if err != nil {
			d.logger.Warn("websocket closed, falling back to REST: %v", err)
		}
		d.wsUp.Store(false)
	}()
}

func (d *DriverService) handleEvent(e websocketdto.Event) {
	switch e.Type {
	case websocketdto.EventAuthenticated:
		d.logger.WebSocket("%s %s", e.Type, string(e.Data))
	case websocketdto.EventLocationUpdateAck, websocketdto.EventTripStatusUpdateAck:
		d.logger.Ack(e.Type, e.Data)
	case websocketdto.EventError:
		d.logger.Error("server error: %s", string(e.Data))
	case websocketdto.EventEmergencyAlert, websocketdto.EventPriorityAlert:
		d.logger.Alert(e.Type, e.Data)
	}
}

// Run reports every Interval until Steps reports were sent or ctx ends,
// then stops tracking.
func (d *DriverService) Run() error {
	if err := d.reportTripStatus(model.TripInTransit); err != nil {
		d.logger.Warn("trip status not set: %v", err)
	}

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for step := 0; d.cfg.Steps <= 0 || step < d.cfg.Steps; step++ {
		if err := d.reportPosition(); err != nil {
			d.logger.Error("report failed: %v", err)
		}

		select {
		case <-d.ctx.Done():
			return d.stop()
		case <-ticker.C:
		}
		d.advance()
	}
	return d.stop()
}

// advance moves the bus by the distance covered in one interval.
func (d *DriverService) advance() {
	meters := d.cfg.SpeedKmh / 3.6 * d.cfg.Interval.Seconds()
	d.current.Latitude, d.current.Longitude = geo.Destination(d.current.Latitude, d.current.Longitude, d.cfg.Heading, meters)
}

func (d *DriverService) reportPosition() error {
	d.sequence++
	lat, lon := d.current.Latitude, d.current.Longitude
	heading := d.cfg.Heading
	speed := d.cfg.SpeedKmh + (rand.Float64()-0.5)*4
	if speed < 0 {
		speed = 0
	}
	passengers := 10 + rand.Intn(30)

	req := dto.LocationUpdateRequest{
		TripID:     d.cfg.TripID,
		Latitude:   &lat,
		Longitude:  &lon,
		Heading:    &heading,
		Speed:      &speed,
		Passengers: &passengers,
		Sequence:   d.sequence,
	}

	if d.wsUp.Load() {
		d.logger.Sim(d.sequence, lat, lon, speed, "ws")
		if err := d.wsClient.SendEvent(websocketdto.EventLocationUpdate, req); err == nil {
			return nil
		}
		d.wsUp.Store(false)
	}

	d.logger.Sim(d.sequence, lat, lon, speed, "rest")
	_, err := d.httpClient.DoRequest(d.ctx, "POST", d.cfg.ServerURL+LocationUpdatePath, req, d.headers())
	return err
}

func (d *DriverService) reportTripStatus(status model.TripStatus) error {
	req := dto.TripStatusRequest{TripID: d.cfg.TripID, Status: status}
	if d.wsUp.Load() {
		return d.wsClient.SendEvent(websocketdto.EventTripStatusUpdate, req)
	}
	_, err := d.httpClient.DoRequest(d.ctx, "POST", d.cfg.ServerURL+TripStatusPath, req, d.headers())
	return err
}

func (d *DriverService) stop() error {
	defer d.wsClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), HTTPTimeout)
	defer cancel()

	url := d.cfg.ServerURL + fmt.Sprintf(StopTrackingPath, d.cfg.TripID)
	if _, err := d.httpClient.DoRequest(ctx, "DELETE", url, nil, d.headers()); err != nil {
		return fmt.Errorf("stop tracking: %w", err)
	}
	d.logger.Info("tracking stopped for trip %s", d.cfg.TripID)
	return nil
}

func (d *DriverService) headers() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + d.cfg.Token,
	}
}
