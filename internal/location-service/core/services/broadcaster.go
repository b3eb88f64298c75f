package services

import (
	"fmt"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	messagebrokerdto "bus-tracker/internal/location-service/core/domain/message_broker_dto"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

// Broadcaster is the fan-out engine. The routing per event type is fixed:
//
//	position update  -> everyone + students + admins + bus-<trip>
//	trip status      -> everyone
//	tracking stopped -> everyone
//	emergency alert  -> everyone (emergencyAlert) + admins (priorityAlert)
//	driver offline   -> everyone
//
// The role-room sends duplicate the global one on purpose; clients may
// listen on either.
type Broadcaster struct {
	log      mylogger.Logger
	channels driven.ChannelPublisher
	mirror   driven.EventMirror
}

// NewBroadcaster builds a fan-out engine. mirror may be nil.
func NewBroadcaster(log mylogger.Logger, channels driven.ChannelPublisher, mirror driven.EventMirror) *Broadcaster {
	return &Broadcaster{
		log:      log.Action("fanout"),
		channels: channels,
		mirror:   mirror,
	}
}

func (b *Broadcaster) PositionUpdated(view dto.LocationView) {
	event, ok := b.event(websocketdto.EventBusLocationUpdate, view)
	if !ok {
		return
	}
	b.channels.Broadcast(event)
	b.channels.SendToChannel(model.ChannelStudents, event)
	b.channels.SendToChannel(model.ChannelAdmins, event)
	b.channels.SendToChannel(model.TripChannel(view.TripID), event)

	b.mirrorEvent(fmt.Sprintf(messagebrokerdto.KeyLocationUpdate, view.TripID), event.Type, view)
}

func (b *Broadcaster) TripStatusChanged(pos model.LivePosition) {
	payload := websocketdto.TripStatusUpdate{
		TripID:      pos.TripID,
		Status:      pos.TripStatus,
		NearestStop: pos.NearestStop,
		Timestamp:   pos.LastUpdated,
	}
	event, ok := b.event(websocketdto.EventTripStatusUpdate, payload)
	if !ok {
		return
	}
	b.channels.Broadcast(event)

	b.mirrorEvent(fmt.Sprintf(messagebrokerdto.KeyTripStatus, pos.TripID), event.Type, payload)
}

func (b *Broadcaster) TrackingStopped(tripID string) {
	payload := websocketdto.TrackingStopped{TripID: tripID}
	event, ok := b.event(websocketdto.EventTrackingStopped, payload)
	if !ok {
		return
	}
	b.channels.Broadcast(event)

	b.mirrorEvent(fmt.Sprintf(messagebrokerdto.KeyTrackingStopped, tripID), event.Type, payload)
}

// EmergencyRaised sends the alert on two independent paths: the global
// emergencyAlert and the admins-only priorityAlert.
func (b *Broadcaster) EmergencyRaised(alert websocketdto.EmergencyAlert) {
	global, ok := b.event(websocketdto.EventEmergencyAlert, alert)
	if !ok {
		return
	}
	priority, ok := b.event(websocketdto.EventPriorityAlert, alert)
	if !ok {
		return
	}
	b.channels.Broadcast(global)
	b.channels.SendPriority(model.ChannelAdmins, priority)

	b.mirrorEvent(messagebrokerdto.KeyEmergencyAlert, global.Type, alert)
}

func (b *Broadcaster) DriverOffline(id model.Identity, at time.Time) {
	payload := websocketdto.DriverOffline{
		DriverID:   id.UserID,
		DriverName: id.Name,
		Timestamp:  at,
	}
	event, ok := b.event(websocketdto.EventDriverOffline, payload)
	if !ok {
		return
	}
	b.channels.Broadcast(event)

	b.mirrorEvent(fmt.Sprintf(messagebrokerdto.KeyDriverOffline, id.UserID), event.Type, payload)
}

func (b *Broadcaster) event(eventType string, payload any) (websocketdto.Event, bool) {
	event, err := websocketdto.NewEvent(eventType, payload)
	if err != nil {
		b.log.Error("cannot encode event", err, "type", eventType)
		return websocketdto.Event{}, false
	}
	return event, true
}

func (b *Broadcaster) mirrorEvent(routingKey, eventType string, payload any) {
	if b.mirror == nil {
		return
	}
	b.mirror.Mirror(routingKey, eventType, payload)
}
