package services

import (
	"encoding/json"
	"testing"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/mylogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterRouting(t *testing.T) {
	channels := &recordingChannels{}
	b := NewBroadcaster(mylogger.Discard(), channels, nil)

	b.PositionUpdated(dto.LocationView{LivePosition: model.LivePosition{TripID: "T1", DriverID: "d1"}})
	b.TripStatusChanged(model.LivePosition{TripID: "T1", TripStatus: model.TripAtStop})
	b.TrackingStopped("T1")
	b.EmergencyRaised(websocketdto.EmergencyAlert{TripID: "T1", Message: "help"})
	b.DriverOffline(driverD, t0)

	var got []string
	for _, d := range channels.deliveries() {
		target := d.target
		if d.priority {
			target = "!" + target
		}
		got = append(got, d.event.Type+"->"+target)
	}
	assert.Equal(t, []string{
		"busLocationUpdate->*",
		"busLocationUpdate->students",
		"busLocationUpdate->admins",
		"busLocationUpdate->bus-T1",
		"tripStatusUpdate->*",
		"trackingStopped->*",
		"emergencyAlert->*",
		"priorityAlert->!admins",
		"driverOffline->*",
	}, got)
}

func TestBroadcasterPayloads(t *testing.T) {
	channels := &recordingChannels{}
	b := NewBroadcaster(mylogger.Discard(), channels, &recordingMirror{})

	b.DriverOffline(driverD, t0)
	b.TrackingStopped("T7")

	got := channels.deliveries()
	require.Len(t, got, 2)

	var offline websocketdto.DriverOffline
	require.NoError(t, json.Unmarshal(got[0].event.Data, &offline))
	assert.Equal(t, websocketdto.DriverOffline{DriverID: "d1", DriverName: "Rahim", Timestamp: t0}, offline)

	assert.JSONEq(t, `{"tripId":"T7"}`, string(got[1].event.Data))
}
