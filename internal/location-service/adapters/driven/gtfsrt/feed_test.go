package gtfsrt

import (
	"encoding/json"
	"testing"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func views() []dto.LocationView {
	return []dto.LocationView{
		{
			LivePosition: model.LivePosition{
				TripID:      "t1",
				DriverID:    "d1",
				Latitude:    23.78,
				Longitude:   90.40,
				Heading:     90,
				Speed:       36,
				IsMoving:    true,
				TripStatus:  model.TripInTransit,
				Status:      model.StatusActive,
				LastUpdated: now.Add(-time.Minute),
			},
			BusNumber: "B-12",
			RouteName: "Campus Loop",
		},
		{
			LivePosition: model.LivePosition{
				TripID:      "t2",
				DriverID:    "d2",
				TripStatus:  model.TripAtStop,
				NearestStop: &model.NearestStop{StopID: "s9"},
				LastUpdated: now,
			},
		},
	}
}

func TestBuild(t *testing.T) {
	feed := Build(views(), now)

	require.NotNil(t, feed.Header)
	assert.Equal(t, "2.0", feed.Header.GetGtfsRealtimeVersion())
	assert.Equal(t, gtfs.FeedHeader_FULL_DATASET, feed.Header.GetIncrementality())
	assert.EqualValues(t, now.Unix(), feed.Header.GetTimestamp())
	require.Len(t, feed.Entity, 2)

	moving := feed.Entity[0].GetVehicle()
	assert.Equal(t, "t1", moving.GetTrip().GetTripId())
	assert.Equal(t, "Campus Loop", moving.GetTrip().GetRouteId())
	assert.Equal(t, "B-12", moving.GetVehicle().GetLabel())
	assert.InDelta(t, 10.0, moving.GetPosition().GetSpeed(), 1e-4, "36 km/h is 10 m/s")
	assert.Equal(t, gtfs.VehiclePosition_IN_TRANSIT_TO, moving.GetCurrentStatus())
	assert.EqualValues(t, now.Add(-time.Minute).Unix(), moving.GetTimestamp())

	stopped := feed.Entity[1].GetVehicle()
	assert.Equal(t, gtfs.VehiclePosition_STOPPED_AT, stopped.GetCurrentStatus())
	assert.Equal(t, "s9", stopped.GetStopId())
	assert.Nil(t, stopped.GetTrip().RouteId)
}

func TestMarshalRoundTrip(t *testing.T) {
	feed := Build(views(), now)

	b, contentType, err := Marshal(feed, false)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeProtobuf, contentType)

	var decoded gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &decoded))
	assert.True(t, proto.Equal(feed, &decoded))

	b, contentType, err = Marshal(feed, true)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, contentType)
	assert.True(t, json.Valid(b))
}

func TestBuildEmpty(t *testing.T) {
	feed := Build(nil, now)
	assert.Empty(t, feed.Entity)
	_, _, err := Marshal(feed, false)
	assert.NoError(t, err)
}
