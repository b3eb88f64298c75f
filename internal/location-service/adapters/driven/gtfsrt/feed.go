// Package gtfsrt exports live positions as a GTFS-Realtime
// VehiclePositions feed.
package gtfsrt

import (
	"fmt"
	"time"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const gtfsRealtimeVersion = "2.0"

const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// Build assembles a full-dataset feed with one VehiclePosition entity per
// view. Speeds are converted from km/h to m/s.
func Build(views []dto.LocationView, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(views)),
	}

	for _, v := range views {
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(v.TripID),
			Vehicle: vehiclePosition(v),
		})
	}
	return feed
}

func vehiclePosition(v dto.LocationView) *gtfs.VehiclePosition {
	trip := &gtfs.TripDescriptor{
		TripId: proto.String(v.TripID),
	}
	if v.RouteName != "" {
		trip.RouteId = proto.String(v.RouteName)
	}
	if v.TripStatus == model.TripCancelled {
		trip.ScheduleRelationship = gtfs.TripDescriptor_CANCELED.Enum()
	}

	vehicle := &gtfs.VehicleDescriptor{
		Id: proto.String(v.DriverID),
	}
	if v.BusNumber != "" {
		vehicle.Label = proto.String(v.BusNumber)
	}

	vp := &gtfs.VehiclePosition{
		Trip:    trip,
		Vehicle: vehicle,
		Position: &gtfs.Position{
			Latitude:  proto.Float32(float32(v.Latitude)),
			Longitude: proto.Float32(float32(v.Longitude)),
			Bearing:   proto.Float32(float32(v.Heading)),
			Speed:     proto.Float32(float32(v.Speed / 3.6)),
		},
		Timestamp: proto.Uint64(uint64(v.LastUpdated.Unix())),
	}

	if v.TripStatus == model.TripAtStop {
		vp.CurrentStatus = gtfs.VehiclePosition_STOPPED_AT.Enum()
	} else if v.IsMoving {
		vp.CurrentStatus = gtfs.VehiclePosition_IN_TRANSIT_TO.Enum()
	}
	if v.NearestStop != nil && v.NearestStop.StopID != "" {
		vp.StopId = proto.String(v.NearestStop.StopID)
	}
	return vp
}

// Marshal encodes feed as protobuf, or as JSON when asJSON is set, and
// returns the matching content type.
func Marshal(feed *gtfs.FeedMessage, asJSON bool) ([]byte, string, error) {
	if asJSON {
		b, err := protojson.Marshal(feed)
		if err != nil {
			return nil, "", fmt.Errorf("encode feed json: %w", err)
		}
		return b, ContentTypeJSON, nil
	}
	b, err := proto.Marshal(feed)
	if err != nil {
		return nil, "", fmt.Errorf("encode feed: %w", err)
	}
	return b, ContentTypeProtobuf, nil
}
