package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"bus-tracker/internal/location-service/adapters/driven/gtfsrt"
	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driver"
	"bus-tracker/internal/mylogger"

	"github.com/go-chi/chi/v5"
)

const defaultNearbyRadius = 1000.0

type LocationHandler struct {
	ingest driver.IIngestService
	query  driver.IQueryService
	errs   *ErrorWriter
	log    mylogger.Logger
	now    func() time.Time
}

func NewLocationHandler(ingest driver.IIngestService, query driver.IQueryService, errs *ErrorWriter, log mylogger.Logger) *LocationHandler {
	return &LocationHandler{
		ingest: ingest,
		query:  query,
		errs:   errs,
		log:    log,
		now:    time.Now,
	}
}

func (h *LocationHandler) UpdateLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			h.errs.Write(w, myerrors.ErrMissingToken)
			return
		}

		var req dto.LocationUpdateRequest
		if err := decodeBody(r, &req); err != nil {
			h.errs.Write(w, err)
			return
		}

		view, err := h.ingest.ReportPosition(r.Context(), id, req)
		if err != nil {
			h.errs.Write(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, dto.LocationResponse{
			Message:  "Location updated successfully",
			Location: view,
		})
	}
}

func (h *LocationHandler) UpdateTripStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			h.errs.Write(w, myerrors.ErrMissingToken)
			return
		}

		var req dto.TripStatusRequest
		if err := decodeBody(r, &req); err != nil {
			h.errs.Write(w, err)
			return
		}

		view, err := h.ingest.ReportTripStatus(r.Context(), id, req)
		if err != nil {
			h.errs.Write(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, dto.LocationResponse{
			Message:  "Trip status updated successfully",
			Location: view,
		})
	}
}

func (h *LocationHandler) StopTracking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			h.errs.Write(w, myerrors.ErrMissingToken)
			return
		}

		if err := h.ingest.StopTracking(r.Context(), id, chi.URLParam(r, "tripId")); err != nil {
			h.errs.Write(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, dto.MessageResponse{Message: "Tracking stopped successfully"})
	}
}

func (h *LocationHandler) GetLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.query.Location(r.Context(), chi.URLParam(r, "tripId"))
		if err != nil {
			h.errs.Write(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, view)
	}
}

func (h *LocationHandler) ActiveLocations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := h.query.ActiveLocations(r.Context())
		if err != nil {
			h.errs.Write(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, views)
	}
}

func (h *LocationHandler) Nearby() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseNearbyQuery(r)
		if err != nil {
			h.errs.Write(w, err)
			return
		}

		found, err := h.query.FindNearby(r.Context(), q)
		if err != nil {
			h.errs.Write(w, err)
			return
		}
		jsonResponse(w, http.StatusOK, found)
	}
}

// GTFSRealtime serves the currently reportable trips as a VehiclePositions
// feed. ?format=json switches to the JSON mapping.
func (h *LocationHandler) GTFSRealtime() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := h.query.ActiveLocations(r.Context())
		if err != nil {
			h.errs.Write(w, err)
			return
		}

		feed := gtfsrt.Build(views, h.now().UTC())
		body, contentType, err := gtfsrt.Marshal(feed, r.URL.Query().Get("format") == "json")
		if err != nil {
			h.errs.Write(w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return myerrors.NewValidationError(map[string]string{"body": "must be a valid JSON object"})
	}
	return nil
}

func parseNearbyQuery(r *http.Request) (dto.NearbyQuery, error) {
	values := r.URL.Query()
	fields := map[string]string{}
	q := dto.NearbyQuery{Radius: defaultNearbyRadius}

	parse := func(key string) *float64 {
		raw := values.Get(key)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields[key] = "must be a number"
			return nil
		}
		return &v
	}

	q.Latitude = parse("lat")
	q.Longitude = parse("lon")
	if radius := parse("radius"); radius != nil {
		q.Radius = *radius
	}

	if len(fields) > 0 {
		return dto.NearbyQuery{}, myerrors.NewValidationError(fields)
	}
	return q, nil
}
