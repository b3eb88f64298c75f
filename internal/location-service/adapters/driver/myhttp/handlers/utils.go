package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"bus-tracker/internal/location-service/core/domain/dto"
	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/mylogger"
)

type identityKey struct{}

// WithIdentity stores the authenticated caller on ctx.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(model.Identity)
	return id, ok
}

// jsonResponse writes data as a JSON-encoded HTTP response with the given status code.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes the {message, errors?} envelope.
func JSONError(w http.ResponseWriter, code int, message string, fields map[string]string) {
	jsonResponse(w, code, dto.ErrorResponse{
		Message: message,
		Errors:  fields,
	})
}

func StatusFor(kind myerrors.Kind) int {
	switch kind {
	case myerrors.KindAuthentication:
		return http.StatusUnauthorized
	case myerrors.KindAuthorization:
		return http.StatusForbidden
	case myerrors.KindNotFound:
		return http.StatusNotFound
	case myerrors.KindValidation:
		return http.StatusBadRequest
	case myerrors.KindTransientStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorWriter maps service errors onto status codes. In production mode
// 5xx responses carry only the generic message.
type ErrorWriter struct {
	log        mylogger.Logger
	production bool
}

func NewErrorWriter(log mylogger.Logger, production bool) *ErrorWriter {
	return &ErrorWriter{log: log, production: production}
}

func (ew *ErrorWriter) Write(w http.ResponseWriter, err error) {
	code := StatusFor(myerrors.Classify(err))
	message := myerrors.Public(err)
	if code >= http.StatusInternalServerError {
		ew.log.Error("request failed", err, "status", code)
		if !ew.production {
			message = message + ": " + err.Error()
		}
	}
	JSONError(w, code, message, myerrors.FieldErrors(err))
}
