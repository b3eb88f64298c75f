package myerrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Authentication
var (
	ErrMissingToken    = errors.New("authentication token required")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrUnknownUser     = errors.New("user not found")
	ErrUserNotApproved = errors.New("user is not approved or not active")
)

// Authorization
var (
	ErrDriverOnly = errors.New("only drivers can perform this action")
	ErrNotOwner   = errors.New("trip is owned by another driver")
)

// Not found
var (
	ErrTripNotFound     = errors.New("trip not found or not active")
	ErrPositionNotFound = errors.New("location tracking not found")
)

// Validation
var (
	ErrValidation    = errors.New("validation failed")
	ErrStaleSequence = errors.New("sequence is older than the stored report")
)

// Store
var ErrStoreUnavailable = errors.New("position store unavailable")

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindTransientStore
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindTransientStore:
		return "transient_store"
	}
	return "internal"
}

// Classify maps err onto the error taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired), errors.Is(err, ErrUnknownUser),
		errors.Is(err, ErrUserNotApproved):
		return KindAuthentication
	case errors.Is(err, ErrDriverOnly), errors.Is(err, ErrNotOwner):
		return KindAuthorization
	case errors.Is(err, ErrTripNotFound), errors.Is(err, ErrPositionNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrStaleSequence):
		return KindValidation
	case errors.Is(err, ErrStoreUnavailable):
		return KindTransientStore
	}
	return KindInternal
}

// ValidationError carries per-field messages keyed by the JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldErrors returns the per-field detail of err, if any.
func FieldErrors(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// StoreUnavailable wraps a backend failure so it classifies as transient.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// Public returns the message safe to show a client: the sentinel text for
// classified errors, a generic text otherwise.
func Public(err error) string {
	switch Classify(err) {
	case KindValidation:
		if errors.Is(err, ErrStaleSequence) {
			return ErrStaleSequence.Error()
		}
		return ErrValidation.Error()
	case KindTransientStore:
		return "service temporarily unavailable"
	case KindInternal:
		return "internal server error"
	}
	for _, sentinel := range []error{
		ErrMissingToken, ErrInvalidToken, ErrTokenExpired, ErrUnknownUser, ErrUserNotApproved,
		ErrDriverOnly, ErrNotOwner, ErrTripNotFound, ErrPositionNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
