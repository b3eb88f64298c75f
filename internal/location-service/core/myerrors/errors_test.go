package myerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrMissingToken, KindAuthentication},
		{fmt.Errorf("parse: %w", ErrTokenExpired), KindAuthentication},
		{ErrUserNotApproved, KindAuthentication},
		{ErrDriverOnly, KindAuthorization},
		{fmt.Errorf("delete t1: %w", ErrNotOwner), KindAuthorization},
		{ErrTripNotFound, KindNotFound},
		{ErrPositionNotFound, KindNotFound},
		{NewValidationError(map[string]string{"latitude": "required"}), KindValidation},
		{ErrStaleSequence, KindValidation},
		{StoreUnavailable("upsert", errors.New("conn refused")), KindTransientStore},
		{errors.New("something else"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), tt.err.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError(map[string]string{
		"longitude": "must be at most 180",
		"latitude":  "is required",
	})
	assert.Equal(t, "validation failed: latitude: is required; longitude: must be at most 180", err.Error())
	assert.ErrorIs(t, err, ErrValidation)

	wrapped := fmt.Errorf("report: %w", err)
	assert.Equal(t, err.Fields, FieldErrors(wrapped))
	assert.Nil(t, FieldErrors(ErrNotOwner))
}

func TestPublicHidesInternals(t *testing.T) {
	assert.Equal(t, "trip is owned by another driver", Public(fmt.Errorf("lookup trip t1: %w", ErrNotOwner)))
	assert.Equal(t, "trip not found or not active", Public(fmt.Errorf("lookup trip t9: %w", ErrTripNotFound)))
	assert.Equal(t, "validation failed", Public(NewValidationError(map[string]string{"tripId": "is required"})))
	assert.Equal(t, ErrStaleSequence.Error(), Public(ErrStaleSequence))
	assert.Equal(t, "service temporarily unavailable", Public(StoreUnavailable("get", errors.New("dial tcp 10.0.0.3:5432"))))
	assert.Equal(t, "internal server error", Public(errors.New("nil map write")))
}
