package memory

import (
	"testing"

	"bus-tracker/internal/location-service/adapters/driven/storetest"
	"bus-tracker/internal/location-service/core/ports/driven"
)

func TestPositionStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) driven.PositionStore {
		return NewPositionStore()
	})
}
