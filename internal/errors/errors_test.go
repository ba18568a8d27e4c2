package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceMissingErrorChain(t *testing.T) {
	at := time.Date(2022, 2, 3, 10, 0, 0, 0, time.UTC)
	expiry := time.Date(2022, 2, 3, 0, 0, 0, 0, time.UTC)
	err := NewPriceMissingError("NIFTY 17400 CE", 17400, "CE", expiry, at)

	wrapped := NewSimulationError("hull_ma", "exit", err)

	assert.True(t, Is(wrapped, ErrPriceMissing))

	var pm *PriceMissingError
	assert.True(t, As(wrapped, &pm))
	assert.Equal(t, 17400, pm.Strike)
	assert.Contains(t, wrapped.Error(), "2022-02-03 10:00:00")
}

func TestConfigurationErrorMatchesSentinel(t *testing.T) {
	err := NewConfigurationError("quantity_per_lot", "required when ce_premium_check is set", nil)
	assert.True(t, Is(err, ErrConfigInvalid))

	withCause := NewConfigurationError("config", "parse failed", fmt.Errorf("bad json"))
	assert.True(t, Is(withCause, ErrConfigInvalid))
	assert.Contains(t, withCause.Error(), "bad json")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.EqualError(t, Wrap(ErrDatabaseError, "saving run"), "saving run: database error")
	assert.True(t, Is(Wrap(ErrDatabaseError, "saving run"), ErrDatabaseError))
	assert.EqualError(t, Wrapf(ErrDataNotFound, "bars %s", "NIFTY"), "bars NIFTY: data not found")
}
