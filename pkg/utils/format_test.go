package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentOf(t *testing.T) {
	assert.Equal(t, 50.0, PercentOf(100, -50))
	assert.Equal(t, 120.0, PercentOf(100, 20))
	assert.Equal(t, 108.0, PercentOf(90, 20))
	assert.Equal(t, 0.0, PercentOf(100, -100))
	assert.Equal(t, 0.0, PercentOf(100, -150))
	assert.Equal(t, 137.33, PercentOf(114.44, 20))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.234))
	assert.Equal(t, -7.5, Round2(-7.4999999))
	assert.Equal(t, 0.12, Round2(0.125))
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 0.0, SafeDiv(5, 0))
	assert.Equal(t, 2.5, SafeDiv(5, 2))
}

func TestFormatIndianCurrency(t *testing.T) {
	assert.Equal(t, "₹1,23,45,678.90", FormatIndianCurrency(12345678.9))
	assert.Equal(t, "-₹999.00", FormatIndianCurrency(-999))
	assert.Equal(t, "+₹1,000.00", FormatPnL(1000))
	assert.Equal(t, "+2.50%", FormatPercent(2.5))
}
