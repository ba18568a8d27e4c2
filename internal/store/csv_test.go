package store

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
)

func TestReadSignalsKeepsFileOrder(t *testing.T) {
	input := `Trade,Signal,Date/Time,Price,Contracts
1,ET,2022-02-01 10:00:00,17420.5,2
1,EX,2022-02-02 11:00,17510,1
2,Exit_Long,01-02-2022 09:30,17300,1
`
	signals, err := ReadSignals(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, signals, 3)

	assert.Equal(t, models.SignalEntry, signals[0].Kind)
	assert.Equal(t, time.Date(2022, 2, 1, 10, 0, 0, 0, time.UTC), signals[0].Timestamp)
	assert.Equal(t, 17420.5, signals[0].Price)
	assert.Equal(t, 2, signals[0].Contracts)

	assert.Equal(t, models.SignalExit, signals[1].Kind)
	assert.Equal(t, models.SignalExitLong, signals[2].Kind)
	assert.True(t, signals[2].Timestamp.Before(signals[1].Timestamp))
}

func TestReadSignalsRejectsBadRows(t *testing.T) {
	_, err := ReadSignals(strings.NewReader("Signal,Date/Time,Price,Contracts\nBUY,2022-02-01 10:00,1,1\n"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))

	_, err = ReadSignals(strings.NewReader("Signal,Date/Time,Price,Contracts\nET,2022-02-01 10:00,1,0\n"))
	assert.True(t, apperrors.Is(err, apperrors.ErrInputValidation))

	_, err = ReadSignals(strings.NewReader("Signal,Date/Time,Price,Contracts\nET,yesterday,1,1\n"))
	assert.Error(t, err)
}

func TestWriteLedger(t *testing.T) {
	fills := []models.Fill{
		{Trade: 1, Script: "NIFTY", Role: models.RoleCall, Symbol: "NIFTY 17400 CE", Strike: 17400,
			OptionType: models.OptionTypeCall, Expiry: time.Date(2022, 2, 3, 0, 0, 0, 0, time.UTC),
			Action: models.ActionBuy, LotSize: 1, Time: time.Date(2022, 2, 1, 10, 0, 0, 0, time.UTC),
			Price: 100, Event: models.EventEntrySignal},
		{Trade: 1, Script: "NIFTY", Role: models.RoleCall, Symbol: "NIFTY 17400 CE", Strike: 17400,
			OptionType: models.OptionTypeCall, Action: models.ActionBuy, LotSize: 1,
			Time: time.Date(2022, 2, 1, 10, 0, 0, 0, time.UTC), Event: models.EventEntrySignal,
			Skipped: true, Note: models.NotePremiumCheck},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLedger(&buf, fills))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Trade,Script,Role,Symbol,Strike,OptionType,Expiry,Action,LotSize,EntryExitTime,Price,ProfitLoss,ExitType,Note", lines[0])
	assert.Contains(t, lines[1], "2022-02-03,BUY,1,2022-02-01 10:00:00")
	assert.Contains(t, lines[2], models.NotePremiumCheck)
	assert.NotContains(t, lines[2], "BUY")
}

func TestReadBars(t *testing.T) {
	input := `Ticker,Date,Time,Open,High,Low,Close,Volume,OI
NIFTY17400FEB22CE,20220201,09:15:00,100,102,99,101,1500,60000
NIFTY17400FEB22CE,20220201,09:16:00,101,103,100,102.5,900,60100
`
	ticker, bars, err := ReadBars(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "NIFTY17400FEB22CE", ticker)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2022, 2, 1, 9, 16, 0, 0, time.UTC), bars[1].Timestamp)
	assert.Equal(t, 102.5, bars[1].Close)
	assert.Equal(t, int64(60100), bars[1].OI)

	_, _, err = ReadBars(strings.NewReader("Ticker,Date,Time,Open,High,Low,Close,Volume,OI\nX,2022-02-01,09:15:00,1,1,1,1,1,1\n"))
	assert.Error(t, err)
}

func TestReadHolidays(t *testing.T) {
	dates, err := ReadHolidays(strings.NewReader("26-Jan-2022\n\n01-Mar-2022\n"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2022, 1, 26, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
	}, dates)

	_, err = ReadHolidays(strings.NewReader("2022-01-26\n"))
	assert.Error(t, err)
}
