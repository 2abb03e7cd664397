package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-token-sentry/internal/models"
)

func TestTradeSignalMsg_Marshal(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sig := &models.TradeSignal{
		TokenAddress: "0xtoken",
		Kind:         models.SignalBuy,
		Confidence:   0.95,
		PriceTarget:  2.5,
		StopLoss:     1.7,
		Reasoning:    "High viability score (85.0) with positive momentum (+8.0%)",
		GeneratedAt:  at,
	}

	data, err := NewTradeSignalMsg(sig, 85).Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "0xtoken", decoded["token_address"])
	assert.Equal(t, "BUY", decoded["signal"])
	assert.Equal(t, 0.95, decoded["confidence"])
	assert.Equal(t, 85.0, decoded["score"])
	assert.Equal(t, float64(at.UnixMilli()), decoded["timestamp"])
}

func TestPositionResultMsg_Marshal(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	res := &models.PositionResult{
		TokenAddress: "0xtoken",
		EntryPrice:   1.0,
		ExitPrice:    1.5,
		Pnl:          0.5,
		Reason:       models.ExitTrailingStop,
		HoldDuration: 12 * time.Minute,
		ClosedAt:     at,
	}

	data, err := NewPositionResultMsg(res).Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "TRAILING_STOP", decoded["reason"])
	assert.Equal(t, 720.0, decoded["hold_seconds"])
	assert.Equal(t, 0.5, decoded["pnl"])
}
