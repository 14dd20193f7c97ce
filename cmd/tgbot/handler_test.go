package main

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/AccuracyTracker/internal/config"
	"github.com/Alias1177/AccuracyTracker/models"
)

type fixedHistory map[string]models.TimeframeHistory

func (f fixedHistory) Load(_ context.Context, instrument string) models.TimeframeHistory {
	return f[instrument]
}

func newTestHandler() *handler {
	resolved := func(offset int64, outcome models.Direction) models.PredictionRecord {
		r := models.PredictionRecord{
			SnapshotTime: models.Timestamp(1709284500000 + offset*300_000),
			Price:        22000,
			Direction:    models.DirectionUp,
			Confidence:   "HIGH",
		}
		return r.Resolve(outcome)
	}

	return &handler{
		cfg: &config.Config{
			Instruments: []string{"nifty", "banknifty", "sensex"},
			Instrument:  "nifty",
			Timeframes:  models.DefaultTimeframes,
		},
		history: fixedHistory{
			"nifty": {
				models.Timeframe5m: {
					resolved(0, models.DirectionUp),
					resolved(1, models.DirectionUp),
					resolved(2, models.DirectionDown),
					resolved(3, models.DirectionUp),
				},
			},
		},
		logger: zerolog.Nop(),
	}
}

func TestReplyText(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "start", text: "/start", want: "/accuracy [instrument]"},
		{name: "default instrument", text: "/accuracy", want: "5 Min: acc: 75.0% (last 4 predictions)"},
		{name: "addressed command", text: "/accuracy@IndexBot nifty", want: "Prediction accuracy: NIFTY"},
		{name: "keyboard button", text: "NIFTY", want: "5 Min: acc: 75.0%"},
		{name: "empty history", text: "/accuracy sensex", want: "5 Min: Insufficient data (need 3+ scored predictions)"},
		{name: "untracked", text: "/accuracy dax", want: `"dax" is not tracked`},
		{name: "instruments", text: "/instruments", want: "nifty, banknifty, sensex"},
		{name: "unknown", text: "hello", want: "Unknown command."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, h.replyText(ctx, tt.text), tt.want)
		})
	}
}

func TestReplyKeyboard(t *testing.T) {
	h := newTestHandler()

	msg := h.reply(context.Background(), 42, "/start")

	assert.Equal(t, int64(42), msg.ChatID)
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.Keyboard, 1)
	assert.Equal(t, "BANKNIFTY", kb.Keyboard[0][1].Text)
}
