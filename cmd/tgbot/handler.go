package main

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/Alias1177/AccuracyTracker/internal/config"
	"github.com/Alias1177/AccuracyTracker/internal/report"
	"github.com/Alias1177/AccuracyTracker/models"
)

const helpText = `I report how often the index forecasts turned out right.

/accuracy [instrument] - accuracy per timeframe
/instruments - tracked instruments

Tap an instrument below for its report.`

// historyLoader reads persisted histories
type historyLoader interface {
	Load(ctx context.Context, instrument string) models.TimeframeHistory
}

type handler struct {
	cfg     *config.Config
	history historyLoader
	logger  zerolog.Logger
}

func (h *handler) reply(ctx context.Context, chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, h.replyText(ctx, text))
	msg.ReplyMarkup = h.keyboard()
	return msg
}

func (h *handler) replyText(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}

	// Commands may be addressed as /accuracy@BotName
	command := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	switch command {
	case "/start", "/help":
		return helpText
	case "/instruments":
		return "Tracked instruments: " + strings.Join(h.cfg.Instruments, ", ")
	case "/accuracy":
		instrument := h.cfg.Instrument
		if len(fields) > 1 {
			instrument = fields[1]
		}
		return h.accuracyText(ctx, instrument)
	}

	// Keyboard buttons send the bare instrument name
	if h.cfg.Tracks(command) {
		return h.accuracyText(ctx, command)
	}
	return "Unknown command.\n\n" + helpText
}

func (h *handler) accuracyText(ctx context.Context, instrument string) string {
	instrument = config.NormalizeInstrument(instrument)
	if !h.cfg.Tracks(instrument) {
		return fmt.Sprintf("%q is not tracked. Tracked instruments: %s", instrument, strings.Join(h.cfg.Instruments, ", "))
	}

	h.logger.Debug().Str("instrument", instrument).Msg("Accuracy requested")
	history := h.history.Load(ctx, instrument)
	return report.Build(instrument, history, h.cfg.Timeframes).Text()
}

func (h *handler) keyboard() tgbotapi.ReplyKeyboardMarkup {
	buttons := make([]tgbotapi.KeyboardButton, 0, len(h.cfg.Instruments))
	for _, inst := range h.cfg.Instruments {
		buttons = append(buttons, tgbotapi.NewKeyboardButton(strings.ToUpper(inst)))
	}
	return tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(buttons...))
}
