package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// Notifier sends the daily rebalance summary to a Telegram chat. The stage
// is optional; delivery failures only warn upstream.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:    bot,
		chatID: cfg.ChatID,
	}, nil
}

// SendDailySummary delivers the day's change summary.
func (n *Notifier) SendDailySummary(decision models.Decision) error {
	text := formatSummary(decision)

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send daily summary: %w", err)
	}

	logger.Info("daily summary sent",
		zap.Int64("chat_id", n.chatID),
	)

	return nil
}

func formatSummary(decision models.Decision) string {
	header := fmt.Sprintf("%s Allocation update, %s\n\n",
		summaryEmoji(decision),
		decision.AsOf.Format("2006-01-02"),
	)

	if decision.Changes != nil {
		return header + decision.Changes.Summary
	}

	return header + fmt.Sprintf("Regime: %s | VIX: %.2f | Above 200MA: %t",
		decision.Regime.Color,
		decision.Regime.VIXClose,
		decision.Regime.AboveLongMA,
	)
}

func summaryEmoji(decision models.Decision) string {
	switch decision.Regime.Color {
	case models.ColorGreen:
		return "🟢"
	case models.ColorYellow:
		return "🟡"
	case models.ColorOrange:
		return "🟠"
	case models.ColorRed:
		return "🔴"
	default:
		return "⚪"
	}
}
