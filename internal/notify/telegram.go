package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/agentalign/internal/hitl"
)

// TelegramNotifier sends escalation requests to reviewer chats via a
// Telegram bot.
type TelegramNotifier struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewTelegramNotifier creates a Telegram channel.
func NewTelegramNotifier(botToken string, chatIDs []int64) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	log.Info().
		Str("bot_username", api.Self.UserName).
		Int("chat_count", len(chatIDs)).
		Msg("Telegram notifier initialized")

	return &TelegramNotifier{
		api:     api,
		chatIDs: chatIDs,
	}, nil
}

// Send delivers the escalation to all configured chats. It fails only when
// every chat rejects the message.
func (t *TelegramNotifier) Send(ctx context.Context, request *hitl.Request) error {
	if len(t.chatIDs) == 0 {
		log.Warn().Msg("No Telegram chat IDs configured, skipping escalation")
		return nil
	}

	message := formatEscalation(request)

	var lastErr error
	successCount := 0
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, message)
		msg.ParseMode = "Markdown"

		if _, err := t.api.Send(msg); err != nil {
			log.Error().
				Err(err).
				Int64("chat_id", chatID).
				Str("request_id", request.RequestID).
				Msg("Failed to send Telegram escalation")
			lastErr = err
			continue
		}
		successCount++
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("failed to send escalation to any chat: %w", lastErr)
	}

	log.Debug().
		Int("success_count", successCount).
		Int("total_chats", len(t.chatIDs)).
		Str("request_id", request.RequestID).
		Msg("Telegram escalation sent")

	return nil
}

// formatEscalation renders the escalation for Telegram.
func formatEscalation(request *hitl.Request) string {
	var emoji string
	switch request.EscalationReason {
	case hitl.ReasonHardDisagreement:
		emoji = "🚨"
	case hitl.ReasonLowConfidence, hitl.ReasonInconsistentEvidence:
		emoji = "⚠️"
	default:
		emoji = "📢"
	}

	message := fmt.Sprintf("%s *Human review required*\n\n%s", emoji, request.Summary)

	message += "\n\n*Details:*"
	message += fmt.Sprintf("\n• task: `%s`", request.TaskID)
	message += fmt.Sprintf("\n• request: `%s`", request.RequestID)
	message += fmt.Sprintf("\n• state: `%s`", request.AlignmentState)
	message += fmt.Sprintf("\n• alignment score: `%.2f`", request.AlignmentScore)
	message += fmt.Sprintf("\n• reason: `%s`", request.EscalationReason)
	if len(request.DissentingAgents) > 0 {
		message += fmt.Sprintf("\n• dissenting: `%s`", strings.Join(request.DissentingAgents, ", "))
	}

	message += fmt.Sprintf("\n\n_Time: %s_", request.CreatedAt.Format("2006-01-02 15:04:05"))

	return message
}

// Name returns the channel name.
func (t *TelegramNotifier) Name() string { return "telegram" }
