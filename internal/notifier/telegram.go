// Package notifier tells reviewers about new reports and questions through
// a Telegram bot.
package notifier

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"phishguard/internal/models"
)

const previewLength = 150

// Bot sends reviewer notifications to a single chat. A nil *Bot is a
// disabled bot: every method is a no-op.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewBot connects to Telegram. It returns nil when notifications are
// disabled or no token is configured.
func NewBot(enabled bool, token string, chatID int64, logger *zap.Logger) (*Bot, error) {
	if !enabled || token == "" {
		logger.Info("Telegram notifications are disabled (notifications.enabled=false or token is empty)")
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	return newBot(api, chatID, logger), nil
}

func newBot(api *tgbotapi.BotAPI, chatID int64, logger *zap.Logger) *Bot {
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName), zap.Int64("chat_id", chatID))
	return &Bot{api: api, chatID: chatID, logger: logger}
}

// Start answers bot commands until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	switch message.Command() {
	case "start", "help":
		b.send(message.Chat.ID, "PhishGuard reviewer notifications.\n\n"+
			"New scam reports and questions are posted to the configured chat.\n"+
			"This chat ID: "+strconv.FormatInt(message.Chat.ID, 10))
	default:
		b.send(message.Chat.ID, "Unknown command. Use /help.")
	}
}

// ReportSubmitted posts a new scam report.
func (b *Bot) ReportSubmitted(ctx context.Context, r models.Report) error {
	if b == nil {
		return nil
	}
	text := fmt.Sprintf("🚨 New scam report\n\n🔗 %s\n⚠️ Type: %s\n📧 Reporter: %s\n\n%s",
		r.URL, r.Category, orDash(r.ReporterEmail), preview(r.Description))
	if r.EvidenceURL != "" {
		text += "\n\n📎 " + r.EvidenceURL
	}
	return b.notify(ctx, "report", r.ID, text)
}

// QuestionAsked posts a new question.
func (b *Bot) QuestionAsked(ctx context.Context, q models.Question) error {
	if b == nil {
		return nil
	}
	text := fmt.Sprintf("❓ New question (%s priority)\n\n👤 %s\n🏷 %s\n\n%s",
		q.Priority, q.Student.Name, q.Category, preview(q.Content))
	return b.notify(ctx, "question", q.ID, text)
}

func (b *Bot) notify(ctx context.Context, kind, id, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.logger.Error("Failed to send notification", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to send notification: %w", err)
	}
	b.logger.Info("Notification sent", zap.String("kind", kind), zap.String("id", id))
	return nil
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
