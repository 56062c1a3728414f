// Package notify sends outbound Telegram messages to the admin. The webhook
// response can only carry a single method, so admin notifications go through
// the Bot API directly.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_referral_bot/internal/config"
	"tg_referral_bot/internal/domain"
	"tg_referral_bot/internal/logging"
)

// sender captures the subset of bot.Bot behavior we rely on to allow
// lightweight stubbing in tests without hitting the Bot API.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// createBot is overridable for tests.
var createBot = func(token string) (sender, error) {
	return bot.New(token, bot.WithSkipGetMe())
}

// AdminNotifier delivers withdrawal alerts to the configured admin chat.
type AdminNotifier struct {
	sender  sender
	adminID int64
	logger  *logrus.Entry
}

// NewAdminNotifier constructs an AdminNotifier from the runtime configuration.
func NewAdminNotifier(cfg config.Config, logger *logrus.Entry) (*AdminNotifier, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("bot token is required")
	}
	if cfg.AdminID == 0 {
		return nil, errors.New("admin id is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	tgBot, err := createBot(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	return &AdminNotifier{
		sender:  tgBot,
		adminID: cfg.AdminID,
		logger:  logger,
	}, nil
}

// WithdrawalRequested tells the admin about a new pending withdrawal. A
// delivery failure is returned for logging but must not fail the webhook
// request that triggered it.
func (n *AdminNotifier) WithdrawalRequested(ctx context.Context, tx *domain.Transaction, username string) error {
	if n == nil || n.sender == nil {
		return errors.New("admin notifier is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if tx == nil {
		return errors.New("transaction is required")
	}

	who := fmt.Sprintf("user %d", tx.UserID)
	if username != "" {
		who = fmt.Sprintf("@%s (%d)", username, tx.UserID)
	}

	text := fmt.Sprintf(
		"New withdrawal request\n%s\nAmount: %.2f\nTransaction: <code>%s</code>\nStatus: %s",
		who, tx.Amount, tx.ID, tx.Status,
	)

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.adminID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}

	n.logger.WithFields(logging.Fields{
		"event":          "admin_notified",
		"transaction_id": tx.ID,
		"user_id":        tx.UserID,
	}).Info("notified admin of withdrawal request")

	return nil
}
