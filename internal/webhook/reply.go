package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/go-telegram/bot/models"

	"tg_referral_bot/internal/logging"
)

// reply is serialized straight into the webhook HTTP response; Telegram
// executes the named method on our behalf, saving an outbound round-trip.
type reply struct {
	Method      string                       `json:"method"`
	ChatID      int64                        `json:"chat_id"`
	Text        string                       `json:"text"`
	ParseMode   models.ParseMode             `json:"parse_mode,omitempty"`
	ReplyMarkup *models.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func sendMessage(chatID int64, text string) *reply {
	return &reply{
		Method:    "sendMessage",
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
}

func (r *reply) withKeyboard(markup *models.InlineKeyboardMarkup) *reply {
	r.ReplyMarkup = markup
	return r
}

// mainKeyboard is attached to the welcome reply; callback data tokens feed the
// same dispatch table as the slash commands.
func mainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💰 Balance", CallbackData: tokenBalance},
				{Text: "📤 Withdraw", CallbackData: tokenWithdraw},
			},
			{
				{Text: "🔗 Referral link", CallbackData: tokenRef},
			},
		},
	}
}

// writeReply emits the structured webhook response. A serialization failure at
// this point can only be answered with a plain 500.
func (s *Server) writeReply(w http.ResponseWriter, rep *reply) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(rep); err != nil {
		s.logger.WithField("event", "reply_encode_error").WithError(err).Error("failed to encode webhook reply")
	}
}

// writeFailure answers with a generic, non-revealing body. Detail stays in the
// logs; nothing internal crosses the trust boundary.
func (s *Server) writeFailure(w http.ResponseWriter, status int, publicMsg string, err error, ctx logging.Context) {
	entry := s.logger.WithFields(contextFields(ctx))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error("webhook request failed")

	http.Error(w, publicMsg, status)
}

func contextFields(ctx logging.Context) logging.Fields {
	fields := logging.Fields{}
	if ctx.Event != "" {
		fields["event"] = ctx.Event
	}
	if ctx.UserID != 0 {
		fields["user_id"] = ctx.UserID
	}
	if ctx.ChatID != 0 {
		fields["chat_id"] = ctx.ChatID
	}
	if ctx.UpdateID != 0 {
		fields["update_id"] = ctx.UpdateID
	}
	if ctx.RemoteAddr != "" {
		fields["remote_addr"] = ctx.RemoteAddr
	}
	return fields
}
