package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"tg_referral_bot/internal/domain"
	"tg_referral_bot/internal/feature/withdraw"
	"tg_referral_bot/internal/logging"
	"tg_referral_bot/internal/store"
)

// Command tokens. The callback variants arrive via inline keyboard presses and
// feed the same handlers as the slash commands.
const (
	cmdStart    = "/start"
	cmdBalance  = "/balance"
	cmdRef      = "/ref"
	cmdWithdraw = "/withdraw"
	cmdStats    = "/stats"

	tokenBalance  = "balance"
	tokenRef      = "ref"
	tokenWithdraw = "withdraw"
)

// Generic bodies crossing the trust boundary; detail goes to the logs only.
const (
	msgUnauthorized = "Unauthorized"
	msgInvalid      = "Invalid request"
	msgMaintenance  = "System maintenance in progress"
	msgInternal     = "Internal error"
)

// updateMeta is the slice of an inbound update the dispatcher works with.
type updateMeta struct {
	updateID   int64
	userID     int64
	chatID     int64
	username   string
	text       string
	isCallback bool
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	lctx := logging.Context{RemoteAddr: r.RemoteAddr, Event: "webhook_request"}

	if !s.admit(r) {
		s.logger.WithFields(contextFields(lctx)).Warn("rejected webhook request at the gate")
		http.Error(w, msgUnauthorized, http.StatusForbidden)
		return
	}

	var update models.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeFailure(w, http.StatusInternalServerError, msgInvalid,
			fmt.Errorf("%w: decode update: %v", domain.ErrMalformedInput, err), lctx)
		return
	}

	meta, ok := extractMeta(&update)
	if !ok {
		s.writeFailure(w, http.StatusInternalServerError, msgInvalid,
			fmt.Errorf("%w: update carries no usable sender", domain.ErrMalformedInput), lctx)
		return
	}

	lctx.UserID = meta.userID
	lctx.ChatID = meta.chatID
	lctx.UpdateID = meta.updateID

	if s.isDuplicate(meta.updateID) {
		s.logger.WithFields(contextFields(lctx)).Info("ignoring redelivered update")
		w.WriteHeader(http.StatusOK)
		return
	}

	token, arg := splitCommand(meta)

	// The stats path takes the store lock itself, so it must not run inside
	// the dispatch cycle.
	if token == cmdStats && meta.userID == s.cfg.AdminID {
		s.handleStats(w, meta, lctx)
		return
	}

	var (
		rep       *reply
		pendingTx *domain.Transaction
	)

	err := s.store.WithLock(func(state *store.State) error {
		rep, pendingTx = s.dispatch(state, meta, token, arg)
		return nil
	})
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, failureBody(err), err, lctx)
		return
	}

	s.markSeen(meta.updateID)

	if pendingTx != nil && s.notifier != nil {
		if notifyErr := s.notifier.WithdrawalRequested(r.Context(), pendingTx, meta.username); notifyErr != nil {
			s.logger.WithFields(contextFields(lctx)).WithError(notifyErr).Warn("admin notification failed")
		}
	}

	s.writeReply(w, rep)
}

// dispatch routes a gated, parsed update to its command handler. Business
// rejections come back as replies; only store failures abort the request.
func (s *Server) dispatch(state *store.State, meta updateMeta, token, arg string) (*reply, *domain.Transaction) {
	user, created := s.ledger.EnsureUser(state, meta.userID, meta.username)
	if user == nil {
		return sendMessage(meta.chatID, msgInternal), nil
	}

	if user.State == domain.StateAwaitingContactInfo && !meta.isCallback && !strings.HasPrefix(meta.text, "/") {
		return s.captureContact(state, meta), nil
	}

	switch token {
	case cmdStart:
		return s.welcome(state, meta, arg, created), nil
	case cmdBalance, tokenBalance:
		return s.balance(user, meta.chatID), nil
	case cmdRef, tokenRef:
		return s.referralLink(user, meta.chatID), nil
	case cmdWithdraw, tokenWithdraw:
		return s.requestWithdrawal(state, meta, arg)
	default:
		return s.unrecognized(meta.chatID), nil
	}
}

func (s *Server) welcome(state *store.State, meta updateMeta, arg string, created bool) *reply {
	text := "Welcome! Invite friends and earn bonuses for every referral."
	if !created {
		text = "Welcome back!"
	}

	if referrerID, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if s.ledger.Track(state, meta.userID, referrerID) {
			text += fmt.Sprintf("\nReferral bonus of %.2f credited to you and your inviter!", s.cfg.ReferralBonus)
		}
	}

	return sendMessage(meta.chatID, text).withKeyboard(mainKeyboard())
}

func (s *Server) balance(user *domain.User, chatID int64) *reply {
	return sendMessage(chatID, fmt.Sprintf(
		"Your balance: <b>%.2f</b>\nReferrals: %d", user.Balance, len(user.Referrals),
	))
}

func (s *Server) referralLink(user *domain.User, chatID int64) *reply {
	return sendMessage(chatID, fmt.Sprintf(
		"Referral link: %s\nFriends who join with <code>/start %d</code> credit your bonus.",
		s.cfg.ReferralLink, user.UserID,
	))
}

func (s *Server) requestWithdrawal(state *store.State, meta updateMeta, arg string) (*reply, *domain.Transaction) {
	amount := s.withdrawals.Minimum()
	if parsed, err := strconv.ParseFloat(arg, 64); err == nil {
		amount = parsed
	}

	tx, err := s.withdrawals.Request(state, meta.userID, amount)
	switch {
	case errors.Is(err, withdraw.ErrBelowMinimum):
		return sendMessage(meta.chatID, fmt.Sprintf(
			"Minimum withdrawal is %.2f.", s.withdrawals.Minimum())), nil
	case errors.Is(err, withdraw.ErrInsufficientBalance):
		return sendMessage(meta.chatID, fmt.Sprintf(
			"Insufficient balance for a withdrawal of %.2f.", amount)), nil
	case err != nil:
		return sendMessage(meta.chatID, msgInternal), nil
	}

	text := fmt.Sprintf(
		"Withdrawal request <code>%s</code> for %.2f submitted and awaiting approval.\nPlease reply with your payout email.",
		tx.ID, tx.Amount,
	)

	return sendMessage(meta.chatID, text), tx
}

func (s *Server) captureContact(state *store.State, meta updateMeta) *reply {
	email := strings.TrimSpace(meta.text)

	if err := s.withdrawals.RecordContact(state, meta.userID, email); err != nil {
		return sendMessage(meta.chatID, msgInternal)
	}

	return sendMessage(meta.chatID, "Payout details recorded. An admin will process your withdrawal shortly.")
}

func (s *Server) unrecognized(chatID int64) *reply {
	return sendMessage(chatID,
		"Unrecognized command. Available commands:\n"+
			cmdStart+" - register and see the menu\n"+
			cmdBalance+" - show your balance\n"+
			cmdRef+" - get your referral link\n"+
			cmdWithdraw+" - request a withdrawal")
}

func (s *Server) handleStats(w http.ResponseWriter, meta updateMeta, lctx logging.Context) {
	stats, err := s.stats.Collect()
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, failureBody(err), err, lctx)
		return
	}

	s.markSeen(meta.updateID)

	s.writeReply(w, sendMessage(meta.chatID, fmt.Sprintf(
		"Users: %d\nPending withdrawals: %d (%.2f)\nApproved withdrawals: %d (%.2f)",
		stats.Users, stats.PendingCount, stats.PendingAmount, stats.ApprovedCount, stats.ApprovedAmount,
	)))
}

// failureBody maps a store failure onto the generic body the caller may see.
func failureBody(err error) string {
	switch {
	case errors.Is(err, domain.ErrCorruptData):
		return msgMaintenance
	case errors.Is(err, domain.ErrMalformedInput):
		return msgInvalid
	default:
		return msgInternal
	}
}

func (s *Server) isDuplicate(updateID int64) bool {
	if updateID == 0 {
		return false
	}

	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	return updateID <= s.lastUpdateID
}

func (s *Server) markSeen(updateID int64) {
	if updateID == 0 {
		return
	}

	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	if updateID > s.lastUpdateID {
		s.lastUpdateID = updateID
	}
}

// splitCommand extracts the command token and its first argument. Callback
// data is used as the token directly; message text is split on whitespace and
// the token's @botname suffix is stripped.
func splitCommand(meta updateMeta) (string, string) {
	if meta.isCallback {
		return strings.TrimSpace(meta.text), ""
	}

	fields := strings.Fields(meta.text)
	if len(fields) == 0 {
		return "", ""
	}

	token := fields[0]
	if at := strings.IndexByte(token, '@'); at > 0 {
		token = token[:at]
	}

	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	return token, arg
}

func extractMeta(update *models.Update) (updateMeta, bool) {
	if update == nil {
		return updateMeta{}, false
	}

	switch {
	case update.Message != nil:
		meta := updateMeta{
			updateID: update.ID,
			userID:   userID(update.Message.From),
			chatID:   update.Message.Chat.ID,
			username: userName(update.Message.From),
			text:     strings.TrimSpace(update.Message.Text),
		}
		return meta, meta.userID != 0
	case update.CallbackQuery != nil:
		meta := updateMeta{
			updateID:   update.ID,
			userID:     update.CallbackQuery.From.ID,
			chatID:     messageChatID(update.CallbackQuery.Message),
			username:   update.CallbackQuery.From.Username,
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			isCallback: true,
		}
		if meta.chatID == 0 {
			// Callbacks on inaccessible messages still come from a private
			// chat whose id equals the user id.
			meta.chatID = meta.userID
		}
		return meta, meta.userID != 0
	default:
		return updateMeta{}, false
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func userName(user *models.User) string {
	if user == nil {
		return ""
	}

	return user.Username
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return msg.Message.Chat.ID
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return msg.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}
