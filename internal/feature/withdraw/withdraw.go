// Package withdraw handles withdrawal requests and the payout contact flow.
package withdraw

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_referral_bot/internal/domain"
	"tg_referral_bot/internal/logging"
	"tg_referral_bot/internal/store"
)

// Rejection reasons surfaced to the dispatcher. These are business outcomes,
// not request-level failures; the request still answers 200 with a reply.
var (
	// ErrBelowMinimum rejects amounts under the configured threshold.
	ErrBelowMinimum = errors.New("amount below minimum withdrawal")
	// ErrInsufficientBalance rejects amounts exceeding the user's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownUser rejects withdrawal attempts by unregistered users.
	ErrUnknownUser = errors.New("unknown user")
)

// newTransactionID is overridable for tests.
var newTransactionID = func() string {
	return uuid.NewString()
}

// Handler creates pending withdrawal transactions and debits balances.
type Handler struct {
	minimum float64
	logger  *logrus.Entry
}

// NewHandler constructs a Handler with the given minimum withdrawal amount.
func NewHandler(minimum float64, logger *logrus.Entry) *Handler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Handler{
		minimum: minimum,
		logger:  logger,
	}
}

// Minimum returns the configured withdrawal threshold.
func (h *Handler) Minimum() float64 {
	if h == nil {
		return 0
	}
	return h.minimum
}

// Request debits the user and appends a pending transaction in the same
// mutation, so the balance can never go negative. The rejection paths leave
// the state untouched. Settlement is a manual admin process elsewhere.
func (h *Handler) Request(state *store.State, userID int64, amount float64) (*domain.Transaction, error) {
	if h == nil || state == nil {
		return nil, errors.New("withdraw handler is not initialized")
	}

	user := state.User(userID)
	if user == nil {
		return nil, ErrUnknownUser
	}

	// NaN slips through ordinary comparisons, so non-finite amounts must be
	// rejected explicitly before the threshold and balance guards.
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < h.minimum {
		return nil, ErrBelowMinimum
	}
	if user.Balance < amount {
		return nil, ErrInsufficientBalance
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	tx := &domain.Transaction{
		ID:        newTransactionID(),
		UserID:    userID,
		Amount:    amount,
		Status:    domain.StatusPending,
		CreatedAt: now,
	}

	user.Balance -= amount
	user.State = domain.StateAwaitingContactInfo
	user.UpdatedAt = now
	state.PutTransaction(tx)

	h.logger.WithFields(logging.Fields{
		"event":          "withdrawal_requested",
		"user_id":        userID,
		"amount":         amount,
		"transaction_id": tx.ID,
	}).Info("queued withdrawal for manual approval")

	return tx, nil
}

// RecordContact stores the payout email on the user and their newest pending
// transaction, completing the two-step flow and returning the user to idle.
func (h *Handler) RecordContact(state *store.State, userID int64, email string) error {
	if h == nil || state == nil {
		return errors.New("withdraw handler is not initialized")
	}

	user := state.User(userID)
	if user == nil {
		return ErrUnknownUser
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	user.ContactEmail = email
	user.State = domain.StateIdle
	user.UpdatedAt = now

	if tx := newestPending(state, userID); tx != nil {
		tx.ContactEmail = email
	}

	h.logger.WithFields(logging.Fields{
		"event":   "contact_recorded",
		"user_id": userID,
	}).Info("recorded payout contact")

	return nil
}

func newestPending(state *store.State, userID int64) *domain.Transaction {
	var newest *domain.Transaction

	for _, tx := range state.Transactions {
		if tx.UserID != userID || tx.Status != domain.StatusPending {
			continue
		}
		if newest == nil || tx.CreatedAt.After(newest.CreatedAt) {
			newest = tx
		}
	}

	return newest
}
