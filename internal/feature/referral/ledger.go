// Package referral provides user registration and the referral ledger.
package referral

import (
	"time"

	"github.com/sirupsen/logrus"

	"tg_referral_bot/internal/domain"
	"tg_referral_bot/internal/logging"
	"tg_referral_bot/internal/store"
)

// Ledger registers users and links referrals, applying the configured bonuses.
// All methods operate on the in-memory state only; persistence is the caller's
// concern.
type Ledger struct {
	signupBonus   float64
	referralBonus float64
	logger        *logrus.Entry
}

// NewLedger constructs a Ledger with the given bonus amounts.
func NewLedger(signupBonus, referralBonus float64, logger *logrus.Entry) *Ledger {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Ledger{
		signupBonus:   signupBonus,
		referralBonus: referralBonus,
		logger:        logger,
	}
}

// EnsureUser returns the user record for the given id, creating it with the
// signup bonus on first contact. The second return value reports whether a new
// record was created. The username is refreshed on every call since users can
// rename themselves.
func (l *Ledger) EnsureUser(state *store.State, userID int64, username string) (*domain.User, bool) {
	if l == nil || state == nil || userID == 0 {
		return nil, false
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	if user := state.User(userID); user != nil {
		if username != "" && user.Username != username {
			user.Username = username
		}
		user.UpdatedAt = now
		return user, false
	}

	user := &domain.User{
		UserID:    userID,
		Username:  username,
		Balance:   l.signupBonus,
		Referrals: []int64{},
		State:     domain.StateIdle,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	state.PutUser(user)

	l.logger.WithFields(logging.Fields{
		"event":   "user_registered",
		"user_id": userID,
	}).Info("registered new user")

	return user, true
}

// Track links newUserID under referrerID and credits the referral bonus to
// both parties. Returns false and mutates nothing when the referral is a
// self-referral, the referrer is unknown, or the pair is already linked.
func (l *Ledger) Track(state *store.State, newUserID, referrerID int64) bool {
	if l == nil || state == nil || newUserID == 0 || referrerID == 0 {
		return false
	}
	if newUserID == referrerID {
		return false
	}

	referrer := state.User(referrerID)
	newUser := state.User(newUserID)
	if referrer == nil || newUser == nil {
		return false
	}
	if newUser.ReferredBy != nil {
		return false
	}

	if !referrer.AddReferral(newUserID) {
		return false
	}

	now := time.Now().UTC().Truncate(time.Millisecond)

	newUser.ReferredBy = &referrerID
	referrer.Balance += l.referralBonus
	newUser.Balance += l.referralBonus
	referrer.UpdatedAt = now
	newUser.UpdatedAt = now

	l.logger.WithFields(logging.Fields{
		"event":       "referral_linked",
		"user_id":     newUserID,
		"referrer_id": referrerID,
		"bonus":       l.referralBonus,
	}).Info("linked referral and credited bonuses")

	return true
}
