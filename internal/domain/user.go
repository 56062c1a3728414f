package domain

import "time"

// ConversationState tracks where a user is in a multi-step flow. Only one such
// flow exists today (collecting a payout email after a withdrawal request).
type ConversationState string

const (
	// StateIdle means no flow is in progress.
	StateIdle ConversationState = "idle"
	// StateAwaitingContactInfo means the next plain-text message is the
	// user's payout contact email.
	StateAwaitingContactInfo ConversationState = "awaiting_contact_info"
)

// User represents a Telegram user known to the bot.
type User struct {
	UserID       int64             `json:"user_id"`
	Username     string            `json:"username,omitempty"`
	Balance      float64           `json:"balance"`
	Referrals    []int64           `json:"referrals"`
	ReferredBy   *int64            `json:"referred_by,omitempty"`
	ContactEmail string            `json:"contact_email,omitempty"`
	State        ConversationState `json:"state,omitempty"`
	JoinedAt     time.Time         `json:"joined_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// HasReferral reports whether the given user id is already in the referral set.
func (u *User) HasReferral(userID int64) bool {
	if u == nil {
		return false
	}

	for _, id := range u.Referrals {
		if id == userID {
			return true
		}
	}

	return false
}

// AddReferral appends the given user id to the referral set. Returns false
// without mutating when the id is already present.
func (u *User) AddReferral(userID int64) bool {
	if u == nil || u.HasReferral(userID) {
		return false
	}

	u.Referrals = append(u.Referrals, userID)
	return true
}
