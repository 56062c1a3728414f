package domain

import "time"

// TransactionStatus is the settlement state of a withdrawal transaction.
type TransactionStatus string

const (
	// StatusPending means the withdrawal awaits manual admin settlement.
	StatusPending TransactionStatus = "pending"
	// StatusApproved means an admin approved and settled the withdrawal.
	StatusApproved TransactionStatus = "approved"
	// StatusRejected means an admin rejected the withdrawal.
	StatusRejected TransactionStatus = "rejected"
)

// Transaction records a withdrawal request. Records are append-only; only the
// out-of-band admin settlement path ever changes the status.
type Transaction struct {
	ID           string            `json:"id"`
	UserID       int64             `json:"user_id"`
	Amount       float64           `json:"amount"`
	Status       TransactionStatus `json:"status"`
	ContactEmail string            `json:"contact_email,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
