package store

import (
	"errors"
	"fmt"

	"tg_referral_bot/internal/domain"
)

// viewer is the subset of Manager used by the stats provider, kept as an
// interface so tests can substitute an in-memory state. Stats are read-only,
// so the provider never takes the persisting WithLock path.
type viewer interface {
	View(fn func(*State) error) error
}

// Stats summarizes the state documents for the admin /stats command.
type Stats struct {
	Users          int
	PendingCount   int
	PendingAmount  float64
	ApprovedCount  int
	ApprovedAmount float64
}

// StatsProvider computes collection counts without leaking store internals to
// callers.
type StatsProvider struct {
	store viewer
}

// NewStatsProvider constructs a StatsProvider backed by the given store.
func NewStatsProvider(store viewer) *StatsProvider {
	return &StatsProvider{store: store}
}

// Collect loads the state under the store lock and tallies user and
// withdrawal counts.
func (p *StatsProvider) Collect() (Stats, error) {
	if p == nil || p.store == nil {
		return Stats{}, errors.New("stats provider is not initialized")
	}

	var stats Stats

	err := p.store.View(func(state *State) error {
		stats.Users = len(state.Users)

		for _, tx := range state.Transactions {
			switch tx.Status {
			case domain.StatusPending:
				stats.PendingCount++
				stats.PendingAmount += tx.Amount
			case domain.StatusApproved:
				stats.ApprovedCount++
				stats.ApprovedAmount += tx.Amount
			}
		}

		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("collect stats: %w", err)
	}

	return stats, nil
}
