package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_referral_bot/internal/domain"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()

	dir := t.TempDir()
	hookLogger, _ := logtest.NewNullLogger()

	manager, err := NewManager(dir, logrus.NewEntry(hookLogger))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	return manager, dir
}

func TestWithLockStartsEmptyWhenFilesMissing(t *testing.T) {
	manager, _ := newTestManager(t)

	err := manager.WithLock(func(state *State) error {
		if len(state.Users) != 0 || len(state.Transactions) != 0 {
			t.Fatalf("expected empty state, got %d users, %d transactions", len(state.Users), len(state.Transactions))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock returned error: %v", err)
	}
}

func TestWithLockRoundTripsState(t *testing.T) {
	manager, _ := newTestManager(t)

	joined := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	referrer := int64(7)

	err := manager.WithLock(func(state *State) error {
		state.PutUser(&domain.User{
			UserID:     42,
			Username:   "alice",
			Balance:    15,
			Referrals:  []int64{99},
			ReferredBy: &referrer,
			State:      domain.StateIdle,
			JoinedAt:   joined,
			UpdatedAt:  joined,
		})
		state.PutTransaction(&domain.Transaction{
			ID:        "tx-1",
			UserID:    42,
			Amount:    50,
			Status:    domain.StatusPending,
			CreatedAt: joined,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock returned error: %v", err)
	}

	err = manager.WithLock(func(state *State) error {
		user := state.User(42)
		if user == nil {
			t.Fatalf("expected user 42 after reload")
		}
		if user.Username != "alice" || user.Balance != 15 {
			t.Fatalf("unexpected user after reload: %+v", user)
		}
		if !user.HasReferral(99) {
			t.Fatalf("expected referral set to survive reload")
		}
		if user.ReferredBy == nil || *user.ReferredBy != 7 {
			t.Fatalf("expected referred_by to survive reload, got %v", user.ReferredBy)
		}
		if !user.JoinedAt.Equal(joined) {
			t.Fatalf("expected joined_at %v, got %v", joined, user.JoinedAt)
		}

		tx, ok := state.Transactions["tx-1"]
		if !ok {
			t.Fatalf("expected transaction tx-1 after reload")
		}
		if tx.UserID != 42 || tx.Amount != 50 || tx.Status != domain.StatusPending {
			t.Fatalf("unexpected transaction after reload: %+v", tx)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock returned error: %v", err)
	}
}

func TestWithLockDiscardsMutationsOnError(t *testing.T) {
	manager, dir := newTestManager(t)

	boom := errors.New("handler failed")

	err := manager.WithLock(func(state *State) error {
		state.PutUser(&domain.User{UserID: 1, Balance: 100})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, FileUsers)); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no users file after failed mutation, got %v", statErr)
	}
}

func TestViewDoesNotPersist(t *testing.T) {
	manager, dir := newTestManager(t)

	err := manager.View(func(state *State) error {
		state.PutUser(&domain.User{UserID: 1, Balance: 100})
		return nil
	})
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, FileUsers)); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected View to leave no users file, got %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, FileTransactions)); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected View to leave no transactions file, got %v", statErr)
	}
}

func TestSaveWritesTransactionsBeforeUsers(t *testing.T) {
	manager, dir := newTestManager(t)

	original := writeDocument
	writeDocument = func(dir, name string, document any) error {
		if name == FileUsers {
			return fmt.Errorf("%w: write %s: disk full", domain.ErrPersistenceFailure, name)
		}
		return original(dir, name, document)
	}
	t.Cleanup(func() { writeDocument = original })

	err := manager.WithLock(func(state *State) error {
		state.PutUser(&domain.User{UserID: 42, Balance: 50})
		state.PutTransaction(&domain.Transaction{ID: "tx-1", UserID: 42, Amount: 50, Status: domain.StatusPending})
		return nil
	})
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(dir, FileTransactions)); statErr != nil {
		t.Fatalf("expected transactions file despite users write failure: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, FileUsers)); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no users file after failed write, got %v", statErr)
	}
}

func TestWithLockFailsOnCorruptDocument(t *testing.T) {
	manager, dir := newTestManager(t)

	if err := os.WriteFile(filepath.Join(dir, FileUsers), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to seed corrupt file: %v", err)
	}

	called := false
	err := manager.WithLock(func(*State) error {
		called = true
		return nil
	})

	if !errors.Is(err, domain.ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData, got %v", err)
	}
	if called {
		t.Fatalf("mutation must not run against corrupt state")
	}
}

func TestSaveSetsRestrictivePermissionsAndLeavesNoTemp(t *testing.T) {
	manager, dir := newTestManager(t)

	err := manager.WithLock(func(state *State) error {
		state.PutUser(&domain.User{UserID: 5, Balance: 1})
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock returned error: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, FileUsers))
	if err != nil {
		t.Fatalf("expected users file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read data dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("expected no leftover temp file, found %s", entry.Name())
		}
	}
}

func TestDocumentsAreKeyedByStringID(t *testing.T) {
	manager, dir := newTestManager(t)

	err := manager.WithLock(func(state *State) error {
		state.PutUser(&domain.User{UserID: 42, Balance: 5})
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock returned error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, FileUsers))
	if err != nil {
		t.Fatalf("failed to read users file: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("users file is not a JSON object: %v", err)
	}

	if _, ok := doc["42"]; !ok {
		t.Fatalf("expected users document keyed by string id, got keys %v", keysOf(doc))
	}
}

func keysOf(doc map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	return keys
}
