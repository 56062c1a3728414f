// Package store manages the JSON-file-backed state documents.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"tg_referral_bot/internal/domain"
	"tg_referral_bot/internal/logging"
)

// Document file names used across the bot.
const (
	FileUsers        = "users.json"
	FileTransactions = "transactions.json"
)

const (
	dirPermissions  = 0o700
	filePermissions = 0o600
)

// State is the full in-memory snapshot of both documents. Both maps are keyed
// by string-encoded ids to match the on-disk representation.
type State struct {
	Users        map[string]*domain.User
	Transactions map[string]*domain.Transaction
}

// NewState returns an empty state with initialized maps.
func NewState() *State {
	return &State{
		Users:        make(map[string]*domain.User),
		Transactions: make(map[string]*domain.Transaction),
	}
}

// Key converts a Telegram user id to the string form used as a map key.
func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}

// User returns the user record for the given id, or nil when absent.
func (s *State) User(id int64) *domain.User {
	if s == nil {
		return nil
	}

	return s.Users[Key(id)]
}

// PutUser inserts or replaces the user record keyed by its id.
func (s *State) PutUser(user *domain.User) {
	if s == nil || user == nil {
		return
	}

	s.Users[Key(user.UserID)] = user
}

// PutTransaction inserts or replaces the transaction record keyed by its id.
func (s *State) PutTransaction(tx *domain.Transaction) {
	if s == nil || tx == nil {
		return
	}

	s.Transactions[tx.ID] = tx
}

// Manager owns the data directory and serializes every load-mutate-save cycle
// behind a process-wide mutex. Two concurrent requests would otherwise each
// load a stale snapshot and overwrite each other's updates.
type Manager struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Entry
}

// NewManager creates the data directory when missing and returns a Manager
// rooted at it.
func NewManager(dir string, logger *logrus.Entry) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return &Manager{
		dir:    dir,
		logger: logger,
	}, nil
}

// WithLock runs fn against a freshly loaded state while holding the store
// lock, then persists both documents. When fn returns an error nothing is
// written and the mutations are discarded.
func (m *Manager) WithLock(fn func(*State) error) error {
	if m == nil {
		return errors.New("store manager is not initialized")
	}
	if fn == nil {
		return errors.New("mutation function is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.load()
	if err != nil {
		return err
	}

	if err := fn(state); err != nil {
		return err
	}

	if err := m.save(state); err != nil {
		return err
	}

	m.logger.WithField("event", "state_saved").Debug("persisted state documents")
	return nil
}

// View runs fn against a freshly loaded state while holding the store lock,
// without persisting afterwards. Read-only callers must use this instead of
// WithLock so they never rewrite the documents.
func (m *Manager) View(fn func(*State) error) error {
	if m == nil {
		return errors.New("store manager is not initialized")
	}
	if fn == nil {
		return errors.New("view function is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.load()
	if err != nil {
		return err
	}

	return fn(state)
}

func (m *Manager) load() (*State, error) {
	state := NewState()

	if err := readDocument(filepath.Join(m.dir, FileUsers), &state.Users); err != nil {
		return nil, fmt.Errorf("load %s: %w", FileUsers, err)
	}

	if err := readDocument(filepath.Join(m.dir, FileTransactions), &state.Transactions); err != nil {
		return nil, fmt.Errorf("load %s: %w", FileTransactions, err)
	}

	return state, nil
}

// save writes the transactions document before the users document. If the
// second write fails, a withdrawal request leaves a pending transaction
// without the debit rather than a silent debit with no record.
func (m *Manager) save(state *State) error {
	if err := writeDocument(m.dir, FileTransactions, state.Transactions); err != nil {
		return fmt.Errorf("save %s: %w", FileTransactions, err)
	}

	if err := writeDocument(m.dir, FileUsers, state.Users); err != nil {
		return fmt.Errorf("save %s: %w", FileUsers, err)
	}

	return nil
}

// readDocument parses the JSON document at path into target. A missing file
// leaves the target's empty map untouched; an unparsable file is corrupt data.
func readDocument(path string, target any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", domain.ErrCorruptData, filepath.Base(path), err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrCorruptData, filepath.Base(path), err)
	}

	return nil
}

// writeDocument serializes the document to a temporary file in the same
// directory and renames it over the destination, so a concurrent reader never
// observes a half-written file. Overridable so tests can inject write
// failures.
var writeDocument = func(dir, name string, document any) error {
	raw, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", domain.ErrPersistenceFailure, name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", domain.ErrPersistenceFailure, name, err)
	}

	tmpPath := tmp.Name()

	if err := writeAndClose(tmp, raw); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %v", domain.ErrPersistenceFailure, name, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrPersistenceFailure, name, err)
	}

	return nil
}

func writeAndClose(file *os.File, raw []byte) error {
	defer file.Close()

	if err := file.Chmod(filePermissions); err != nil {
		return err
	}

	if _, err := file.Write(raw); err != nil {
		return err
	}

	return file.Sync()
}
