// Package webhook hosts the HTTP server, request gate, command dispatch, and
// reply emission for inbound Telegram updates.
package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tg_referral_bot/internal/config"
	"tg_referral_bot/internal/domain"
	"tg_referral_bot/internal/feature/referral"
	"tg_referral_bot/internal/feature/withdraw"
	"tg_referral_bot/internal/logging"
	"tg_referral_bot/internal/store"
)

const (
	// Path is the webhook endpoint registered with the Telegram setWebhook call.
	Path = "/webhook"
	// HealthPath is the unauthenticated liveness probe.
	HealthPath = "/health"

	headerSecretToken = "X-Telegram-Bot-Api-Secret-Token"
	readHeaderTimeout = 2 * time.Second
)

// Store is the injected state abstraction; the file-backed manager implements
// it in production. WithLock persists after the mutation, View never writes.
type Store interface {
	WithLock(fn func(*store.State) error) error
	View(fn func(*store.State) error) error
}

// Notifier delivers out-of-band admin alerts. May be nil when outbound
// notifications are disabled.
type Notifier interface {
	WithdrawalRequested(ctx context.Context, tx *domain.Transaction, username string) error
}

// Server owns the HTTP server and the request gate in front of the dispatcher.
type Server struct {
	server      *http.Server
	cfg         config.Config
	store       Store
	ledger      *referral.Ledger
	withdrawals *withdraw.Handler
	stats       *store.StatsProvider
	notifier    Notifier
	logger      *logrus.Entry

	// seenMu guards lastUpdateID, the process-lifetime duplicate-delivery
	// cursor. Telegram update ids are monotonically increasing.
	seenMu       sync.Mutex
	lastUpdateID int64
}

// NewServer wires the webhook endpoint, the health probe, and the dispatcher
// dependencies.
func NewServer(cfg config.Config, st Store, notifier Notifier, logger *logrus.Entry) (*Server, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		cfg:         cfg,
		store:       st,
		ledger:      referral.NewLedger(cfg.SignupBonus, cfg.ReferralBonus, logger),
		withdrawals: withdraw.NewHandler(cfg.MinWithdrawal, logger),
		stats:       store.NewStatsProvider(st),
		notifier:    notifier,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, srv.handleHealth)
	mux.HandleFunc(Path, srv.handleWebhook)
	mux.HandleFunc("/", srv.handleUnknownPath)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv, nil
}

// ListenAndServe starts the webhook server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "webhook_listen",
		"addr":  s.server.Addr,
	}).Info("starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server listen: %w", err)
	}

	s.logger.WithField("event", "webhook_stopped").Info("webhook server stopped")
	return nil
}

// Shutdown gracefully stops the webhook server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// handleHealth answers the liveness probe. No authentication, plain body, per
// the platform's probe contract.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Unauthorized", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleUnknownPath keeps the boundary uniform: every path outside the
// webhook and health endpoints gets the same 403 as a failed gate check,
// never a revealing 404.
func (s *Server) handleUnknownPath(w http.ResponseWriter, r *http.Request) {
	s.logger.WithFields(logging.Fields{
		"event":       "unknown_path",
		"path":        r.URL.Path,
		"remote_addr": r.RemoteAddr,
	}).Warn("rejected request to unknown path")

	http.Error(w, msgUnauthorized, http.StatusForbidden)
}

// admit enforces the request gate: POST only, secret header equal to the
// configured value in constant time. Loopback peers may bypass the secret
// check when explicitly enabled.
func (s *Server) admit(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}

	if s.cfg.LocalBypass && isLoopback(r.RemoteAddr) {
		return true
	}

	provided := r.Header.Get(headerSecretToken)
	if provided == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.Secret)) == 1
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
