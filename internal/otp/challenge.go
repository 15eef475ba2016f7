// Package otp manages the one-time-passcode challenges that guard large
// withdrawals. Challenges live in memory only: a restart invalidates them,
// which simply forces the user to resend a code.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/cradoe/gopass"
	"golang.org/x/exp/maps"
)

// ErrNoChallenge is returned by Resend when the withdrawal has no live
// challenge, because it expired or was never created.
var ErrNoChallenge = errors.New("no live challenge for withdrawal")

type VerifyResult int

const (
	// VerifyOK means the code matched and the challenge has been destroyed.
	VerifyOK VerifyResult = iota

	// VerifyMismatch means the code did not match. The challenge stays alive
	// and the attempt counter is incremented; the resend cooldown is untouched.
	VerifyMismatch

	// VerifyNotFound means no live challenge exists for the withdrawal,
	// either because it expired or because it was already resolved.
	VerifyNotFound
)

type Challenge struct {
	WithdrawalID string
	Attempts     int

	codeHash     string
	cooldownEnds time.Time
	expiresAt    time.Time
}

type Manager struct {
	mu         sync.Mutex
	challenges map[string]*Challenge

	cooldownWindow time.Duration
	ttl            time.Duration
}

func NewManager(cooldownSeconds, ttlSeconds int) *Manager {
	return &Manager{
		challenges:     make(map[string]*Challenge),
		cooldownWindow: time.Duration(cooldownSeconds) * time.Second,
		ttl:            time.Duration(ttlSeconds) * time.Second,
	}
}

// Create issues a fresh challenge for the withdrawal and returns the plain
// code so the caller can deliver it. Creating over an existing challenge
// replaces it, which invalidates the previous code.
func (m *Manager) Create(withdrawalID string) (string, error) {
	code, hash, err := generateCode()
	if err != nil {
		return "", err
	}

	now := time.Now()

	m.mu.Lock()
	m.challenges[withdrawalID] = &Challenge{
		WithdrawalID: withdrawalID,
		codeHash:     hash,
		cooldownEnds: now.Add(m.cooldownWindow),
		expiresAt:    now.Add(m.ttl),
	}
	m.mu.Unlock()

	return code, nil
}

// Verify checks the submitted code against the live challenge. Callers are
// expected to have validated the code format already; a malformed code never
// reaches this point.
func (m *Manager) Verify(withdrawalID, code string) VerifyResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, ok := m.challenges[withdrawalID]
	if !ok || time.Now().After(challenge.expiresAt) {
		delete(m.challenges, withdrawalID)
		return VerifyNotFound
	}

	matches, err := gopass.ComparePasswordAndHash(code, challenge.codeHash)
	if err != nil || !matches {
		challenge.Attempts++
		return VerifyMismatch
	}

	delete(m.challenges, withdrawalID)
	return VerifyOK
}

// Resend rotates the code once the cooldown window has elapsed. While the
// cooldown is still running it returns ok=false together with the seconds
// left. A successful resend restarts the cooldown at the full window and
// extends the challenge lifetime.
func (m *Manager) Resend(withdrawalID string) (code string, remaining int, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, found := m.challenges[withdrawalID]
	if !found || time.Now().After(challenge.expiresAt) {
		delete(m.challenges, withdrawalID)
		return "", 0, false, ErrNoChallenge
	}

	if left := secondsUntil(challenge.cooldownEnds); left > 0 {
		return "", left, false, nil
	}

	code, hash, err := generateCode()
	if err != nil {
		return "", 0, false, err
	}

	now := time.Now()
	challenge.codeHash = hash
	challenge.cooldownEnds = now.Add(m.cooldownWindow)
	challenge.expiresAt = now.Add(m.ttl)

	return code, secondsUntil(challenge.cooldownEnds), true, nil
}

// Cooldown returns the seconds until resend becomes available. The value is
// derived from the wall clock, so it is monotonically non-increasing between
// resends regardless of how often it is read.
func (m *Manager) Cooldown(withdrawalID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, ok := m.challenges[withdrawalID]
	if !ok {
		return 0
	}

	return secondsUntil(challenge.cooldownEnds)
}

func (m *Manager) Attempts(withdrawalID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, ok := m.challenges[withdrawalID]
	if !ok {
		return 0
	}

	return challenge.Attempts
}

// Alive reports whether the withdrawal still has an unexpired challenge.
// Reconciliation uses it to tell an in-progress step-up from an abandoned one.
func (m *Manager) Alive(withdrawalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	challenge, ok := m.challenges[withdrawalID]
	return ok && !time.Now().After(challenge.expiresAt)
}

// Destroy drops the challenge, if any. Called when the withdrawal reaches a
// terminal state or the flow is abandoned.
func (m *Manager) Destroy(withdrawalID string) {
	m.mu.Lock()
	delete(m.challenges, withdrawalID)
	m.mu.Unlock()
}

// Run drives the 1Hz housekeeping tick that removes expired challenges.
// It blocks until the context is cancelled, so no timer outlives the app.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("OTP challenge manager received cancellation signal, shutting down...")
			return
		case <-ticker.C:
			m.Sweep(time.Now())
		}
	}
}

// Sweep removes challenges whose lifetime has elapsed.
func (m *Manager) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range maps.Keys(m.challenges) {
		if now.After(m.challenges[id].expiresAt) {
			delete(m.challenges, id)
		}
	}
}

func secondsUntil(t time.Time) int {
	left := time.Until(t).Seconds()
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left))
}

func generateCode() (string, string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", "", err
	}

	code := fmt.Sprintf("%06d", n.Int64())

	hash, err := gopass.Hash(code)
	if err != nil {
		return "", "", err
	}

	return code, hash, nil
}
