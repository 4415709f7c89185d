// Package pairing implements the device pairing flow: short-lived 8-char
// codes handed out over a QR payload, consumed exactly once to mint a
// device token.
package pairing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/storage"
)

// Codes avoid 0/O/1/I/L to survive being read off a screen.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	codeLength = 8
	defaultTTL = 5 * time.Minute
)

// Manager owns in-flight pairing requests. Requests live in memory only;
// a restart voids outstanding codes, which is the safe failure mode.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*wizard.PairingRequest // keyed by code

	store   storage.DeviceStore
	address string // advertised in the QR payload
	ttl     time.Duration
	log     *slog.Logger
}

// New creates a Manager. ttl 0 defaults to five minutes.
func New(store storage.DeviceStore, address string, ttl time.Duration, log *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		pending: make(map[string]*wizard.PairingRequest),
		store:   store,
		address: address,
		ttl:     ttl,
		log:     log,
	}
}

// Begin creates a pairing request and its QR payload.
func (m *Manager) Begin(ctx context.Context) (*wizard.PairingRequest, *wizard.QRPayload, error) {
	req := &wizard.PairingRequest{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Code:      newCode(),
		ExpiresAt: time.Now().Add(m.ttl),
	}

	m.mu.Lock()
	m.pending[req.Code] = req
	m.mu.Unlock()

	m.log.LogAttrs(ctx, slog.LevelInfo, "pairing request created",
		slog.String("request_id", req.ID),
		slog.Time("expires_at", req.ExpiresAt))

	return req, &wizard.QRPayload{
		RequestID: req.ID,
		Code:      req.Code,
		Address:   m.address,
		ExpiresAt: req.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Complete consumes a pairing code and mints the device plus its raw token.
// The raw token is returned exactly once; only its hash is stored. The first
// paired device is granted admin trust.
func (m *Manager) Complete(ctx context.Context, code, name, deviceType string) (*wizard.Device, string, error) {
	m.mu.Lock()
	req, ok := m.pending[code]
	if ok {
		delete(m.pending, code)
	}
	m.mu.Unlock()

	if !ok || time.Now().After(req.ExpiresAt) {
		return nil, "", wizard.ErrNotFound
	}

	token := wizard.DeviceTokenPrefix + randomHex(24)
	trust := wizard.TrustStandard
	if existing, err := m.store.ListDevices(ctx); err == nil && len(existing) == 0 {
		trust = wizard.TrustAdmin
	}

	d := &wizard.Device{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Type:      deviceType,
		Trust:     trust,
		Status:    wizard.StatusOnline,
		TokenHash: wizard.HashToken(token),
		PairedAt:  time.Now(),
	}
	if err := m.store.CreateDevice(ctx, d); err != nil {
		return nil, "", err
	}

	m.log.LogAttrs(ctx, slog.LevelInfo, "device paired",
		slog.String("device_id", d.ID),
		slog.String("name", d.Name),
		slog.String("trust", string(d.Trust)))
	return d, token, nil
}

// Sweep drops expired requests and returns how many were removed.
func (m *Manager) Sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for code, req := range m.pending {
		if now.After(req.ExpiresAt) {
			delete(m.pending, code)
			removed++
		}
	}
	return removed
}

// Pending returns the number of outstanding pairing requests.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func newCode() string {
	b := make([]byte, codeLength)
	rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
