// Package auth implements device token authentication for the Wizard
// gateway. Tokens are validated against the device store and cached in a
// W-TinyLFU cache.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/storage"
)

const (
	cacheTTL    = 30 * time.Second // short enough to pick up device removals promptly
	cacheMaxLen = 1_000            // a home fleet is small; headroom is cheap
)

// DeviceAuth authenticates requests using device tokens with the "wzd_"
// prefix.
type DeviceAuth struct {
	store        storage.DeviceStore
	cache        *otter.Cache[string, *wizard.Device]
	deviceToHash sync.Map // device ID -> token hash, for invalidation
}

// NewDeviceAuth returns a DeviceAuth backed by store.
func NewDeviceAuth(store storage.DeviceStore) (*DeviceAuth, error) {
	c, err := otter.New(&otter.Options[string, *wizard.Device]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *wizard.Device](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	return &DeviceAuth{store: store, cache: c}, nil
}

// Authenticate extracts a Bearer token, validates it against the device
// store, and returns the caller identity. Loopback peers are flagged so the
// rate-limit middleware can exempt them.
func (a *DeviceAuth) Authenticate(ctx context.Context, r *http.Request) (*wizard.Identity, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return nil, wizard.ErrUnauthorized
	}
	if !strings.HasPrefix(raw, wizard.DeviceTokenPrefix) {
		return nil, wizard.ErrUnauthorized
	}

	hash := wizard.HashToken(raw)

	if d, ok := a.cache.GetIfPresent(hash); ok {
		if d.Trust == wizard.TrustPending {
			return nil, wizard.ErrForbidden
		}
		return a.identity(d, r), nil
	}

	d, err := a.store.GetDeviceByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, wizard.ErrNotFound) {
			return nil, wizard.ErrUnauthorized
		}
		return nil, err
	}

	// The DB lookup already matched; this guards against collation or
	// encoding surprises.
	if subtle.ConstantTimeCompare([]byte(d.TokenHash), []byte(hash)) != 1 {
		return nil, wizard.ErrUnauthorized
	}
	if d.Trust == wizard.TrustPending {
		return nil, wizard.ErrForbidden
	}

	a.cache.Set(hash, d)
	a.deviceToHash.Store(d.ID, hash)

	// Touch last-seen asynchronously.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		a.store.TouchDeviceSeen(ctx, d.ID) //nolint:errcheck
	}()

	return a.identity(d, r), nil
}

// InvalidateDevice drops a cached device after trust changes or removal.
func (a *DeviceAuth) InvalidateDevice(deviceID string) {
	if hash, ok := a.deviceToHash.LoadAndDelete(deviceID); ok {
		a.cache.Invalidate(hash.(string))
	}
}

func (a *DeviceAuth) identity(d *wizard.Device, r *http.Request) *wizard.Identity {
	return &wizard.Identity{
		DeviceID:  d.ID,
		Name:      d.Name,
		Trust:     d.Trust,
		Localhost: IsLoopback(r.RemoteAddr),
	}
}

// IsLoopback reports whether the remote address is a loopback peer.
func IsLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
