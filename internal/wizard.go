// Package wizard defines domain types and interfaces for the Wizard edge gateway.
// This package has no project imports -- it is the dependency root.
package wizard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// --- Devices ---

// TrustLevel is the trust tier assigned to a paired device.
type TrustLevel string

const (
	TrustAdmin    TrustLevel = "admin"
	TrustStandard TrustLevel = "standard"
	TrustGuest    TrustLevel = "guest"
	TrustPending  TrustLevel = "pending"
)

// DeviceStatus is the connectivity state of a device.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusSyncing DeviceStatus = "syncing"
)

// Device is a paired end-user device. Created by completing a pairing code,
// mutated only by auth events, destroyed by explicit removal.
type Device struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Trust        TrustLevel   `json:"trust"`
	Status       DeviceStatus `json:"status"`
	TokenHash    string       `json:"-"` // SHA-256 hex of the device token, never exposed
	PublicKey    []byte       `json:"public_key,omitempty"`
	PairedAt     time.Time    `json:"paired_at"`
	LastSeenAt   *time.Time   `json:"last_seen_at,omitempty"`
	LastSyncVer  int64        `json:"last_sync_version"`
}

// PairingRequest is an in-flight pairing offer. Consumed atomically on a
// successful pair; expires silently.
type PairingRequest struct {
	ID        string    `json:"request_id"`
	Code      string    `json:"code"` // 8 characters
	ExpiresAt time.Time `json:"expires_at"`
}

// QRPayload is the JSON document encoded into the pairing QR code.
type QRPayload struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Address   string `json:"wizard_address"`
	ExpiresAt string `json:"expires_at"`
}

// --- Identity ---

// Identity is the authenticated caller context attached to request context.
type Identity struct {
	DeviceID  string     `json:"device_id"`
	Name      string     `json:"name"`
	Trust     TrustLevel `json:"trust"`
	Localhost bool       `json:"-"` // loopback peers bypass rate limiting
}

// IsAdmin reports whether the identity carries admin trust.
func (id *Identity) IsAdmin() bool { return id.Trust == TrustAdmin }

// Authenticator validates request credentials and returns the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// --- Sync events and task items ---

// EventType is the change kind carried by a sync event.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// SyncEvent is a unit of work queued by a sync provider.
type SyncEvent struct {
	ID         string          `json:"id"`
	Provider   string          `json:"provider"`
	Type       EventType       `json:"event_type"`
	Payload    map[string]any  `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Processed  bool            `json:"processed"`
	RetryCount int             `json:"retry_count"`
}

// TaskStatus is the canonical downstream task state.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
	TaskBlocked    TaskStatus = "blocked"
)

// TaskType distinguishes plain tasks from tracked issues.
type TaskType string

const (
	TypeTask  TaskType = "task"
	TypeIssue TaskType = "issue"
)

// TaskItem is the canonical downstream shape all provider records
// transform into.
type TaskItem struct {
	ID            string         `json:"id"`
	Type          TaskType       `json:"type"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Status        TaskStatus     `json:"status"`
	ParentMission string         `json:"parent_mission,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	AssignedTo    string         `json:"assigned_to,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ExternalID returns the source-record id carried in metadata, or "".
func (t *TaskItem) ExternalID() string {
	id, _ := t.Metadata["external_id"].(string)
	return id
}

// --- Usage ---

// UsageRecord is a single completed gateway request, rolled up per device
// into session stats.
type UsageRecord struct {
	ID               string    `json:"id"`
	DeviceID         string    `json:"device_id"`
	TaskID           string    `json:"task_id"`
	Model            string    `json:"model"`
	Backend          string    `json:"backend"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd,omitempty"`
	LatencyMs        int       `json:"latency_ms"`
	Success          bool      `json:"success"`
	CreatedAt        time.Time `json:"created_at"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The Identity field is set later by the authenticate middleware via mutation
// of the same pointer, avoiding a second context.WithValue.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if
// present, avoiding a new context.WithValue allocation.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- Shared constants and helpers ---

// DeviceTokenPrefix is the prefix for all Wizard device tokens.
const DeviceTokenPrefix = "wzd_"

// HashToken returns the hex-encoded SHA-256 hash of a raw device token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
