// Package storage defines persistence interfaces for the Wizard gateway.
package storage

import (
	"context"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

// DeviceStore manages paired-device persistence.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d *wizard.Device) error
	GetDevice(ctx context.Context, id string) (*wizard.Device, error)
	GetDeviceByTokenHash(ctx context.Context, hash string) (*wizard.Device, error)
	ListDevices(ctx context.Context) ([]*wizard.Device, error)
	UpdateDevice(ctx context.Context, d *wizard.Device) error
	DeleteDevice(ctx context.Context, id string) error
	TouchDeviceSeen(ctx context.Context, id string) error
}

// UsageTotals is an aggregate over usage records.
type UsageTotals struct {
	Requests    int     `json:"requests"`
	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

// UsageStore manages usage record persistence.
type UsageStore interface {
	InsertUsage(ctx context.Context, records []wizard.UsageRecord) error
	SumCostSince(ctx context.Context, since time.Time) (float64, error)
	DeviceUsage(ctx context.Context, deviceID string, since time.Time) (UsageTotals, error)
	PruneUsage(ctx context.Context, before time.Time) (int64, error)
}

// TaskStore manages canonical task items produced by the sync transformers.
// Upsert is keyed on (external_provider, external_id) so re-syncing the same
// source record updates in place instead of duplicating.
type TaskStore interface {
	UpsertTask(ctx context.Context, t *wizard.TaskItem) error
	GetTask(ctx context.Context, id string) (*wizard.TaskItem, error)
	ListTasks(ctx context.Context, provider string, limit int) ([]*wizard.TaskItem, error)
}

// CredentialStore holds opaque per-provider credential blobs. The sync
// credential manager owns the encoding.
type CredentialStore interface {
	SaveCredential(ctx context.Context, provider string, blob []byte) error
	GetCredential(ctx context.Context, provider string) ([]byte, error)
	DeleteCredential(ctx context.Context, provider string) error
}

// Store combines all storage interfaces.
type Store interface {
	DeviceStore
	UsageStore
	TaskStore
	CredentialStore
	Ping(ctx context.Context) error
	Close() error
}
