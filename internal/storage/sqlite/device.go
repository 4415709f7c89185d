package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

// CreateDevice inserts a newly paired device.
func (s *Store) CreateDevice(ctx context.Context, d *wizard.Device) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO devices (id, name, type, trust, status, token_hash, public_key,
		 paired_at, last_seen_at, last_sync_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Type, string(d.Trust), string(d.Status), d.TokenHash, d.PublicKey,
		d.PairedAt.UTC().Format(time.RFC3339), timeToStr(d.LastSeenAt), d.LastSyncVer,
	)
	return err
}

// GetDevice retrieves a device by id.
func (s *Store) GetDevice(ctx context.Context, id string) (*wizard.Device, error) {
	return scanDevice(s.read.QueryRowContext(ctx, deviceSelect+` WHERE id = ?`, id))
}

// GetDeviceByTokenHash retrieves a device by the SHA-256 hash of its token.
func (s *Store) GetDeviceByTokenHash(ctx context.Context, hash string) (*wizard.Device, error) {
	return scanDevice(s.read.QueryRowContext(ctx, deviceSelect+` WHERE token_hash = ?`, hash))
}

// ListDevices returns all paired devices, newest first.
func (s *Store) ListDevices(ctx context.Context) ([]*wizard.Device, error) {
	rows, err := s.read.QueryContext(ctx, deviceSelect+` ORDER BY paired_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*wizard.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpdateDevice updates the mutable device fields.
func (s *Store) UpdateDevice(ctx context.Context, d *wizard.Device) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE devices SET name=?, trust=?, status=?, last_seen_at=?, last_sync_version=?
		 WHERE id=?`,
		d.Name, string(d.Trust), string(d.Status), timeToStr(d.LastSeenAt), d.LastSyncVer, d.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "device")
}

// DeleteDevice removes a device.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM devices WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "device")
}

// TouchDeviceSeen marks the device online with a fresh last-seen timestamp.
func (s *Store) TouchDeviceSeen(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE devices SET status=?, last_seen_at=? WHERE id=?`,
		string(wizard.StatusOnline), time.Now().UTC().Format(time.RFC3339), id,
	)
	return err
}

const deviceSelect = `SELECT id, name, type, trust, status, token_hash, public_key,
	paired_at, last_seen_at, last_sync_version FROM devices`

func scanDevice(sc scanner) (*wizard.Device, error) {
	var d wizard.Device
	var trust, status string
	var pairedAt string
	var lastSeen sql.NullString

	err := sc.Scan(&d.ID, &d.Name, &d.Type, &trust, &status, &d.TokenHash, &d.PublicKey,
		&pairedAt, &lastSeen, &d.LastSyncVer)
	if err != nil {
		return nil, notFoundErr(err)
	}

	d.Trust = wizard.TrustLevel(trust)
	d.Status = wizard.DeviceStatus(status)
	if t, err := time.Parse(time.RFC3339, pairedAt); err == nil {
		d.PairedAt = t
	}
	d.LastSeenAt = parseTime(lastSeen)
	return &d, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// notFoundErr translates sql.ErrNoRows to wizard.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return wizard.ErrNotFound
	}
	return err
}

func timeToStr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, wizard.ErrNotFound)
	}
	return nil
}
