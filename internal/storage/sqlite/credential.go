package sqlite

import (
	"context"
	"time"
)

// SaveCredential stores or replaces the credential blob for a provider.
func (s *Store) SaveCredential(ctx context.Context, provider string, blob []byte) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO credentials (provider, blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at`,
		provider, string(blob), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetCredential returns the credential blob for a provider.
func (s *Store) GetCredential(ctx context.Context, provider string) ([]byte, error) {
	var blob string
	err := s.read.QueryRowContext(ctx,
		`SELECT blob FROM credentials WHERE provider = ?`, provider,
	).Scan(&blob)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return []byte(blob), nil
}

// DeleteCredential removes a provider's credential.
func (s *Store) DeleteCredential(ctx context.Context, provider string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM credentials WHERE provider = ?`, provider)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "credential")
}
