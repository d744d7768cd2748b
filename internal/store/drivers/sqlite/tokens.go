package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

func (s *Store) LoadTokens(ctx context.Context) ([]tokens.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, value_sealed, issued_at_ms FROM tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tokens.Record
	for rows.Next() {
		var (
			name     string
			sealed   string
			issuedMs int64
		)
		if err := rows.Scan(&name, &sealed, &issuedMs); err != nil {
			return nil, err
		}

		kind, err := tokens.ParseKind(name)
		if err != nil {
			return nil, err
		}
		value, err := s.sealer.OpenString(sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", kind, err)
		}

		out = append(out, tokens.Record{
			Kind:     kind,
			Value:    value,
			IssuedAt: time.UnixMilli(issuedMs),
		})
	}
	return out, rows.Err()
}

// GetToken returns the record of kind, or store.ErrNotFound.
func (s *Store) GetToken(ctx context.Context, kind tokens.Kind) (tokens.Record, error) {
	var (
		sealed   string
		issuedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value_sealed, issued_at_ms FROM tokens WHERE kind = ?`, kind.String(),
	).Scan(&sealed, &issuedMs)
	if err != nil {
		return tokens.Record{}, mapNotFound(err)
	}

	value, err := s.sealer.OpenString(sealed)
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to open %s: %w", kind, err)
	}
	return tokens.Record{Kind: kind, Value: value, IssuedAt: time.UnixMilli(issuedMs)}, nil
}

func (s *Store) SaveToken(ctx context.Context, rec tokens.Record) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("%w %d", tokens.ErrUnknownKind, int(rec.Kind))
	}

	sealed, err := s.sealer.SealString(rec.Value)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", rec.Kind, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tokens (kind, value_sealed, issued_at_ms, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (kind) DO UPDATE SET
			value_sealed = excluded.value_sealed,
			issued_at_ms = excluded.issued_at_ms,
			updated_at   = CURRENT_TIMESTAMP`,
		rec.Kind.String(), sealed, rec.IssuedAt.UnixMilli(),
	)
	return err
}

func (s *Store) DeleteTokens(ctx context.Context, kinds ...tokens.Kind) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range kinds {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE kind = ?`, kind.String()); err != nil {
				return err
			}
		}
		return nil
	})
}
