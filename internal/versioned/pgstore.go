package versioned

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDurable keeps versioned records in the versioned_records table.
type PostgresDurable struct{ DB *pgxpool.Pool }

func (s *PostgresDurable) Load(ctx context.Context, key string) (Record, error) {
	var rec Record
	var checksum int64
	err := s.DB.QueryRow(ctx, `
		SELECT key, data, version, checksum, modified_by, source, updated_at
		FROM versioned_records WHERE key=$1`, key).
		Scan(&rec.Key, &rec.Data, &rec.Version, &checksum, &rec.ModifiedBy, &rec.Source, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Checksum = uint64(checksum)
	return rec, nil
}

func (s *PostgresDurable) Store(ctx context.Context, rec Record) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO versioned_records (key, data, version, checksum, modified_by, source, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (key) DO UPDATE SET
			data=EXCLUDED.data, version=EXCLUDED.version, checksum=EXCLUDED.checksum,
			modified_by=EXCLUDED.modified_by, source=EXCLUDED.source, updated_at=EXCLUDED.updated_at`,
		rec.Key, rec.Data, rec.Version, int64(rec.Checksum), rec.ModifiedBy, rec.Source, rec.Timestamp)
	return err
}

func (s *PostgresDurable) StoreIf(ctx context.Context, rec Record, expected int64) (bool, error) {
	if expected == 0 {
		ct, err := s.DB.Exec(ctx, `
			INSERT INTO versioned_records (key, data, version, checksum, modified_by, source, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (key) DO NOTHING`,
			rec.Key, rec.Data, rec.Version, int64(rec.Checksum), rec.ModifiedBy, rec.Source, rec.Timestamp)
		if err != nil {
			return false, err
		}
		return ct.RowsAffected() == 1, nil
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE versioned_records
		SET data=$2, version=$3, checksum=$4, modified_by=$5, source=$6, updated_at=$7
		WHERE key=$1 AND version=$8`,
		rec.Key, rec.Data, rec.Version, int64(rec.Checksum), rec.ModifiedBy, rec.Source, rec.Timestamp, expected)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresDurable) Delete(ctx context.Context, key string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM versioned_records WHERE key=$1`, key)
	return err
}
