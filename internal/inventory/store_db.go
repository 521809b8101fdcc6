package inventory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the collection in a single table, one row per
// record, with the same full-replace semantics as FileStore.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS inventory_products (
				position INTEGER PRIMARY KEY,
				name     TEXT NOT NULL,
				category TEXT NOT NULL,
				quantity TEXT NOT NULL,
				price    TEXT NOT NULL
			)
		`)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.Ping(ctx)
	})
}

func (s *PostgresStore) Load(ctx context.Context) ([]Record, error) {
	var out []Record

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT name, category, quantity, price
			FROM inventory_products
			ORDER BY position ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Record, 0, 16)
		for rows.Next() {
			var r Record
			if err := rows.Scan(&r.Name, &r.Category, &r.Quantity, &r.Price); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, recs []Record) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if _, err := tx.Exec(ctx, `DELETE FROM inventory_products`); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, r := range recs {
			batch.Queue(`
				INSERT INTO inventory_products (position, name, category, quantity, price)
				VALUES ($1, $2, $3, $4, $5)
			`, i, r.Name, r.Category, r.Quantity, r.Price)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
