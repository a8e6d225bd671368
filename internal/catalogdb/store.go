// Package catalogdb reads candidate anomalies from Sierra's read-only
// sierra_view Postgres schema.
package catalogdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/transitfix/internal/common"
	"github.com/Veraticus/transitfix/internal/model"
	"github.com/Veraticus/transitfix/internal/transit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the schema Sierra exposes for SQL access.
const DefaultSchema = "sierra_view"

// Config holds the record store connection settings.
type Config struct {
	DSN      string
	Schema   string
	MaxConns int32
}

// Validate checks that a connection string is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("%w: catalog database DSN is required", common.ErrMissingConfig)
	}
	return nil
}

// Store is a pgx-backed record store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// New builds the connection pool without contacting the database; the first
// connection is made by Ping or Snapshot. A DSN that cannot be parsed is a
// configuration error.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Schema == "" {
		cfg.Schema = DefaultSchema
	}
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog_db.dsn: %w", common.ErrInvalidConfig, err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 0

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	return &Store{
		pool:   pool,
		schema: cfg.Schema,
		logger: logger.With("component", "catalogdb"),
	}, nil
}

// Open builds the pool and verifies the database is reachable.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	store, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Ping acquires a connection and round-trips to the database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", common.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Snapshot reads candidate rows and the identity directory inside one
// read-only, repeatable-read transaction so both reflect the same state.
func (s *Store) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", common.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	candidates, err := s.candidates(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	identities, err := s.identities(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	s.logger.Debug("read catalog snapshot",
		"candidates", len(candidates),
		"identities", len(identities))

	return &model.Snapshot{
		Candidates: candidates,
		Identities: identities,
	}, nil
}

func (s *Store) candidatesSQL() string {
	return fmt.Sprintf(`
SELECT
  ip.barcode,
  i.item_status_code,
  o.id IS NOT NULL AS has_open_checkout,
  o.checkout_gmt,
  i.checkout_statistic_group_code_num,
  COALESCE(so.name, '') AS checkout_stat_group_name,
  v.field_content,
  EXISTS (
    SELECT 1 FROM %[1]s.hold h WHERE h.record_id = i.id
  ) AS fulfilling_hold
FROM %[1]s.item_record i
JOIN %[1]s.checkout o
  ON o.item_record_id = i.id
JOIN %[1]s.varfield v
  ON v.record_id = i.id
  AND v.varfield_type_code = 'm'
  AND strpos(v.field_content, $2) > 0
JOIN %[1]s.item_record_property ip
  ON ip.item_record_id = i.id
LEFT JOIN %[1]s.statistic_group_myuser so
  ON so.code = i.checkout_statistic_group_code_num
WHERE i.item_status_code = $1
ORDER BY ip.barcode, v.id
`, pgx.Identifier{s.schema}.Sanitize())
}

func (s *Store) candidates(ctx context.Context, tx pgx.Tx) ([]model.CandidateRow, error) {
	rows, err := tx.Query(ctx, s.candidatesSQL(), model.InTransitStatus, transit.Marker)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CandidateRow, error) {
		var (
			c         model.CandidateRow
			barcode   *string
			statGroup *int
			message   *string
		)
		if err := row.Scan(
			&barcode,
			&c.ItemStatus,
			&c.HasOpenCheckout,
			&c.CheckoutAt,
			&statGroup,
			&c.CheckoutStatGroupName,
			&message,
			&c.FulfillingHold,
		); err != nil {
			return c, err
		}
		if barcode != nil {
			c.Barcode = *barcode
		}
		if statGroup != nil {
			c.CheckoutStatGroup = *statGroup
		}
		if message != nil {
			c.Message = *message
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	return out, nil
}

func (s *Store) identities(ctx context.Context, tx pgx.Tx) (map[string]model.Identity, error) {
	q := fmt.Sprintf(`SELECT name, COALESCE(statistic_group_code_num, 0) FROM %s.iii_user WHERE name IS NOT NULL`,
		pgx.Identifier{s.schema}.Sanitize())

	rows, err := tx.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Identity, error) {
		var id model.Identity
		err := row.Scan(&id.Name, &id.StatGroup)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan identities: %w", err)
	}

	out := make(map[string]model.Identity, len(list))
	for _, id := range list {
		out[id.Name] = id
	}
	return out, nil
}
