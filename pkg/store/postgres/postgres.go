// Package postgres provides the PostgreSQL-backed expense sink, cursor store,
// vendor-tag store and sync lease.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rushikc/pennywise-sync/pkg/api"
)

//go:embed 001_create_schema.sql
var migrationSQL string

// Config holds the PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store implements api.ExpenseSink, api.CursorStore, api.VendorTagStore and
// api.Locker over one connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, pings and migrates the schema.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	s := &Store{pool: pool, logger: logger}

	if _, err := pool.Exec(context.Background(), migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Put upserts an expense keyed by mail_id, so reprocessing a message after a
// crashed batch overwrites the earlier record instead of duplicating it.
// Transient write failures are retried here; the batch loop never retries.
func (s *Store) Put(ctx context.Context, expense *api.Expense) error {
	err := retry.Do(
		func() error {
			_, err := s.pool.Exec(ctx, `
				INSERT INTO expenses (
					mail_id, cost, cost_type, type, vendor, tag,
					date, modified_date, user_name
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (mail_id) DO UPDATE SET
					cost = EXCLUDED.cost,
					cost_type = EXCLUDED.cost_type,
					type = EXCLUDED.type,
					vendor = EXCLUDED.vendor,
					tag = EXCLUDED.tag,
					date = EXCLUDED.date,
					modified_date = EXCLUDED.modified_date,
					user_name = EXCLUDED.user_name,
					updated_at = NOW()
			`,
				expense.MailID,
				expense.Cost,
				expense.CostType,
				expense.Type,
				expense.Vendor,
				expense.Tag,
				expense.Date,
				expense.ModifiedDate,
				expense.User,
			)
			return err
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("upserting expense %s: %w", expense.MailID, err)
	}
	return nil
}

// ListSince returns expenses modified at or after the given epoch-millis
// timestamp, oldest first.
func (s *Store) ListSince(ctx context.Context, sinceMillis int64) ([]*api.Expense, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mail_id, cost, cost_type, type, vendor, tag,
		       date, modified_date, user_name
		FROM expenses
		WHERE modified_date >= $1
		ORDER BY modified_date
	`, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*api.Expense
	for rows.Next() {
		var e api.Expense
		if err := rows.Scan(
			&e.MailID, &e.Cost, &e.CostType, &e.Type, &e.Vendor, &e.Tag,
			&e.Date, &e.ModifiedDate, &e.User,
		); err != nil {
			return nil, fmt.Errorf("scanning expense row: %w", err)
		}
		expenses = append(expenses, &e)
	}
	return expenses, rows.Err()
}

// Get reads a sync_config value. Returns "" when the key has never been set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM sync_config WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("reading sync_config %s: %w", key, err)
	}
	return value, nil
}

// Set writes a sync_config value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing sync_config %s: %w", key, err)
	}
	return nil
}

// GetAll returns all learned vendor-tag mappings.
func (s *Store) GetAll(ctx context.Context) ([]api.VendorTag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT vendor, tag, modified_date FROM vendor_tags ORDER BY modified_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying vendor tags: %w", err)
	}
	defer rows.Close()

	var tags []api.VendorTag
	for rows.Next() {
		var t api.VendorTag
		if err := rows.Scan(&t.Vendor, &t.Tag, &t.ModifiedDate); err != nil {
			return nil, fmt.Errorf("scanning vendor tag row: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// SetTag upserts one vendor-tag mapping. The tagging UI is the usual writer;
// this exists for tooling and tests.
func (s *Store) SetTag(ctx context.Context, tag api.VendorTag) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vendor_tags (vendor, tag, modified_date) VALUES ($1, $2, $3)
		ON CONFLICT (vendor) DO UPDATE SET
			tag = EXCLUDED.tag,
			modified_date = EXCLUDED.modified_date
	`, tag.Vendor, tag.Tag, tag.ModifiedDate)
	if err != nil {
		return fmt.Errorf("upserting vendor tag %s: %w", tag.Vendor, err)
	}
	return nil
}

// TryAcquire takes a session advisory lock for the scope. The lock pins one
// pool connection until released.
func (s *Store) TryAcquire(ctx context.Context, scope string) (api.Lease, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for lease: %w", err)
	}

	var locked bool
	key := advisoryKey(scope)
	if err := conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock($1)`, key,
	).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("taking advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, api.ErrLocked
	}

	return &lease{conn: conn, key: key}, nil
}

type lease struct {
	conn *pgxpool.Conn
	key  int64
}

func (l *lease) Release(ctx context.Context) error {
	defer l.conn.Release()
	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}
	return nil
}

func advisoryKey(scope string) int64 {
	h := fnv.New64a()
	h.Write([]byte("pennywise-sync:" + scope))
	return int64(h.Sum64())
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
}
