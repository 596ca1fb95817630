// Package postgres reads initialize_token_event_entity rows through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tokenbot/internal/model"
	"tokenbot/internal/storage"
)

const DefaultTable = "initialize_token_event_entity"

// Config describes how to reach the indexer database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSL      bool

	// Table defaults to DefaultTable. A schema-qualified name is allowed.
	Table          string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// DSN renders cfg as a postgres:// URL.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// quoteTable validates and quotes a (optionally schema-qualified) table name.
func quoteTable(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTable
	}
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return pgx.Identifier(strings.Split(name, ".")).Sanitize(), nil
}

// eventColumns lists the columns scanned into model.Event, in struct order.
// The column list is explicit so extra indexer columns (block_range, ...) are ignored.
var eventColumns = []string{
	"vid", "block_height", "id", "tx_id", "admin", "token_id", "mint",
	"config_account", "metadata_account", "token_vault", "timestamp",
	"start_timestamp", "metadata_timestamp", "value_manager", "wsol_vault",
	"token_name", "token_symbol", "token_uri", "supply", "current_era",
	"current_epoch", "elapsed_seconds_epoch", "start_timestamp_epoch",
	"last_difficulty_coefficient_epoch", "difficulty_coefficient_epoch",
	"mint_size_epoch", "quantity_minted_epoch", "target_mint_size_epoch",
	"total_mint_fee", "total_referrer_fee", "total_tokens", "graduate_epoch",
	"target_eras", "epoches_per_era", "target_seconds_per_epoch", "reduce_ratio",
	"initial_mint_size", "initial_target_mint_size_per_epoch", "fee_rate",
	"liquidity_tokens_ratio", "status",
}

// Store implements source.Store on a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	table string

	selectAfter string
	selectOne   string
	selectMax   string
}

// Open creates the pool and verifies the database is reachable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	table, err := quoteTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s := newStore(pool, table)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool. table may be empty for DefaultTable.
func NewWithPool(pool *pgxpool.Pool, table string) (*Store, error) {
	t, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return newStore(pool, t), nil
}

func newStore(pool *pgxpool.Pool, table string) *Store {
	quoted := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	cols := strings.Join(quoted, ", ")
	return &Store{
		pool:        pool,
		table:       table,
		selectAfter: fmt.Sprintf(`SELECT %s FROM %s WHERE vid > $1 ORDER BY vid ASC`, cols, table),
		selectOne:   fmt.Sprintf(`SELECT %s FROM %s WHERE vid = $1`, cols, table),
		selectMax:   fmt.Sprintf(`SELECT COALESCE(MAX(vid), 0) FROM %s`, table),
	}
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *Store) MaxVID(ctx context.Context) (int64, error) {
	var max int64
	if err := s.pool.QueryRow(ctx, s.selectMax).Scan(&max); err != nil {
		return 0, fmt.Errorf("select max vid: %w", err)
	}
	return max, nil
}

func (s *Store) EventsAfter(ctx context.Context, after int64) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx, s.selectAfter, after)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	evs, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Event])
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return evs, nil
}

// EventByVID loads a single row. Returns storage.ErrNotFound if absent.
func (s *Store) EventByVID(ctx context.Context, vid int64) (model.Event, error) {
	rows, err := s.pool.Query(ctx, s.selectOne, vid)
	if err != nil {
		return model.Event{}, fmt.Errorf("select event: %w", err)
	}
	ev, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Event])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, storage.ErrNotFound
		}
		return model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	return ev, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
