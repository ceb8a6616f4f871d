package export

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/eventify/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresDestination stores snapshots in export_snapshots / export_rows.
type PostgresDestination struct {
	db *sql.DB
}

// NewPostgresDestination opens the database at databaseURL and runs any
// pending migrations.
func NewPostgresDestination(databaseURL string) (*PostgresDestination, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresDestination{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "eventify_export_migrations"})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (d *PostgresDestination) Name() string { return "postgres" }

// Close closes the underlying database connection.
func (d *PostgresDestination) Close() error {
	return d.db.Close()
}

// Write inserts the snapshot and its rows in one transaction.
func (d *PostgresDestination) Write(ctx context.Context, snap *Snapshot) error {
	return insertSnapshot(ctx, d.db, snap)
}

// List returns the most recent snapshots of screen, newest first. Rows are
// not loaded.
func (d *PostgresDestination) List(ctx context.Context, screen string, limit int) ([]*Snapshot, error) {
	return listSnapshots(ctx, d.db, screen, limit)
}

func insertSnapshot(ctx context.Context, db *sql.DB, snap *Snapshot) (err error) {
	filters, err := json.Marshal(nonNilFilters(snap.Filters))
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO export_snapshots (id, screen, filters, taken_at, row_count, pages)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.Screen, filters, snap.TakenAt, snap.Count, snap.Pages,
	); err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO export_rows (snapshot_id, position, data) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range snap.Items {
		data, mErr := json.Marshal(row)
		if mErr != nil {
			err = fmt.Errorf("marshal row %d: %w", i, mErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, snap.ID, i, data); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func listSnapshots(ctx context.Context, db *sql.DB, screen string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, screen, filters, taken_at, row_count, pages
		 FROM export_snapshots WHERE screen = $1
		 ORDER BY taken_at DESC LIMIT $2`, screen, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var (
			s       Snapshot
			filters []byte
		)
		if err := rows.Scan(&s.ID, &s.Screen, &filters, &s.TakenAt, &s.Count, &s.Pages); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &s.Filters); err != nil {
				return nil, fmt.Errorf("decode filters of %s: %w", s.ID, err)
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func nonNilFilters(f []model.Filter) []model.Filter {
	if f == nil {
		return []model.Filter{}
	}
	return f
}
