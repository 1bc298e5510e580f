// Package sql stores stack records in SQLite or PostgreSQL.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/schedulegen/stackwire-go/internal/state"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements state.Store using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New connects and runs migrations. driver is "sqlite3" or "postgres".
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == "sqlite3" {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type stackRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Backend   string    `db:"backend"`
	Status    string    `db:"status"`
	Template  string    `db:"template"`
	Resources string    `db:"resources"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r stackRow) record() (*state.StackRecord, error) {
	rec := &state.StackRecord{
		ID:        r.ID,
		Name:      r.Name,
		Backend:   r.Backend,
		Status:    state.Status(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.Template != "" {
		rec.Template = []byte(r.Template)
	}
	if err := json.Unmarshal([]byte(r.Resources), &rec.Resources); err != nil {
		return nil, fmt.Errorf("decoding resources of %s: %w", r.Name, err)
	}
	if rec.Resources == nil {
		rec.Resources = make(map[string]state.ResourceRecord)
	}
	return rec, nil
}

const selectStacks = `SELECT id, name, backend, status, template, resources, created_at, updated_at FROM stacks`

func (s *Store) Get(ctx context.Context, name string) (*state.StackRecord, error) {
	var row stackRow
	err := s.db.GetContext(ctx, &row, selectStacks+` WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stack %s: %w", name, state.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.record()
}

// Save inserts the record or replaces the stored one of the same name. The
// stored id and creation time are kept.
func (s *Store) Save(ctx context.Context, record *state.StackRecord) error {
	if record == nil || record.Name == "" {
		return errors.New("record name is required")
	}
	resources, err := json.Marshal(record.Resources)
	if err != nil {
		return fmt.Errorf("encoding resources of %s: %w", record.Name, err)
	}
	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stacks (id, name, backend, status, template, resources, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name) DO UPDATE SET
		   backend = excluded.backend,
		   status = excluded.status,
		   template = excluded.template,
		   resources = excluded.resources,
		   updated_at = excluded.updated_at`,
		record.ID, record.Name, record.Backend, string(record.Status), string(record.Template),
		string(resources), created, time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stacks WHERE name = $1`, name)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("stack %s: %w", name, state.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*state.StackRecord, error) {
	var rows []stackRow
	if err := s.db.SelectContext(ctx, &rows, selectStacks+` ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]*state.StackRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
