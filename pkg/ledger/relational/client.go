// Copyright 2025 Certen Protocol
//
// Relational is the Postgres-backed ledger.Backend of §6: the skip,
// chain, and trail tables, driven through database/sql connection
// pooling the way pkg/database/client.go configures it.

package relational

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/skipledger/pkg/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	_ = ledger.RegisterBackend("relational", func(cfg map[string]string) (ledger.Backend, error) {
		dsn, ok := cfg["dsn"]
		if !ok || dsn == "" {
			return nil, fmt.Errorf("relational: config key %q is required", "dsn")
		}
		return Open(context.Background(), dsn)
	})
}

// Client wraps a connection-pooled *sql.DB, mirroring the teacher's
// database.Client (connection pooling + embedded migrations) but scoped
// to the skip-ledger's three tables rather than Certen's proof schema.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithLogger overrides the client's logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient opens a connection pool against dsn and verifies connectivity.
func NewClient(ctx context.Context, dsn string, opts ...ClientOption) (*Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("relational: dsn cannot be empty")
	}
	c := &Client{logger: log.New(os.Stderr, "[relational] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(c)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	c.db = db

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("relational: failed to ping database: %w", err)
	}
	return c, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		c.logger.Println("closing database connection")
		return c.db.Close()
	}
	return nil
}

// migration mirrors the teacher's database.Migration.
type migration struct {
	Version  string
	Filename string
	SQL      string
}

// MigrateUp applies every embedded migration not yet recorded in
// schema_migrations, in version order.
func (c *Client) MigrateUp(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("relational: failed to load migrations: %w", err)
	}

	applied, err := c.appliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("relational: failed to get applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		c.logger.Printf("applying %s", m.Version)
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("relational: failed to apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

func (c *Client) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, m migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	return tx.Commit()
}

func loadMigrations() ([]migration, error) {
	var migrations []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		filename := d.Name()
		migrations = append(migrations, migration{
			Version:  strings.TrimSuffix(filename, ".sql"),
			Filename: filename,
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
