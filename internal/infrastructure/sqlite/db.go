// Package sqlite stores run history in a local SQLite database.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/infrastructure/sqlite/migrations"
	"github.com/zjrosen/sift/internal/log"
)

// DB owns the SQLite connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens (creating if needed) the database at path and migrates it to
// the latest schema. When an existing schema is behind, a snapshot is written
// to path+".bak" before migrating.
func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + filepath.ToSlash(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; WAL still lets readers proceed.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := migrateUp(conn, path); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatStore, "database ready", "path", path)
	return &DB{conn: conn}, nil
}

func migrateUp(conn *sql.DB, path string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	// m.Close would close conn as well; only the source needs releasing.
	defer func() { _ = src.Close() }()

	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}

	current, _, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		// Fresh database, nothing worth keeping.
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	default:
		latest, err := latestVersion(src)
		if err != nil {
			return fmt.Errorf("loading migrations: %w", err)
		}
		if current < latest {
			if err := backup(conn, path+".bak"); err != nil {
				return fmt.Errorf("backing up database: %w", err)
			}
			log.Info(log.CatStore, "backed up database before migrating", "from", current, "to", latest)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		log.Debug(log.CatStore, "schema version", "version", version, "dirty", dirty)
	}
	return nil
}

// latestVersion walks src to its last migration.
func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, err
		}
		version = next
	}
}

// backup writes a consistent snapshot of the open database to dst. VACUUM
// INTO reads through the connection, so pages still in the WAL are included.
func backup(conn *sql.DB, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if _, err := conn.Exec("VACUUM INTO ?", dst); err != nil {
		return err
	}
	return os.Chmod(dst, 0o600)
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// RunRepository returns the run history repository.
func (db *DB) RunRepository() history.RunRepository {
	return newRunRepository(db.conn)
}
