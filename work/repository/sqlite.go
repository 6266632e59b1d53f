package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"streamcheck/work/logger"
	"streamcheck/work/types"
)

// SQLiteRepository persists the channel catalog in a local SQLite database so
// paginated validation runs survive restarts of the upstream playlist source.
// Alternate URLs are stored as a JSON array in a single column; the checker
// only ever reads them back as a unit.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the channel database at path and
// applies the schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("[REPOSITORY] SQLite channel database opened at %s", path)
	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS channels (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			stream_url TEXT NOT NULL,
			alternates TEXT NOT NULL DEFAULT '[]',
			quality    TEXT NOT NULL DEFAULT '',
			group_name TEXT NOT NULL DEFAULT '',
			logo_url   TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// ImportChannels upserts a channel set in one transaction and returns the
// number written.
func (r *SQLiteRepository) ImportChannels(ctx context.Context, channels []types.Channel) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO channels (id, name, stream_url, alternates, quality, group_name, logo_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			stream_url = excluded.stream_url,
			alternates = excluded.alternates,
			quality = excluded.quality,
			group_name = excluded.group_name,
			logo_url = excluded.logo_url,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, ch := range channels {
		alternates, err := json.Marshal(ch.AlternateURLs)
		if err != nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.Name, ch.StreamURL, string(alternates), ch.Quality, ch.Group, ch.LogoURL); err != nil {
			return written, fmt.Errorf("failed to upsert channel %s: %w", ch.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("failed to commit import: %w", err)
	}
	return written, nil
}

func (r *SQLiteRepository) GetChannelsPaginated(ctx context.Context, offset, limit int) ([]types.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, stream_url, alternates, quality, group_name, logo_url
		FROM channels
		ORDER BY id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

func (r *SQLiteRepository) GetAllChannelsUnfiltered(ctx context.Context) ([]types.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, stream_url, alternates, quality, group_name, logo_url
		FROM channels
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// Count returns the catalog size.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n)
	return n, err
}

func scanChannels(rows *sql.Rows) ([]types.Channel, error) {
	var channels []types.Channel
	for rows.Next() {
		var ch types.Channel
		var alternates string
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.StreamURL, &alternates, &ch.Quality, &ch.Group, &ch.LogoURL); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		if alternates != "" && alternates != "[]" {
			if err := json.Unmarshal([]byte(alternates), &ch.AlternateURLs); err != nil {
				logger.Warn("[REPOSITORY] Channel %s has malformed alternates, ignoring: %v", ch.ID, err)
			}
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}
