// Package store persists conversation state: per-user counters and rolling
// memories, thread-to-conversation mappings, and the coins this bot created.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"commodus/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		fid            INTEGER PRIMARY KEY,
		thread_id      TEXT NOT NULL DEFAULT '',
		message_count  INTEGER NOT NULL DEFAULT 0,
		memory         TEXT NOT NULL DEFAULT '',
		memory_count   INTEGER NOT NULL DEFAULT 0,
		last_thread    TEXT NOT NULL DEFAULT '',
		updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		thread_hash  TEXT PRIMARY KEY,
		thread_id    TEXT NOT NULL DEFAULT '',
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS coins (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		fid          INTEGER NOT NULL,
		address      TEXT NOT NULL,
		name         TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		description  TEXT,
		parent_cast  TEXT,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_coins_fid ON coins(fid);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (fid, thread_id, last_thread, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(fid) DO UPDATE SET
		   thread_id   = CASE WHEN excluded.thread_id = '' THEN users.thread_id ELSE excluded.thread_id END,
		   last_thread = CASE WHEN excluded.last_thread = '' THEN users.last_thread ELSE excluded.last_thread END,
		   updated_at  = CURRENT_TIMESTAMP`,
		u.FID, u.ThreadID, u.LastThread,
	)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, fid int64) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT fid, thread_id, message_count, memory, memory_count, last_thread, updated_at
		 FROM users WHERE fid = ?`, fid,
	).Scan(&u.FID, &u.ThreadID, &u.MessageCount, &u.Memory, &u.MemoryCount, &u.LastThread, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementMessageCount bumps the user's counter in a single UPDATE so
// concurrent events for the same user never lose increments. Returns the
// new count.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, fid int64) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (fid, message_count) VALUES (?, 1)
		 ON CONFLICT(fid) DO UPDATE SET
		   message_count = message_count + 1,
		   updated_at    = CURRENT_TIMESTAMP`,
		fid,
	)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.db.QueryRowContext(ctx,
		`SELECT message_count FROM users WHERE fid = ?`, fid,
	).Scan(&count)
	return count, err
}

func (s *SQLiteStore) UpdateMemory(ctx context.Context, fid int64, memory string, atCount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET memory = ?, memory_count = ?, updated_at = CURRENT_TIMESTAMP WHERE fid = ?`,
		memory, atCount, fid,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no user with fid %d", fid)
	}
	return nil
}

func (s *SQLiteStore) UpsertConversation(ctx context.Context, c domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (thread_hash, thread_id, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(thread_hash) DO UPDATE SET
		   thread_id  = excluded.thread_id,
		   updated_at = CURRENT_TIMESTAMP`,
		c.ThreadHash, c.ThreadID,
	)
	return err
}

func (s *SQLiteStore) GetConversation(ctx context.Context, threadHash string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT thread_hash, thread_id, updated_at FROM conversations WHERE thread_hash = ?`,
		threadHash,
	).Scan(&c.ThreadHash, &c.ThreadID, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) StoreCoin(ctx context.Context, c domain.Coin) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coins (fid, address, name, symbol, description, parent_cast, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.FID, c.Address, c.Name, c.Symbol, c.Description, c.ParentCast, c.CreatedAt,
	)
	return err
}

// UsersDueForMemoryRefresh returns users whose counter has advanced at least
// threshold messages past their last summarization.
func (s *SQLiteStore) UsersDueForMemoryRefresh(ctx context.Context, threshold int64) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fid, thread_id, message_count, memory, memory_count, last_thread, updated_at
		 FROM users WHERE message_count - memory_count >= ?`, threshold,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.FID, &u.ThreadID, &u.MessageCount, &u.Memory, &u.MemoryCount, &u.LastThread, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
