package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteRepository хранит слоты в локальном файле SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository открывает файл базы и создаёт таблицу слотов при необходимости.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// один писатель на файл
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create slots table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close закрывает файл базы.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Get возвращает содержимое слота.
func (r *SQLiteRepository) Get(ctx context.Context, slot string) ([]byte, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM slots WHERE name = ?`, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get slot %s: %w", ErrPersistence, slot, err)
	}
	return []byte(payload), nil
}

// Put сохраняет содержимое слота, заменяя предыдущее.
func (r *SQLiteRepository) Put(ctx context.Context, slot string, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO slots (name, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		slot, string(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: put slot %s: %w", ErrPersistence, slot, err)
	}
	return nil
}
