package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

var db *sql.DB

// InitDB initializes the database connection and ensures the bot
// record table exists
func InitDB() error {
	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}

	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		return fmt.Errorf("DB_PASSWORD environment variable is required")
	}

	dbname := os.Getenv("DB_NAME")
	if dbname == "" {
		dbname = "buff_deliver"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return err
	}

	if err = db.Ping(); err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS buff_bot (
			bot_name   TEXT PRIMARY KEY,
			enabled    BOOLEAN NOT NULL,
			cookies    TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure buff_bot table: %v", err)
	}

	LogInfo("Successfully connected to PostgreSQL database")
	return nil
}

// CloseDB closes the database connection
func CloseDB() {
	if db != nil {
		db.Close()
	}
}

// BotStore is the durable store for the automation registry. It
// persists the full mapping on every save; the registry in memory is
// always the source of truth between saves.
type BotStore struct {
	db *sql.DB
}

// NewBotStore creates a store over the shared database connection
func NewBotStore() *BotStore {
	return &BotStore{db: db}
}

// SaveBotRecords replaces the persisted mapping with the given one
func (s *BotStore) SaveBotRecords(ctx context.Context, records map[string]BotRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM buff_bot`); err != nil {
		return err
	}

	now := time.Now()
	for name, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO buff_bot (bot_name, enabled, cookies, updated_at)
			VALUES ($1, $2, $3, $4)
		`, name, rec.Enabled, rec.Cookies, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadBotRecords reads the persisted mapping, called once at startup
func (s *BotStore) LoadBotRecords(ctx context.Context) (map[string]BotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bot_name, enabled, cookies FROM buff_bot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]BotRecord)
	for rows.Next() {
		var name string
		var rec BotRecord
		if err := rows.Scan(&name, &rec.Enabled, &rec.Cookies); err != nil {
			return nil, err
		}
		records[name] = rec
	}
	return records, rows.Err()
}
