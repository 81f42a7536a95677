// Package storage persists strategies and conversation history in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stratagem-ai/stratagem/pkg/model"
	"github.com/stratagem-ai/stratagem/pkg/strategy"
)

// Store is a SQLite-backed store for saved strategies and prior
// conversation turns.
type Store struct {
	db *sql.DB
}

// SavedStrategy is the persisted-strategy handle returned by save_strategy.
type SavedStrategy struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	CreatedAt time.Time `json:"created_at"`
}

// Open opens (or creates) the store at dbPath. ":memory:" is supported for
// tests.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS strategies (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			plan TEXT NOT NULL,
			code TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_strategies_user ON strategies(user_id);

		CREATE TABLE IF NOT EXISTS conversation_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveStrategy persists a plan and its generated code, returning the handle.
func (s *Store) SaveStrategy(id, userID string, plan strategy.Plan, code strategy.Code) (*SavedStrategy, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO strategies (id, user_id, name, symbol, timeframe, plan, code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, id, userID, plan.Name, plan.Symbol, plan.Timeframe, string(planJSON), code.Source, now); err != nil {
		return nil, fmt.Errorf("insert strategy: %w", err)
	}

	return &SavedStrategy{
		ID:        id,
		UserID:    userID,
		Name:      plan.Name,
		Symbol:    plan.Symbol,
		Timeframe: plan.Timeframe,
		CreatedAt: now,
	}, nil
}

// GetStrategy retrieves a saved strategy plan by handle id.
func (s *Store) GetStrategy(id string) (*SavedStrategy, strategy.Plan, error) {
	query := `
		SELECT id, user_id, name, symbol, timeframe, plan, created_at
		FROM strategies
		WHERE id = ?
	`
	var (
		saved    SavedStrategy
		planJSON string
	)
	err := s.db.QueryRow(query, id).Scan(
		&saved.ID,
		&saved.UserID,
		&saved.Name,
		&saved.Symbol,
		&saved.Timeframe,
		&planJSON,
		&saved.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, strategy.Plan{}, fmt.Errorf("strategy not found: %s", id)
	}
	if err != nil {
		return nil, strategy.Plan{}, err
	}

	var plan strategy.Plan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return nil, strategy.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	return &saved, plan, nil
}

// History returns prior turns for a conversation in chronological order.
func (s *Store) History(conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT role, content FROM (
			SELECT id, role, content
			FROM conversation_turns
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`
	rows, err := s.db.Query(query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		turns = append(turns, m)
	}
	return turns, rows.Err()
}

// AppendTurn records a turn after a run completes.
func (s *Store) AppendTurn(conversationID, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_turns (conversation_id, role, content) VALUES (?, ?, ?)`,
		conversationID, role, content,
	)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
