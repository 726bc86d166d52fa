package telegram

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// prefStore keeps per-chat preferences in sqlite so they survive
// restarts. Reads go through an in-memory cache; the database is only
// hit on first access and on writes.
type prefStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[int64]bool
}

func newPrefStore(dsn string) (*prefStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create prefs directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS chat_prefs (
		chat_id INTEGER PRIMARY KEY,
		voice INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init prefs schema: %w", err)
	}

	return &prefStore{db: db, cache: make(map[int64]bool)}, nil
}

// VoiceEnabled reports the stored voice preference for a chat. Unknown
// chats and read errors default to off.
func (p *prefStore) VoiceEnabled(chatID int64) bool {
	p.mu.RLock()
	v, ok := p.cache[chatID]
	p.mu.RUnlock()
	if ok {
		return v
	}

	var voice int
	switch err := p.db.QueryRow(`SELECT voice FROM chat_prefs WHERE chat_id = ?`, chatID).Scan(&voice); err {
	case nil:
	case sql.ErrNoRows:
		voice = 0
	default:
		return false
	}

	on := voice != 0
	p.mu.Lock()
	p.cache[chatID] = on
	p.mu.Unlock()
	return on
}

func (p *prefStore) SetVoice(chatID int64, on bool) error {
	voice := 0
	if on {
		voice = 1
	}

	_, err := p.db.Exec(`
		INSERT INTO chat_prefs (chat_id, voice, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chat_id) DO UPDATE SET
			voice = excluded.voice,
			updated_at = CURRENT_TIMESTAMP`,
		chatID, voice)
	if err != nil {
		return fmt.Errorf("failed to save voice preference: %w", err)
	}

	p.mu.Lock()
	p.cache[chatID] = on
	p.mu.Unlock()
	return nil
}

func (p *prefStore) Close() error {
	return p.db.Close()
}
