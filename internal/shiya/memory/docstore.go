package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// DocumentStore is the pluggable persistence engine for memory documents.
// Values are opaque serialized documents keyed by user ID. Implementations
// must be safe for concurrent use; the Store above serializes writes per
// user, so implementations only need whole-call atomicity.
type DocumentStore interface {
	// Get returns the stored document for uid. The boolean reports whether
	// a document exists; a missing document is not an error.
	Get(ctx context.Context, uid string) ([]byte, bool, error)

	// Set stores the document for uid, replacing any previous value.
	Set(ctx context.Context, uid string, doc []byte) error

	// Exists reports whether a document is stored for uid.
	Exists(ctx context.Context, uid string) (bool, error)
}

// SQLiteDocStore implements DocumentStore on the user_memory table of the
// Shiya database (created by migration 0001_user_memory.sql).
type SQLiteDocStore struct {
	db *sql.DB
}

// NewSQLiteDocStore creates a SQLiteDocStore backed by the given connection.
func NewSQLiteDocStore(db *sql.DB) *SQLiteDocStore {
	return &SQLiteDocStore{db: db}
}

// Get returns the stored document for uid.
func (s *SQLiteDocStore) Get(ctx context.Context, uid string) ([]byte, bool, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM user_memory WHERE user_id = ?`, uid,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("docstore sqlite: query document: %w", err)
	}
	return doc, true, nil
}

// Set upserts the document for uid.
func (s *SQLiteDocStore) Set(ctx context.Context, uid string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (user_id, document, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			document = excluded.document,
			updated_at = CURRENT_TIMESTAMP`,
		uid, doc,
	)
	if err != nil {
		return fmt.Errorf("docstore sqlite: upsert document: %w", err)
	}
	return nil
}

// Exists reports whether a document is stored for uid.
func (s *SQLiteDocStore) Exists(ctx context.Context, uid string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_memory WHERE user_id = ?`, uid,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("docstore sqlite: query existence: %w", err)
	}
	return true, nil
}

// MapDocStore is an in-memory DocumentStore for tests and ephemeral
// deployments. Safe for concurrent use.
type MapDocStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMapDocStore creates an empty in-memory document store.
func NewMapDocStore() *MapDocStore {
	return &MapDocStore{docs: make(map[string][]byte)}
}

// Get returns the stored document for uid.
func (s *MapDocStore) Get(_ context.Context, uid string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uid]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, true, nil
}

// Set stores the document for uid.
func (s *MapDocStore) Set(_ context.Context, uid string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(doc))
	copy(cp, doc)
	s.docs[uid] = cp
	return nil
}

// Exists reports whether a document is stored for uid.
func (s *MapDocStore) Exists(_ context.Context, uid string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[uid]
	return ok, nil
}

// Compile-time interface satisfaction checks.
var (
	_ DocumentStore = (*SQLiteDocStore)(nil)
	_ DocumentStore = (*MapDocStore)(nil)
)
