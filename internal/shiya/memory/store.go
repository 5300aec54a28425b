package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Store is the single owner of all UserMemory documents. Every mutation
// runs load → modify → save under a per-user mutex so that two in-flight
// exchanges from the same user cannot lose updates; different users never
// contend.
//
// Persistence is best-effort: a failed read degrades to the empty document
// and a failed write is logged while the in-memory result of the operation
// is still honored for that call. Getters therefore never fail.
type Store struct {
	docs     DocumentStore
	shortMax int
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StoreConfig configures a memory Store.
type StoreConfig struct {
	// ShortMax is the maximum number of turns kept in the short-term
	// history. Oldest turns are evicted first. Defaults to DefaultShortMax.
	ShortMax int

	// Logger receives persistence warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewStore creates a Store on top of the given document store.
func NewStore(docs DocumentStore, cfg StoreConfig) *Store {
	if cfg.ShortMax <= 0 {
		cfg.ShortMax = DefaultShortMax
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		docs:     docs,
		shortMax: cfg.ShortMax,
		logger:   cfg.Logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex guarding read-modify-write sequences for uid,
// creating it on first use.
func (s *Store) userLock(uid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		s.locks[uid] = l
	}
	return l
}

// load reads the document for uid, degrading to the empty document on a
// missing record, a read failure, or a malformed stored document.
func (s *Store) load(ctx context.Context, uid string) UserMemory {
	raw, ok, err := s.docs.Get(ctx, uid)
	if err != nil {
		s.logger.Warn("memory: read failed, using empty document", "uid", uid, "err", err)
		return UserMemory{}
	}
	if !ok {
		return UserMemory{}
	}

	var doc UserMemory
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("memory: malformed stored document, using empty document", "uid", uid, "err", err)
		return UserMemory{}
	}
	return doc
}

// save persists the document for uid. Failures are logged, not returned —
// the caller's in-memory result stands for the current call.
func (s *Store) save(ctx context.Context, uid string, doc UserMemory) {
	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("memory: marshal document", "uid", uid, "err", err)
		return
	}
	if err := s.docs.Set(ctx, uid, raw); err != nil {
		s.logger.Warn("memory: write failed, change not durable", "uid", uid, "err", err)
	}
}

// GetShort returns the short-term history for uid, oldest turn first.
// Returns an empty slice when no document exists.
func (s *Store) GetShort(ctx context.Context, uid string) []Turn {
	return s.load(ctx, uid).Short
}

// GetFacts returns the insertion-ordered fact set for uid.
func (s *Store) GetFacts(ctx context.Context, uid string) []string {
	return s.load(ctx, uid).Facts
}

// GetPersona returns the persona override lines for uid.
func (s *Store) GetPersona(ctx context.Context, uid string) []string {
	return s.load(ctx, uid).Persona
}

// Count returns the completed-exchange counter for uid.
func (s *Store) Count(ctx context.Context, uid string) int {
	return s.load(ctx, uid).Count
}

// RememberFact inserts fact into uid's fact set if it is non-empty and not
// already present (exact string equality). Idempotent.
func (s *Store) RememberFact(ctx context.Context, uid, fact string) {
	if fact == "" {
		return
	}
	l := s.userLock(uid)
	l.Lock()
	defer l.Unlock()

	doc := s.load(ctx, uid)
	for _, f := range doc.Facts {
		if f == fact {
			return
		}
	}
	doc.Facts = append(doc.Facts, fact)
	s.save(ctx, uid, doc)
}

// SetPersona replaces uid's persona lines wholesale with the non-empty
// entries of lines, preserving input order.
func (s *Store) SetPersona(ctx context.Context, uid string, lines []string) {
	l := s.userLock(uid)
	l.Lock()
	defer l.Unlock()

	doc := s.load(ctx, uid)
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	doc.Persona = cleaned
	s.save(ctx, uid, doc)
}

// AppendPersona appends line to uid's persona if it is non-empty and not
// already present. Idempotent.
func (s *Store) AppendPersona(ctx context.Context, uid, line string) {
	if line == "" {
		return
	}
	l := s.userLock(uid)
	l.Lock()
	defer l.Unlock()

	doc := s.load(ctx, uid)
	for _, p := range doc.Persona {
		if p == line {
			return
		}
	}
	doc.Persona = append(doc.Persona, line)
	s.save(ctx, uid, doc)
}

// ResetPersona empties uid's persona lines, leaving everything else intact.
func (s *Store) ResetPersona(ctx context.Context, uid string) {
	l := s.userLock(uid)
	l.Lock()
	defer l.Unlock()

	doc := s.load(ctx, uid)
	doc.Persona = nil
	s.save(ctx, uid, doc)
}

// AddExchange appends a user turn and its paired assistant turn to uid's
// short-term history, truncating from the front when the bound is exceeded,
// and increments the exchange counter. The append-and-truncate combination
// happens under the user lock so a turn pair is never split mid-truncation.
func (s *Store) AddExchange(ctx context.Context, uid, userText, assistantText string) {
	l := s.userLock(uid)
	l.Lock()
	defer l.Unlock()

	doc := s.load(ctx, uid)
	doc.Short = append(doc.Short,
		Turn{Role: "user", Content: userText},
		Turn{Role: "assistant", Content: assistantText},
	)
	if len(doc.Short) > s.shortMax {
		excess := len(doc.Short) - s.shortMax
		doc.Short = doc.Short[excess:]
	}
	doc.Count++
	s.save(ctx, uid, doc)
}

// Clear resets uid's document to empty: no history, no facts, no persona,
// zero counter. The record itself is kept.
func (s *Store) Clear(ctx context.Context, uid string) {
	l := s.userLock(uid)
	l.Lock()
	defer l.Unlock()

	s.save(ctx, uid, UserMemory{})
}
