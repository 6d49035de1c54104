// Package ledger keeps the deduplicated history of completed and failed
// generations, independent of live node state. The in-memory list is
// canonical; a file or Postgres backend mirrors it for durability.
package ledger

import (
	"database/sql"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Status of a recorded generation.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is one completed or failed generation.
type Record struct {
	ID           string    `json:"id"`
	NodeID       string    `json:"nodeId"`
	NodeTitle    string    `json:"nodeTitle"`
	ArtifactURL  string    `json:"artifactUrl"`
	Prompt       string    `json:"prompt"`
	CreatedAt    time.Time `json:"createdAt"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	LocalPath    string    `json:"localPath,omitempty"`
}

// dedupKey identifies records considered duplicates; only the most recent
// survives an append.
func (r Record) dedupKey() string {
	return r.NodeID + "\x00" + r.ArtifactURL + "\x00" + r.Prompt
}

// Store is the ledger. Construct with New (file-backed), NewPostgres, or
// NewFromEnv which picks Postgres when LEDGER_PG_DSN is set.
type Store struct {
	path string
	db   *sql.DB

	loadOnce   sync.Once
	schemaOnce sync.Once
	schemaErr  error

	mu      sync.RWMutex
	records []Record
}

func New(path string) *Store {
	return &Store{path: path}
}

func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewFromEnv returns a Postgres-backed store when LEDGER_PG_DSN is set and
// reachable, otherwise a file-backed one.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("LEDGER_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New(path)
	}
	return s
}

// Append inserts a record, enforcing the dedup invariant: among records with
// the same (nodeID, artifactURL, prompt) only the one with the larger
// CreatedAt is retained.
func (s *Store) Append(rec Record) {
	if rec.NodeID == "" {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.ensureLoaded()

	s.mu.Lock()
	key := rec.dedupKey()
	replaced := false
	for i, existing := range s.records {
		if existing.dedupKey() != key {
			continue
		}
		if existing.CreatedAt.After(rec.CreatedAt) {
			// Existing entry is newer; the append is a no-op.
			s.mu.Unlock()
			return
		}
		s.records[i] = rec
		replaced = true
		break
	}
	if !replaced {
		s.records = append(s.records, rec)
	}
	s.mu.Unlock()

	s.persist()
}

// List returns all records, newest first.
func (s *Store) List() []Record {
	s.ensureLoaded()
	s.mu.RLock()
	out := append([]Record(nil), s.records...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Remove drops a record by id. Removing a record never affects the node it
// referenced.
func (s *Store) Remove(id string) {
	s.ensureLoaded()
	s.mu.Lock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.mu.Unlock()
	s.persist()
}

// RemoveByNode purges every record belonging to a deleted node.
func (s *Store) RemoveByNode(nodeID string) {
	s.ensureLoaded()
	s.mu.Lock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.NodeID != nodeID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.mu.Unlock()
	s.persist()
}

func (s *Store) ensureLoaded() {
	s.loadOnce.Do(func() {
		if s.db != nil {
			s.loadDB()
			return
		}
		s.loadFile()
	})
}

func (s *Store) persist() {
	if s.db != nil {
		s.saveDB()
		return
	}
	s.saveFile()
}
