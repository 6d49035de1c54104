package ledger

import (
	"encoding/json"
	"os"

	"nexflow/internal/safeio"
)

func (s *Store) loadFile() {
	if s.path == "" {
		return
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var rows []Record
	if err := json.Unmarshal(b, &rows); err != nil {
		return
	}
	s.mu.Lock()
	s.records = rows
	s.mu.Unlock()
}

func (s *Store) saveFile() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	rows := append([]Record(nil), s.records...)
	s.mu.RUnlock()

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return
	}
	_ = safeio.WriteFileAtomic(s.path, b)
}
