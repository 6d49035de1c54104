package ledger

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS task_records (
  id TEXT PRIMARY KEY,
  node_id TEXT NOT NULL,
  node_title TEXT NOT NULL DEFAULT '',
  artifact_url TEXT NOT NULL DEFAULT '',
  prompt TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  status TEXT NOT NULL DEFAULT 'success',
  error_message TEXT NOT NULL DEFAULT '',
  local_path TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_task_records_node_id ON task_records (node_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_task_records_dedup
  ON task_records (node_id, artifact_url, prompt);
`)
	})
	return s.schemaErr
}

func (s *Store) loadDB() {
	if err := s.ensureSchema(); err != nil {
		return
	}
	rows, err := s.db.Query(`SELECT id, node_id, node_title, artifact_url, prompt,
created_at, status, error_message, local_path FROM task_records`)
	if err != nil {
		return
	}
	defer rows.Close()
	var loaded []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.NodeID, &r.NodeTitle, &r.ArtifactURL, &r.Prompt,
			&r.CreatedAt, &r.Status, &r.ErrorMessage, &r.LocalPath); err != nil {
			return
		}
		loaded = append(loaded, r)
	}
	s.mu.Lock()
	s.records = loaded
	s.mu.Unlock()
}

// saveDB mirrors the in-memory list into Postgres. The dedup index makes the
// upsert idempotent; rows missing from memory are pruned.
func (s *Store) saveDB() {
	if err := s.ensureSchema(); err != nil {
		return
	}
	s.mu.RLock()
	rows := append([]Record(nil), s.records...)
	s.mu.RUnlock()

	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM task_records`); err != nil {
		return
	}
	for _, r := range rows {
		_, err := tx.Exec(`
INSERT INTO task_records (
  id, node_id, node_title, artifact_url, prompt, created_at, status, error_message, local_path
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (node_id, artifact_url, prompt)
DO UPDATE SET id=EXCLUDED.id,
  node_title=EXCLUDED.node_title,
  created_at=EXCLUDED.created_at,
  status=EXCLUDED.status,
  error_message=EXCLUDED.error_message,
  local_path=EXCLUDED.local_path
WHERE EXCLUDED.created_at >= task_records.created_at`,
			r.ID, r.NodeID, r.NodeTitle, r.ArtifactURL, r.Prompt,
			r.CreatedAt, r.Status, r.ErrorMessage, r.LocalPath)
		if err != nil {
			return
		}
	}
	_ = tx.Commit()
}
