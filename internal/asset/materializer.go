package asset

import (
	"context"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"

	"nexflow/internal/graph"
)

// Materializer persists remote artifacts through a Storage backend. It is
// strictly best-effort: on any failure it returns the remote URL unchanged,
// so materialization can never turn a successful generation into a failure.
type Materializer struct {
	storage Storage
	cache   *lru.Cache[string, string]
}

// Result carries both references for a materialized artifact. Local equals
// Remote when materialization was skipped or failed.
type Result struct {
	Remote string
	Local  string
}

func NewMaterializer(storage Storage) *Materializer {
	cache, err := lru.New[string, string](1024)
	if err != nil {
		cache = nil
	}
	return &Materializer{storage: storage, cache: cache}
}

// Materialize stores the artifact and returns its references. The kind and
// title only shape the stored file name.
func (m *Materializer) Materialize(ctx context.Context, remoteURL string, kind graph.Kind, title string) Result {
	res := Result{Remote: remoteURL, Local: remoteURL}
	if m == nil || m.storage == nil || remoteURL == "" {
		return res
	}
	if m.cache != nil {
		if local, ok := m.cache.Get(remoteURL); ok {
			res.Local = local
			return res
		}
	}
	hint := title
	if hint == "" {
		hint = string(kind)
	}
	local, err := m.storage.Save(ctx, remoteURL, string(kind)+"/"+hint)
	if err != nil {
		log.Printf("materialize %s failed, keeping remote url: %v", remoteURL, err)
		return res
	}
	res.Local = local
	if m.cache != nil {
		m.cache.Add(remoteURL, local)
	}
	return res
}
