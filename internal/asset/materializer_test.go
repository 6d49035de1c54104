package asset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"nexflow/internal/graph"
)

type scriptedStorage struct {
	local string
	err   error
	calls int
}

func (s *scriptedStorage) Save(ctx context.Context, remoteURL, hint string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.local, nil
}

func TestMaterializeReturnsLocalPath(t *testing.T) {
	st := &scriptedStorage{local: "/data/artifacts/fox.png"}
	m := NewMaterializer(st)

	res := m.Materialize(context.Background(), "https://cdn/fox.png", graph.KindImage, "Fox")
	if res.Remote != "https://cdn/fox.png" || res.Local != "/data/artifacts/fox.png" {
		t.Fatalf("result = %+v", res)
	}
}

func TestMaterializeFallsBackToRemoteURL(t *testing.T) {
	st := &scriptedStorage{err: errors.New("disk full")}
	m := NewMaterializer(st)

	res := m.Materialize(context.Background(), "https://cdn/clip.mp4", graph.KindVideo, "Clip")
	if res.Local != "https://cdn/clip.mp4" {
		t.Fatalf("local = %q, want remote fallback", res.Local)
	}
}

func TestMaterializeCachesByRemoteURL(t *testing.T) {
	st := &scriptedStorage{local: "/data/artifacts/fox.png"}
	m := NewMaterializer(st)

	m.Materialize(context.Background(), "https://cdn/fox.png", graph.KindImage, "Fox")
	res := m.Materialize(context.Background(), "https://cdn/fox.png", graph.KindImage, "Fox")
	if st.calls != 1 {
		t.Fatalf("storage called %d times, want 1", st.calls)
	}
	if res.Local != "/data/artifacts/fox.png" {
		t.Fatalf("cached local = %q", res.Local)
	}
}

func TestMaterializeSkipsEmptyURLAndNilStorage(t *testing.T) {
	var nilM *Materializer
	if res := nilM.Materialize(context.Background(), "https://cdn/a.png", graph.KindImage, ""); res.Local != "https://cdn/a.png" {
		t.Fatalf("nil materializer result = %+v", res)
	}
	m := NewMaterializer(nil)
	if res := m.Materialize(context.Background(), "", graph.KindImage, ""); res.Local != "" {
		t.Fatalf("empty url result = %+v", res)
	}
}

func TestLocalStoreDownloadsArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	local, err := store.Save(context.Background(), srv.URL+"/fox.png", "image/Fox")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "png-bytes" {
		t.Fatalf("content = %q", b)
	}
}

func TestLocalStoreRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Save(context.Background(), srv.URL+"/gone.png", "x"); err == nil {
		t.Fatal("expected error for 404 fetch")
	}
}

func TestFileNameSanitizesAndKeepsExtension(t *testing.T) {
	got := fileName("https://cdn.example.com/a/b/clip.mp4", "video/My Clip!")
	if strings.ContainsAny(got, "/! ") {
		t.Fatalf("unsafe characters in %q", got)
	}
	if !strings.HasSuffix(got, ".mp4") {
		t.Fatalf("name %q lost the remote extension", got)
	}

	hinted := fileName("https://cdn.example.com/x", "cover.png")
	if !strings.HasSuffix(hinted, ".png") {
		t.Fatalf("name %q lost the hint extension", hinted)
	}

	blank := fileName("https://cdn.example.com/y.wav", "   ")
	if !strings.HasPrefix(blank, "artifact-") || !strings.HasSuffix(blank, ".wav") {
		t.Fatalf("fallback name = %q", blank)
	}
}

func TestFileNameStableAndDistinct(t *testing.T) {
	a1 := fileName("https://cdn/a.png", "img")
	a2 := fileName("https://cdn/a.png", "img")
	b := fileName("https://cdn/b.png", "img")
	if a1 != a2 {
		t.Fatalf("same input produced %q and %q", a1, a2)
	}
	if a1 == b {
		t.Fatalf("different urls collided on %q", a1)
	}
}
