package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"nexflow/internal/safeio"
)

// LocalStore downloads artifacts into a root-locked directory on disk.
type LocalStore struct {
	root   *safeio.Root
	client *http.Client
}

// maxArtifactBytes bounds a single artifact download (512 MiB covers the
// video providers in use).
const maxArtifactBytes = 512 << 20

func NewLocalStore(dir string) (*LocalStore, error) {
	root, err := safeio.NewRoot(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{
		root:   root,
		client: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (s *LocalStore) Save(ctx context.Context, remoteURL, hintName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asset: fetch %s returned %d", remoteURL, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return "", err
	}
	return s.root.WriteFile(fileName(remoteURL, hintName), content)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// fileName builds a collision-free name from the hint plus a short hash of
// the remote URL, keeping the remote extension when the hint has none.
func fileName(remoteURL, hintName string) string {
	sum := sha256.Sum256([]byte(remoteURL))
	short := hex.EncodeToString(sum[:6])

	hint := unsafeNameChars.ReplaceAllString(strings.TrimSpace(hintName), "-")
	hint = strings.Trim(hint, "-.")
	if hint == "" {
		hint = "artifact"
	}
	ext := path.Ext(hint)
	if ext == "" {
		if u, err := url.Parse(remoteURL); err == nil {
			ext = path.Ext(u.Path)
		}
		return hint + "-" + short + ext
	}
	base := strings.TrimSuffix(hint, ext)
	return base + "-" + short + ext
}
