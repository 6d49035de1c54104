// Package asset turns provider-returned remote URLs into durable local
// artifact references, best-effort: a failed download never fails the
// generation that produced it.
package asset

import "context"

// Storage is the durable-storage capability. Save fetches the remote
// artifact and returns a stable reference to the stored copy.
type Storage interface {
	Save(ctx context.Context, remoteURL, hintName string) (string, error)
}
