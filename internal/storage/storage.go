// Package storage abstracts where uploaded voice recordings live: the
// local filesystem in development, Cloudflare R2 in production. A
// recording is kept for transcription and afterwards for playback.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Storage is implemented by each storage provider.
type Storage interface {
	// Put stores data at key. Fails with ErrKeyExists when the key is
	// occupied and opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object at key. The caller closes the reader.
	// Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Idempotent.
	Delete(ctx context.Context, key string) error

	// URL returns an access URL for key: permanent for public objects,
	// presigned for expires otherwise.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the object's MIME type; detected from the key
	// extension when empty.
	ContentType string

	// MaxSize caps the upload in bytes; exceeding it yields ErrTooLarge.
	// Zero means unlimited.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool

	// Public marks the object world-readable (R2 ACL; informational
	// for local storage).
	Public bool
}

// ObjectInfo is the metadata of a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string // set by R2, empty for local files
}

// LocalConfig configures filesystem storage.
type LocalConfig struct {
	// BasePath is the directory recordings are written under.
	BasePath string

	// BaseURL is the prefix they are served back from, e.g.
	// "http://localhost:8080/files".
	BaseURL string
}

// R2Config configures Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's custom domain. When empty every access
	// goes through presigned URLs.
	PublicURL string

	// Region defaults to "auto"; R2 is globally distributed.
	Region string
}

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// AudioKey generates the storage key for an uploaded voice recording:
// users/{userID}/audio/{uuid}.{ext}. Keys are never derived from the
// client-supplied filename beyond its extension.
func AudioKey(userID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("users/%s/audio/%s%s", userID, uuid.New(), ext)
}
