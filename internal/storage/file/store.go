// -----------------------------------------------------------------------
// Blob storage - narrow read/write/list contract over the artifact store
// -----------------------------------------------------------------------

package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/retry"
)

// BlobStore is the storage contract the pipeline depends on. References
// are opaque relative paths; no other storage semantics are assumed.
type BlobStore interface {
	Read(ctx context.Context, ref string) ([]byte, error)
	Write(ctx context.Context, ref string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalStore implements BlobStore on the local filesystem. Reads and
// writes are retried per the storage backoff policy.
type LocalStore struct {
	root   string
	policy retry.Policy
	logger arbor.ILogger
}

// NewLocalStore creates a store rooted at the given directory
func NewLocalStore(root string, logger arbor.ILogger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &LocalStore{
		root:   root,
		policy: retry.StoragePolicy(),
		logger: logger,
	}, nil
}

// resolve maps a reference onto the root, rejecting path escapes
func (s *LocalStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty storage reference")
	}
	clean := filepath.Clean(ref)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage reference: %s", ref)
	}
	return filepath.Join(s.root, clean), nil
}

// Read loads the bytes at ref, retrying transient failures
func (s *LocalStore) Read(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) retry.Outcome {
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				// A missing file never heals on retry
				return retry.Fatal(fmt.Errorf("storage read %s: %w", ref, readErr))
			}
			if attempt > 1 {
				s.logger.Warn().Err(readErr).Str("ref", ref).Int("attempt", attempt).Msg("Storage read retry")
			}
			return retry.Retryable(fmt.Errorf("storage read %s: %w", ref, readErr))
		}
		data = b
		return retry.OK()
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write persists data at ref and returns the reference. The write goes
// through a temp file and rename so readers never see partial content.
func (s *LocalStore) Write(ctx context.Context, ref string, data []byte) (string, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	err = retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) retry.Outcome {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return retry.Retryable(fmt.Errorf("storage write %s: %w", ref, mkErr))
		}
		tmp := path + ".tmp"
		if writeErr := os.WriteFile(tmp, data, 0644); writeErr != nil {
			return retry.Retryable(fmt.Errorf("storage write %s: %w", ref, writeErr))
		}
		if renameErr := os.Rename(tmp, path); renameErr != nil {
			os.Remove(tmp)
			return retry.Retryable(fmt.Errorf("storage write %s: %w", ref, renameErr))
		}
		return retry.OK()
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Delete removes the blob at ref. Missing blobs are not an error.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage delete %s: %w", ref, err)
	}
	return nil
}

// List returns references under the given prefix
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var refs []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		refs = append(refs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("storage list %s: %w", prefix, err)
	}
	return refs, nil
}
