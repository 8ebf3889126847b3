package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalBucket implements Bucket on the local filesystem. It backs the
// local state backend and is handy for development and tests.
type LocalBucket struct {
	BaseDir   string
	cdnOrigin string
}

// NewLocalBucket creates a LocalBucket rooted at the given directory.
func NewLocalBucket(baseDir, cdnOrigin string) *LocalBucket {
	return &LocalBucket{BaseDir: baseDir, cdnOrigin: cdnOrigin}
}

func (s *LocalBucket) path(key string) string {
	return filepath.Join(s.BaseDir, filepath.FromSlash(path.Clean("/"+key)))
}

func (s *LocalBucket) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	// write-then-rename keeps readers from seeing a half-written object
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("local put %s: %w", key, err)
	}
	return nil
}

func (s *LocalBucket) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("local get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local get %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalBucket) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	st, err := os.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ObjectInfo{}, fmt.Errorf("local stat %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("local stat %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime(),
		ContentType:  mime.TypeByExtension(path.Ext(key)),
	}, nil
}

func (s *LocalBucket) ListObjects(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		stop := errors.New("stop")
		err := filepath.WalkDir(s.BaseDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && p == s.BaseDir {
					return fs.SkipAll
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
				return nil
			}
			rel, err := filepath.Rel(s.BaseDir, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if !yield(ObjectInfo{
				Key:          key,
				Size:         info.Size(),
				LastModified: info.ModTime(),
				ContentType:  mime.TypeByExtension(path.Ext(key)),
			}, nil) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield(ObjectInfo{}, fmt.Errorf("local list %s: %w", prefix, err))
		}
	}
}

func (s *LocalBucket) PublicURL(key string) string {
	abs, err := filepath.Abs(s.BaseDir)
	if err != nil {
		abs = s.BaseDir
	}
	return publicURL(s.cdnOrigin, "file://"+filepath.ToSlash(abs), key)
}
