package mediacache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/signage-player/webplayer/internal/model"
	"github.com/signage-player/webplayer/internal/storage"
)

const (
	incomingDir = ".incoming"
	typesDir    = ".types"
)

// FSStore keeps one file per cache key in a directory. The content type the
// server sent is kept in a sidecar file under .types.
type FSStore struct {
	fs  afero.Afero
	dir string
}

func NewFSStore(fs afero.Fs, dir string) (*FSStore, error) {
	store := &FSStore{fs: afero.Afero{Fs: fs}, dir: dir}
	for _, sub := range []string{incomingDir, typesDir} {
		if err := store.fs.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return store, nil
}

func (s *FSStore) typePath(key string) string {
	return filepath.Join(s.dir, typesDir, url.PathEscape(key))
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

func (s *FSStore) HasMedia(_ context.Context, key string) (bool, error) {
	return s.fs.Exists(s.path(key))
}

func (s *FSStore) GetMedia(_ context.Context, key string) (model.CacheEntry, error) {
	p := s.path(key)
	data, err := s.fs.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return model.CacheEntry{}, fmt.Errorf("%w: media %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return model.CacheEntry{}, err
	}
	declared := ""
	if raw, err := s.fs.ReadFile(s.typePath(key)); err == nil {
		declared = strings.TrimSpace(string(raw))
	}
	entry := model.CacheEntry{
		Key:         key,
		Data:        data,
		Size:        int64(len(data)),
		ContentType: DetectContentType(data, declared, key),
	}
	if info, err := s.fs.Stat(p); err == nil {
		entry.CreatedAt = info.ModTime().UTC()
	}
	return entry, nil
}

// PutMedia writes through a temp file and rename; an existing key is kept.
func (s *FSStore) PutMedia(_ context.Context, entry model.CacheEntry) error {
	target := s.path(entry.Key)
	if exists, err := s.fs.Exists(target); err != nil || exists {
		return err
	}
	tmp, err := s.fs.TempFile(filepath.Join(s.dir, incomingDir), "blob-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(entry.Data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if entry.ContentType != "" {
		if err := s.fs.WriteFile(s.typePath(entry.Key), []byte(entry.ContentType), 0o644); err != nil {
			_ = s.fs.Remove(tmpName)
			return err
		}
	}
	return s.fs.Rename(tmpName, target)
}

func (s *FSStore) DeleteMedia(_ context.Context, key string) error {
	if err := s.fs.Remove(s.typePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	err := s.fs.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FSStore) ListMediaKeys(_ context.Context) ([]string, error) {
	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		key, err := url.PathUnescape(info.Name())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// PurgeMedia removes every blob, including partially written ones.
func (s *FSStore) PurgeMedia(ctx context.Context) (int, error) {
	keys, err := s.ListMediaKeys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := s.DeleteMedia(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	for _, sub := range []string{incomingDir, typesDir} {
		dir := filepath.Join(s.dir, sub)
		if err := s.fs.RemoveAll(dir); err != nil {
			return removed, err
		}
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
