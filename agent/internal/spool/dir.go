package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
)

const (
	entrySuffix = ".gzip"
	tmpSuffix   = ".tmp"
)

// DirStore keeps one file per entry in a directory.
type DirStore struct {
	fs     afero.Fs
	dir    string
	prefix string
	ids    *idSource
}

// NewDirStore opens (creating if needed) a directory-backed store. Entry
// files are named <prefix><ULID>.gzip; other files in dir are ignored.
func NewDirStore(fs afero.Fs, dir, prefix string) (*DirStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: create dir %q: %w", dir, err)
	}
	s := &DirStore{fs: fs, dir: dir, prefix: prefix, ids: newIDSource()}

	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	if n := len(ids); n > 0 {
		s.ids.seed(ulid.MustParseStrict(string(ids[n-1])))
	}
	return s, nil
}

// Put writes payload to a temp file and renames it into place, so List never
// returns a partially written entry.
func (s *DirStore) Put(payload []byte) (EntryID, error) {
	u, err := s.ids.next()
	if err != nil {
		return "", err
	}
	id := EntryID(u.String())
	final := s.path(id)
	tmp := final + tmpSuffix

	if err := afero.WriteFile(s.fs, tmp, payload, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("spool: write %q: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("spool: rename %q: %w", final, err)
	}
	return id, nil
}

// List returns entry IDs sorted oldest first.
func (s *DirStore) List() ([]EntryID, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("spool: list %q: %w", s.dir, err)
	}
	ids := make([]EntryID, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		id, ok := s.parseName(fi.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *DirStore) Read(id EntryID) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("spool: read %s: %w", id, err)
	}
	return data, nil
}

func (s *DirStore) Remove(id EntryID) error {
	err := s.fs.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("spool: remove %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; files are closed after every operation.
func (s *DirStore) Close() error { return nil }

func (s *DirStore) path(id EntryID) string {
	return filepath.Join(s.dir, s.prefix+string(id)+entrySuffix)
}

func (s *DirStore) parseName(name string) (EntryID, bool) {
	if !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, entrySuffix) {
		return "", false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), entrySuffix)
	if _, err := ulid.ParseStrict(raw); err != nil {
		return "", false
	}
	return EntryID(raw), true
}
