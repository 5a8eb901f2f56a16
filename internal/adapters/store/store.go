// Package store persists compiled artifacts on disk so a restarted
// coordinator does not recompile unchanged sources.
package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// DefaultHotEntries bounds the in-memory read-through cache.
	DefaultHotEntries = 512

	tempPattern = ".tmp-*"
)

// record is the on-disk form of an artifact.
type record struct {
	Path    string `cbor:"1,keyasint"`
	ModTime int64  `cbor:"2,keyasint"`
	Digest  uint64 `cbor:"3,keyasint"`
	Code    []byte `cbor:"4,keyasint,omitempty"`
	Map     []byte `cbor:"5,keyasint,omitempty"`
}

// DiskStore implements ports.ArtifactStore with one CBOR file per source path.
type DiskStore struct {
	dir string
	hot *lru.Cache[string, *domain.Artifact]
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ ports.ArtifactStore = (*DiskStore)(nil)

// Open creates the store directory if needed.
func Open(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "dir", dir)
	}

	hot, err := lru.New[string, *domain.Artifact](DefaultHotEntries)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	return &DiskStore{dir: dir, hot: hot, enc: enc, dec: dec}, nil
}

// Get returns the artifact for path if it was built from a source with the
// given modification time. Stale or corrupt entries are dropped and reported
// as a miss.
func (s *DiskStore) Get(path string, modTime int64) (*domain.Artifact, error) {
	if a, ok := s.hot.Get(path); ok {
		if a.ModTime == modTime {
			return a, nil
		}
		s.hot.Remove(path)
	}

	filename := s.filename(path)
	//nolint:gosec // G304: filename is a hash inside the store directory
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreReadFailed.Error()), "path", path)
	}

	var rec record
	if err := s.dec.Unmarshal(data, &rec); err != nil {
		_ = os.Remove(filename)
		return nil, nil
	}

	if rec.Path != path || rec.ModTime != modTime || rec.Digest != domain.Fingerprint(rec.Code, rec.Map) {
		return nil, nil
	}

	a := &domain.Artifact{
		Path:    rec.Path,
		Code:    rec.Code,
		Map:     rec.Map,
		ModTime: rec.ModTime,
		Digest:  rec.Digest,
	}
	s.hot.Add(path, a)
	return a, nil
}

// Put writes the artifact, replacing any previous one for the same path.
func (s *DiskStore) Put(a *domain.Artifact) error {
	if a == nil {
		return nil
	}

	data, err := s.enc.Marshal(record{
		Path:    a.Path,
		ModTime: a.ModTime,
		Digest:  a.Digest,
		Code:    a.Code,
		Map:     a.Map,
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", a.Path)
	}

	if err := s.writeAtomic(s.filename(a.Path), data); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", a.Path)
	}

	s.hot.Add(a.Path, a)
	return nil
}

// Delete removes the stored artifact for path.
func (s *DiskStore) Delete(path string) error {
	s.hot.Remove(path)
	if err := os.Remove(s.filename(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", path)
	}
	return nil
}

// writeAtomic replaces filename so concurrent readers never see a partial file.
func (s *DiskStore) writeAtomic(filename string, data []byte) error {
	f, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, domain.FilePerm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *DiskStore) filename(path string) string {
	return filepath.Join(s.dir, strconv.FormatUint(xxhash.Sum64String(path), 16)+".cbor")
}

// Clean removes the store directory and everything in it.
func Clean(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove artifact cache"), "dir", dir)
	}
	return nil
}
