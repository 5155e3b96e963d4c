package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sternrassler/parkrun-harvester/pkg/results"
)

// FSStore keeps raw snapshots and parsed artifacts as files under a data
// directory.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) *FSStore {
	if dir == "" {
		dir = "data"
	}
	return &FSStore{root: dir}
}

// RawDir returns the directory holding an event's raw snapshots.
func (s *FSStore) RawDir(event string) string {
	return filepath.Join(s.root, "html", event)
}

// ParsedDir returns the directory holding an event's parsed artifacts.
func (s *FSStore) ParsedDir(event string) string {
	return filepath.Join(s.root, "json", event)
}

// Location implements Store.
func (s *FSStore) Location(event string) string {
	return s.ParsedDir(event)
}

// Prepare creates the event's directories if they are missing.
func (s *FSStore) Prepare(_ context.Context, event string) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	for _, dir := range []string{s.RawDir(event), s.ParsedDir(event)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			CacheErrors.WithLabelValues("prepare").Inc()
			return fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	return nil
}

func (s *FSStore) path(tier Tier, event string, index int) string {
	key := Key{Tier: tier, Event: event, Index: index}
	if tier == TierRaw {
		return filepath.Join(s.RawDir(event), key.FileName())
	}
	return filepath.Join(s.ParsedDir(event), key.FileName())
}

func (s *FSStore) exists(tier Tier, event string, index int) (bool, error) {
	if err := validateEvent(event); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(tier, event, index))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		CacheErrors.WithLabelValues("stat").Inc()
		return false, fmt.Errorf("stat %s page %d: %w", tier, index, err)
	}
}

func (s *FSStore) read(tier Tier, event string, index int) ([]byte, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(tier, event, index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			CacheMisses.WithLabelValues(string(tier)).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("read %s page %d: %w", tier, index, err)
	}
	CacheHits.WithLabelValues(string(tier)).Inc()
	return data, nil
}

// write stores data through a temp file and rename. With onlyIfAbsent an
// existing file is left untouched.
func (s *FSStore) write(tier Tier, event string, index int, data []byte, onlyIfAbsent bool) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	target := s.path(tier, event, index)

	if onlyIfAbsent {
		ok, err := s.exists(tier, event, index)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("write %s page %d: %w", tier, index, err)
	}
	if err := tmp.Close(); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("close %s page %d: %w", tier, index, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("chmod %s page %d: %w", tier, index, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("rename %s page %d: %w", tier, index, err)
	}

	CacheWrites.WithLabelValues(string(tier)).Inc()
	CacheSize.WithLabelValues(string(tier)).Add(float64(len(data)))
	return nil
}

// HasParsed implements Store.
func (s *FSStore) HasParsed(_ context.Context, event string, index int) (bool, error) {
	return s.exists(TierParsed, event, index)
}

// ReadParsed implements Store.
func (s *FSStore) ReadParsed(_ context.Context, event string, index int) (*results.PageResult, error) {
	data, err := s.read(TierParsed, event, index)
	if err != nil {
		return nil, err
	}
	return DecodeArtifact(data, index)
}

// WriteParsed implements Store.
func (s *FSStore) WriteParsed(_ context.Context, event string, index int, page *results.PageResult) error {
	data, err := EncodeArtifact(page)
	if err != nil {
		return err
	}
	return s.write(TierParsed, event, index, data, false)
}

// HasRaw implements Store.
func (s *FSStore) HasRaw(_ context.Context, event string, index int) (bool, error) {
	return s.exists(TierRaw, event, index)
}

// ReadRaw implements Store.
func (s *FSStore) ReadRaw(_ context.Context, event string, index int) ([]byte, error) {
	return s.read(TierRaw, event, index)
}

// WriteRaw implements Store.
func (s *FSStore) WriteRaw(_ context.Context, event string, index int, content []byte) error {
	return s.write(TierRaw, event, index, content, true)
}
