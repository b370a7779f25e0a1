package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a node id is not in the registry
	ErrNotFound = errors.New("node not found")

	// ErrConflict is returned when an id is already taken
	ErrConflict = errors.New("node id already exists")

	// ErrUnavailable wraps every storage or locking failure
	ErrUnavailable = errors.New("registry unavailable")

	// ErrCorrupted is returned when the registry file does not parse
	ErrCorrupted = errors.New("registry corrupted")

	// ErrLockUnsupported is returned when the platform has no advisory file lock
	ErrLockUnsupported = errors.New("advisory file locking is not supported on this platform")
)

// Verb says what an upsert did
type Verb string

const (
	VerbCreated Verb = "created"
	VerbUpdated Verb = "updated"
)

// PatchFunc computes a patch from the record as read under the lock
type PatchFunc func(current types.NodeRecord) (types.NodePatch, error)

// document is the on-disk layout of the registry file
type document struct {
	Nodes []types.NodeRecord `json:"nodes"`
}

func (d *document) index(id string) int {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Store is a JSON-file registry guarded by an advisory lock on <file>.lock.
// Every operation loads the file, transforms it and, for mutations, rewrites
// it atomically while holding the lock.
type Store struct {
	path     string
	lockPath string

	// serialises goroutines of this process before they contend on flock
	mu sync.Mutex

	now    func() time.Time
	logger zerolog.Logger
}

// NewStore opens a registry at path. A platform without file locking is a
// configuration error, not something to run without.
func NewStore(path string) (*Store, error) {
	if !lockSupported {
		return nil, ErrLockUnsupported
	}
	if path == "" {
		return nil, fmt.Errorf("registry path must not be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create registry directory: %v", ErrUnavailable, err)
	}

	return &Store{
		path:     path,
		lockPath: path + ".lock",
		now:      time.Now,
		logger:   log.WithComponent("registry"),
	}, nil
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.path
}

// withLock runs fn against a fresh snapshot of the file. When fn reports a
// change the snapshot is written back before the lock is released.
func (s *Store) withLock(fn func(doc *document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("%w: failed to open lock file: %v", ErrUnavailable, err)
	}
	defer lf.Close()

	if err := lockFile(lf); err != nil {
		return fmt.Errorf("%w: failed to acquire lock: %v", ErrUnavailable, err)
	}
	defer func() {
		if err := unlockFile(lf); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release registry lock")
		}
	}()

	doc, err := s.load()
	if err != nil {
		return err
	}

	dirty, err := fn(doc)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	return s.save(doc)
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := &document{Nodes: []types.NodeRecord{}}
		if err := s.save(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read registry: %v", ErrUnavailable, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Registry file failed to parse")
		return nil, fmt.Errorf("%w: %w: %v", ErrUnavailable, ErrCorrupted, err)
	}
	if doc.Nodes == nil {
		doc.Nodes = []types.NodeRecord{}
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode registry: %v", ErrUnavailable, err)
	}
	if err := writeAtomic(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// writeAtomic writes to a temp file in the target directory, syncs it and
// renames it over path so readers only ever see a complete document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	// Persist the rename itself. Not every platform can sync a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

// List returns all nodes in file order
func (s *Store) List() ([]types.NodeRecord, error) {
	var out []types.NodeRecord
	err := s.withLock(func(doc *document) (bool, error) {
		out = make([]types.NodeRecord, 0, len(doc.Nodes))
		for _, n := range doc.Nodes {
			out = append(out, n.Clone())
		}
		return false, nil
	})
	return out, err
}

// Get returns the node with id, or nil when it is absent
func (s *Store) Get(id string) (*types.NodeRecord, error) {
	var out *types.NodeRecord
	err := s.withLock(func(doc *document) (bool, error) {
		if i := doc.index(id); i >= 0 {
			rec := doc.Nodes[i].Clone()
			out = &rec
		}
		return false, nil
	})
	return out, err
}

// Create validates rec and inserts it. Duplicate ids are rejected.
func (s *Store) Create(rec types.NodeRecord) (types.NodeRecord, error) {
	var created types.NodeRecord
	err := s.withLock(func(doc *document) (bool, error) {
		valid, err := ValidateRecord(rec, s.now())
		if err != nil {
			return false, err
		}
		if doc.index(valid.ID) >= 0 {
			return false, fmt.Errorf("%w: %s", ErrConflict, valid.ID)
		}
		doc.Nodes = append(doc.Nodes, valid)
		created = valid.Clone()
		return true, nil
	})
	if err != nil {
		return types.NodeRecord{}, err
	}
	s.logger.Debug().Str("node_id", created.ID).Msg("Node created")
	return created, nil
}

// Update applies patch to the node with id
func (s *Store) Update(id string, patch types.NodePatch) (types.NodeRecord, error) {
	return s.UpdateFunc(id, func(types.NodeRecord) (types.NodePatch, error) {
		return patch, nil
	})
}

// UpdateFunc computes the patch from the record read under the lock, so
// read-modify-write callers never act on a stale snapshot.
func (s *Store) UpdateFunc(id string, fn PatchFunc) (types.NodeRecord, error) {
	var updated types.NodeRecord
	err := s.withLock(func(doc *document) (bool, error) {
		i := doc.index(id)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		rec, err := s.applyAt(doc, i, fn)
		if err != nil {
			return false, err
		}
		updated = rec
		return true, nil
	})
	if err != nil {
		return types.NodeRecord{}, err
	}
	s.logger.Debug().Str("node_id", id).Msg("Node updated")
	return updated, nil
}

// Upsert inserts create when id is absent, otherwise applies patch
func (s *Store) Upsert(id string, create types.NodeRecord, patch types.NodePatch) (types.NodeRecord, Verb, error) {
	return s.UpsertFromCurrent(id, create, func(types.NodeRecord) (types.NodePatch, error) {
		return patch, nil
	})
}

// UpsertFromCurrent inserts create when id is absent. When it is present the
// patch is computed by fn from the just-locked record, which keeps
// concurrent announces for the same node from clobbering each other.
func (s *Store) UpsertFromCurrent(id string, create types.NodeRecord, fn PatchFunc) (types.NodeRecord, Verb, error) {
	var (
		result types.NodeRecord
		verb   Verb
	)
	err := s.withLock(func(doc *document) (bool, error) {
		i := doc.index(id)
		if i < 0 {
			if create.ID == "" {
				create.ID = id
			}
			valid, err := ValidateRecord(create, s.now())
			if err != nil {
				return false, err
			}
			if valid.ID != id {
				return false, invalid("id", "create value id %q does not match %q", valid.ID, id)
			}
			doc.Nodes = append(doc.Nodes, valid)
			result, verb = valid.Clone(), VerbCreated
			return true, nil
		}

		rec, err := s.applyAt(doc, i, fn)
		if err != nil {
			return false, err
		}
		result, verb = rec, VerbUpdated
		return true, nil
	})
	if err != nil {
		return types.NodeRecord{}, "", err
	}
	s.logger.Debug().Str("node_id", id).Str("verb", string(verb)).Msg("Node upserted")
	return result, verb, nil
}

// applyAt validates the patch from fn, merges it onto doc.Nodes[i] and
// re-validates the merged record before replacing it.
func (s *Store) applyAt(doc *document, i int, fn PatchFunc) (types.NodeRecord, error) {
	current := doc.Nodes[i].Clone()

	patch, err := fn(current.Clone())
	if err != nil {
		return types.NodeRecord{}, err
	}
	patch, err = ValidatePatch(patch)
	if err != nil {
		return types.NodeRecord{}, err
	}

	merged, err := ValidateRecord(patch.Apply(current), s.now())
	if err != nil {
		return types.NodeRecord{}, err
	}

	if merged.ID != current.ID {
		if j := doc.index(merged.ID); j >= 0 && j != i {
			return types.NodeRecord{}, fmt.Errorf("%w: %s", ErrConflict, merged.ID)
		}
	}

	doc.Nodes[i] = merged
	return merged.Clone(), nil
}

// Delete removes the node with id and reports whether it was present
func (s *Store) Delete(id string) (bool, error) {
	var found bool
	err := s.withLock(func(doc *document) (bool, error) {
		i := doc.index(id)
		if i < 0 {
			return false, nil
		}
		doc.Nodes = append(doc.Nodes[:i], doc.Nodes[i+1:]...)
		found = true
		return true, nil
	})
	if err == nil && found {
		s.logger.Debug().Str("node_id", id).Msg("Node deleted")
	}
	return found, err
}
