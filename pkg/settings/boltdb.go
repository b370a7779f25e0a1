package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
)

var (
	bucketSettings = []byte("settings")
	keyNode        = []byte("node")
)

// Settings are node-local tunables. None of them are trust decisions, so a
// damaged store falls back to defaults instead of failing.
type Settings struct {
	NodeID                  string            `json:"node_id"`
	Name                    string            `json:"name,omitempty"`
	Labels                  map[string]string `json:"labels,omitempty"`
	AnnounceIntervalSeconds int               `json:"announce_interval_seconds,omitempty"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// BoltStore keeps Settings in a bbolt database
type BoltStore struct {
	db     *bolt.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewBoltStore opens the settings database at path. A file that bbolt
// cannot open is moved aside to <path>.corrupt-<unix> and a fresh database
// is created in its place.
func NewBoltStore(path string) (*BoltStore, error) {
	logger := log.WithComponent("settings")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	db, err := open(path)
	if err != nil {
		if errors.Is(err, bolterrors.ErrTimeout) {
			return nil, fmt.Errorf("settings database is locked by another process: %w", err)
		}

		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		logger.Warn().Err(err).Str("moved_to", aside).Msg("Settings database unreadable, starting fresh")
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("failed to move corrupted settings aside: %w", rerr)
		}
		if db, err = open(path); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	return &BoltStore{db: db, path: path, logger: logger, now: time.Now}, nil
}

func open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSettings); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSettings, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load returns the stored settings. A missing or undecodable value yields
// zero Settings.
func (s *BoltStore) Load() (Settings, error) {
	var out Settings
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get(keyNode)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &out); err != nil {
			s.logger.Warn().Err(err).Msg("Stored settings unreadable, using defaults")
			out = Settings{}
		}
		return nil
	})
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return out, nil
}

// Save replaces the stored settings
func (s *BoltStore) Save(in Settings) error {
	in.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(keyNode, data)
	})
}

// EnsureNodeID returns the persisted node id, generating and saving one on
// first use. A non-empty preferred id wins and is persisted.
func (s *BoltStore) EnsureNodeID(preferred string) (string, error) {
	cur, err := s.Load()
	if err != nil {
		return "", err
	}

	switch {
	case preferred != "" && preferred != cur.NodeID:
		cur.NodeID = preferred
	case preferred == "" && cur.NodeID != "":
		return cur.NodeID, nil
	case preferred == "":
		cur.NodeID = uuid.NewString()
		s.logger.Info().Str("node_id", cur.NodeID).Msg("Generated node id")
	default:
		return cur.NodeID, nil
	}

	if err := s.Save(cur); err != nil {
		return "", fmt.Errorf("failed to persist node id: %w", err)
	}
	return cur.NodeID, nil
}
